package sigproc

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oracle-alpha/oracle-ledger/pkg/goplus"
	"github.com/oracle-alpha/oracle-ledger/pkg/logger"
)

type HandlerFunc func(os.Signal)

// GracefulShutdown 注册退出信号处理
// shutdown 回调最多执行 30 秒，之后强制退出进程
func GracefulShutdown(shutdown HandlerFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	goplus.Go(func() {
		sig := <-sigChan
		logger.Info().Str("signal", sig.String()).Msg("received signal")

		goplus.Go(func() {
			shutdown(sig)
		})

		<-time.After(30 * time.Second)
		os.Exit(0)
	})
}
