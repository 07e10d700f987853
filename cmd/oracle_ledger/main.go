package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/oracle-alpha/oracle-ledger/config"
	"github.com/oracle-alpha/oracle-ledger/internal/api"
	"github.com/oracle-alpha/oracle-ledger/internal/dal"
	"github.com/oracle-alpha/oracle-ledger/internal/dao"
	"github.com/oracle-alpha/oracle-ledger/internal/ledger"
	"github.com/oracle-alpha/oracle-ledger/internal/monitor"
	"github.com/oracle-alpha/oracle-ledger/internal/nats"
	"github.com/oracle-alpha/oracle-ledger/internal/tracker"
	"github.com/oracle-alpha/oracle-ledger/internal/ws"
	"github.com/oracle-alpha/oracle-ledger/pkg/goplus"
	"github.com/oracle-alpha/oracle-ledger/pkg/logger"
	"github.com/oracle-alpha/oracle-ledger/pkg/sigproc"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "cfg.toml", "config file path")
	flag.Parse()

	// 加载配置
	if err := config.Init(configFile); err != nil {
		panic(err)
	}
	cfg := config.Get()

	// 初始化日志
	if err := initLogger(cfg); err != nil {
		panic("init logger failed: " + err.Error())
	}
	defer logger.Close()

	logger.Info().Msg("oracle_ledger service starting...")

	// 初始化指标
	monitor.InitMetrics()

	// 初始化数据库
	dal.InitDB(cfg.DB)

	// 自动迁移表结构
	dal.AutoMigrate()

	// 初始化 DAO
	dao.InitDAO(dal.DB())

	// 初始化 NATS
	publisher, err := nats.NewPublisher(cfg.NATS.Endpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("init nats publisher failed")
	}
	defer publisher.Close()

	// 初始化 websocket 推送中心
	hub, err := ws.NewHub(cfg.WS.SendBuffer, cfg.WS.PoolSize)
	if err != nil {
		logger.Fatal().Err(err).Msg("init ws hub failed")
	}
	hub.History = func() any {
		sigs, err := dao.Signal().List(dao.ListQuery{Limit: 50})
		if err != nil {
			logger.Error().Err(err).Msg("load history snapshot failed")
			return []any{}
		}
		return sigs
	}

	// 初始化账本（存量状态加载或首次初始化）
	ldg := ledger.New(publisher, hub)
	if err = ldg.Bootstrap(cfg.Ledger.Authority); err != nil {
		logger.Fatal().Err(err).Msg("bootstrap ledger failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动 ATH 跟踪器
	var athTracker *tracker.Tracker
	if cfg.Tracker.Enabled {
		athTracker, err = tracker.NewTracker(ldg, publisher, cfg.Tracker.ReloadInterval, cfg.Tracker.PoolSize)
		if err != nil {
			logger.Fatal().Err(err).Msg("init ath tracker failed")
		}
		if err = athTracker.Start(); err != nil {
			logger.Fatal().Err(err).Msg("start ath tracker failed")
		}
	}

	// 启动 API 服务器
	apiServer := api.NewServer(cfg.API, ldg, hub)
	goplus.Go(func() {
		if err := apiServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("api server error")
		}
	})

	// 初始化健康检查服务器
	healthServer := monitor.NewHealthServer(
		cfg.Monitor.HealthServerAddr,
		ldg,
		publisher,
		hub,
	)
	if err = healthServer.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("start health server failed")
	}
	defer healthServer.Stop(context.Background())

	logger.Info().
		Str("api_addr", cfg.API.Addr).
		Str("health_addr", cfg.Monitor.HealthServerAddr).
		Str("authority", ldg.Authority()).
		Msg("oracle_ledger service started successfully")

	// 优雅关闭
	sigproc.GracefulShutdown(func(sig os.Signal) {
		logger.Info().Str("signal", sig.String()).Msg("shutting down...")

		// 停止接收新请求
		cancel()

		// 停止 ATH 跟踪器
		if athTracker != nil {
			athTracker.Stop()
		}

		// 关闭 API 服务器
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown api server failed")
		}

		// 断开 websocket 客户端
		hub.Close()

		// 关闭健康检查服务器
		healthServer.Stop(shutdownCtx)

		// 关闭配置重载
		config.Stop()

		// 关闭数据库
		dal.CloseDB()

		logger.Info().Msg("oracle_ledger service stopped")
	})

	<-ctx.Done()
}

func initLogger(cfg *config.Config) error {
	return logger.NewBuilder().
		SetMaxSize(cfg.Logger.MaxSize).
		SetMaxBackups(cfg.Logger.MaxBackups).
		SetMaxAge(cfg.Logger.MaxAge).
		SetLevel(cfg.Logger.Level).
		EnableCompression(cfg.Logger.Compress).
		EnableConsoleOutput(cfg.Logger.Console).
		Build()
}
