package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	TimeFormat = "2006-01-02 15:04:05"

	fileWriters []*lumberjack.Logger
)

// initLogger 初始化日志系统
// info 及以上写入 info 文件，error 及以上额外写入 err 文件
func initLogger(config Config) error {
	zerolog.TimeFieldFormat = TimeFormat
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	setLogLevel(config.Level)

	for _, path := range []string{config.InfoFile, config.ErrorFile} {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
	}

	infoWriter := newFileWriter(config.InfoFile, config)
	errWriter := newFileWriter(config.ErrorFile, config)
	fileWriters = []*lumberjack.Logger{infoWriter, errWriter}

	writers := []io.Writer{
		infoWriter,
		&minLevelWriter{level: zerolog.ErrorLevel, Writer: errWriter},
	}

	if config.Console {
		writers = append(writers, &zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: TimeFormat,
		})
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().Timestamp().Caller().Logger()

	return nil
}

// minLevelWriter 只写入不低于指定等级的日志
type minLevelWriter struct {
	level zerolog.Level
	io.Writer
}

func (w *minLevelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < w.level {
		return len(p), nil
	}
	return w.Writer.Write(p)
}

// newFileWriter 创建滚动日志文件 writer
func newFileWriter(path string, config Config) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}
}

// L 返回全局 logger
func L() zerolog.Logger {
	return log.Logger
}

func Debug() *zerolog.Event {
	return log.Logger.Debug()
}

func Info() *zerolog.Event {
	return log.Logger.Info()
}

func Warn() *zerolog.Event {
	return log.Logger.Warn()
}

func Error() *zerolog.Event {
	return log.Logger.Error()
}

func Fatal() *zerolog.Event {
	return log.Logger.Fatal()
}

// Err 直接记录错误
func Err(err error) *zerolog.Event {
	return log.Logger.Err(err)
}

func Infof(format string, args ...any) {
	log.Logger.Info().Msgf(format, args...)
}

func Errorf(format string, args ...any) {
	log.Logger.Error().Msgf(format, args...)
}

// Close 关闭日志文件
func Close() {
	for _, w := range fileWriters {
		if err := w.Close(); err != nil {
			log.Logger.Err(err).Str("file", w.Filename).Msg("failed to close log writer")
		}
	}
	fileWriters = nil
}
