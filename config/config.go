package config

import (
	"os"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/oracle-alpha/oracle-ledger/pkg/logger"
)

type Ledger struct {
	Authority string `toml:"authority"`
}

type DB struct {
	Driver             string   `toml:"driver"` // mysql / sqlite
	DSN                string   `toml:"dsn"`
	SlaveAddr          []string `toml:"slave_addr"`
	MaxIdleConnections int      `toml:"max_idle_connections"`
	MaxOpenConnections int      `toml:"max_open_connections"`
	SetConnMaxLifetime int      `toml:"set_conn_max_lifetime"`
	SetConnMaxIdleTime int      `toml:"set_conn_max_idle_time"`
	ProxyEnabled       bool     `toml:"proxy_enabled"`
	ProxyAddr          string   `toml:"proxy_addr"`
}

type NATS struct {
	Endpoint string `toml:"endpoint"`
}

type API struct {
	Addr      string        `toml:"addr"`
	CacheTTL  time.Duration `toml:"cache_ttl"`
	PageLimit int           `toml:"page_limit"` // 列表接口单页上限
}

type WS struct {
	SendBuffer int `toml:"send_buffer"` // 每个客户端发送缓冲大小
	PoolSize   int `toml:"pool_size"`   // 广播协程池大小
}

type Tracker struct {
	Enabled        bool          `toml:"enabled"`
	ReloadInterval time.Duration `toml:"reload_interval"`
	PoolSize       int           `toml:"pool_size"`
}

type Monitor struct {
	HealthServerAddr string `toml:"health_server_addr"`
}

type Logger struct {
	Level      string `toml:"level"`
	MaxSize    int    `toml:"max_size"`
	MaxBackups int    `toml:"max_backups"`
	MaxAge     int    `toml:"max_age"`
	Compress   bool   `toml:"compress"`
	Console    bool   `toml:"console"`
}

type Config struct {
	Ledger  Ledger  `toml:"ledger"`
	DB      DB      `toml:"db"`
	NATS    NATS    `toml:"nats"`
	API     API     `toml:"api"`
	WS      WS      `toml:"ws"`
	Tracker Tracker `toml:"tracker"`
	Monitor Monitor `toml:"monitor"`
	Logger  Logger  `toml:"log"`
}

var (
	cfg         *Config
	cfgPath     string
	cfgLock     sync.RWMutex
	lastModTime time.Time
	stopChan    chan struct{}
)

func Default() *Config {
	return &Config{
		Ledger: Ledger{
			Authority: "",
		},
		DB: DB{
			Driver:             "mysql",
			DSN:                "root:password@tcp(localhost:3306)/oracle?charset=utf8mb4&parseTime=True&loc=Local",
			SlaveAddr:          []string{},
			MaxIdleConnections: 16,
			MaxOpenConnections: 64,
			SetConnMaxLifetime: 7200,
			SetConnMaxIdleTime: 3600,
			ProxyEnabled:       false,
			ProxyAddr:          "127.0.0.1:7890",
		},
		NATS: NATS{
			Endpoint: "nats://localhost:4222",
		},
		API: API{
			Addr:      "0.0.0.0:3900",
			CacheTTL:  5 * time.Second,
			PageLimit: 100,
		},
		WS: WS{
			SendBuffer: 64,
			PoolSize:   256,
		},
		Tracker: Tracker{
			Enabled:        true,
			ReloadInterval: 30 * time.Second,
			PoolSize:       32,
		},
		Monitor: Monitor{
			HealthServerAddr: "0.0.0.0:16900",
		},
		Logger: Logger{
			Level:      "info",
			MaxSize:    10,
			MaxBackups: 60,
			MaxAge:     7,
			Compress:   false,
			Console:    false,
		},
	}
}

func Load(path string) error {
	c := Default()
	if _, err := toml.DecodeFile(path, c); err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	cfgLock.Lock()
	defer cfgLock.Unlock()
	cfg = c
	cfgPath = path
	lastModTime = info.ModTime()

	return nil
}

func Get() *Config {
	cfgLock.RLock()
	defer cfgLock.RUnlock()
	return cfg
}

// Init 初始化配置并启动定期重载（默认10秒）
func Init(path string) error {
	return InitWithInterval(path, 10*time.Second)
}

// InitWithInterval 初始化配置并指定重载间隔
func InitWithInterval(path string, interval time.Duration) error {
	if err := Load(path); err != nil {
		return err
	}

	stopChan = make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				reloadIfNeeded()
			case <-stopChan:
				return
			}
		}
	}()

	return nil
}

// Stop 停止配置重载
func Stop() {
	if stopChan != nil {
		close(stopChan)
	}
}

// reloadIfNeeded 仅在文件修改时重载
func reloadIfNeeded() {
	cfgLock.RLock()
	path := cfgPath
	lastMod := lastModTime
	cfgLock.RUnlock()

	if path == "" {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		logger.Error().Err(err).Msg("config stat failed")
		return
	}

	if info.ModTime().After(lastMod) {
		if err = Load(path); err != nil {
			logger.Error().Err(err).Msg("config reload failed")
		} else {
			logger.Info().Msg("config reloaded")
		}
	}
}
