package timelock

import "time"

type (
	Config struct {
		Snapshot             SnapshotConfig
		BorrowAmount         Amount
		MaxRetries           int
		CacheSize            int
		EnableSnapshotWorker bool
	}

	SnapshotConfig struct {
		WorkerCount  int
		MaxQueueSize int
		SaveTimeout  time.Duration
	}

	RedisConfig struct {
		Addr     string
		Password string
		Prefix   string
		DB       int
	}

	BoltConfig struct {
		Path    string
		Timeout time.Duration
	}

	PostgresConfig struct {
		URL    string
		Prefix string
	}
)

const (
	DefaultBorrowAmount Amount = 10
	DefaultBook                = "main"

	DefaultMaxRetries          = 16
	DefaultExecutorCacheSize   = 128
	DefaultCacheSize           = 4096
	DefaultSnapshotWorkers     = 4
	DefaultSnapshotQueueSize   = 1024
	DefaultSnapshotSaveTimeout = 30 * time.Second

	DefaultRedisEndpoint = "localhost:6379"
	DefaultRedisPrefix   = "timelock"
	DefaultRedisDB       = 0

	DefaultBoltPath    = "timelock.db"
	DefaultBoltTimeout = time.Second

	DefaultPostgresURL    = "postgres://localhost:5432/timelock"
	DefaultPostgresPrefix = "timelock"
)

func DefaultConfig() Config {
	return Config{
		Snapshot:             DefaultSnapshotConfig(),
		BorrowAmount:         DefaultBorrowAmount,
		MaxRetries:           DefaultMaxRetries,
		CacheSize:            DefaultExecutorCacheSize,
		EnableSnapshotWorker: true,
	}
}

func DefaultSnapshotConfig() SnapshotConfig {
	return SnapshotConfig{
		WorkerCount:  DefaultSnapshotWorkers,
		MaxQueueSize: DefaultSnapshotQueueSize,
		SaveTimeout:  DefaultSnapshotSaveTimeout,
	}
}

func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:   DefaultRedisEndpoint,
		Prefix: DefaultRedisPrefix,
		DB:     DefaultRedisDB,
	}
}

func DefaultBoltConfig() BoltConfig {
	return BoltConfig{
		Path:    DefaultBoltPath,
		Timeout: DefaultBoltTimeout,
	}
}

func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		URL:    DefaultPostgresURL,
		Prefix: DefaultPostgresPrefix,
	}
}
