// Package config loads the engine configuration from the environment and
// an optional .env file.
package config

import (
	"io/fs"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	GRPCAddr    string `env:"GRPC_ADDR" envDefault:":50051"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`
	DataDir     string `env:"DATA_DIR" envDefault:"./data"`
	SeedFile    string `env:"SEED_FILE" envDefault:"./seed.json"`

	WAL      WALConfig      `envPrefix:"WAL_"`
	Pipeline PipelineConfig
	Kafka    KafkaConfig `envPrefix:"KAFKA_"`
	Log      LogConfig   `envPrefix:"LOG_"`
}

type WALConfig struct {
	SegmentSize     int64         `env:"SEGMENT_SIZE" envDefault:"67108864"`
	SegmentDuration time.Duration `env:"SEGMENT_DURATION" envDefault:"1h"`
	SyncEveryWrite  bool          `env:"SYNC_EVERY_WRITE" envDefault:"true"`
}

type PipelineConfig struct {
	QueueSize            int           `env:"QUEUE_SIZE" envDefault:"4096"`
	QueueSizeLimit       int           `env:"QUEUE_SIZE_LIMIT" envDefault:"3000"`
	QueueMonitorInterval time.Duration `env:"QUEUE_MONITOR_INTERVAL" envDefault:"5s"`
	MaxCascadeDepth      int           `env:"MAX_CASCADE_DEPTH" envDefault:"100"`
	OrderBookDepth       int           `env:"ORDER_BOOK_DEPTH" envDefault:"0"`
	MidPriceWindow       time.Duration `env:"MID_PRICE_WINDOW" envDefault:"1h"`
	CompactionInterval   time.Duration `env:"COMPACTION_INTERVAL" envDefault:"1m"`
}

// KafkaConfig leaves Kafka off when no broker is set.
type KafkaConfig struct {
	Brokers           []string      `env:"BROKERS" envSeparator:","`
	OrdersTopic       string        `env:"ORDERS_TOPIC" envDefault:"matchd.orders"`
	ResponsesTopic    string        `env:"RESPONSES_TOPIC" envDefault:"matchd.responses"`
	RejectionsTopic   string        `env:"REJECTIONS_TOPIC" envDefault:"matchd.rejections"`
	ExecutionsTopic   string        `env:"EXECUTIONS_TOPIC" envDefault:"matchd.executions"`
	GroupID           string        `env:"GROUP_ID" envDefault:"matchd"`
	BroadcastInterval time.Duration `env:"BROADCAST_INTERVAL" envDefault:"250ms"`
	BroadcastBatch    int           `env:"BROADCAST_BATCH" envDefault:"512"`
	MaxRetries        uint32        `env:"MAX_RETRIES" envDefault:"0"`
}

func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

type LogConfig struct {
	Level       string `env:"LEVEL" envDefault:"info"`
	Development bool   `env:"DEVELOPMENT" envDefault:"false"`
}

func (c *Config) EntryWALDir() string { return filepath.Join(c.DataDir, "entry") }

func (c *Config) StateDir() string { return filepath.Join(c.DataDir, "state") }

// MustLoad loads the configuration and panics on a parse error.
func MustLoad[T any](cfg T, files ...string) {
	_ = godotenv.Load(files...)
	env.Must(cfg, env.Parse(cfg))
}

// Load reads files (".env" when none is given) into the environment,
// without overriding variables already set, then parses cfg. Missing
// files are ignored.
func Load[T any](cfg T, files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrap(err, "load env file")
	}
	return errors.Wrap(env.Parse(cfg), "parse environment")
}

// Logger builds the process logger.
func (l LogConfig) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, errors.Wrapf(err, "log level %q", l.Level)
	}
	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	log, err := zc.Build()
	return log, errors.Wrap(err, "build logger")
}
