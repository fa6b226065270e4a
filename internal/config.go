package internal

import (
	"chat-relay/errors"
	"chat-relay/infrastructure/storage"
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var validate = validator.New()

type Config struct {
	Host     string `env:"HOST,default=0.0.0.0" validate:"required"`
	Port     int    `env:"PORT,default=5000" validate:"min=1,max=65535"`
	LogLevel string `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR"`

	StoreBackend   string        `env:"STORE_BACKEND,default=badger" validate:"oneof=postgres badger memory"`
	StoreTimeout   time.Duration `env:"STORE_TIMEOUT,default=3s" validate:"gt=0"`
	BadgerFilepath string        `env:"BADGER_FILEPATH,default=./data/badger"`

	PostgresHost     string `env:"POSTGRES_HOST,default=localhost"`
	PostgresPort     int    `env:"POSTGRES_PORT,default=5432" validate:"min=1,max=65535"`
	PostgresName     string `env:"POSTGRES_NAME,default=chat"`
	PostgresUser     string `env:"POSTGRES_USER,default=chat"`
	PostgresPassword string `env:"POSTGRES_PASSWORD"`
	PostgresSSLMode  string `env:"POSTGRES_SSLMODE,default=prefer" validate:"oneof=disable allow prefer require verify-ca verify-full"`
	PostgresMaxConns int    `env:"POSTGRES_MAX_CONNS,default=10" validate:"min=1"`

	SnapshotFilepath string `env:"SNAPSHOT_FILEPATH,default=./data/messages.json"`

	HistoryLimit         int    `env:"HISTORY_LIMIT,default=100" validate:"min=1,max=1000"`
	ConnectionBufferSize int    `env:"CONNECTION_BUFFER_SIZE,default=256" validate:"min=1"`
	MaxFrameSize         int64  `env:"MAX_FRAME_SIZE,default=4096" validate:"min=256"`
	MaxMessageLength     int    `env:"MAX_MESSAGE_LENGTH,default=2000" validate:"min=1"`
	MaxUsernameLength    int    `env:"MAX_USERNAME_LENGTH,default=32" validate:"min=1"`
	AllowedOrigins       string `env:"ALLOWED_ORIGINS,default=*"`

	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=200ms" validate:"gt=0"`
	HealthInterval  time.Duration `env:"HEALTH_INTERVAL,default=10s" validate:"gt=0"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0"`
}

// Load reads an optional .env file, then the environment, then validates.
func Load() (Config, error) {
	_ = godotenv.Load()

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	config.LogLevel = strings.ToUpper(config.LogLevel)
	if err := validate.Struct(config); err != nil {
		return Config{}, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	return config, nil
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c Config) Origins() []string {
	return strings.Split(c.AllowedOrigins, ",")
}

func (c Config) StoreOptions() storage.Options {
	return storage.Options{
		Backend:      c.StoreBackend,
		BadgerPath:   c.BadgerFilepath,
		SnapshotPath: c.SnapshotFilepath,
		Timeout:      c.StoreTimeout,
		Postgres: storage.PostgresConfig{
			Host:     c.PostgresHost,
			Port:     c.PostgresPort,
			Name:     c.PostgresName,
			User:     c.PostgresUser,
			Password: c.PostgresPassword,
			SSLMode:  c.PostgresSSLMode,
			MaxConns: c.PostgresMaxConns,
		},
	}
}
