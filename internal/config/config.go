package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	DriverRedis  = "redis"
	DriverMemory = "memory"
	BrokerRedis  = "redis"
	BrokerNATS   = "nats"
)

var (
	ErrUnknownDriver = errors.New("unknown store driver")
	ErrInvalidPort   = errors.New("invalid port")
)

type Config struct {
	LogLevel string `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	Port     string `yaml:"port" env:"PORT" env-default:"3000"`
	Store    Store  `yaml:"store"`
	Redis    Redis  `yaml:"redis"`
	NATS     NATS   `yaml:"nats"`
}

type Store struct {
	Driver      string        `yaml:"driver" env:"STORE_DRIVER" env-default:"redis"`
	Broker      string        `yaml:"broker" env:"STORE_BROKER" env-default:"redis"`
	KeyPrefix   string        `yaml:"key-prefix" env:"STORE_KEY_PREFIX" env-default:"ttt"`
	MaxAttempts int           `yaml:"max-attempts" env:"STORE_MAX_ATTEMPTS" env-default:"100"`
	Timeout     time.Duration `yaml:"timeout" env:"STORE_TIMEOUT" env-default:"5s"`
}

type Redis struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type NATS struct {
	URL string `yaml:"url" env:"NATS_URL" env-default:"nats://localhost:4222"`
}

// MustLoad - loads config.yml at path, falling back to the environment alone when the file is absent.
func MustLoad(path string) *Config {
	config, err := Load(path)
	if err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	return config
}

func Load(path string) (*Config, error) {
	config := &Config{}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err = cleanenv.ReadEnv(config); err != nil {
			return nil, fmt.Errorf("failed to read env: %w", err)
		}
	} else if err = cleanenv.ReadConfig(path, config); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate - rejects ports and driver/broker combinations the application cannot use.
func (that *Config) Validate() error {
	if _, err := that.PortNumber(); err != nil {
		return err
	}

	switch that.Store.Driver {
	case DriverRedis, DriverMemory:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, that.Store.Driver)
	}

	switch that.Store.Broker {
	case BrokerRedis, BrokerNATS:
	default:
		return fmt.Errorf("%w: unknown broker %q", ErrUnknownDriver, that.Store.Broker)
	}

	return nil
}

// PortNumber - the HTTP port as a number, 1..65535.
func (that *Config) PortNumber() (int, error) {
	port, err := strconv.Atoi(that.Port)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPort, that.Port)
	}

	return port, nil
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}
