package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	LogLevel          string      `yaml:"log-level" env-default:"info"`
	HTTPPort          string      `yaml:"http-port" env-default:"9090"`
	SocketPort        string      `yaml:"socket-port" env-default:"8080"`
	Redis             Redis       `yaml:"redis"`
	SQLiteStoragePath string      `yaml:"sqlite-storage-path" env-default:"players.db"`
	Matchmaking       Matchmaking `yaml:"matchmaking"`
	UnsafeLogWrites   bool        `yaml:"unsafe-log-writes" env-default:"false"`
}

type Redis struct {
	Host string `yaml:"host" env-default:"localhost"`
	Port string `yaml:"port" env-default:"6379"`
}

// Matchmaking bounds the rendezvous handshake: how long each wait may block,
// how far document expiry is pushed on renewal, and how many attempts to make.
type Matchmaking struct {
	Timeout  time.Duration `yaml:"timeout" env-default:"60s"`
	Prolong  time.Duration `yaml:"prolong" env-default:"60s"`
	MaxRetry int           `yaml:"max-retry" env-default:"100"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	return config
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}
