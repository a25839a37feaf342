package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	EventsDriverNone  = "none"
	EventsDriverRedis = "redis"
	EventsDriverNATS  = "nats"
)

type Config struct {
	LogLevel   string `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPPort   string `yaml:"http-port" env:"HTTP_PORT" env-default:"9090"`
	SocketPort string `yaml:"socket-port" env:"SOCKET_PORT" env-default:"7000"`
	Room       Room   `yaml:"room"`
	Events     Events `yaml:"events"`
	Redis      Redis  `yaml:"redis"`
	NATS       NATS   `yaml:"nats"`
}

const maxChatHistory = 50

// Room holds the lifetime settings of rooms and seats.
type Room struct {
	DisconnectGrace   time.Duration `yaml:"disconnect-grace" env:"ROOM_DISCONNECT_GRACE" env-default:"30s"`
	EmptyGrace        time.Duration `yaml:"empty-grace" env:"ROOM_EMPTY_GRACE" env-default:"5m"`
	InactivityCeiling time.Duration `yaml:"inactivity-ceiling" env:"ROOM_INACTIVITY_CEILING" env-default:"1h"`
	MaxAge            time.Duration `yaml:"max-age" env:"ROOM_MAX_AGE" env-default:"24h"`
	SweepInterval     time.Duration `yaml:"sweep-interval" env:"ROOM_SWEEP_INTERVAL" env-default:"10m"`
	ChatHistory       int           `yaml:"chat-history" env:"ROOM_CHAT_HISTORY" env-default:"50"`
}

type Events struct {
	Driver     string `yaml:"driver" env:"EVENTS_DRIVER" env-default:"none"`
	BufferSize int    `yaml:"buffer-size" env:"EVENTS_BUFFER_SIZE" env-default:"256"`
}

type Redis struct {
	Host    string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port    string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Channel string `yaml:"channel" env:"REDIS_CHANNEL" env-default:"tictactoe:events"`
}

type NATS struct {
	URL     string `yaml:"url" env:"NATS_URL" env-default:"nats://localhost:4222"`
	Subject string `yaml:"subject" env:"NATS_SUBJECT" env-default:"tictactoe.events"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config, err := Load(path)
	if err != nil {
		panic(err)
	}

	return config
}

func Load(path string) (*Config, error) {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		return nil, fmt.Errorf("unable to load config file: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

func (that *Config) validate() error {
	switch that.Events.Driver {
	case EventsDriverNone, EventsDriverRedis, EventsDriverNATS:
	default:
		return fmt.Errorf("unknown events driver %q", that.Events.Driver)
	}

	if that.Room.SweepInterval <= 0 {
		return fmt.Errorf("room sweep interval must be positive, got %s", that.Room.SweepInterval)
	}

	if that.Room.ChatHistory < 1 || that.Room.ChatHistory > maxChatHistory {
		return fmt.Errorf("room chat history must be within 1..%d, got %d", maxChatHistory, that.Room.ChatHistory)
	}

	if that.Room.DisconnectGrace < 0 {
		return fmt.Errorf("disconnect grace must not be negative, got %s", that.Room.DisconnectGrace)
	}

	return nil
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}
