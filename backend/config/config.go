package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const envPrefix = "relay"

var (
	ErrFlags    = errors.New("failed to parse command line arguments")
	ErrFile     = errors.New("failed to read config file")
	ErrEnv      = errors.New("failed to read environment")
	ErrValidate = errors.New("invalid configuration")
)

// Config is layered as defaults, YAML file, environment (RELAY_*), then
// explicitly set flags.
type Config struct {
	APIListenAddr   string        `yaml:"api_listen_addr" envconfig:"API_LISTEN_ADDR" validate:"required"`
	WSListenAddr    string        `yaml:"ws_listen_addr" envconfig:"WS_LISTEN_ADDR" validate:"required"`
	LogLevel        string        `yaml:"log_level" envconfig:"LOG_LEVEL" validate:"required"`
	LogFormat       string        `yaml:"log_format" envconfig:"LOG_FORMAT" validate:"oneof=json console"`
	SendBuffer      int           `yaml:"send_buffer" envconfig:"SEND_BUFFER" validate:"gt=0"`
	MaxMessageSize  int64         `yaml:"max_message_size" envconfig:"MAX_MESSAGE_SIZE" validate:"gt=0"`
	PingInterval    time.Duration `yaml:"ping_interval" envconfig:"PING_INTERVAL" validate:"gt=0"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT" validate:"gtfield=PingInterval"`
	WriteDeadline   time.Duration `yaml:"write_deadline" envconfig:"WRITE_DEADLINE" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
}

func Default() Config {
	return Config{
		APIListenAddr:   ":8081",
		WSListenAddr:    ":8080",
		LogLevel:        "debug",
		LogFormat:       "json",
		SendBuffer:      64,
		MaxMessageSize:  64 * 1024,
		PingInterval:    20 * time.Second,
		PongWait:        30 * time.Second,
		WriteDeadline:   5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load builds the configuration from args (without the program name).
func Load(args []string) (Config, error) {
	var (
		cfg   = Default()
		fv    = Default()
		flags = pflag.NewFlagSet("room-relay", pflag.ContinueOnError)
	)

	configPath := flags.StringP("config", "c", "", "path to YAML config file")
	envFile := flags.String("env-file", "", "dotenv file to load before reading RELAY_* variables")
	flags.StringVarP(&fv.APIListenAddr, "api-listen-addr", "a", fv.APIListenAddr, "api listen address")
	flags.StringVarP(&fv.WSListenAddr, "ws-listen-addr", "w", fv.WSListenAddr, "websocket relay listen address")
	flags.StringVarP(&fv.LogLevel, "log-level", "l", fv.LogLevel, "log level")
	flags.StringVar(&fv.LogFormat, "log-format", fv.LogFormat, "log format: json or console")
	flags.IntVar(&fv.SendBuffer, "send-buffer", fv.SendBuffer, "outbound frames queued per connection")
	flags.Int64Var(&fv.MaxMessageSize, "max-message-size", fv.MaxMessageSize, "max inbound frame size in bytes")
	flags.DurationVar(&fv.PingInterval, "ping-interval", fv.PingInterval, "websocket ping interval")
	flags.DurationVar(&fv.PongWait, "pong-wait", fv.PongWait, "how long to wait for a pong")
	flags.DurationVar(&fv.WriteDeadline, "write-deadline", fv.WriteDeadline, "websocket write deadline")
	flags.DurationVar(&fv.ShutdownTimeout, "shutdown-timeout", fv.ShutdownTimeout, "graceful shutdown timeout")

	if err := flags.Parse(args); err != nil {
		return cfg, errors.Join(ErrFlags, err)
	}

	if *configPath != "" {
		b, err := os.ReadFile(*configPath)
		if err != nil {
			return cfg, errors.Join(ErrFile, err)
		}
		if err = yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, errors.Join(ErrFile, err)
		}
	}

	if err := loadDotEnv(*envFile); err != nil {
		return cfg, errors.Join(ErrEnv, err)
	}
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return cfg, errors.Join(ErrEnv, err)
	}

	changed := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	changed("api-listen-addr", func() { cfg.APIListenAddr = fv.APIListenAddr })
	changed("ws-listen-addr", func() { cfg.WSListenAddr = fv.WSListenAddr })
	changed("log-level", func() { cfg.LogLevel = fv.LogLevel })
	changed("log-format", func() { cfg.LogFormat = fv.LogFormat })
	changed("send-buffer", func() { cfg.SendBuffer = fv.SendBuffer })
	changed("max-message-size", func() { cfg.MaxMessageSize = fv.MaxMessageSize })
	changed("ping-interval", func() { cfg.PingInterval = fv.PingInterval })
	changed("pong-wait", func() { cfg.PongWait = fv.PongWait })
	changed("write-deadline", func() { cfg.WriteDeadline = fv.WriteDeadline })
	changed("shutdown-timeout", func() { cfg.ShutdownTimeout = fv.ShutdownTimeout })

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(&cfg); err != nil {
		return cfg, errors.Join(ErrValidate, err)
	}
	return cfg, nil
}

// loadDotEnv loads path, or ./.env if path is empty and the file exists.
// Variables already set in the environment win.
func loadDotEnv(path string) error {
	if path != "" {
		return godotenv.Load(path)
	}
	err := godotenv.Load()
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
