package internal

import (
	"fmt"
	"strings"
	"time"

	"groupchat/domain"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// Config is the server configuration. List values are separated by "|".
type Config struct {
	Host       string `env:"HOST,default=0.0.0.0" validate:"required"`
	Port       int    `env:"PORT,default=7000" validate:"min=1,max=65535"`
	WSPort     int    `env:"WS_PORT,default=7001" validate:"min=0,max=65535"`
	HealthPort int    `env:"HEALTH_PORT,default=7002" validate:"min=0,max=65535"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true" validate:"required"`
	LogLevel       string `env:"LOG_LEVEL,default=INFO" validate:"required"`

	SessionQueueSize int           `env:"SESSION_QUEUE_SIZE,default=256" validate:"min=1"`
	SessionPolicy    string        `env:"SESSION_POLICY,default=reject" validate:"oneof=reject evict"`
	MaxAuthAttempts  int           `env:"MAX_AUTH_ATTEMPTS,default=3" validate:"min=1"`
	AuthTimeout      time.Duration `env:"AUTH_TIMEOUT,default=30s" validate:"gte=0"`
	IdleTimeout      time.Duration `env:"IDLE_TIMEOUT,default=5m" validate:"gte=0"`
	WriteTimeout     time.Duration `env:"WRITE_TIMEOUT,default=10s" validate:"gte=0"`
	DrainTimeout     time.Duration `env:"DRAIN_TIMEOUT,default=2s" validate:"gte=0"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0"`

	DirectoryCacheTTL time.Duration `env:"DIRECTORY_CACHE_TTL,default=30s" validate:"gte=0"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=1s" validate:"gt=0"`
	MetricInterval    time.Duration `env:"METRIC_INTERVAL,default=30s" validate:"gt=0"`

	MaxFrameSize     int `env:"MAX_FRAME_SIZE,default=65536" validate:"min=512"`
	MaxContentLength int `env:"MAX_CONTENT_LENGTH,default=4096" validate:"min=1"`
	HistoryLimit     int `env:"HISTORY_LIMIT,default=50" validate:"min=1"`

	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h" validate:"gte=0"`
	JWTSecret         string        `env:"JWT_SECRET"`

	CensoredWords   []string `env:"CENSORED_WORDS"`
	CharReplacement string   `env:"CHARACTER_REPLACEMENT,default=*"`

	RateLimitBurst          int           `env:"RATE_LIMIT_BURST,default=20" validate:"gte=0"`
	RateLimitRefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=10s" validate:"gte=0"`

	WSAllowedOrigins []string `env:"WS_ALLOWED_ORIGINS"`
}

// LoadConfig reads the configuration from the environment and validates it.
func LoadConfig() (Config, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	config.normalize()
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c *Config) normalize() {
	trim := func(values []string) []string {
		return lo.Compact(lo.Map(values, func(v string, _ int) string { return strings.TrimSpace(v) }))
	}
	c.CensoredWords = trim(c.CensoredWords)
	c.WSAllowedOrigins = trim(c.WSAllowedOrigins)
	c.SessionPolicy = strings.ToLower(strings.TrimSpace(c.SessionPolicy))
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.CharacterRune(); err != nil {
		return err
	}
	return nil
}

// TokensEnabled reports whether resume tokens are issued. Setting JWT_SECRET
// turns them on; without it clients log in with their password every time.
func (c Config) TokensEnabled() bool {
	return c.AuthTokenDuration > 0 && c.JWTSecret != ""
}

func (c Config) Policy() domain.SessionPolicy {
	return domain.SessionPolicy(c.SessionPolicy)
}

func (c Config) CharacterRune() (rune, error) {
	r := []rune(c.CharReplacement)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			c.CharReplacement,
		)
	}
	return r[0], nil
}
