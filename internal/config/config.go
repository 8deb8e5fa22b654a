package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"rugroulette/internal/game"
	"rugroulette/internal/logging"
)

// Config holds all application configuration
type Config struct {
	Port        int            `mapstructure:"port"`
	Environment string         `mapstructure:"app_env"`
	CORSOrigins string         `mapstructure:"cors_origins"`
	Log         logging.Config `mapstructure:"log"`
	Game        GameConfig     `mapstructure:",squash"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Database    DatabaseConfig `mapstructure:"db"`
	Kafka       KafkaConfig    `mapstructure:"kafka"`
}

// GameConfig holds pool bounds and timing. Countdowns are in seconds.
type GameConfig struct {
	Pool            PoolConfig    `mapstructure:"pool"`
	StartingBalance string        `mapstructure:"starting_balance"`
	FirstCountdown  int           `mapstructure:"first_countdown"`
	CountdownMin    int           `mapstructure:"countdown_min"`
	CountdownMax    int           `mapstructure:"countdown_max"`
	ResolveDelay    time.Duration `mapstructure:"resolve_delay"`
	TickInterval    time.Duration `mapstructure:"tick_interval"`
}

type PoolConfig struct {
	MaxPlayers int    `mapstructure:"max_players"`
	MinStake   string `mapstructure:"min_stake"`
	MaxStake   string `mapstructure:"max_stake"`
}

// RedisConfig holds Redis connection configuration. An empty URL disables
// the Redis sink.
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DatabaseConfig holds Postgres connection configuration. An empty host
// disables the history store.
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           string `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	Schema         string `mapstructure:"schema"`
	SSLMode        string `mapstructure:"sslmode"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

// KafkaConfig holds Kafka configuration. No brokers disables the Kafka sink.
type KafkaConfig struct {
	Brokers    string `mapstructure:"brokers"`
	TopicRugs  string `mapstructure:"topic_rugs"`
	TopicSpins string `mapstructure:"topic_spins"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 5000)
	v.SetDefault("app_env", "development")
	v.SetDefault("cors_origins", "*")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("pool.max_players", 10)
	v.SetDefault("pool.min_stake", "1")
	v.SetDefault("pool.max_stake", "100")
	v.SetDefault("starting_balance", "1000")
	v.SetDefault("first_countdown", 300)
	v.SetDefault("countdown_min", 120)
	v.SetDefault("countdown_max", 420)
	v.SetDefault("resolve_delay", 5*time.Second)
	v.SetDefault("tick_interval", time.Second)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("db.host", "")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.database", "rugroulette")
	v.SetDefault("db.username", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.schema", "public")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.migrations_path", "./migrations")

	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic_rugs", "rug-events")
	v.SetDefault("kafka.topic_spins", "spin-events")
}

// Load reads configuration from the environment and, when present, from the
// given YAML file or ./config.yaml. Environment variables win; nested keys map
// to underscored names, so pool.max_players is POOL_MAX_PLAYERS.
func Load(filename string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if filename != "" {
		v.SetConfigFile(filename)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if filename != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}

	minStake, err := decimal.NewFromString(c.Game.Pool.MinStake)
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid pool.min_stake %q: %w", c.Game.Pool.MinStake, err))
	}
	maxStake, err := decimal.NewFromString(c.Game.Pool.MaxStake)
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid pool.max_stake %q: %w", c.Game.Pool.MaxStake, err))
	}
	if minStake.LessThanOrEqual(decimal.Zero) || maxStake.LessThan(minStake) {
		errs = append(errs, fmt.Errorf("stake bounds must satisfy 0 < min <= max, got %s-%s", minStake, maxStake))
	}
	if _, err := decimal.NewFromString(c.Game.StartingBalance); err != nil {
		errs = append(errs, fmt.Errorf("invalid starting_balance %q: %w", c.Game.StartingBalance, err))
	}

	if c.Game.Pool.MaxPlayers < 1 {
		errs = append(errs, fmt.Errorf("pool.max_players must be at least 1, got %d", c.Game.Pool.MaxPlayers))
	}
	if c.Game.FirstCountdown < 1 {
		errs = append(errs, fmt.Errorf("first_countdown must be positive, got %d", c.Game.FirstCountdown))
	}
	if c.Game.CountdownMin < 1 || c.Game.CountdownMax <= c.Game.CountdownMin {
		errs = append(errs, fmt.Errorf("countdown range must satisfy 0 < min < max, got [%d, %d)", c.Game.CountdownMin, c.Game.CountdownMax))
	}
	if c.Game.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("tick_interval must be positive, got %s", c.Game.TickInterval))
	}
	if c.Game.ResolveDelay < 0 {
		errs = append(errs, fmt.Errorf("resolve_delay must not be negative, got %s", c.Game.ResolveDelay))
	}

	return errors.Join(errs...)
}

// EngineOptions converts the validated game settings into engine options.
func (c *Config) EngineOptions(logger zerolog.Logger) game.Options {
	opts := game.DefaultOptions()
	opts.Pool = game.PoolConfig{
		MaxPlayers: c.Game.Pool.MaxPlayers,
		MinStake:   decimal.RequireFromString(c.Game.Pool.MinStake),
		MaxStake:   decimal.RequireFromString(c.Game.Pool.MaxStake),
	}
	opts.StartingBalance = decimal.RequireFromString(c.Game.StartingBalance)
	opts.FirstCountdown = c.Game.FirstCountdown
	opts.CountdownMin = c.Game.CountdownMin
	opts.CountdownMax = c.Game.CountdownMax
	opts.ResolveDelay = c.Game.ResolveDelay
	opts.TickInterval = c.Game.TickInterval
	opts.Logger = logger
	return opts
}

func (r RedisConfig) Enabled() bool {
	return r.URL != ""
}

func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

// DSN returns the pgx connection string.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.Username, d.Password),
		Host:   d.Host + ":" + d.Port,
		Path:   "/" + d.Database,
	}
	q := url.Values{}
	q.Set("sslmode", d.SSLMode)
	q.Set("search_path", d.Schema)
	u.RawQuery = q.Encode()
	return u.String()
}

// BrokerList splits the comma separated broker list.
func (k KafkaConfig) BrokerList() []string {
	return lo.Compact(lo.Map(strings.Split(k.Brokers, ","), func(b string, _ int) string {
		return strings.TrimSpace(b)
	}))
}

func (k KafkaConfig) Enabled() bool {
	return len(k.BrokerList()) > 0
}
