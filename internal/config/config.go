// Package config loads service and keeper configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"keeper-vault/internal/keeper"
	"keeper-vault/internal/solana"
	redisstore "keeper-vault/internal/storage/redis"
)

// DefaultProgramID is the address of the deployed vault program.
const DefaultProgramID = "DEXSwp1111111111111111111111111111111111111"

// Storage drivers.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

// Venue modes.
const (
	VenueQuote = "quote" // fill at the quoted amount, nothing is signed
	VenueLive  = "live"  // sign and submit Jupiter transactions
)

// Config holds all application configuration.
type Config struct {
	Server struct {
		Addr            string        `yaml:"addr"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		RateLimitRPS    float64       `yaml:"rate_limit_rps"`
		RateLimitBurst  int           `yaml:"rate_limit_burst"`
	} `yaml:"server"`
	Solana struct {
		RPCEndpoint    string `yaml:"rpc_endpoint"`
		ProgramID      string `yaml:"program_id"`
		FeeRecipient   string `yaml:"fee_recipient"`
		KeypairPath    string `yaml:"keypair_path"`
		RefreshReserve bool   `yaml:"refresh_reserve"`
	} `yaml:"solana"`
	Engine struct {
		CooldownSeconds  int64         `yaml:"cooldown_seconds"`
		FeePoolReserve   uint64        `yaml:"fee_pool_reserve"`
		VenueTimeout     time.Duration `yaml:"venue_timeout"`
		FeeRetryInterval time.Duration `yaml:"fee_retry_interval"`
	} `yaml:"engine"`
	Venue struct {
		Mode       string `yaml:"mode"`
		JupiterURL string `yaml:"jupiter_url"`
	} `yaml:"venue"`
	Storage struct {
		Driver        string `yaml:"driver"`
		PostgresDSN   string `yaml:"postgres_dsn"`
		RedisURL      string `yaml:"redis_url"`
		ClickHouseDSN string `yaml:"clickhouse_dsn"`
	} `yaml:"storage"`
	Events struct {
		KafkaBrokers []string `yaml:"kafka_brokers"`
		KafkaTopic   string   `yaml:"kafka_topic"`
		Websocket    bool     `yaml:"websocket"`
	} `yaml:"events"`
	Keeper struct {
		APIURL        string            `yaml:"api_url"`
		KeypairPath   string            `yaml:"keypair_path"`
		Schedules     []keeper.Schedule `yaml:"schedules"`
		SignalsTopic  string            `yaml:"signals_topic"`
		ConsumerGroup string            `yaml:"consumer_group"`
		EventsURL     string            `yaml:"events_url"`
	} `yaml:"keeper"`
	Log struct {
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":8080"
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 60 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second
	cfg.Server.RateLimitRPS = 10
	cfg.Server.RateLimitBurst = 20
	cfg.Solana.RPCEndpoint = "https://api.mainnet-beta.solana.com"
	cfg.Solana.ProgramID = DefaultProgramID
	cfg.Engine.VenueTimeout = 20 * time.Second
	cfg.Engine.FeeRetryInterval = 30 * time.Second
	cfg.Venue.Mode = VenueQuote
	cfg.Venue.JupiterURL = "https://quote-api.jup.ag/v6"
	cfg.Storage.Driver = StorageMemory
	cfg.Events.KafkaTopic = "keeper-vault.events"
	cfg.Events.Websocket = true
	cfg.Keeper.APIURL = "http://localhost:8080"
	cfg.Keeper.SignalsTopic = "keeper-vault.signals"
	cfg.Keeper.ConsumerGroup = "keeper-vault-keeper"
	cfg.Log.MaxSizeMB = 100
	cfg.Log.MaxBackups = 5
	cfg.Log.MaxAgeDays = 30
	return cfg
}

// Load builds the configuration: defaults, then the YAML file at path (if
// any), then environment variables. Variables from envFile are loaded first
// without overriding the real environment.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Addr, "KEEPER_VAULT_ADDR")
	setString(&c.Solana.RPCEndpoint, "SOLANA_RPC_ENDPOINT")
	setString(&c.Solana.ProgramID, "KEEPER_VAULT_PROGRAM_ID")
	setString(&c.Solana.FeeRecipient, "KEEPER_VAULT_FEE_RECIPIENT")
	setString(&c.Solana.KeypairPath, "KEEPER_VAULT_KEYPAIR")
	setString(&c.Venue.Mode, "KEEPER_VAULT_VENUE")
	setString(&c.Venue.JupiterURL, "JUPITER_API_URL")
	setString(&c.Storage.Driver, "KEEPER_VAULT_STORAGE")
	setString(&c.Storage.PostgresDSN, "POSTGRES_DSN")
	setString(&c.Storage.RedisURL, "REDIS_URL")
	setString(&c.Storage.ClickHouseDSN, "CLICKHOUSE_DSN")
	setString(&c.Events.KafkaTopic, "KEEPER_VAULT_EVENTS_TOPIC")
	setString(&c.Keeper.APIURL, "KEEPER_VAULT_API_URL")
	setString(&c.Keeper.KeypairPath, "KEEPER_KEYPAIR")
	setString(&c.Keeper.SignalsTopic, "KEEPER_VAULT_SIGNALS_TOPIC")
	setString(&c.Keeper.EventsURL, "KEEPER_VAULT_EVENTS_URL")
	setString(&c.Log.File, "KEEPER_VAULT_LOG_FILE")

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Events.KafkaBrokers = splitList(v)
	}
	if v := os.Getenv("KEEPER_VAULT_COOLDOWN_SECONDS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("KEEPER_VAULT_COOLDOWN_SECONDS: %w", err)
		}
		c.Engine.CooldownSeconds = n
	}
	if v := os.Getenv("KEEPER_VAULT_RATE_LIMIT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("KEEPER_VAULT_RATE_LIMIT_RPS: %w", err)
		}
		c.Server.RateLimitRPS = f
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the server configuration.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Server.RateLimitRPS < 0 {
		return errors.New("server.rate_limit_rps must not be negative")
	}
	if _, err := solana.ParsePublicKey(c.Solana.ProgramID); err != nil {
		return fmt.Errorf("solana.program_id: %w", err)
	}
	if c.Solana.FeeRecipient != "" {
		if _, err := solana.ParsePublicKey(c.Solana.FeeRecipient); err != nil {
			return fmt.Errorf("solana.fee_recipient: %w", err)
		}
	}
	if c.Engine.CooldownSeconds < 0 {
		return errors.New("engine.cooldown_seconds must not be negative")
	}
	if c.Engine.VenueTimeout <= 0 {
		return errors.New("engine.venue_timeout must be positive")
	}
	if c.Storage.Driver == StorageRedis && c.Engine.VenueTimeout >= redisstore.DefaultLockTTL {
		return fmt.Errorf("engine.venue_timeout must stay below the redis lock ttl %v", redisstore.DefaultLockTTL)
	}
	if c.Engine.FeeRetryInterval <= 0 {
		return errors.New("engine.fee_retry_interval must be positive")
	}

	switch c.Venue.Mode {
	case VenueQuote:
	case VenueLive:
		if c.Solana.KeypairPath == "" {
			return errors.New("solana.keypair_path is required for the live venue")
		}
		if c.Solana.RPCEndpoint == "" {
			return errors.New("solana.rpc_endpoint is required for the live venue")
		}
	default:
		return fmt.Errorf("venue.mode: unknown mode %q", c.Venue.Mode)
	}

	switch c.Storage.Driver {
	case StorageMemory:
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn is required for the postgres driver")
		}
	case StorageRedis:
		if c.Storage.RedisURL == "" {
			return errors.New("storage.redis_url is required for the redis driver")
		}
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	return nil
}

// ValidateKeeper checks the keeper configuration.
func (c *Config) ValidateKeeper() error {
	if c.Keeper.APIURL == "" {
		return errors.New("keeper.api_url is required")
	}
	if c.Keeper.KeypairPath == "" {
		return errors.New("keeper.keypair_path is required")
	}
	if len(c.Keeper.Schedules) == 0 && len(c.Events.KafkaBrokers) == 0 {
		return errors.New("keeper needs at least one schedule or kafka_brokers")
	}
	for i, s := range c.Keeper.Schedules {
		if s.Spec == "" || s.Owner.IsZero() {
			return fmt.Errorf("keeper.schedules[%d]: spec and owner are required", i)
		}
		if !s.Signal.Valid() {
			return fmt.Errorf("keeper.schedules[%d]: invalid signal_type %d", i, s.Signal)
		}
	}
	return nil
}

// ProgramID returns the parsed program id. Call after Validate.
func (c *Config) ProgramID() solana.PublicKey {
	pk, _ := solana.ParsePublicKey(c.Solana.ProgramID)
	return pk
}

// FeeRecipient returns the parsed fee recipient, zero when unset. Call after Validate.
func (c *Config) FeeRecipient() solana.PublicKey {
	pk, _ := solana.ParsePublicKey(c.Solana.FeeRecipient)
	return pk
}
