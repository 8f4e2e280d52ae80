package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server       ServerConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Zitadel      ZitadelConfig
	RateLimit    RateLimitConfig
	Chain        ChainConfig
	Relay        RelayConfig
	Indexer      IndexerConfig
	R2           R2Config
	Agent        AgentConfig
	Queue        QueueConfig
	Connectivity ConnectivityConfig
	Gateway      GatewayConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type ZitadelConfig struct {
	Domain   string
	ClientID string
	Issuer   string
}

type RateLimitConfig struct {
	EnqueuePerMin int
	SyncPerMin    int
}

type ChainConfig struct {
	RPCURL          string
	ChainID         int64
	RegistryAddress string
	Timeout         int // seconds
}

type RelayConfig struct {
	BaseURL string
	APIKey  string
}

type IndexerConfig struct {
	BaseURL string
	Timeout int // seconds
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type AgentConfig struct {
	Token          string
	RelayerAddress string
}

type QueueConfig struct {
	MaxRetries       int
	BackoffBase      time.Duration
	BackoffMax       time.Duration
	ConfirmAttempts  int
	ConfirmInterval  time.Duration
	ConfirmRetention time.Duration
	Retention        time.Duration
	SimCacheTTL      time.Duration
	SimCacheSize     int
}

type ConnectivityConfig struct {
	ProbeInterval time.Duration
}

type GatewayConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("RELAY_API_KEY")
	readSecret("AGENT_TOKEN")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("ZITADEL_CLIENT_ID")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("zitadel.domain", "ZITADEL_DOMAIN")
	_ = viper.BindEnv("zitadel.client_id", "ZITADEL_CLIENT_ID")
	_ = viper.BindEnv("zitadel.issuer", "ZITADEL_ISSUER")
	_ = viper.BindEnv("chain.rpc_url", "CHAIN_RPC_URL")
	_ = viper.BindEnv("chain.chain_id", "CHAIN_ID")
	_ = viper.BindEnv("chain.registry_address", "CHAIN_REGISTRY_ADDRESS")
	_ = viper.BindEnv("chain.timeout", "CHAIN_TIMEOUT")
	_ = viper.BindEnv("relay.base_url", "RELAY_BASE_URL")
	_ = viper.BindEnv("relay.api_key", "RELAY_API_KEY")
	_ = viper.BindEnv("indexer.base_url", "INDEXER_BASE_URL")
	_ = viper.BindEnv("indexer.timeout", "INDEXER_TIMEOUT")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("agent.token", "AGENT_TOKEN")
	_ = viper.BindEnv("agent.relayer_address", "AGENT_RELAYER_ADDRESS")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.enqueue_per_min", 30)
	viper.SetDefault("ratelimit.sync_per_min", 12)

	// Chain defaults (Arbitrum Sepolia)
	viper.SetDefault("chain.rpc_url", "http://localhost:8545")
	viper.SetDefault("chain.chain_id", 421614)
	viper.SetDefault("chain.timeout", 30)

	// Relay defaults
	viper.SetDefault("relay.base_url", "http://localhost:8082")

	// Indexer defaults
	viper.SetDefault("indexer.base_url", "http://localhost:8083")
	viper.SetDefault("indexer.timeout", 15)

	// Gateway defaults
	viper.SetDefault("gateway.enabled", false)

	// Queue defaults
	viper.SetDefault("queue.max_retries", 5)
	viper.SetDefault("queue.backoff_base_seconds", 2)
	viper.SetDefault("queue.backoff_max_seconds", 300)
	viper.SetDefault("queue.confirm_attempts", 10)
	viper.SetDefault("queue.confirm_interval_seconds", 3)
	viper.SetDefault("queue.confirm_retention_hours", 72)
	viper.SetDefault("queue.retention_hours", 168)
	viper.SetDefault("queue.sim_cache_ttl_seconds", 60)
	viper.SetDefault("queue.sim_cache_size", 256)

	// Connectivity defaults
	viper.SetDefault("connectivity.probe_interval_seconds", 30)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		Zitadel: ZitadelConfig{
			Domain:   viper.GetString("zitadel.domain"),
			ClientID: viper.GetString("zitadel.client_id"),
			Issuer:   viper.GetString("zitadel.issuer"),
		},
		RateLimit: RateLimitConfig{
			EnqueuePerMin: viper.GetInt("ratelimit.enqueue_per_min"),
			SyncPerMin:    viper.GetInt("ratelimit.sync_per_min"),
		},
		Chain: ChainConfig{
			RPCURL:          viper.GetString("chain.rpc_url"),
			ChainID:         viper.GetInt64("chain.chain_id"),
			RegistryAddress: viper.GetString("chain.registry_address"),
			Timeout:         viper.GetInt("chain.timeout"),
		},
		Relay: RelayConfig{
			BaseURL: viper.GetString("relay.base_url"),
			APIKey:  viper.GetString("relay.api_key"),
		},
		Indexer: IndexerConfig{
			BaseURL: viper.GetString("indexer.base_url"),
			Timeout: viper.GetInt("indexer.timeout"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		Agent: AgentConfig{
			Token:          viper.GetString("agent.token"),
			RelayerAddress: viper.GetString("agent.relayer_address"),
		},
		Queue: QueueConfig{
			MaxRetries:       viper.GetInt("queue.max_retries"),
			BackoffBase:      time.Duration(viper.GetInt("queue.backoff_base_seconds")) * time.Second,
			BackoffMax:       time.Duration(viper.GetInt("queue.backoff_max_seconds")) * time.Second,
			ConfirmAttempts:  viper.GetInt("queue.confirm_attempts"),
			ConfirmInterval:  time.Duration(viper.GetInt("queue.confirm_interval_seconds")) * time.Second,
			ConfirmRetention: time.Duration(viper.GetInt("queue.confirm_retention_hours")) * time.Hour,
			Retention:        time.Duration(viper.GetInt("queue.retention_hours")) * time.Hour,
			SimCacheTTL:      time.Duration(viper.GetInt("queue.sim_cache_ttl_seconds")) * time.Second,
			SimCacheSize:     viper.GetInt("queue.sim_cache_size"),
		},
		Connectivity: ConnectivityConfig{
			ProbeInterval: time.Duration(viper.GetInt("connectivity.probe_interval_seconds")) * time.Second,
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
	}

	return cfg, nil
}
