package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMemory    = "memory"
	BackendMongo     = "mongo"
	BackendCassandra = "cassandra"
	BackendPostgres  = "postgres"
)

type Config struct {
	ServerPort string

	StoreBackend    string
	MongoURI        string
	MongoDBName     string
	MongoCollection string
	CassandraHosts  []string
	CassKeyspace    string
	PostgresURL     string

	// RedisAddr enables the task lookup cache when set.
	RedisAddr string
	CacheTTL  time.Duration

	Region            string
	CognitoUserPoolID string
	CognitoClientID   string
	JWKSURL           string
	JWKSFetchTimeout  time.Duration

	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigin   string

	LogFile  string
	LogLevel string
}

// Load reads an optional .env file followed by the process environment.
// Variables already set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := &Config{
		ServerPort:        getEnv("SERVER_PORT", "8002"),
		StoreBackend:      strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		MongoURI:          os.Getenv("MONGO_URI"),
		MongoDBName:       getEnv("MONGO_DB_NAME", "tasks_db"),
		MongoCollection:   getEnv("MONGO_COLLECTION", "tasks"),
		CassandraHosts:    splitList(os.Getenv("CASS_DB")),
		CassKeyspace:      getEnv("CASS_KEYSPACE", "tasks"),
		PostgresURL:       os.Getenv("POSTGRES_URL"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		Region:            getEnv("REGION_NAME", "us-east-1"),
		CognitoUserPoolID: os.Getenv("COGNITO_USER_POOL_ID"),
		CognitoClientID:   os.Getenv("COGNITO_CLIENT_ID"),
		JWKSURL:           os.Getenv("JWKS_URL"),
		AllowedOrigin:     getEnv("CORS_ALLOWED_ORIGIN", "*"),
		LogFile:           getEnv("LOG_FILE", "logs/tasks.log"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.JWKSFetchTimeout, err = getDuration("JWKS_FETCH_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = getDuration("REQUEST_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = getDuration("CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.CognitoClientID == "" {
		return errors.New("COGNITO_CLIENT_ID is required")
	}
	if c.JWKSURL == "" && c.CognitoUserPoolID == "" {
		return errors.New("either JWKS_URL or COGNITO_USER_POOL_ID is required")
	}

	switch c.StoreBackend {
	case BackendMemory:
	case BackendMongo:
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is required for the mongo backend")
		}
	case BackendCassandra:
		if len(c.CassandraHosts) == 0 {
			return errors.New("CASS_DB is required for the cassandra backend")
		}
	case BackendPostgres:
		if c.PostgresURL == "" {
			return errors.New("POSTGRES_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, v)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
