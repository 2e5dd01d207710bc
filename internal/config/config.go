package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends understood by the store factory.
const (
	BackendSurreal  = "surreal"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendFile     = "file"
)

// Provider exposes application configuration to the rest of the code base.
// Components depend on this interface rather than on Config so tests can
// embed it in small mocks.
type Provider interface {
	GetAppAddr() string
	GetDefaultRoom() string
	GetStoreBackend() string

	GetDBURL() string
	GetDBNs() string
	GetDBDb() string
	GetDBUser() string
	GetDBPass() string
	GetDBQueryTimeout() time.Duration
	GetDBExecuteTimeout() time.Duration

	GetPostgresURL() string
	GetRedisURL() string
	GetFileStoreDir() string

	GetSessionSecret() string
	GetJWTSecret() string
	GetAllowedOrigins() []string

	GetPresenceStaleThreshold() time.Duration
	GetPresenceSweepInterval() time.Duration
	GetPresenceOfflineDebounce() time.Duration
	GetSyncHeartbeatInterval() time.Duration
	GetSyncSubscribeRetries() int
}

// Config holds all configuration for the application.
type Config struct {
	AppAddr      string
	DefaultRoom  string
	StoreBackend string

	DBUrl            string
	DBNs             string
	DBDb             string
	DBUser           string
	DBPass           string
	DBQueryTimeout   time.Duration
	DBExecuteTimeout time.Duration

	PostgresURL  string
	RedisURL     string
	FileStoreDir string

	SessionSecret string
	JWTSecret     string
	// AllowedOrigins are host patterns accepted on websocket upgrades in
	// addition to the request's own host. "*" accepts any origin.
	AllowedOrigins []string

	PresenceStaleThreshold  time.Duration
	PresenceSweepInterval   time.Duration
	PresenceOfflineDebounce time.Duration
	SyncHeartbeatInterval   time.Duration
	SyncSubscribeRetries    int
}

// Compile-time interface compliance check
var _ Provider = (*Config)(nil)

// New loads configuration from a .env file (if present) and the environment.
func New() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment without touching .env files.
func FromEnv() *Config {
	return &Config{
		AppAddr:      getString("APP_ADDR", ":8080"),
		DefaultRoom:  getString("DEFAULT_ROOM", "general"),
		StoreBackend: strings.ToLower(getString("STORE_BACKEND", BackendFile)),

		DBUrl:            os.Getenv("SURREAL_URL"),
		DBNs:             os.Getenv("SURREAL_NS"),
		DBDb:             os.Getenv("SURREAL_DB"),
		DBUser:           os.Getenv("SURREAL_USER"),
		DBPass:           os.Getenv("SURREAL_PASS"),
		DBQueryTimeout:   getDuration("DB_QUERY_TIMEOUT", 5*time.Second),
		DBExecuteTimeout: getDuration("DB_EXECUTE_TIMEOUT", 10*time.Second),

		PostgresURL:  os.Getenv("POSTGRES_URL"),
		RedisURL:     os.Getenv("REDIS_URL"),
		FileStoreDir: getString("FILE_STORE_DIR", "data/messages"),

		SessionSecret: os.Getenv("SESSION_SECRET"),
		JWTSecret:     os.Getenv("JWT_SECRET"),

		AllowedOrigins: getList("WS_ALLOWED_ORIGINS"),

		PresenceStaleThreshold:  getDuration("PRESENCE_STALE_THRESHOLD", 90*time.Second),
		PresenceSweepInterval:   getDuration("PRESENCE_SWEEP_INTERVAL", 15*time.Second),
		PresenceOfflineDebounce: getDuration("PRESENCE_OFFLINE_DEBOUNCE", 0),
		SyncHeartbeatInterval:   getDuration("SYNC_HEARTBEAT_INTERVAL", 30*time.Second),
		SyncSubscribeRetries:    getInt("SYNC_SUBSCRIBE_RETRIES", 5),
	}
}

func getString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Invalid duration for %s (%q), using default %s", key, v, fallback)
		return fallback
	}
	return d
}

// getList splits a comma-separated value, dropping empty entries.
func getList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Invalid integer for %s (%q), using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func (c *Config) GetAppAddr() string      { return c.AppAddr }
func (c *Config) GetDefaultRoom() string  { return c.DefaultRoom }
func (c *Config) GetStoreBackend() string { return c.StoreBackend }

func (c *Config) GetDBURL() string                   { return c.DBUrl }
func (c *Config) GetDBNs() string                    { return c.DBNs }
func (c *Config) GetDBDb() string                    { return c.DBDb }
func (c *Config) GetDBUser() string                  { return c.DBUser }
func (c *Config) GetDBPass() string                  { return c.DBPass }
func (c *Config) GetDBQueryTimeout() time.Duration   { return c.DBQueryTimeout }
func (c *Config) GetDBExecuteTimeout() time.Duration { return c.DBExecuteTimeout }

func (c *Config) GetPostgresURL() string  { return c.PostgresURL }
func (c *Config) GetRedisURL() string     { return c.RedisURL }
func (c *Config) GetFileStoreDir() string { return c.FileStoreDir }

func (c *Config) GetSessionSecret() string { return c.SessionSecret }
func (c *Config) GetJWTSecret() string     { return c.JWTSecret }
func (c *Config) GetAllowedOrigins() []string {
	return c.AllowedOrigins
}

func (c *Config) GetPresenceStaleThreshold() time.Duration  { return c.PresenceStaleThreshold }
func (c *Config) GetPresenceSweepInterval() time.Duration   { return c.PresenceSweepInterval }
func (c *Config) GetPresenceOfflineDebounce() time.Duration { return c.PresenceOfflineDebounce }
func (c *Config) GetSyncHeartbeatInterval() time.Duration   { return c.SyncHeartbeatInterval }
func (c *Config) GetSyncSubscribeRetries() int              { return c.SyncSubscribeRetries }
