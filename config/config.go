package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Backend BackendConfig
	Store   StoreConfig
	Redis   RedisConfig
	Observ  ObservabilityConfig
	Chat    ChatConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type BackendConfig struct {
	BaseURL            string
	RequestTimeout     time.Duration
	HealthPollInterval time.Duration
}

type StoreConfig struct {
	// Backend selects the KV implementation: "sqlite", "redis" or "memory".
	Backend    string
	SQLitePath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ObservabilityConfig struct {
	JaegerEndpoint string
}

type ChatConfig struct {
	// TypingBaseDelay is the per-character cosmetic typing delay.
	TypingBaseDelay time.Duration
	// TypingMaxDelay caps the cosmetic typing phase.
	TypingMaxDelay time.Duration
}

func Load() *Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	requestTimeout, _ := strconv.Atoi(getEnv("BACKEND_TIMEOUT_SECONDS", "30"))
	healthInterval, _ := strconv.Atoi(getEnv("HEALTH_POLL_SECONDS", "30"))

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8090"),
			Env:  getEnv("ENV", "development"),
		},
		Backend: BackendConfig{
			BaseURL:            getEnv("BACKEND_URL", "http://localhost:8000"),
			RequestTimeout:     time.Duration(requestTimeout) * time.Second,
			HealthPollInterval: time.Duration(healthInterval) * time.Second,
		},
		Store: StoreConfig{
			Backend:    getEnv("STORE_BACKEND", "sqlite"),
			SQLitePath: getEnv("STORE_SQLITE_PATH", "storefront.db"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Observ: ObservabilityConfig{
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
		},
		Chat: ChatConfig{
			TypingBaseDelay: 50 * time.Millisecond,
			TypingMaxDelay:  3 * time.Second,
		},
	}

	log.Printf("Config loaded: env=%s, port=%s, backend=%s", cfg.Server.Env, cfg.Server.Port, cfg.Backend.BaseURL)
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
