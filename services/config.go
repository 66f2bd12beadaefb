package services

import (
	"log/slog"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	AI        AIConfig
	JWT       JWTConfig
	WebSocket WebSocketConfig
	Storage   StorageConfig
	Scoring   ScoringConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	URL          string
	Seed         bool
	MaxIdleConns int
	MaxOpenConns int
}

type AIConfig struct {
	GeminiAPIKey string
	Timeout      time.Duration
	MaxRetries   int
}

type JWTConfig struct {
	Secret string
}

type WebSocketConfig struct {
	AllowedOrigins string
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	CacheSize int
}

type ScoringConfig struct {
	Lambda              float64
	GrammarWeight       float64
	VocabularyWeight    float64
	EffectivenessWeight float64
}

// LoadConfig loads configuration from environment variables and config files
func LoadConfig() *Config {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("websocket.allowed_origins", "")
	viper.SetDefault("gemini.api_key", "")
	viper.SetDefault("ai.timeout_seconds", "30")
	viper.SetDefault("ai.max_retries", "2")
	viper.SetDefault("jwt.secret", "")
	viper.SetDefault("database.url", "")
	viper.SetDefault("database.seed", "true")
	viper.SetDefault("database.max_idle_conns", "10")
	viper.SetDefault("database.max_open_conns", "100")
	viper.SetDefault("storage.endpoint", "")
	viper.SetDefault("storage.access_key", "")
	viper.SetDefault("storage.secret_key", "")
	viper.SetDefault("storage.bucket", "avery-images")
	viper.SetDefault("storage.use_ssl", "false")
	viper.SetDefault("storage.cache_size", "64")
	viper.SetDefault("scoring.lambda", "0.5")
	viper.SetDefault("scoring.grammar_weight", "1.0")
	viper.SetDefault("scoring.vocabulary_weight", "1.0")
	viper.SetDefault("scoring.effectiveness_weight", "1.0")

	// Map environment variables to config keys
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("websocket.allowed_origins", "WEBSOCKET_ALLOWED_ORIGINS")
	viper.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	viper.BindEnv("ai.timeout_seconds", "AI_TIMEOUT_SECONDS")
	viper.BindEnv("ai.max_retries", "AI_MAX_RETRIES")
	viper.BindEnv("jwt.secret", "JWT_SECRET")
	viper.BindEnv("database.url", "DATABASE_URL")
	viper.BindEnv("database.seed", "DATABASE_SEED")
	viper.BindEnv("database.max_idle_conns", "DATABASE_MAX_IDLE_CONNS")
	viper.BindEnv("database.max_open_conns", "DATABASE_MAX_OPEN_CONNS")
	viper.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	viper.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	viper.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	viper.BindEnv("storage.bucket", "STORAGE_BUCKET")
	viper.BindEnv("storage.use_ssl", "STORAGE_USE_SSL")
	viper.BindEnv("storage.cache_size", "STORAGE_CACHE_SIZE")
	viper.BindEnv("scoring.lambda", "SCORING_LAMBDA")
	viper.BindEnv("scoring.grammar_weight", "SCORING_GRAMMAR_WEIGHT")
	viper.BindEnv("scoring.vocabulary_weight", "SCORING_VOCABULARY_WEIGHT")
	viper.BindEnv("scoring.effectiveness_weight", "SCORING_EFFECTIVENESS_WEIGHT")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Warn("Config file not found, using defaults and environment variables")
		} else {
			slog.Error("Error reading config file", "error", err)
		}
	}

	return &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
		},
		Database: DatabaseConfig{
			URL:          viper.GetString("database.url"),
			Seed:         viper.GetBool("database.seed"),
			MaxIdleConns: viper.GetInt("database.max_idle_conns"),
			MaxOpenConns: viper.GetInt("database.max_open_conns"),
		},
		AI: AIConfig{
			GeminiAPIKey: viper.GetString("gemini.api_key"),
			Timeout:      time.Duration(viper.GetInt("ai.timeout_seconds")) * time.Second,
			MaxRetries:   viper.GetInt("ai.max_retries"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("jwt.secret"),
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins: viper.GetString("websocket.allowed_origins"),
		},
		Storage: StorageConfig{
			Endpoint:  viper.GetString("storage.endpoint"),
			AccessKey: viper.GetString("storage.access_key"),
			SecretKey: viper.GetString("storage.secret_key"),
			Bucket:    viper.GetString("storage.bucket"),
			UseSSL:    viper.GetBool("storage.use_ssl"),
			CacheSize: viper.GetInt("storage.cache_size"),
		},
		Scoring: ScoringConfig{
			Lambda:              viper.GetFloat64("scoring.lambda"),
			GrammarWeight:       viper.GetFloat64("scoring.grammar_weight"),
			VocabularyWeight:    viper.GetFloat64("scoring.vocabulary_weight"),
			EffectivenessWeight: viper.GetFloat64("scoring.effectiveness_weight"),
		},
	}
}
