package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/park285/chess-duet/internal/obslog"
)

// AI provider names.
const (
	ProviderGemini    = "gemini"
	ProviderRemote    = "remote"
	ProviderStockfish = "stockfish"
	ProviderNone      = "none"
)

type AppConfig struct {
	RedisURL       string
	DatabaseURL    string
	LocalStorePath string
	SessionTTL     time.Duration
	FeedBuffer     int

	AIProvider        string
	AITimeout         time.Duration
	GeminiModel       string
	GeminiAPIKey      string
	AIRemoteURL       string
	StockfishPath     string
	StockfishPoolSize int
	OpeningBookPath   string
	OpeningBookMoves  int

	PersistMaxAttempts int
	RelayAddr          string
	MessagesDir        string

	Log obslog.Options
}

// Load reads configuration from the environment and, when CONFIG_PATH is set,
// from that file. Environment values win over file values.
func Load() (*AppConfig, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := strings.TrimSpace(os.Getenv("CONFIG_PATH")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{
		RedisURL:           strings.TrimSpace(v.GetString("REDIS_URL")),
		DatabaseURL:        strings.TrimSpace(v.GetString("DATABASE_URL")),
		LocalStorePath:     strings.TrimSpace(v.GetString("LOCAL_STORE_PATH")),
		SessionTTL:         time.Duration(v.GetInt("SESSION_TTL_SEC")) * time.Second,
		FeedBuffer:         v.GetInt("FEED_BUFFER"),
		AIProvider:         strings.ToLower(strings.TrimSpace(v.GetString("AI_PROVIDER"))),
		AITimeout:          time.Duration(v.GetInt("AI_TIMEOUT_MS")) * time.Millisecond,
		GeminiModel:        strings.TrimSpace(v.GetString("GEMINI_MODEL")),
		GeminiAPIKey:       firstNonEmpty(v.GetString("GOOGLE_API_KEY"), v.GetString("GEMINI_API_KEY"), v.GetString("GOOGLE_GENAI_API_KEY")),
		AIRemoteURL:        strings.TrimSpace(v.GetString("AI_REMOTE_URL")),
		StockfishPath:      strings.TrimSpace(v.GetString("STOCKFISH_PATH")),
		StockfishPoolSize:  v.GetInt("STOCKFISH_POOL_SIZE"),
		OpeningBookPath:    strings.TrimSpace(v.GetString("OPENING_BOOK_PATH")),
		OpeningBookMoves:   v.GetInt("OPENING_BOOK_MOVES"),
		PersistMaxAttempts: v.GetInt("PERSIST_MAX_ATTEMPTS"),
		RelayAddr:          strings.TrimSpace(v.GetString("RELAY_ADDR")),
		MessagesDir:        strings.TrimSpace(v.GetString("MESSAGES_DIR")),
		Log: obslog.Options{
			Level:    v.GetString("LOG_LEVEL"),
			Console:  v.GetBool("LOG_TO_CONSOLE"),
			ToFile:   v.GetBool("LOG_TO_FILE"),
			FilePath: v.GetString("LOG_FILE"),
			Caller:   v.GetBool("LOG_CALLER"),
			Format:   v.GetString("LOG_FORMAT"),
		},
	}

	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.FeedBuffer <= 0 {
		cfg.FeedBuffer = 16
	}
	if cfg.AITimeout <= 0 {
		cfg.AITimeout = 8 * time.Second
	}
	if cfg.PersistMaxAttempts <= 0 {
		cfg.PersistMaxAttempts = 5
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SESSION_TTL_SEC", 86400)
	v.SetDefault("FEED_BUFFER", 16)
	v.SetDefault("AI_PROVIDER", ProviderGemini)
	v.SetDefault("AI_TIMEOUT_MS", 8000)
	v.SetDefault("GEMINI_MODEL", "gemini-flash-latest")
	v.SetDefault("STOCKFISH_POOL_SIZE", 2)
	v.SetDefault("OPENING_BOOK_MOVES", 10)
	v.SetDefault("PERSIST_MAX_ATTEMPTS", 5)
	v.SetDefault("RELAY_ADDR", ":8085")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_TO_CONSOLE", true)
	v.SetDefault("LOG_TO_FILE", false)
	v.SetDefault("LOG_FORMAT", "legacy")
}

func (c *AppConfig) validate() error {
	switch c.AIProvider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return errors.New("GOOGLE_API_KEY (or GEMINI_API_KEY / GOOGLE_GENAI_API_KEY) is required for the gemini provider")
		}
	case ProviderRemote:
		if c.AIRemoteURL == "" {
			return errors.New("AI_REMOTE_URL is required for the remote provider")
		}
	case ProviderStockfish:
		if c.StockfishPath == "" {
			return errors.New("STOCKFISH_PATH is required for the stockfish provider")
		}
	case ProviderNone:
	default:
		return fmt.Errorf("unknown AI_PROVIDER %q", c.AIProvider)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
