package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// fileOverrides mirrors the subset of AppConfig an operator may want to
// set from a checked-in file instead of the environment. Zero values
// are left alone, so a CONFIG_FILE entry can override but never clear
// what the environment already set.
type fileOverrides struct {
	ListenHost            string `yaml:"listen_host"`
	ListenPort            int    `yaml:"listen_port"`
	MatchRatingWindow     int    `yaml:"match_rating_window"`
	IdleTimeoutSec        int    `yaml:"idle_timeout_seconds"`
	ChallengeTTLSec       int    `yaml:"challenge_ttl_seconds"`
	ChessOpeningMaxPly    int    `yaml:"chess_opening_max_ply"`
	ChessOpeningMinWeight int    `yaml:"chess_opening_min_weight"`
	TimeControl           string `yaml:"time_control"`
}

func loadFileOverrides(cfg *AppConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var o fileOverrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return err
	}
	if o.ListenHost != "" {
		cfg.ListenHost = o.ListenHost
	}
	if o.ListenPort != 0 {
		cfg.ListenPort = o.ListenPort
	}
	if o.MatchRatingWindow != 0 {
		cfg.MatchRatingWindow = o.MatchRatingWindow
	}
	if o.IdleTimeoutSec != 0 {
		cfg.IdleTimeoutSec = o.IdleTimeoutSec
	}
	if o.ChallengeTTLSec != 0 {
		cfg.ChallengeTTLSec = o.ChallengeTTLSec
	}
	if o.ChessOpeningMaxPly != 0 {
		cfg.ChessOpeningMaxPly = o.ChessOpeningMaxPly
	}
	if o.ChessOpeningMinWeight != 0 {
		cfg.ChessOpeningMinWeight = o.ChessOpeningMinWeight
	}
	if o.TimeControl != "" {
		cfg.TimeControl = o.TimeControl
	}
	return nil
}

type AppConfig struct {
	ListenHost string
	ListenPort int

	DatabaseURI  string
	DatabaseName string

	RedisURL string

	PasswordHashCost  int
	MatchRatingWindow int // 0 means unbounded
	IdleTimeoutSec    int
	ChallengeTTLSec   int

	JWTSecret string

	StockfishPath         string
	ChessOpeningMaxPly    int
	ChessOpeningMinWeight int

	// TimeControl is the label every game on this server is tagged with
	// in its PGN [TimeControl] header; it is not an enforced clock.
	TimeControl string
}

func Load() (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := &AppConfig{
		ListenHost:        "0.0.0.0",
		ListenPort:        8765,
		PasswordHashCost:  12,
		MatchRatingWindow: 0,
		IdleTimeoutSec:    300,
		ChallengeTTLSec:   60,
		TimeControl:       "none",
	}

	cfg.DatabaseURI = strings.TrimSpace(os.Getenv("DB_URI"))
	cfg.DatabaseName = strings.TrimSpace(os.Getenv("DB_NAME"))
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.JWTSecret = strings.TrimSpace(os.Getenv("JWT_SECRET"))
	cfg.StockfishPath = strings.TrimSpace(os.Getenv("STOCKFISH_PATH"))

	if v := strings.TrimSpace(os.Getenv("LISTEN_HOST")); v != "" {
		cfg.ListenHost = v
	}
	if v := strings.TrimSpace(os.Getenv("LISTEN_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ListenPort = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("PASSWORD_HASH_COST")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PasswordHashCost = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MATCH_RATING_WINDOW")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MatchRatingWindow = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("IDLE_TIMEOUT_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.IdleTimeoutSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CHALLENGE_TTL_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ChallengeTTLSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CHESS_OPENING_MAX_PLY")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ChessOpeningMaxPly = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CHESS_OPENING_MIN_WEIGHT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ChessOpeningMinWeight = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("TIME_CONTROL")); v != "" {
		cfg.TimeControl = v
	}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFileOverrides(cfg, path); err != nil {
			return nil, err
		}
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}

// ListenAddr renders the host:port pair net.Listen expects.
func (c *AppConfig) ListenAddr() string {
	return c.ListenHost + ":" + strconv.Itoa(c.ListenPort)
}
