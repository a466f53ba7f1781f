package cliparse

import (
	"errors"
	"flag"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port               int
	DatabaseURL        string
	VotingTokenSecret  string
	SessionTokenSecret string
	TickInterval       time.Duration
	CORSOrigin         string
}

// LoadDotEnv loads variables from the given .env files (default ".env") into
// the process environment. Variables already set are kept. Missing files are
// not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ParseFlags validates flags and fills the rest from the environment
func ParseFlags(args []string) (Config, error) {
	var cfg Config

	fset := flag.NewFlagSet("elvox", flag.ContinueOnError)

	// Network config (can be CLI args or env)
	fset.IntVar(&cfg.Port, "p", 0, "Server port")
	fset.StringVar(&cfg.DatabaseURL, "d", "", "Database URL")
	fset.StringVar(&cfg.CORSOrigin, "origin", "", "Allowed CORS origin")
	fset.DurationVar(&cfg.TickInterval, "tick", 0, "Scheduler interval")

	// Secrets (prefer env variables, but allow CLI for dev)
	fset.StringVar(&cfg.VotingTokenSecret, "voting-secret", "", "Voting token secret (prefer env)")
	fset.StringVar(&cfg.SessionTokenSecret, "session-secret", "", "Session token secret (prefer env)")

	if err := fset.Parse(args); err != nil {
		return Config{}, err
	}

	// Fall back to environment variables
	if cfg.Port == 0 {
		if portStr := os.Getenv("PORT"); portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return Config{}, errors.New("invalid PORT env variable")
			}
			cfg.Port = port
		} else {
			cfg.Port = 3318 // default
		}
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("database URL required (use -d or DATABASE_URL env)")
	}

	if cfg.TickInterval == 0 {
		if tick := os.Getenv("SCHEDULER_INTERVAL"); tick != "" {
			d, err := time.ParseDuration(tick)
			if err != nil {
				return Config{}, errors.New("invalid SCHEDULER_INTERVAL env variable")
			}
			cfg.TickInterval = d
		} else {
			cfg.TickInterval = 30 * time.Second
		}
	}
	if cfg.TickInterval < time.Second {
		return Config{}, errors.New("scheduler interval must be at least 1s")
	}

	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = os.Getenv("CORS_ORIGIN")
		if cfg.CORSOrigin == "" {
			cfg.CORSOrigin = "*"
		}
	}

	// Secrets - MUST be provided
	if cfg.VotingTokenSecret == "" {
		cfg.VotingTokenSecret = os.Getenv("VOTING_TOKEN_SECRET")
	}
	if cfg.VotingTokenSecret == "" {
		return Config{}, errors.New("VOTING_TOKEN_SECRET required")
	}

	if cfg.SessionTokenSecret == "" {
		cfg.SessionTokenSecret = os.Getenv("SESSION_TOKEN_SECRET")
	}
	if cfg.SessionTokenSecret == "" {
		return Config{}, errors.New("SESSION_TOKEN_SECRET required")
	}
	if cfg.SessionTokenSecret == cfg.VotingTokenSecret {
		return Config{}, errors.New("SESSION_TOKEN_SECRET and VOTING_TOKEN_SECRET must differ")
	}

	return cfg, nil
}
