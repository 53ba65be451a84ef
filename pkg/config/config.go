package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env string

	Log     LogConfig
	Grading GradingConfig
}

type LogConfig struct {
	Level  string
	Format string
}

// GradingConfig tunes the computation engine defaults. Scheme thresholds
// themselves live in scheme files, not the environment.
type GradingConfig struct {
	// BestPrincipalCount is how many principal subjects feed the A-Level
	// division aggregate.
	BestPrincipalCount int
	// DefaultMaxMarks applies when a subject result carries no max marks.
	DefaultMaxMarks float64
	// SchemeDir points at YAML scheme overrides loaded at startup.
	SchemeDir string
	// BatchWorkers bounds cohort aggregation concurrency.
	BatchWorkers int
	// MetricsEnabled toggles Prometheus instrumentation.
	MetricsEnabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	// A missing .env is fine; the environment and defaults still apply.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Grading = GradingConfig{
		BestPrincipalCount: v.GetInt("GRADING_BEST_PRINCIPAL_COUNT"),
		DefaultMaxMarks:    v.GetFloat64("GRADING_DEFAULT_MAX_MARKS"),
		SchemeDir:          v.GetString("GRADING_SCHEME_DIR"),
		BatchWorkers:       v.GetInt("GRADING_BATCH_WORKERS"),
		MetricsEnabled:     v.GetBool("GRADING_ENABLE_METRICS"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("GRADING_BEST_PRINCIPAL_COUNT", 3)
	v.SetDefault("GRADING_DEFAULT_MAX_MARKS", 100)
	v.SetDefault("GRADING_SCHEME_DIR", "")
	v.SetDefault("GRADING_BATCH_WORKERS", 4)
	v.SetDefault("GRADING_ENABLE_METRICS", false)
}
