package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Queue      QueueConfig      `yaml:"queue" mapstructure:"queue"`
	RNE        RNEConfig        `yaml:"rne" mapstructure:"rne"`
	Pappers    PappersConfig    `yaml:"pappers" mapstructure:"pappers"`
	Places     PlacesConfig     `yaml:"places" mapstructure:"places"`
	Detection  DetectionConfig  `yaml:"detection" mapstructure:"detection"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Assignment AssignmentConfig `yaml:"assignment" mapstructure:"assignment"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the Postgres backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// QueueConfig configures the durable job queue and its worker loop.
type QueueConfig struct {
	PollIntervalSecs int    `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	RetryLimit       int    `yaml:"retry_limit" mapstructure:"retry_limit"`
	RetryDelaySecs   int    `yaml:"retry_delay_secs" mapstructure:"retry_delay_secs"`
	DrainTimeoutSecs int    `yaml:"drain_timeout_secs" mapstructure:"drain_timeout_secs"`
	DetectCron       string `yaml:"detect_cron" mapstructure:"detect_cron"`
	Timezone         string `yaml:"timezone" mapstructure:"timezone"`
}

// RNEConfig holds registry source credentials.
type RNEConfig struct {
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	RPS      float64 `yaml:"rps" mapstructure:"rps"`
}

// PappersConfig holds paid-data source credentials.
type PappersConfig struct {
	APIKey  string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string  `yaml:"base_url" mapstructure:"base_url"`
	RPS     float64 `yaml:"rps" mapstructure:"rps"`
}

// PlacesConfig holds places source credentials.
type PlacesConfig struct {
	APIKey   string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL  string  `yaml:"base_url" mapstructure:"base_url"`
	Region   string  `yaml:"region" mapstructure:"region"`
	Language string  `yaml:"language" mapstructure:"language"`
	RPS      float64 `yaml:"rps" mapstructure:"rps"`
}

// DetectionConfig configures the import stage.
type DetectionConfig struct {
	PageSize    int      `yaml:"page_size" mapstructure:"page_size"`
	DaysBack    int      `yaml:"days_back" mapstructure:"days_back"`
	NAFCodes    []string `yaml:"naf_codes" mapstructure:"naf_codes"`
	Departments []string `yaml:"departments" mapstructure:"departments"`
	LegalForms  []string `yaml:"legal_forms" mapstructure:"legal_forms"`
}

// ScoringConfig configures the scoring stage.
type ScoringConfig struct {
	QualifyThreshold int    `yaml:"qualify_threshold" mapstructure:"qualify_threshold"`
	HotThreshold     int    `yaml:"hot_threshold" mapstructure:"hot_threshold"`
	AutoQualify      bool   `yaml:"auto_qualify" mapstructure:"auto_qualify"`
	SectorsFile      string `yaml:"sectors_file" mapstructure:"sectors_file"`
}

// AssignmentConfig configures the assignment stage.
type AssignmentConfig struct {
	AutoAssign bool `yaml:"auto_assign" mapstructure:"auto_assign"`
}

// ServerConfig configures the trigger API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	Token          string   `yaml:"token" mapstructure:"token"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PROSPECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("queue.poll_interval_secs", 2)
	v.SetDefault("queue.retry_limit", 2)
	v.SetDefault("queue.retry_delay_secs", 30)
	v.SetDefault("queue.drain_timeout_secs", 30)
	v.SetDefault("queue.detect_cron", "0 6 * * *")
	v.SetDefault("queue.timezone", "Europe/Paris")
	v.SetDefault("rne.base_url", "https://registre-national-entreprises.inpi.fr/api")
	v.SetDefault("rne.rps", 0.5)
	v.SetDefault("pappers.base_url", "https://api.pappers.fr/v2")
	v.SetDefault("pappers.rps", 1)
	v.SetDefault("places.base_url", "https://maps.googleapis.com/maps/api/place")
	v.SetDefault("places.region", "fr")
	v.SetDefault("places.language", "fr")
	v.SetDefault("places.rps", 2)
	v.SetDefault("detection.page_size", 100)
	v.SetDefault("detection.days_back", 1)
	v.SetDefault("scoring.qualify_threshold", 40)
	v.SetDefault("scoring.hot_threshold", 70)
	v.SetDefault("scoring.auto_qualify", true)
	v.SetDefault("assignment.auto_assign", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
