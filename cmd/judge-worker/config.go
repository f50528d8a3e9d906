package main

import (
	"strings"

	"github.com/spf13/viper"

	"cpjudge/internal/datapack"
	"cpjudge/internal/judge/compile"
	appErr "cpjudge/pkg/errors"
	"cpjudge/pkg/logger"
)

const (
	defaultListenAddr   = "0.0.0.0:8000"
	defaultWorkers      = 2
	defaultRunDir       = "run"
	defaultTestCasesDir = "test_cases"
	defaultCacheDir     = "task_info_cache"
	defaultStateFile    = "task_info_path.json"
)

// Config is the worker's whole configuration, loaded from config.json
// with environment overrides.
type Config struct {
	// SecretKey is the shared token checked on inbound requests and sent
	// on outbound frontend requests. Mandatory.
	SecretKey string `mapstructure:"secret_key"`
	// FrontendURL is the base URL of the judge frontend.
	FrontendURL string `mapstructure:"frontend_url"`
	ListenAddr  string `mapstructure:"listen_addr"`
	Workers     int    `mapstructure:"workers"`
	// Debug disables frontend traffic: no refreshes, no reports.
	Debug bool `mapstructure:"debug"`

	RunDir       string `mapstructure:"run_dir"`
	TestCasesDir string `mapstructure:"test_cases_dir"`
	CacheDir     string `mapstructure:"cache_dir"`
	StateFile    string `mapstructure:"state_file"`

	Sandbox   SandboxConfig                     `mapstructure:"sandbox"`
	Queue     QueueConfig                       `mapstructure:"queue"`
	DataPack  datapack.Config                   `mapstructure:"data_pack"`
	Languages map[string]compile.LanguageConfig `mapstructure:"languages"`
	Logger    logger.Config                     `mapstructure:"logger"`
}

// SandboxConfig holds isolate settings.
type SandboxConfig struct {
	Binary  string `mapstructure:"binary"`
	BoxRoot string `mapstructure:"box_root"`
}

// QueueConfig selects the judge queue backend.
type QueueConfig struct {
	// Backend is "memory" or "redis".
	Backend       string `mapstructure:"backend"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisKey      string `mapstructure:"redis_key"`
}

// loadConfig reads config.json and applies environment overrides. The
// secret key must be present; a worker without one would accept anyone's
// submissions.
func loadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.SetDefault("listen_addr", defaultListenAddr)
	v.SetDefault("workers", defaultWorkers)
	v.SetDefault("run_dir", defaultRunDir)
	v.SetDefault("test_cases_dir", defaultTestCasesDir)
	v.SetDefault("cache_dir", defaultCacheDir)
	v.SetDefault("state_file", defaultStateFile)
	v.SetDefault("queue.backend", "memory")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetEnvPrefix("JUDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Long-standing deployment variables kept under their original names.
	_ = v.BindEnv("frontend_url", "FRONTEND_URL", "JUDGE_FRONTEND_URL")
	_ = v.BindEnv("workers", "JUDGE_WORKERS")
	_ = v.BindEnv("debug", "JUDGE_DEBUG")

	if err := v.ReadInConfig(); err != nil {
		return Config{}, appErr.Wrapf(err, appErr.ConfigMissing, "read config %s failed", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, appErr.Wrapf(err, appErr.ConfigInvalid, "parse config failed")
	}
	if cfg.SecretKey == "" {
		return Config{}, appErr.New(appErr.ConfigInvalid).WithMessage("secret_key is required")
	}
	if cfg.FrontendURL == "" && !cfg.Debug {
		return Config{}, appErr.New(appErr.ConfigInvalid).WithMessage("frontend_url is required outside debug mode")
	}
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")
	return cfg, nil
}
