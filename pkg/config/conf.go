package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/mchmarny/chimera/pkg/model"
	"gopkg.in/yaml.v3"
)

const (
	FileName = "config.yaml"
	dirMode  = 0700
	fileMode = 0600
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config represents app config object.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Model  ModelConfig  `yaml:"model"`
	Log    LogConfig    `yaml:"log"`
	Train  TrainConfig  `yaml:"train"`
}

type ServerConfig struct {
	Host         string        `yaml:"host" env:"CHIMERA_HOST" validate:"required"`
	Port         int           `yaml:"port" env:"CHIMERA_PORT" validate:"gte=1,lte=65535"`
	ReadTimeout  time.Duration `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gt=0"`
	ShutdownWait time.Duration `yaml:"shutdown_wait" validate:"gt=0"`
}

type ModelConfig struct {
	Path          string `yaml:"path" env:"CHIMERA_MODEL_PATH" validate:"required"`
	AllowFallback bool   `yaml:"allow_fallback" env:"CHIMERA_ALLOW_FALLBACK"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"CHIMERA_LOG_LEVEL" validate:"oneof=debug info warn warning error"`
	Format string `yaml:"format" env:"CHIMERA_LOG_FORMAT" validate:"oneof=cli text json"`
}

// TrainConfig holds defaults for the train command.
type TrainConfig struct {
	Samples      int     `yaml:"samples" validate:"gte=10"`
	Seed         uint64  `yaml:"seed"`
	Trees        int     `yaml:"trees" validate:"gte=1"`
	MaxDepth     int     `yaml:"max_depth" validate:"gte=1"`
	LearningRate float64 `yaml:"learning_rate" validate:"gt=0,lte=1"`
	Folds        int     `yaml:"folds" validate:"gte=2"`
}

// Default returns the configuration written on first run.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			ShutdownWait: 5 * time.Second,
		},
		Model: ModelConfig{
			Path:          model.DefaultPath,
			AllowFallback: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "cli",
		},
		Train: TrainConfig{
			Samples:      2000,
			Seed:         42,
			Trees:        100,
			MaxDepth:     4,
			LearningRate: 0.1,
			Folds:        5,
		},
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config required")
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from es. Variables that are not set leave the
// current value in place.
func (c *Config) ApplyEnv(es env.EnvSet) error {
	if err := env.Unmarshal(es, c); err != nil {
		return fmt.Errorf("applying environment overrides: %w", err)
	}
	return nil
}

// Save writes c to path.
func Save(path string, c *Config) error {
	if path == "" {
		return errors.New("config path required")
	}
	if c == nil {
		return errors.New("config required")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("writing config file %s: %w", path, err)
	}
	return nil
}

// ReadOrCreate reads app config from path or creates it with defaults.
// Fields missing from the file keep their default values.
func ReadOrCreate(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path required")
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating default config", "path", path)
		if err := Save(path, Default()); err != nil {
			return nil, fmt.Errorf("creating default config: %w", err)
		}
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("unmarshalling config file %s: %w", path, err)
	}
	return c, nil
}

// Load reads the config file at path, then applies process environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	c, err := ReadOrCreate(path)
	if err != nil {
		return nil, err
	}

	es, err := env.EnvironToEnvSet(os.Environ())
	if err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	if err := c.ApplyEnv(es); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// GetOrCreateHomeDir returns the app directory under the user home.
// The created flag is set to true if the directory was created.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("getting user home dir: %w", err)
	}

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dir)
		if err := os.Mkdir(dir, dirMode); err != nil {
			return "", false, fmt.Errorf("creating dir %s: %w", dir, err)
		}
		created = true
	}
	return dir, created, nil
}
