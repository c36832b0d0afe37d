package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

const (
	defaultRegion    = "us-west-1"
	defaultStage     = "NONE"
	defaultBackupDir = "./backups"
)

// Config is everything the tooling reads from config.yml and the environment.
// It is loaded once in main and never mutated afterwards; components receive
// an Environment derived from it, never ambient globals.
type Config struct {
	Region string `yaml:"region" envconfig:"AWS_REGION"`
	Stage  string `yaml:"stage" envconfig:"TABLE_STAGE"`

	SourceSuffix string `yaml:"source_suffix" envconfig:"SOURCE_BACKEND_SUFFIX"`
	TargetSuffix string `yaml:"target_suffix" envconfig:"TARGET_BACKEND_SUFFIX"`

	// TableSuffix is what the tooling believes is the active backend;
	// PublicSuffix is what the web app was built against. They should agree.
	TableSuffix  string `yaml:"table_suffix" envconfig:"TABLE_SUFFIX"`
	PublicSuffix string `yaml:"public_suffix" envconfig:"NEXT_PUBLIC_BACKEND_SUFFIX"`

	Database struct {
		Endpoint string `yaml:"endpoint" envconfig:"DYNAMODB_ENDPOINT"`
	} `yaml:"database"`

	BackupDir      string `yaml:"backup_dir" envconfig:"BACKUP_DIR"`
	StorageBaseURL string `yaml:"storage_base_url" envconfig:"STORAGE_BASE_URL"`

	// Suffixes that require a typed confirmation before any mutating run.
	ProductionSuffixes []string `yaml:"production_suffixes"`
}

// Environment identifies one deployment stack at runtime. The suffix is the
// opaque segment Amplify embeds in every physical table name.
type Environment struct {
	Suffix string
	Stage  string
	Region string
}

func readFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		// Config file is optional; env vars can carry everything.
		return nil
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func readEnv(cfg *Config) error {
	return envconfig.Process("", cfg)
}

// Load reads config.yml (if present) then applies environment overrides.
func Load(path string) (Config, error) {
	var cfg Config
	if err := readFile(path, &cfg); err != nil {
		return Config{}, err
	}
	if err := readEnv(&cfg); err != nil {
		return Config{}, err
	}

	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}
	if cfg.Stage == "" {
		cfg.Stage = defaultStage
	}
	if cfg.BackupDir == "" {
		cfg.BackupDir = defaultBackupDir
	}
	return cfg, nil
}

// Source returns the environment records are read from.
func (c Config) Source() (Environment, error) {
	if c.SourceSuffix == "" {
		return Environment{}, fmt.Errorf("SOURCE_BACKEND_SUFFIX is required")
	}
	return Environment{Suffix: c.SourceSuffix, Stage: c.Stage, Region: c.Region}, nil
}

// Target returns the environment records are written to.
func (c Config) Target() (Environment, error) {
	if c.TargetSuffix == "" {
		return Environment{}, fmt.Errorf("TARGET_BACKEND_SUFFIX is required")
	}
	if c.TargetSuffix == c.SourceSuffix {
		return Environment{}, fmt.Errorf("source and target suffixes are both %q", c.TargetSuffix)
	}
	return Environment{Suffix: c.TargetSuffix, Stage: c.Stage, Region: c.Region}, nil
}

// Active returns the single environment in-place tools (repair, drift check)
// operate on, resolved from TABLE_SUFFIX.
func (c Config) Active() (Environment, error) {
	if c.TableSuffix == "" {
		return Environment{}, fmt.Errorf("TABLE_SUFFIX is required")
	}
	return Environment{Suffix: c.TableSuffix, Stage: c.Stage, Region: c.Region}, nil
}

// IsProduction reports whether a suffix belongs to a protected environment.
func (c Config) IsProduction(suffix string) bool {
	for _, s := range c.ProductionSuffixes {
		if s == suffix {
			return true
		}
	}
	return false
}

// Drift describes a disagreement between the suffix the app was built against
// and the one the tooling is configured with.
type Drift struct {
	PublicSuffix string
	TableSuffix  string
}

// CheckDrift returns nil when the app-facing and tooling suffixes agree, or
// when either side is unset (nothing to compare).
func (c Config) CheckDrift() *Drift {
	if c.PublicSuffix == "" || c.TableSuffix == "" {
		return nil
	}
	if c.PublicSuffix == c.TableSuffix {
		return nil
	}
	return &Drift{PublicSuffix: c.PublicSuffix, TableSuffix: c.TableSuffix}
}
