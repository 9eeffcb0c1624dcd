package core

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/hcl/v2/hclsimple"
)

const (
	BaseDirName    = ".config/painterlink"
	ConfigFileName = "config.hcl"
	JournalName    = "painterlink.db"
)

// Config is the global configuration instance, set once at startup.
var Config *Configuration

// Configuration is the resolved bridge configuration.
type Configuration struct {
	ConfigPath  string // Directory containing config file and journal
	ListenHost  string // Bind address; empty means all interfaces
	ListenPort  int    // 0 binds an ephemeral port
	Debug       bool   // Gates verbose tracing of every envelope
	HistorySize int    // Traffic broadcaster ring size
	JournalPath string // SQLite event journal location
	Companion   CompanionConfig
}

// CompanionConfig describes how to launch the companion process. The launcher
// normally supplies Python and Startup through the environment, mirroring how
// the host application is started from a pipeline launcher.
type CompanionConfig struct {
	Python       string            // Interpreter executable path
	Startup      string            // Bootstrap script path
	Args         []string          // Extra arguments after the script
	Workdir      string            // Working directory, empty for inherit
	Environment  map[string]string // Extra environment variables
	RespawnDelay time.Duration     // Pause before a crash respawn
}

// HCL parsing structs

type hclConfig struct {
	ListenHost  string        `hcl:"listen_host,optional"`
	ListenPort  int           `hcl:"listen_port,optional"`
	Debug       bool          `hcl:"debug,optional"`
	HistorySize int           `hcl:"history_size,optional"`
	JournalPath string        `hcl:"journal_path,optional"`
	Companion   *hclCompanion `hcl:"companion,block"`
}

type hclCompanion struct {
	Python       string            `hcl:"python,optional"`
	Startup      string            `hcl:"startup,optional"`
	Args         []string          `hcl:"args,optional"`
	Workdir      string            `hcl:"workdir,optional"`
	Environment  map[string]string `hcl:"environment,optional"`
	RespawnDelay string            `hcl:"respawn_delay,optional"`
}

// envOverrides are applied on top of the config file. The launcher passes the
// interpreter, startup script and port this way.
type envOverrides struct {
	Host    string `env:"PAINTERLINK_HOST"`
	Port    *int   `env:"PAINTERLINK_PORT"`
	Debug   *bool  `env:"PAINTERLINK_DEBUG"`
	Python  string `env:"PAINTERLINK_ENGINE_PYTHON"`
	Startup string `env:"PAINTERLINK_ENGINE_STARTUP"`
}

// DefaultConfig returns a Configuration with default values.
func DefaultConfig(configPath string) *Configuration {
	return &Configuration{
		ConfigPath:  configPath,
		ListenHost:  "127.0.0.1",
		ListenPort:  0,
		HistorySize: 100,
		JournalPath: filepath.Join(configPath, JournalName),
		Companion: CompanionConfig{
			RespawnDelay: time.Second,
		},
	}
}

// LoadConfig resolves the configuration: defaults, then the HCL config file
// if present, then environment overrides.
func LoadConfig(configPath string) (*Configuration, error) {
	cfg := DefaultConfig(configPath)

	filename := filepath.Join(configPath, ConfigFileName)
	if _, err := os.Stat(filename); err == nil {
		var hclCfg hclConfig
		if err := hclsimple.DecodeFile(filename, nil, &hclCfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		if hclCfg.ListenHost != "" {
			cfg.ListenHost = hclCfg.ListenHost
		}
		if hclCfg.ListenPort != 0 {
			cfg.ListenPort = hclCfg.ListenPort
		}
		cfg.Debug = hclCfg.Debug
		if hclCfg.HistorySize > 0 {
			cfg.HistorySize = hclCfg.HistorySize
		}
		if hclCfg.JournalPath != "" {
			cfg.JournalPath = hclCfg.JournalPath
		}
		if hclCfg.Companion != nil {
			cfg.Companion.Python = hclCfg.Companion.Python
			cfg.Companion.Startup = hclCfg.Companion.Startup
			cfg.Companion.Args = hclCfg.Companion.Args
			cfg.Companion.Workdir = hclCfg.Companion.Workdir
			cfg.Companion.Environment = hclCfg.Companion.Environment
			if hclCfg.Companion.RespawnDelay != "" {
				delay, err := time.ParseDuration(hclCfg.Companion.RespawnDelay)
				if err != nil {
					return nil, fmt.Errorf("invalid respawn_delay: %w", err)
				}
				cfg.Companion.RespawnDelay = delay
			}
		}
	}

	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return nil, fmt.Errorf("failed to parse environment overrides: %w", err)
	}
	if overrides.Host != "" {
		cfg.ListenHost = overrides.Host
	}
	if overrides.Port != nil {
		cfg.ListenPort = *overrides.Port
	}
	if overrides.Debug != nil {
		cfg.Debug = *overrides.Debug
	}
	if overrides.Python != "" {
		cfg.Companion.Python = overrides.Python
	}
	if overrides.Startup != "" {
		cfg.Companion.Startup = overrides.Startup
	}

	return cfg, nil
}

// ConfigFile returns the path of the watched config file.
func (c *Configuration) ConfigFile() string {
	return filepath.Join(c.ConfigPath, ConfigFileName)
}
