/*
Package config manages TOML config for the guesscalc tools.
*/
package config

import (
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/pcalc/guesscalc/internal/utils"
)

// Config holds the entire config structure
type Config struct {
	Grammar  GrammarConfig  `toml:"grammar"`
	Generate GenerateConfig `toml:"generate"`
	Lookup   LookupConfig   `toml:"lookup"`
	Server   ServerConfig   `toml:"server"`
}

// GrammarConfig locates the trained grammar on disk.
type GrammarConfig struct {
	Dir                string `toml:"dir"`
	StructuresFile     string `toml:"structures_file"`
	TerminalsDir       string `toml:"terminals_dir"`
	MaxStructureLength int    `toml:"max_structure_length"`
}

// GenerateConfig holds enumeration defaults.
type GenerateConfig struct {
	Cutoff      float64 `toml:"cutoff"`
	SampleCount int     `toml:"sample_count"`
	Accurate    bool    `toml:"accurate"`
}

// LookupConfig holds guess-number lookup defaults.
type LookupConfig struct {
	// Bias picks the guess number on probability ties: "none" adds the
	// in-pattern rank, "down" reports the pattern's first guess number,
	// "up" reports the next pattern's.
	Bias string `toml:"bias"`
}

// ServerConfig has IPC server related options.
type ServerConfig struct {
	MaxInputLength int `toml:"max_input_length"`
}

// StructuresPath resolves the structures file: the explicit path when
// set, otherwise the conventional name inside the grammar dir.
func (g GrammarConfig) StructuresPath() string {
	if g.StructuresFile != "" {
		return g.StructuresFile
	}
	return filepath.Join(g.Dir, "nonterminalRules.txt")
}

// TerminalsPath resolves the terminals folder analogously.
func (g GrammarConfig) TerminalsPath() string {
	if g.TerminalsDir != "" {
		return g.TerminalsDir
	}
	return filepath.Join(g.Dir, "terminalRules")
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Grammar: GrammarConfig{
			Dir:                "grammar",
			MaxStructureLength: 40,
		},
		Generate: GenerateConfig{
			Cutoff:      0,
			SampleCount: 10000,
			Accurate:    false,
		},
		Lookup: LookupConfig{
			Bias: "none",
		},
		Server: ServerConfig{
			MaxInputLength: 256,
		},
	}
}

// GetConfigDir returns the config directory with fallback priority:
// 1. ~/.config/guesscalc
// 2. Current executable dir
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Errorf("Failed to get home directory: %v", err)
		return utils.GetExecutableDir()
	}
	primary := filepath.Join(homeDir, ".config", "guesscalc")
	if err := utils.EnsureDir(primary); err == nil {
		return primary, nil
	}
	return utils.GetExecutableDir()
}

// GetDefaultConfigPath returns the default path for guesscalc.toml
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "guesscalc.toml"), nil
}

// LoadConfigWithPriority loads config with priority:
// 1. Custom path from --config flag
// 2. Default path: ~/.config/guesscalc/guesscalc.toml
// 3. Builtin defaults
func LoadConfigWithPriority(customConfigPath string) (*Config, string, error) {
	if customConfigPath != "" {
		if utils.FileExists(customConfigPath) {
			config, err := LoadConfig(customConfigPath)
			if err == nil {
				log.Debugf("Loaded config from custom path: %s", customConfigPath)
				return config, customConfigPath, nil
			}
			log.Warnf("Failed to load custom config from %s: %v. Trying default path...", customConfigPath, err)
		} else {
			log.Warnf("Custom config file not found at %s. Trying default path...", customConfigPath)
		}
	}

	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		log.Warnf("Failed to determine default config path: %v. Using built-in defaults...", err)
		return DefaultConfig(), "", nil
	}
	config, err := InitConfig(defaultPath)
	if err != nil {
		log.Warnf("Failed to load/create config at default path %s: %v. Using builtin defaults...", defaultPath, err)
		return DefaultConfig(), "", nil
	}
	log.Debugf("Loaded config from default path: %s", defaultPath)
	return config, defaultPath, nil
}

// InitConfig loads config from file or creates default if missing
func InitConfig(configPath string) (*Config, error) {
	configDir := filepath.Dir(configPath)
	if err := utils.EnsureDir(configDir); err != nil {
		log.Warnf("Failed to create config directory %s: %v. Using built-in defaults...", configDir, err)
		return DefaultConfig(), nil
	}

	if !utils.FileExists(configPath) {
		config := DefaultConfig()
		if err := SaveConfig(config, configPath); err != nil {
			log.Warnf("Failed to create default config file at %s: %v. Using built-in defaults...", configPath, err)
			return DefaultConfig(), nil
		}
		log.Debugf("Created default config file at: %s", configPath)
		return config, nil
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		log.Warnf("Failed to load config from %s: %v. Using built-in defaults...", configPath, err)
		return DefaultConfig(), nil
	}
	return config, nil
}

// LoadConfig loads from a TOML file, keeping defaults for absent keys
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()
	if err := utils.LoadTOMLFile(configPath, config); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig saves into a TOML file
func SaveConfig(config *Config, configPath string) error {
	return utils.SaveTOMLFile(config, configPath)
}
