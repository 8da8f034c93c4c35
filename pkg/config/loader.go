package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// ConfigFileName is the name of the project-level config file.
const ConfigFileName = "fsmirror.toml"

// ConfigDirName is the name of the project-level config directory.
const ConfigDirName = ".fsmirror"

// GlobalConfigDir is the name of the global config directory inside user's config.
const GlobalConfigDir = "fsmirror"

// Load loads configuration from all layers in order of precedence:
//  1. Built-in defaults
//  2. Global user config (~/.config/fsmirror/config.toml)
//  3. Project config (.fsmirror/config.toml or fsmirror.toml)
//  4. Environment variables (FSMIRROR_*)
//
// CLI flags are applied separately after Load() returns.
func Load() *Config {
	cfg := NewConfig()

	// Layer 2: Global user config
	if globalCfg := loadGlobalConfig(); globalCfg != nil {
		cfg.Merge(globalCfg)
	}

	// Layer 3: Project config
	if projectCfg := loadProjectConfig(); projectCfg != nil {
		cfg.Merge(projectCfg)
	}

	// Layer 4: Environment variables
	applyEnvironmentVariables(cfg)

	return cfg
}

// LoadFrom loads configuration starting from a specific directory.
func LoadFrom(dir string) *Config {
	cfg := NewConfig()

	// Layer 2: Global user config
	if globalCfg := loadGlobalConfig(); globalCfg != nil {
		cfg.Merge(globalCfg)
	}

	// Layer 3: Project config from specified directory
	if projectCfg := loadProjectConfigFrom(dir); projectCfg != nil {
		cfg.Merge(projectCfg)
	}

	// Layer 4: Environment variables
	applyEnvironmentVariables(cfg)

	return cfg
}

// loadGlobalConfig loads the global user configuration from ~/.config/fsmirror/config.toml.
func loadGlobalConfig() *Config {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil
	}

	configPath := filepath.Join(configDir, GlobalConfigDir, "config.toml")
	return loadConfigFile(configPath)
}

// loadProjectConfig looks for project configuration in the current directory and parents.
func loadProjectConfig() *Config {
	wd, err := os.Getwd()
	if err != nil {
		return nil
	}
	return loadProjectConfigFrom(wd)
}

// loadProjectConfigFrom looks for project configuration starting from the given directory.
func loadProjectConfigFrom(dir string) *Config {
	// Search up the directory tree for config files
	current := dir
	for {
		// Check for .fsmirror/config.toml first
		dirConfig := filepath.Join(current, ConfigDirName, "config.toml")
		if cfg := loadConfigFile(dirConfig); cfg != nil {
			return cfg
		}

		// Check for fsmirror.toml in project root
		fileConfig := filepath.Join(current, ConfigFileName)
		if cfg := loadConfigFile(fileConfig); cfg != nil {
			return cfg
		}

		// Stop at filesystem root or workspace root
		if isWorkspaceRoot(current) {
			break
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return nil
}

// isWorkspaceRoot checks if the directory is a workspace root (has .git or a
// build-tool root marker).
func isWorkspaceRoot(dir string) bool {
	markers := []string{".git", "WORKSPACE", "WORKSPACE.bazel", "MODULE.bazel", "settings.gradle", "settings.gradle.kts"}
	for _, marker := range markers {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// loadConfigFile loads a configuration from a TOML file.
func loadConfigFile(path string) *Config {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil
	}

	return &cfg
}

// applyEnvironmentVariables applies FSMIRROR_* environment variables to the config.
func applyEnvironmentVariables(cfg *Config) {
	// Hash settings
	if v := os.Getenv("FSMIRROR_HASH_ALGORITHM"); v != "" {
		cfg.Hash.Algorithm = strings.ToLower(strings.TrimSpace(v))
	}
	applyIntEnv("FSMIRROR_HASH_CACHE_SIZE", &cfg.Hash.CacheSize)

	// FSMIRROR_IMMUTABLE: comma-separated list of immutable roots
	if roots := os.Getenv("FSMIRROR_IMMUTABLE"); roots != "" {
		cfg.Locations.Immutable = splitAndTrim(roots)
	}

	// Watch settings
	if v := os.Getenv("FSMIRROR_WATCH_DEBOUNCE_MS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Watch.DebounceMs = n
		}
	}

	// Log settings
	applyIntEnv("FSMIRROR_LOG_VERBOSITY", &cfg.Log.Verbosity)
	if v := os.Getenv("FSMIRROR_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	applyBoolEnv("FSMIRROR_LOG_COLOR", &cfg.Log.Color)
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// applyBoolEnv applies a boolean environment variable to a pointer.
func applyBoolEnv(envVar string, target **bool) {
	if v := os.Getenv(envVar); v != "" {
		v = strings.ToLower(v)
		if v == "true" || v == "1" || v == "yes" {
			t := true
			*target = &t
		} else if v == "false" || v == "0" || v == "no" {
			f := false
			*target = &f
		}
	}
}

// applyIntEnv applies an integer environment variable to a pointer.
// Values that do not parse are ignored.
func applyIntEnv(envVar string, target **int) {
	if v := os.Getenv(envVar); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*target = &n
		}
	}
}

// GetGlobalConfigPath returns the path to the global config file.
func GetGlobalConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, GlobalConfigDir, "config.toml")
}

// GetProjectConfigPaths returns potential project config paths for a given directory.
func GetProjectConfigPaths(dir string) []string {
	return []string{
		filepath.Join(dir, ConfigDirName, "config.toml"),
		filepath.Join(dir, ConfigFileName),
	}
}
