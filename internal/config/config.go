package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Prefix is the namespace of every device setting key.
const Prefix = "DEVICE_"

// Config holds the key/value settings used to reach a device
type Config struct {
	// Environment-style settings (DEVICE_HOST, DEVICE_USER, ...)
	Env map[string]string
}

// New creates a new Config instance
func New() *Config {
	return &Config{
		Env: make(map[string]string),
	}
}

// LoadFile loads settings from path, choosing the parser by extension.
// .yaml and .yml files are device profiles; everything else is an env file.
// Returns nil if the file doesn't exist (not an error)
func (c *Config) LoadFile(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return c.LoadYAMLFile(path)
	default:
		return c.LoadEnvFile(path)
	}
}

// LoadEnvFile loads environment variables from a file
// Returns nil if the file doesn't exist (not an error)
func (c *Config) LoadEnvFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File doesn't exist, not an error
		}
		return fmt.Errorf("failed to open env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=value format
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := unquote(strings.TrimSpace(parts[1]))

		// Simple variable expansion: ${VAR} -> value of VAR
		value = c.expandVars(value)

		c.setDefault(key, value)
	}

	return scanner.Err()
}

// LoadYAMLFile loads a device profile. Top-level keys map onto DEVICE_* keys,
// so `host: tessel.local` becomes DEVICE_HOST=tessel.local.
// Returns nil if the file doesn't exist (not an error)
func (c *Config) LoadYAMLFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read profile: %w", err)
	}

	var profile map[string]interface{}
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return fmt.Errorf("failed to parse profile %s: %w", path, err)
	}

	for k, v := range profile {
		if v == nil {
			continue
		}
		switch v.(type) {
		case map[string]interface{}, []interface{}:
			return fmt.Errorf("profile key %q must be a scalar value", k)
		}
		key := Prefix + strings.ToUpper(strings.ReplaceAll(k, "-", "_"))
		c.setDefault(key, c.expandVars(fmt.Sprint(v)))
	}

	return nil
}

// LoadFromEnvironment loads DEVICE_* variables from the current process
func (c *Config) LoadFromEnvironment() {
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 || !strings.HasPrefix(parts[0], Prefix) {
			continue
		}

		c.setDefault(parts[0], parts[1])
	}
}

// SetFromFlags sets configuration values from command-line flags
func (c *Config) SetFromFlags(key, value string) {
	if value != "" {
		c.Env[key] = value
	}
}

// Get returns the value for key, or def when unset or empty
func (c *Config) Get(key, def string) string {
	if v, ok := c.Env[key]; ok && v != "" {
		return v
	}
	return def
}

// GetInt returns the integer value for key, or def when unset
func (c *Config) GetInt(key string, def int) (int, error) {
	v := c.Get(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}

// GetDuration returns the duration value for key, or def when unset.
// Bare integers are read as seconds.
func (c *Config) GetDuration(key string, def time.Duration) (time.Duration, error) {
	v := c.Get(key, "")
	if v == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}

// setDefault sets key only if a higher-precedence source has not already set it.
// Load order is flags, then files, then the environment.
func (c *Config) setDefault(key, value string) {
	if _, exists := c.Env[key]; !exists {
		c.Env[key] = value
	}
}

// expandVars performs simple variable expansion for ${VAR} syntax
func (c *Config) expandVars(value string) string {
	result := value

	for {
		start := strings.Index(result, "${")
		if start == -1 {
			break
		}

		end := strings.Index(result[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := result[start+2 : end]

		varValue := ""
		if val, exists := c.Env[varName]; exists {
			varValue = val
		} else if val := os.Getenv(varName); val != "" {
			varValue = val
		}

		result = result[:start] + varValue + result[end+1:]
	}

	return result
}

// unquote strips one layer of matching single or double quotes
func unquote(value string) string {
	if len(value) >= 2 && ((value[0] == '"' && value[len(value)-1] == '"') || (value[0] == '\'' && value[len(value)-1] == '\'')) {
		return value[1 : len(value)-1]
	}
	return value
}
