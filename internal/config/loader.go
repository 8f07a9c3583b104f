package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"mcpgate/pkg/logging"
)

const (
	userConfigDir  = ".config/mcpgate"
	configFileName = "config.yaml"
	envFileName    = ".env"
)

// ConfigFileName is the name of the YAML file read from the config directory.
const ConfigFileName = configFileName

// DefaultConfigPath returns ~/.config/mcpgate.
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// LoadConfig loads configuration from configPath. Values are layered as
// defaults, then config.yaml, then MCPGATE_* environment variables. A .env
// file in configPath fills environment variables that are not already set.
// Missing files are not an error.
func LoadConfig(configPath string) (Config, error) {
	if err := loadDotEnv(filepath.Join(configPath, envFileName)); err != nil {
		return Config{}, err
	}

	config := Default()
	configFilePath := filepath.Join(configPath, configFileName)
	if err := readConfigFile(configFilePath, &config); err != nil {
		return Config{}, err
	}
	if err := applyEnv(&config, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := config.Validate(); err != nil {
		var errs *ConfigurationErrorCollection
		if errors.As(err, &errs) {
			for i := range errs.Errors {
				errs.Errors[i].FilePath = configFilePath
			}
		}
		return Config{}, err
	}
	return config, nil
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	switch {
	case err == nil:
		logging.Debug("ConfigLoader", "Loaded environment from %s", path)
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return ConfigurationError{FilePath: path, ErrorType: "parse", Message: err.Error()}
	}
}

var yamlLinePattern = regexp.MustCompile(`line (\d+)`)

func readConfigFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logging.Info("ConfigLoader", "No %s found at %s, using defaults", configFileName, path)
			return nil
		}
		return ConfigurationError{FilePath: path, ErrorType: "io", Message: err.Error()}
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		ce := ConfigurationError{FilePath: path, ErrorType: "parse", Message: err.Error()}
		if m := yamlLinePattern.FindStringSubmatch(err.Error()); m != nil {
			ce.LineNumber, _ = strconv.Atoi(m[1])
		}
		return ce
	}
	logging.Info("ConfigLoader", "Loaded configuration from %s", path)
	return nil
}
