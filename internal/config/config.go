// Package config loads the installer settings. Values come, in increasing
// order of precedence, from built-in defaults, an optional config file,
// LOINSTALL_* environment variables and command-line overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultBaseURL     = "https://download.documentfoundation.org/libreoffice/stable/"
	DefaultDownloadDir = "LibreOffice"
	DefaultLogFile     = "libreoffice_installer.log"
	DefaultTimeout     = 30 * time.Second
	DefaultLang        = "es"
	DefaultDpkgPath    = "/usr/bin/dpkg"
	DefaultStatusFile  = "/var/lib/dpkg/status"
	DefaultSudo        = "sudo"

	EnvPrefix = "LOINSTALL"
)

var (
	// Executable is replaced in tests.
	Executable = os.Executable
)

// Config is built once at startup and handed to every stage.
type Config struct {
	BaseURL     string        `mapstructure:"base_url"`
	DownloadDir string        `mapstructure:"download_dir"`
	LogFile     string        `mapstructure:"log_file"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Lang        string        `mapstructure:"lang"`

	DpkgPath   string `mapstructure:"dpkg_path"`
	StatusFile string `mapstructure:"status_file"`
	Sudo       string `mapstructure:"sudo"`

	// Keyring enables the verification of the archive signatures when set.
	Keyring string `mapstructure:"keyring"`

	AllowMixedRoots bool `mapstructure:"allow_mixed_roots"`
	AssumeYes       bool `mapstructure:"assume_yes"`
}

// LoadOptions controls where Load looks for values.
type LoadOptions struct {
	// ConfigFile is read when non-empty. Any format supported by viper.
	ConfigFile string

	// Overrides are applied last (ex: flags explicitly set by the user).
	Overrides map[string]interface{}
}

// Default returns the configuration used when nothing is customized.
func Default() Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		DownloadDir: DefaultDownloadDir,
		LogFile:     DefaultLogFile,
		Timeout:     DefaultTimeout,
		Lang:        DefaultLang,
		DpkgPath:    DefaultDpkgPath,
		StatusFile:  DefaultStatusFile,
		Sudo:        DefaultSudo,
	}
}

// Load resolves the configuration. Relative paths are resolved against
// the directory containing the running executable.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()

	defaults := Default()
	v.SetDefault("base_url", defaults.BaseURL)
	v.SetDefault("download_dir", defaults.DownloadDir)
	v.SetDefault("log_file", defaults.LogFile)
	v.SetDefault("timeout", defaults.Timeout)
	v.SetDefault("lang", defaults.Lang)
	v.SetDefault("dpkg_path", defaults.DpkgPath)
	v.SetDefault("status_file", defaults.StatusFile)
	v.SetDefault("sudo", defaults.Sudo)
	v.SetDefault("keyring", "")
	v.SetDefault("allow_mixed_roots", false)
	v.SetDefault("assume_yes", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("unable to read config file %s: %w", opts.ConfigFile, err)
		}
	}

	for key, value := range opts.Overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}

	base, err := BaseDir()
	if err != nil {
		return nil, err
	}
	cfg.DownloadDir = resolve(base, cfg.DownloadDir)
	cfg.LogFile = resolve(base, cfg.LogFile)
	if cfg.Keyring != "" {
		cfg.Keyring = resolve(base, cfg.Keyring)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.BaseURL) == "" {
		errs = append(errs, errors.New("base_url must not be empty"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if strings.TrimSpace(c.Lang) == "" {
		errs = append(errs, errors.New("lang must not be empty"))
	}
	if c.DownloadDir == "" {
		errs = append(errs, errors.New("download_dir must not be empty"))
	}
	return errors.Join(errs...)
}

// BaseDir returns the directory of the running executable.
// Downloads and logs land next to the binary by default.
func BaseDir() (string, error) {
	exe, err := Executable()
	if err != nil {
		return "", fmt.Errorf("unable to locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}
