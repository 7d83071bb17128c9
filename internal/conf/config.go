// Package conf loads and holds the application settings.
package conf

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/sweepies/imgur-sans-bullshit/internal/errors"
)

// MainSettings holds process-wide options.
type MainSettings struct {
	Name     string // instance name, used in log and User-Agent strings
	LogLevel string // trace, debug, info, warn, error
	LogFile  string // optional JSON log file path
}

// WebServerSettings configures the HTTP presentation layer.
type WebServerSettings struct {
	Enabled bool
	Port    string
}

// SQLiteSettings configures the SQLite metadata store backend.
type SQLiteSettings struct {
	Enabled bool
	Path    string
}

// MySQLSettings configures the MySQL metadata store backend.
type MySQLSettings struct {
	Enabled  bool
	Username string
	Password string
	Database string
	Host     string
	Port     string
}

// OutputSettings selects the metadata store backend.
type OutputSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// LocalBlobSettings configures the on-disk blob store backend.
type LocalBlobSettings struct {
	Path string
}

// SFTPBlobSettings configures the SFTP blob store backend.
type SFTPBlobSettings struct {
	Host     string
	Port     string
	Username string
	Password string
	KeyFile  string
	BasePath string
}

// BlobStoreSettings selects and configures the byte storage backend.
type BlobStoreSettings struct {
	Backend string // "local" or "sftp"
	Local   LocalBlobSettings
	SFTP    SFTPBlobSettings
}

// RateLimitSettings is the shared fixed-window default applied when an
// adapter declares no override.
type RateLimitSettings struct {
	Window      time.Duration
	MaxRequests int
}

// ImgurSettings configures the imgur host adapter.
type ImgurSettings struct {
	ClientID   string
	StaleAfter time.Duration
	// RateLimit overrides the shared hosts.ratelimit budget when set.
	RateLimit *RateLimitSettings
}

// PostimagesSettings configures the postimages host adapter.
type PostimagesSettings struct {
	StaleAfter time.Duration
	// RateLimit overrides the shared hosts.ratelimit budget when set.
	RateLimit *RateLimitSettings
}

// HostsSettings groups per-origin adapter configuration.
type HostsSettings struct {
	Imgur      ImgurSettings
	Postimages PostimagesSettings
	RateLimit  RateLimitSettings
}

// Settings is the root configuration object.
type Settings struct {
	Debug     bool
	Version   string `yaml:"-"` // set at build time, not from config
	Main      MainSettings
	WebServer WebServerSettings
	Output    OutputSettings
	BlobStore BlobStoreSettings
	Hosts     HostsSettings
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment into a Settings struct.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("ISB")
	viper.AutomaticEnv()

	// Defaults defined in defaults.go
	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes a config file with default values to the first
// default config path.
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")

	if err := os.MkdirAll(configPaths[0], 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return fmt.Errorf("error unmarshaling defaults: %w", err)
	}

	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling default settings: %w", err)
	}

	if err := os.WriteFile(configPath, yamlData, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	log.Printf("Created default config file at %s", configPath)
	return nil
}

// GetDefaultConfigPaths returns the locations searched for config.yaml, in
// order: current directory, then the user config directory.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{"."}
	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, "imgur-sans-bullshit"))
	}
	return paths, nil
}

// ValidateSettings checks that the loaded configuration is usable.
func ValidateSettings(settings *Settings) error {
	if !settings.Output.SQLite.Enabled && !settings.Output.MySQL.Enabled {
		return errors.Newf("no metadata store configured: enable output.sqlite or output.mysql").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if settings.Output.SQLite.Enabled && settings.Output.MySQL.Enabled {
		return errors.Newf("only one metadata store backend may be enabled").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	switch settings.BlobStore.Backend {
	case "local":
		if settings.BlobStore.Local.Path == "" {
			return errors.Newf("blobstore.local.path must be set for the local backend").
				Component("conf").
				Category(errors.CategoryConfiguration).
				Build()
		}
	case "sftp":
		if settings.BlobStore.SFTP.Host == "" {
			return errors.Newf("blobstore.sftp.host must be set for the sftp backend").
				Component("conf").
				Category(errors.CategoryConfiguration).
				Build()
		}
	default:
		return errors.Newf("unknown blob store backend %q", settings.BlobStore.Backend).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if settings.Hosts.RateLimit.Window <= 0 || settings.Hosts.RateLimit.MaxRequests <= 0 {
		return errors.Newf("hosts.ratelimit window and maxrequests must be positive").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	return nil
}

// GetSettings returns the current settings instance.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, initializing it if necessary.
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}
