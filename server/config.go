package server

import (
	"fmt"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/janelia-flyem/proofread/brainmaps"
	"github.com/janelia-flyem/proofread/mutlog"
	"github.com/janelia-flyem/proofread/proofread"
)

const (
	// DefaultWebAddress is the default address of the proofreading web server.
	DefaultWebAddress = "localhost:8000"

	// DefaultAutosaveSec is the default period between autosave checks.
	DefaultAutosaveSec = 30
)

// the parsed TOML configuration data
var tc tomlConfig

func init() {
	tc.Server.HTTPAddress = DefaultWebAddress
	tc.Server.ShutdownDelay = 5
	tc.Session.AutosaveSec = DefaultAutosaveSec
}

type tomlConfig struct {
	Server    localConfig
	Auth      authConfig
	Logging   proofread.LogConfig
	Kafka     mutlog.Config
	BrainMaps brainmaps.Config `toml:"brainmaps"`
	Session   sessionConfig
}

type localConfig struct {
	Host          string `toml:"host"`
	HTTPAddress   string `toml:"httpAddress"`
	Note          string `toml:"note"`
	CorsDomains   []string
	ShutdownDelay int
}

type sessionConfig struct {
	Path          string `toml:"path"`       // session snapshot store directory
	AutosaveSec   int    `toml:"autosave"`   // seconds between autosave checks; 0 disables
	HistoryLength int    `toml:"undo_depth"` // max undo entries; 0 uses the default
}

// Some settings in the TOML can be given as relative paths.
// This function converts them in-place to absolute paths,
// assuming the given paths were relative to the TOML file's own directory.
func (c *tomlConfig) convertPathsToAbsolute(configPath string) error {
	var err error

	configDir := filepath.Dir(configPath)

	// [logging].logfile
	if c.Logging.Logfile != "" {
		c.Logging.Logfile, err = proofread.ConvertToAbsolute(c.Logging.Logfile, configDir)
		if err != nil {
			return fmt.Errorf("error converting logfile setting to absolute path")
		}
	}

	// [session].path
	if c.Session.Path != "" {
		c.Session.Path, err = proofread.ConvertToAbsolute(c.Session.Path, configDir)
		if err != nil {
			return fmt.Errorf("error converting session.path to absolute path")
		}
	}

	// [kafka].failed_log
	if c.Kafka.FailedLog != "" {
		c.Kafka.FailedLog, err = proofread.ConvertToAbsolute(c.Kafka.FailedLog, configDir)
		if err != nil {
			return fmt.Errorf("error converting kafka.failed_log to absolute path")
		}
	}

	// [auth].auth_file
	if c.Auth.AuthFile != "" {
		c.Auth.AuthFile, err = proofread.ConvertToAbsolute(c.Auth.AuthFile, configDir)
		if err != nil {
			return fmt.Errorf("error converting auth.auth_file to absolute path")
		}
	}
	return nil
}

// LoadConfig loads server configuration from a TOML file.
func LoadConfig(filename string) error {
	if filename == "" {
		return fmt.Errorf("no server TOML configuration file provided")
	}
	if _, err := toml.DecodeFile(filename, &tc); err != nil {
		return fmt.Errorf("could not decode TOML config: %v", err)
	}
	if err := tc.convertPathsToAbsolute(filename); err != nil {
		return fmt.Errorf("could not convert relative paths to absolute paths in TOML config: %v", err)
	}
	if tc.Session.AutosaveSec < 0 {
		return fmt.Errorf("session autosave period can't be negative: %d", tc.Session.AutosaveSec)
	}
	return nil
}

// LogConfig returns the logging configuration.
func LogConfig() *proofread.LogConfig {
	return &tc.Logging
}

// SetHTTPAddress overrides the configured web server address, typically
// from a command-line flag.
func SetHTTPAddress(address string) {
	tc.Server.HTTPAddress = address
}

// HTTPAddress returns the address the web server listens on.
func HTTPAddress() string {
	if tc.Server.HTTPAddress == "" {
		return DefaultWebAddress
	}
	return tc.Server.HTTPAddress
}

// Note returns any note set in the server configuration.
func Note() string {
	return tc.Server.Note
}

// AuthEnabled returns true if a JWT secret key was configured.
func AuthEnabled() bool {
	return tc.Auth.SecretKey != ""
}
