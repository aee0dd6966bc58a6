package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName names the configuration directories and files.
const AppName = "cmdclient"

// Paths contains the standard per-user directories.
type Paths struct {
	Config string // ~/.config/cmdclient
	State  string // ~/.local/state/cmdclient
}

// GetPaths returns the standard directories, honouring the XDG variables.
func GetPaths() *Paths {
	return &Paths{
		Config: filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", defaultConfigHome()), AppName),
		State:  filepath.Join(getEnvOrDefault("XDG_STATE_HOME", defaultStateHome()), AppName),
	}
}

// EnsurePaths creates all required directories.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Config, p.State} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}

func defaultStateHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "state")
}

// configNames are the file names searched in each config directory, in
// load order.
var configNames = []string{
	AppName + ".json",
	AppName + ".jsonc",
	AppName + ".yaml",
	AppName + ".yml",
}

// GlobalConfigPath returns the path Save writes the global config to.
func GlobalConfigPath() string {
	return filepath.Join(GetPaths().Config, AppName+".json")
}

// ProjectConfigPath returns the path of the project config file.
func ProjectConfigPath(directory string) string {
	return filepath.Join(directory, "."+AppName, AppName+".json")
}
