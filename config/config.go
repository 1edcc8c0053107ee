// Package config loads pktwire's client-side configuration file, the way
// go-git's own config package parses .git/config: INI/git-config syntax via
// gcfg, struct defaults merged with file overrides via mergo (§5).
package config

import (
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/go-git/gcfg"
)

// Config holds the sections a pktwire client consults. Unknown sections and
// keys in the file are ignored by gcfg rather than rejected.
type Config struct {
	Proxy struct {
		// URL is a SOCKS5 proxy address used for git:// connections;
		// transport/http does not read it.
		URL string
	}
	SSH struct {
		KnownHosts string
		ConfigPath string
		UseAgent   bool
	}
	Fetch struct {
		Depth int
		Tags  bool
		Thin  bool
	}
	Push struct {
		Thin bool
	}
}

// EnvVar names the environment variable that overrides the default
// configuration file path (§6).
const EnvVar = "PKTWIRE_CONFIG"

// DefaultFileName is the configuration file looked up under the user's
// home directory when EnvVar is unset.
const DefaultFileName = ".pktwireconfig"

// Default returns a Config with pktwire's built-in defaults, before any
// file or flag override is merged in.
func Default() *Config {
	cfg := &Config{}
	cfg.SSH.UseAgent = true
	cfg.Fetch.Tags = true
	cfg.Fetch.Thin = true
	cfg.Push.Thin = true
	return cfg
}

// Load reads the config file at path and merges it over Default(), file
// values taking precedence. A missing file is not an error: Load returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	defer f.Close()

	var fromFile Config
	if err := gcfg.FatalOnly(gcfg.ReadInto(&fromFile, f)); err != nil {
		return nil, err
	}

	if err := mergo.Merge(cfg, &fromFile, mergo.WithOverride); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv resolves the configuration file path from EnvVar, falling
// back to ~/DefaultFileName, and loads it.
func LoadFromEnv() (*Config, error) {
	if path := os.Getenv(EnvVar); path != "" {
		return Load(path)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return Default(), nil
	}
	return Load(filepath.Join(home, DefaultFileName))
}
