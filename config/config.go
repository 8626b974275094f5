package config

import (
	_ "embed"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/sergev/ti99disk/disk"
	"github.com/sergev/ti99disk/fdc"
)

//go:embed ti99disk.toml
var defaultConfigData []byte

// Config represents the entire TOML configuration structure
type Config struct {
	Controller   string  `toml:"controller"`
	Density      string  `toml:"density"`
	Cylinders    int     `toml:"cylinders"`
	ClocksPerRev uint64  `toml:"clocks_per_rev"`
	LogLevel     string  `toml:"log_level"`
	Drive        []Drive `toml:"drive"`
}

// Drive is a disk inserted at startup
type Drive struct {
	Number       int    `toml:"number"`
	Image        string `toml:"image"`
	WriteProtect bool   `toml:"write_protect"`
}

// DefaultPath returns the location of the config file for the current user.
func DefaultPath() (string, error) {
	var configDir string
	var err error

	switch runtime.GOOS {
	case "windows":
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", errors.Wrap(err, "cannot determine user config directory")
		}
		configDir = filepath.Join(configDir, "ti99disk")
	default:
		configDir, err = os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(err, "cannot determine user home directory")
		}
	}

	return filepath.Join(configDir, ".ti99disk"), nil
}

// Initialize loads the configuration file at path, or at the default
// location when path is empty. A missing default file is created
// from the embedded template.
func Initialize(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			configDir := filepath.Dir(path)
			if err := os.MkdirAll(configDir, 0755); err != nil {
				return nil, errors.Wrapf(err, "failed to create config directory %s", configDir)
			}
			if err := os.WriteFile(path, defaultConfigData, 0644); err != nil {
				return nil, errors.Wrapf(err, "failed to create default config file at %s", path)
			}
			log.Debugf("created %s", path)
		}
	}
	return Load(path)
}

// Load parses and validates a configuration file.
func Load(path string) (*Config, error) {
	conf := Default()
	meta, err := toml.DecodeFile(path, conf)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse TOML config at %s", path)
	}
	for _, key := range meta.Undecoded() {
		log.Warnf("%s: unknown key %q", path, key.String())
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Wrap(err, path)
	}
	return conf, nil
}

// Default returns the configuration used when no file sets a value.
func Default() *Config {
	conf := &Config{}
	if _, err := toml.Decode(string(defaultConfigData), conf); err != nil {
		panic(err)
	}
	return conf
}

// Validate checks every key and names the offending one.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Controller) {
	case "fd1771", "fd179x":
	default:
		return errors.Errorf("`controller` must be fd1771 or fd179x, not %q", c.Controller)
	}
	switch strings.ToLower(c.Density) {
	case "fm", "mfm":
	default:
		return errors.Errorf("`density` must be fm or mfm, not %q", c.Density)
	}
	if c.Cylinders <= 0 || c.Cylinders > 255 {
		return errors.Errorf("`cylinders` has invalid value %d (must be 1..255)", c.Cylinders)
	}
	if c.ClocksPerRev == 0 {
		return errors.New("`clocks_per_rev` must be positive")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "`log_level`")
	}

	used := make(map[int]bool)
	for i, d := range c.Drive {
		if d.Number < 1 || d.Number > fdc.NumDrives {
			return errors.Errorf("drive %d: `number` must be 1..%d, not %d", i+1, fdc.NumDrives, d.Number)
		}
		if used[d.Number] {
			return errors.Errorf("drive %d: `number` %d used twice", i+1, d.Number)
		}
		used[d.Number] = true
		if d.Image == "" {
			return errors.Errorf("drive %d: `image` is missing or empty", i+1)
		}
	}
	return nil
}

// Level returns the configured log level.
func (c *Config) Level() log.Level {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// Options returns the controller settings.
func (c *Config) Options() fdc.Options {
	opts := fdc.Options{
		Variant:      fdc.FD1771,
		Cylinders:    c.Cylinders,
		ClocksPerRev: c.ClocksPerRev,
		Density:      disk.FormatFM,
	}
	if strings.EqualFold(c.Controller, "fd179x") {
		opts.Variant = fdc.FD179x
		if strings.EqualFold(c.Density, "mfm") {
			opts.Density = disk.FormatMFM
		}
	}
	return opts
}

// Mount opens the configured images and inserts them into the controller.
// Relative image paths are taken from the directory of the config file.
func (c *Config) Mount(ctrl *fdc.Controller, dir string) error {
	for _, d := range c.Drive {
		filename := d.Image
		if !filepath.IsAbs(filename) && dir != "" {
			filename = filepath.Join(dir, filename)
		}
		img, err := disk.Open(filename)
		if err != nil {
			return errors.Wrapf(err, "drive %d", d.Number)
		}
		if err := ctrl.Insert(d.Number, img, d.WriteProtect); err != nil {
			return err
		}
	}
	return nil
}
