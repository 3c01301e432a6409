// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"

	"gopkg.isalang.org/isac/internal/exc"
	"gopkg.isalang.org/isac/internal/optional"
)

const (
	DefaultWordWidth    = 32
	DefaultHistoryLimit = 100
	FileName            = "isac.toml"
	HiddenFileName      = ".isac.toml"
)

var DefaultExtensions = []string{".isa", ".isaext"}

type Config struct {
	Analysis Analysis `toml:"analysis"`
	Include  Include  `toml:"include"`
	Colors   Colors   `toml:"colors"`
	// Source is the file the configuration was read from. It is empty for
	// the built in defaults.
	Source string `toml:"-"`
}

type Analysis struct {
	DefaultWordWidth int `toml:"default_word_width"`
	HistoryLimit     int `toml:"history_limit"`
	// MaxConcurrency of zero selects GOMAXPROCS bounded by the CPU count.
	MaxConcurrency int `toml:"max_concurrency"`
}

type Include struct {
	Roots      []string `toml:"roots"`
	Extensions []string `toml:"extensions"`
}

type Colors struct {
	// Palette of zero length selects the analyzer default.
	Palette []string `toml:"palette"`
}

func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Analysis.DefaultWordWidth == 0 {
		c.Analysis.DefaultWordWidth = DefaultWordWidth
	}
	if c.Analysis.HistoryLimit == 0 {
		c.Analysis.HistoryLimit = DefaultHistoryLimit
	}
	if len(c.Include.Extensions) == 0 {
		c.Include.Extensions = append([]string(nil), DefaultExtensions...)
	}
}

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Validate checks value ranges. Every problem is returned, joined.
func (c *Config) Validate() error {
	var errs []error
	if c.Analysis.DefaultWordWidth < 1 || c.Analysis.DefaultWordWidth > 64 {
		errs = append(errs, c.invalid(fmt.Sprintf("analysis.default_word_width must be in 1..64, found %d", c.Analysis.DefaultWordWidth)))
	}
	if c.Analysis.HistoryLimit < 1 {
		errs = append(errs, c.invalid(fmt.Sprintf("analysis.history_limit must be positive, found %d", c.Analysis.HistoryLimit)))
	}
	if c.Analysis.MaxConcurrency < 0 {
		errs = append(errs, c.invalid(fmt.Sprintf("analysis.max_concurrency must not be negative, found %d", c.Analysis.MaxConcurrency)))
	}
	for _, ext := range c.Include.Extensions {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, c.invalid(fmt.Sprintf("include.extensions entry '%s' must start with '.'", ext)))
		}
	}
	for _, color := range c.Colors.Palette {
		if !colorPattern.MatchString(color) {
			errs = append(errs, c.invalid(fmt.Sprintf("colors.palette entry '%s' is not a #rrggbb color", color)))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) invalid(message string) error {
	return exc.New(exc.Location{URI: c.Source}, exc.CodeInvalidConfig, message)
}

// Load reads a TOML file, fills in defaults and validates the result.
// Unknown keys are rejected.
func Load(path string) (*Config, error) {
	c := &Config{Source: path}
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		var perr toml.ParseError
		if errors.As(err, &perr) {
			return nil, exc.New(exc.Location{URI: path}, exc.CodeInvalidConfig, perr.Message)
		}
		return nil, exc.Wrap(exc.Location{URI: path}, exc.CodeInvalidConfig, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, exc.Newf(exc.Location{URI: path}, exc.CodeInvalidConfig, "unknown configuration keys: %s", strings.Join(keys, ", "))
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Search returns the first configuration file that exists, trying in order:
// the explicit path, ./isac.toml, ./.isac.toml, <root>/isac.toml and the user
// configuration directory.
func Search(explicit string, root string, lookup func(string) (string, bool)) optional.Optional[string] {
	for _, candidate := range candidates(explicit, root, lookup) {
		if _, err := os.Stat(candidate); err == nil {
			return optional.Some(candidate)
		}
	}
	return optional.None[string]()
}

func candidates(explicit string, root string, lookup func(string) (string, bool)) []string {
	if explicit != "" {
		return []string{explicit}
	}
	out := []string{FileName, HiddenFileName}
	if root != "" {
		out = append(out, filepath.Join(root, FileName))
	}
	if dir, ok := lookup("XDG_CONFIG_HOME"); ok && dir != "" {
		out = append(out, filepath.Join(dir, "isac", "config.toml"))
	} else if home, ok := lookup("HOME"); ok && home != "" {
		out = append(out, filepath.Join(home, ".config", "isac", "config.toml"))
	}
	return out
}

// Find searches for a configuration file and loads it. An explicit path
// that does not exist is an error; otherwise a missing file yields the
// defaults.
func Find(explicit string, root string, lookup func(string) (string, bool)) (*Config, error) {
	found := Search(explicit, root, lookup)
	if !found.IsPresent() {
		if explicit != "" {
			return nil, exc.Wrap(exc.Location{URI: explicit}, exc.CodeFileNotFound, fs.ErrNotExist)
		}
		return Default(), nil
	}
	return Load(found.Value())
}
