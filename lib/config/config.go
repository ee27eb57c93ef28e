// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FileName is the name of the instance configuration file.
const FileName = "Treasury.yaml"

// ErrNotFound is returned when no Treasury.yaml exists where one was
// expected.
var ErrNotFound = errors.New("config: " + FileName + " not found")

// ErrExists is returned by [Create] when the file is already present.
var ErrExists = errors.New("config: " + FileName + " already exists")

// Config is the configuration of one treasury instance.
type Config struct {
	// Artifacts is the content store and index directory.
	// Default: treasury/artifacts
	Artifacts string `yaml:"artifacts" validate:"required"`

	// External holds sidecars for sources outside the base directory.
	// Default: treasury/external
	External string `yaml:"external" validate:"required"`

	// Temp is scratch space for fetched sources and importer output.
	// Default: treasury/tmp
	Temp string `yaml:"temp" validate:"required"`

	// Importers lists WebAssembly importer plugins to load.
	Importers []string `yaml:"importers,omitempty" validate:"dive,required"`

	// Compression is the artifact codec: none, lz4 or zstd.
	Compression string `yaml:"compression,omitempty" validate:"omitempty,oneof=none lz4 zstd"`

	// FetchTimeout bounds materializing remote sources.
	// Default: 30s
	FetchTimeout string `yaml:"fetch_timeout,omitempty" validate:"omitempty,duration"`

	// MaxImportRounds caps how many times one source may request
	// dependencies before the store fails.
	// Default: 64
	MaxImportRounds int `yaml:"max_import_rounds" validate:"gte=1"`

	// CheckpointInterval is the number of index records between
	// snapshots.
	// Default: 1024
	CheckpointInterval int `yaml:"checkpoint_interval" validate:"gte=1"`

	// Workers bounds concurrent importer invocations. Zero means
	// GOMAXPROCS.
	Workers int `yaml:"workers,omitempty" validate:"gte=0"`

	baseDir string
}

// Default returns the configuration written for a new instance.
// Paths are relative; they resolve against the base directory on load.
func Default() *Config {
	return &Config{
		Artifacts:          filepath.Join("treasury", "artifacts"),
		External:           filepath.Join("treasury", "external"),
		Temp:               filepath.Join("treasury", "tmp"),
		FetchTimeout:       "30s",
		MaxImportRounds:    64,
		CheckpointInterval: 1024,
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d > 0
	})
	return v
}

// BaseDir returns the directory the configuration was loaded from.
// Empty for a configuration that was never loaded.
func (c *Config) BaseDir() string { return c.baseDir }

// FetchTimeoutDuration returns FetchTimeout parsed, or zero when unset.
func (c *Config) FetchTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.FetchTimeout)
	if err != nil {
		return 0
	}
	return d
}

// LoadFile loads the configuration at path. The file's directory becomes
// the base directory.
func LoadFile(path string) (*Config, error) {
	absolute, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	data, err := os.ReadFile(absolute)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, absolute)
	}
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", absolute, err)
	}
	cfg.baseDir = filepath.Dir(absolute)

	cfg.expandVariables()
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", absolute, err)
	}
	return cfg, nil
}

// Find searches dir and its ancestors for Treasury.yaml and returns its
// path.
func Find(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", dir, err)
	}
	start := dir
	for {
		candidate := filepath.Join(dir, FileName)
		info, err := os.Stat(candidate)
		if err == nil && info.Mode().IsRegular() {
			return candidate, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w in %s or any parent directory", ErrNotFound, start)
		}
		dir = parent
	}
}

// Create writes cfg as baseDir/Treasury.yaml. It fails with ErrExists if
// the file is already there.
func Create(baseDir string, cfg *Config) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", baseDir, err)
	}

	path := filepath.Join(baseDir, FileName)
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return "", fmt.Errorf("%w: %s", ErrExists, path)
	}
	if err != nil {
		return "", err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(path)
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("closing %s: %w", path, err)
	}
	return path, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"TREASURY_BASE": c.baseDir,
		"HOME":          os.Getenv("HOME"),
	}

	c.Artifacts = expandVars(c.Artifacts, vars)
	c.External = expandVars(c.External, vars)
	c.Temp = expandVars(c.Temp, vars)
	for i, path := range c.Importers {
		c.Importers[i] = expandVars(path, vars)
	}
}

func (c *Config) resolvePaths() {
	c.Artifacts = c.resolve(c.Artifacts)
	c.External = c.resolve(c.External)
	c.Temp = c.resolve(c.Temp)
	for i, path := range c.Importers {
		c.Importers[i] = c.resolve(path)
	}
}

func (c *Config) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.baseDir, path)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. Each failing field is
// reported by its YAML key.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err
	}
	errs := make([]error, 0, len(fieldErrors))
	for _, fieldError := range fieldErrors {
		errs = append(errs, fmt.Errorf("%s: failed %q check (value %v)",
			fieldError.Namespace(), fieldError.Tag(), fieldError.Value()))
	}
	return errors.Join(errs...)
}

// EnsurePaths creates the configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Artifacts, c.External, c.Temp} {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
