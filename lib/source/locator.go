// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package source

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// Scheme names.
const (
	SchemeFile = "file"
	SchemeData = "data"
)

// ErrEmpty is returned when parsing an empty locator.
var ErrEmpty = errors.New("empty source locator")

// Locator is a canonical source location.
type Locator struct {
	url *url.URL
}

// Parse resolves raw against baseDir. raw may be an absolute URL, an
// absolute path, or a path relative to baseDir.
func Parse(baseDir, raw string) (Locator, error) {
	if raw == "" {
		return Locator{}, ErrEmpty
	}
	if IsURL(raw) {
		return parseURL(raw)
	}
	return fromPath(baseDir, raw)
}

// FromPath returns the file: locator for a local path.
func FromPath(filePath string) (Locator, error) {
	return fromPath("", filePath)
}

func fromPath(baseDir, raw string) (Locator, error) {
	filePath := raw
	if !filepath.IsAbs(filePath) {
		filePath = filepath.Join(baseDir, filePath)
	}
	absolute, err := filepath.Abs(filePath)
	if err != nil {
		return Locator{}, fmt.Errorf("resolving %q: %w", raw, err)
	}
	return Locator{url: &url.URL{Scheme: SchemeFile, Path: filepath.ToSlash(absolute)}}, nil
}

func parseURL(raw string) (Locator, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return Locator{}, fmt.Errorf("parsing locator %q: %w", raw, err)
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	if parsed.Scheme == SchemeFile {
		if parsed.Host != "" && parsed.Host != "localhost" {
			return Locator{}, fmt.Errorf("file locator %q names remote host %q", raw, parsed.Host)
		}
		parsed.Host = ""
		parsed.OmitHost = false
		parsed.Path = path.Clean(parsed.Path)
		parsed.RawPath = ""
		if !path.IsAbs(parsed.Path) {
			return Locator{}, fmt.Errorf("file locator %q is not absolute", raw)
		}
	}
	return Locator{url: parsed}, nil
}

// IsURL reports whether raw starts with a scheme. Single-letter
// schemes are not accepted, so Windows drive paths stay paths.
func IsURL(raw string) bool {
	colon := strings.IndexByte(raw, ':')
	if colon < 2 {
		return false
	}
	for i, r := range raw[:colon] {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}

// Resolve resolves raw relative to l. Paths are relative to the
// directory of a file: locator; for other schemes they are relative to
// fallbackDir.
func (l Locator) Resolve(raw, fallbackDir string) (Locator, error) {
	if raw == "" {
		return Locator{}, ErrEmpty
	}
	if IsURL(raw) {
		return parseURL(raw)
	}
	if l.IsFile() {
		return fromPath(filepath.Dir(l.FilePath()), raw)
	}
	return fromPath(fallbackDir, raw)
}

// IsZero reports whether l is the zero Locator.
func (l Locator) IsZero() bool { return l.url == nil }

// String returns the canonical URL.
func (l Locator) String() string {
	if l.url == nil {
		return ""
	}
	return l.url.String()
}

// Scheme returns the lowercase URL scheme.
func (l Locator) Scheme() string {
	if l.url == nil {
		return ""
	}
	return l.url.Scheme
}

// IsFile reports whether l is a file: locator.
func (l Locator) IsFile() bool { return l.Scheme() == SchemeFile }

// FilePath returns the local path of a file: locator, or "".
func (l Locator) FilePath() string {
	if !l.IsFile() {
		return ""
	}
	return filepath.FromSlash(l.url.Path)
}

// Extension returns the lowercase extension of a file: locator without
// the dot, or "".
func (l Locator) Extension() string {
	if !l.IsFile() {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(path.Ext(l.url.Path), "."))
}

// MarshalText implements encoding.TextMarshaler.
func (l Locator) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Only absolute URLs
// are accepted.
func (l *Locator) UnmarshalText(text []byte) error {
	if !IsURL(string(text)) {
		return fmt.Errorf("locator %q is not an absolute URL", text)
	}
	parsed, err := parseURL(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
