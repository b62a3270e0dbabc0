// Package env reads service settings from the process environment
// and optional .env files, and masks API keys for display.
package env

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Loader defines the interface for environment variable access.
type Loader interface {
	// Load reads variables from a .env file.
	Load(filepath string) error
	// Get retrieves a variable; the OS environment wins.
	Get(key string) string
	// GetRequired retrieves a variable or returns an error.
	GetRequired(key string) (string, error)
	// GetWithDefault retrieves a variable with a fallback.
	GetWithDefault(key, defaultValue string) string
	// GetAPIKey retrieves the API key for a named provider.
	GetAPIKey(provider string) string
	// Lookup reports whether key is set anywhere.
	Lookup(key string) (string, bool)
	// Set sets a variable.
	Set(key, value string) error
	// All returns the variables read from .env files.
	All() map[string]string
}

// DefaultLoader implements Loader with .env file support and
// provider key mappings.
type DefaultLoader struct {
	mu       sync.RWMutex
	vars     map[string]string
	mappings map[string]string // provider name -> env var name
}

// NewLoader creates a DefaultLoader that knows where the
// generative model key lives.
func NewLoader() *DefaultLoader {
	return &DefaultLoader{
		vars: make(map[string]string),
		mappings: map[string]string{
			"gemini": "GEMINI_API_KEY",
			"google": "GEMINI_API_KEY",
		},
	}
}

// NewLoaderWithMappings creates a loader with extra
// provider-to-variable mappings.
func NewLoaderWithMappings(mappings map[string]string) *DefaultLoader {
	l := NewLoader()
	for k, v := range mappings {
		l.mappings[strings.ToLower(k)] = v
	}
	return l
}

func (l *DefaultLoader) Load(filepath string) error {
	file, err := os.Open(filepath)
	if err != nil {
		return fmt.Errorf("open env file %s: %w", filepath, err)
	}
	defer file.Close()

	l.mu.Lock()
	defer l.mu.Unlock()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		l.vars[strings.TrimSpace(key)] = strings.Trim(
			strings.TrimSpace(value), `"'`,
		)
	}
	return scanner.Err()
}

func (l *DefaultLoader) Lookup(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v, true
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, ok := l.vars[key]
	return v, ok && v != ""
}

func (l *DefaultLoader) Get(key string) string {
	v, _ := l.Lookup(key)
	return v
}

func (l *DefaultLoader) GetRequired(key string) (string, error) {
	v := l.Get(key)
	if v == "" {
		return "", fmt.Errorf(
			"required environment variable %s is not set", key,
		)
	}
	return v, nil
}

func (l *DefaultLoader) GetWithDefault(key, defaultValue string) string {
	if v := l.Get(key); v != "" {
		return v
	}
	return defaultValue
}

func (l *DefaultLoader) GetAPIKey(provider string) string {
	l.mu.RLock()
	envVar, ok := l.mappings[strings.ToLower(provider)]
	l.mu.RUnlock()
	if !ok {
		envVar = strings.ToUpper(provider) + "_API_KEY"
	}
	return l.Get(envVar)
}

func (l *DefaultLoader) Set(key, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.vars[key] = value
	return os.Setenv(key, value)
}

func (l *DefaultLoader) All() map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	result := make(map[string]string, len(l.vars))
	for k, v := range l.vars {
		result[k] = v
	}
	return result
}

// Int parses key as an int. Unset keys leave dst untouched.
func Int(l Loader, key string, dst *int) error {
	v, ok := l.Lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = n
	return nil
}

// Float parses key as a float64. Unset keys leave dst untouched.
func Float(l Loader, key string, dst *float64) error {
	v, ok := l.Lookup(key)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = f
	return nil
}

// Bool parses key as a bool. Unset keys leave dst untouched.
func Bool(l Loader, key string, dst *bool) error {
	v, ok := l.Lookup(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = b
	return nil
}

// Duration parses key with time.ParseDuration. Unset keys leave
// dst untouched.
func Duration(l Loader, key string, dst *time.Duration) error {
	v, ok := l.Lookup(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = d
	return nil
}

// String copies key into dst when set.
func String(l Loader, key string, dst *string) {
	if v, ok := l.Lookup(key); ok {
		*dst = v
	}
}
