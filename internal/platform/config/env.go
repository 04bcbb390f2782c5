package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type lookup struct {
	layers []map[string]string
	system bool
}

func newLookup(options loaderOptions) (lookup, error) {
	dotEnv, err := loadDotEnv(options.envFile)
	if err != nil {
		return lookup{}, err
	}
	// highest precedence first
	return lookup{layers: []map[string]string{options.envMap, dotEnv}, system: options.useSystemEnv}, nil
}

func (l lookup) get(key string) (string, bool) {
	if value, ok := l.layers[0][key]; ok {
		return value, true
	}
	if l.system {
		if value, ok := os.LookupEnv(key); ok {
			return value, true
		}
	}
	value, ok := l.layers[1][key]
	return value, ok
}

// ProjectID returns the Google Cloud project from the environment without a full Load, so
// callers can build the secret fetcher that Load itself depends on.
func ProjectID(opts ...Option) (string, error) {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}
	l, err := newLookup(options)
	if err != nil {
		return "", err
	}
	return l.str("API_FIRESTORE_PROJECT_ID", l.str("GOOGLE_CLOUD_PROJECT", "")), nil
}

func (l lookup) str(key, fallback string) string {
	if value, ok := l.get(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func (l lookup) duration(key string, fallback time.Duration) time.Duration {
	if value, ok := l.get(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func (l lookup) integer(key string, fallback int) int {
	if value, ok := l.get(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func (l lookup) boolean(key string, fallback bool) bool {
	if value, ok := l.get(key); ok {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func (l lookup) csv(key string) []string {
	raw, _ := l.get(key)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", path, err)
	}
	return values, nil
}
