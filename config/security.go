package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

const (
	// Security limits for configuration
	maxConfigSize = 10 << 20 // 10MB max config file size
	maxDepth      = 100      // Maximum nesting depth
	maxEnvVarLen  = 10000    // Maximum environment variable value length
	maxPathLen    = 4096     // Maximum file path length
)

// validateConfigPath does basic path validation
func validateConfigPath(path string) error {
	if path == "" {
		return errors.New("empty config path")
	}
	if len(path) > maxPathLen {
		return fmt.Errorf("path too long: %d > %d", len(path), maxPathLen)
	}
	if strings.ContainsRune(path, 0) {
		return errors.New("null byte in config path")
	}

	lower := strings.ToLower(path)
	for _, ext := range []string{".yaml", ".yml", ".json"} {
		if strings.HasSuffix(lower, ext) {
			return nil
		}
	}
	return fmt.Errorf("only YAML or JSON config files allowed: %s", path)
}

// safeReadFile reads a config file with security validation
func safeReadFile(path string) ([]byte, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot stat config file: %w", err)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes > %d", info.Size(), maxConfigSize)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file: %w", err)
	}
	return data, nil
}

// validateEnvVar does basic environment variable validation
func validateEnvVar(key, value string) error {
	if value == "" {
		return nil
	}
	if len(value) > maxEnvVarLen {
		return fmt.Errorf("environment variable %s too long: %d > %d", key, len(value), maxEnvVarLen)
	}
	if strings.Contains(value, "\x00") {
		return fmt.Errorf("null byte in environment variable %s", key)
	}
	return nil
}

// ${NAME} or ${NAME:-default}
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandEnv replaces ${NAME} references. An unset variable without a default is an
// error so that a typo never silently becomes an empty string. $$ escapes a dollar.
func expandEnv(text string, lookup func(string) (string, bool)) (string, error) {
	const escaped = "\x00dollar\x00"
	text = strings.ReplaceAll(text, "$$", escaped)

	var errs []error
	out := envRef.ReplaceAllStringFunc(text, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		name, hasDefault, def := m[1], m[2] != "", m[3]
		val, ok := lookup(name)
		if !ok || val == "" {
			if hasDefault {
				return def
			}
			if !ok {
				errs = append(errs, fmt.Errorf("environment variable %s is not set", name))
			}
			return ""
		}
		if err := validateEnvVar(name, val); err != nil {
			errs = append(errs, err)
			return ""
		}
		return val
	})
	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return strings.ReplaceAll(out, escaped, "$"), nil
}

// validateDepth checks bracket and indentation depth to prevent pathological documents
func validateDepth(data []byte) error {
	depth := 0
	inString := false
	escaped := false
	var quote byte

	for i := 0; i < len(data); i++ {
		b := data[i]

		if escaped {
			escaped = false
			continue
		}
		if b == '\\' && inString && quote == '"' {
			escaped = true
			continue
		}
		if inString {
			if b == quote {
				inString = false
			}
			continue
		}
		if b == '"' || (b == '\'' && quoteStart(data, i)) {
			inString, quote = true, b
			continue
		}
		if b == '#' && (i == 0 || data[i-1] == ' ' || data[i-1] == '\n') {
			for i < len(data) && data[i] != '\n' {
				i++
			}
			continue
		}

		switch b {
		case '{', '[':
			depth++
			if depth > maxDepth {
				return fmt.Errorf("nesting too deep: %d > %d", depth, maxDepth)
			}
		case '}', ']':
			depth--
			if depth < 0 {
				return errors.New("malformed document: unbalanced brackets")
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("malformed document: unclosed brackets (depth=%d)", depth)
	}
	return nil
}

// quoteStart reports whether a single quote at i opens a YAML quoted scalar rather
// than being an apostrophe inside a plain one
func quoteStart(data []byte, i int) bool {
	if i == 0 {
		return true
	}
	switch data[i-1] {
	case ' ', '\t', '\n', ':', '[', '{', ',', '-':
		return true
	}
	return false
}
