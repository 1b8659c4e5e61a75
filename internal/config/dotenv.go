package config

import (
	"bufio"
	"strings"
)

// ParseDotEnv parses KEY=VALUE lines from a .env file. Comment lines (#),
// blank lines and an optional leading "export " are tolerated; single or
// double quotes around the value are stripped. Later duplicates win.
func ParseDotEnv(data []byte) map[string]string {
	values := map[string]string{}
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		eq := strings.Index(line, "=")
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		value := strings.TrimSpace(line[eq+1:])

		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		if key == "" {
			continue
		}
		values[key] = value
	}
	return values
}

// dotEnvLookup layers .env values under the process environment: a variable
// already set on the process always wins.
func dotEnvLookup(fileValues map[string]string, base EnvLookup) EnvLookup {
	return func(key string) (string, bool) {
		if base != nil {
			if value, ok := base(key); ok && value != "" {
				return value, true
			}
		}
		if value, ok := fileValues[key]; ok && value != "" {
			return value, true
		}
		return "", false
	}
}
