package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// EnvFiles are overlaid onto the process environment by LoadEnv, later files winning.
var EnvFiles = []string{".env", "safenet.env"}

// LoadEnv overlays EnvFiles that exist in the working directory.
func LoadEnv(logger *logrus.Logger) {
	var loaded []string
	for _, file := range EnvFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Overload(file); err != nil {
			if logger != nil {
				logger.WithError(err).WithField("file", file).Warn("Skipping unreadable env file")
			}
			continue
		}
		loaded = append(loaded, file)
	}
	if logger == nil {
		return
	}
	if len(loaded) == 0 {
		logger.Debug("No env files found, using process environment")
		return
	}
	logger.WithField("files", strings.Join(loaded, ",")).Debug("Loaded env files")
}

func lookup(key string) (string, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	return value, value != ""
}

// GetEnv returns the variable or defaultValue when unset or blank.
func GetEnv(key, defaultValue string) string {
	if value, ok := lookup(key); ok {
		return value
	}
	return defaultValue
}

// GetEnvInt returns defaultValue when the variable is unset or not an integer.
func GetEnvInt(key string, defaultValue int) int {
	value, ok := lookup(key)
	if !ok {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// GetEnvUint16 reads ports and keepalive intervals. Out of range values fall back to defaultValue.
func GetEnvUint16(key string, defaultValue uint16) uint16 {
	value, ok := lookup(key)
	if !ok {
		return defaultValue
	}
	parsed, err := strconv.ParseUint(value, 10, 16)
	if err != nil {
		return defaultValue
	}
	return uint16(parsed)
}

func GetEnvBool(key string, defaultValue bool) bool {
	value, ok := lookup(key)
	if !ok {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// GetEnvDuration parses a Go duration string ("90s", "1h") with a default value.
// A bare integer is read as seconds.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, ok := lookup(key)
	if !ok {
		return defaultValue
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// GetLogLevel reads SAFENET_LOG_LEVEL, then LOG_LEVEL. Unknown names mean info.
func GetLogLevel() logrus.Level {
	name := GetEnv("SAFENET_LOG_LEVEL", GetEnv("LOG_LEVEL", "info"))
	level, err := logrus.ParseLevel(name)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// RequireEnv fetches a variable and exits the process if it is empty.
func RequireEnv(key string) string {
	value, ok := lookup(key)
	if !ok {
		logrus.Fatalf("environment variable %s is required but not set", key)
	}
	return value
}
