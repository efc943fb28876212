package main

import (
	"os"
	"strconv"
	"time"
)

// Environment fallbacks of the persistent flags
const (
	envConfig          = "MADS_CONFIG"
	envLogLevel        = "MADS_LOG_LEVEL"
	envLogFormat       = "MADS_LOG_FORMAT"
	envModulesDir      = "MADS_MODULES_DIR"
	envNoBuiltins      = "MADS_NO_BUILTINS"
	envShutdownTimeout = "MADS_SHUTDOWN_TIMEOUT"
)

// options holds the persistent flags
type options struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	ModulesDir      string
	Modules         []string
	NoBuiltins      bool
	ShutdownTimeout time.Duration
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
