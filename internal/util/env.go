package util

import (
	"os"
	"strconv"

	"github.com/EHS-Labs/sage/backend/pkg/logger"

	"github.com/joho/godotenv"
)

// LoadEnv pulls a local .env file into the environment when one exists.
// Deployed processes carry their configuration in the environment already.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using system environment variables")
	}
}

// GetEnv returns the value of key, or "" when unset.
func GetEnv(key string) string {
	return os.Getenv(key)
}

// GetEnvNumeric parses key as a float, falling back to defaultValue when
// the variable is unset or not a number.
func GetEnvNumeric(key string, defaultValue int) float64 {
	value, exists := os.LookupEnv(key)
	if !exists {
		return float64(defaultValue)
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return float64(defaultValue)
	}
	return parsed
}

// GetEnvBool parses key as a boolean. Only the literals "true" and
// "false" count; anything else yields defaultValue.
func GetEnvBool(key string, defaultValue bool) bool {
	switch os.Getenv(key) {
	case "true":
		return true
	case "false":
		return false
	}
	return defaultValue
}
