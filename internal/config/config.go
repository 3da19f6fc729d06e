// Package config resolves runtime settings from flags, environment
// variables, and .env files through Viper.
package config

import (
	"os"

	"github.com/spf13/viper"
)

// Environment variables the oracle accepts, in precedence order.
var geminiKeyVars = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}

// GetString reads a key from Viper, falling back to the OS environment
// when Viper has no value bound.
func GetString(key string) string {
	if v := viper.GetString(key); v != "" {
		return v
	}
	return os.Getenv(key)
}

// GeminiAPIKey resolves the refinement oracle's API key. An empty return
// means no key is configured.
func GeminiAPIKey() string {
	for _, key := range geminiKeyVars {
		if v := GetString(key); v != "" {
			return v
		}
	}
	return ""
}

// BindAPIKeys binds the oracle's environment variables into Viper so
// .env-loaded values resolve like real environment variables.
func BindAPIKeys() {
	for _, key := range geminiKeyVars {
		_ = viper.BindEnv(key)
	}
}
