package config

import "time"

// AIConfig holds the Gemini settings used for the final summary
type AIConfig struct {
	APIKey      string  `json:"-" yaml:"-"` // Never serialize
	Model       string  `json:"model" yaml:"model"`
	Temperature float32 `json:"temperature" yaml:"temperature"`
	TimeoutMS   int     `json:"timeoutMs" yaml:"timeout_ms"`
}

// DefaultAIConfig returns the default AI configuration. The API key is only
// ever read from GEMINI_API_KEY.
func DefaultAIConfig() AIConfig {
	return AIConfig{
		Model:       "gemini-2.0-flash",
		Temperature: 0.3,
		TimeoutMS:   10000, // 10 second default timeout
	}
}

// IsEnabled returns true if the AI API is configured
func (c AIConfig) IsEnabled() bool {
	return c.APIKey != ""
}

// Timeout returns TimeoutMS as a duration
func (c AIConfig) Timeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}
