package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr           string
	OpenAIBaseURL      string
	OpenAIAPIKey       string
	RequestTimeout     time.Duration
	LogLevel           string
	CORSAllowedOrigins []string
}

func FromEnv() (Config, error) {
	baseURL := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	if baseURL == "" {
		return Config{}, fmt.Errorf("OPENAI_BASE_URL is required")
	}

	timeout := 90 * time.Second
	if v := strings.TrimSpace(os.Getenv("REQUEST_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("REQUEST_TIMEOUT: %w", err)
		}
		timeout = d
	}

	origins := []string{"*"}
	if v := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS")); v != "" {
		origins = splitCSV(v)
	}

	return Config{
		HTTPAddr:           getenvDefault("HTTP_ADDR", ":8080"),
		OpenAIBaseURL:      baseURL,
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		RequestTimeout:     timeout,
		LogLevel:           getenvDefault("LOG_LEVEL", "info"),
		CORSAllowedOrigins: origins,
	}, nil
}

func getenvDefault(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
