package config

import (
	"fmt"
	"net/url"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	// Server validation
	if cfg.Server.BaseURL == "" {
		issues = append(issues, ValidationIssue{
			Path:    "server.baseUrl",
			Message: "base URL is required",
		})
	} else if u, err := url.Parse(cfg.Server.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		issues = append(issues, ValidationIssue{
			Path:    "server.baseUrl",
			Message: fmt.Sprintf("must be an absolute URL, got %q", cfg.Server.BaseURL),
		})
	}

	for _, field := range []struct {
		path  string
		value string
	}{
		{"server.socketUrl", cfg.Server.SocketURL},
		{"server.eventsUrl", cfg.Server.EventsURL},
	} {
		if field.value == "" {
			continue
		}
		if u, err := url.Parse(field.value); err != nil || u.Scheme == "" || u.Host == "" {
			issues = append(issues, ValidationIssue{
				Path:    field.path,
				Message: fmt.Sprintf("must be an absolute URL, got %q", field.value),
			})
		}
	}

	if cfg.Server.TimeoutSeconds < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "server.timeoutSeconds",
			Message: fmt.Sprintf("must be non-negative, got %d", cfg.Server.TimeoutSeconds),
		})
	}
	if cfg.Server.MaxReconnects < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "server.maxReconnects",
			Message: fmt.Sprintf("must be non-negative, got %d", cfg.Server.MaxReconnects),
		})
	}

	// Chat validation: a bare provider or bare model is almost always a typo.
	if (cfg.Chat.Provider == "") != (cfg.Chat.Model == "") {
		issues = append(issues, ValidationIssue{
			Path:    "chat",
			Message: "provider and model must be set together",
		})
	}

	// Logging validation
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	validConsoleStyles := []string{"pretty", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.consoleStyle",
			Message: fmt.Sprintf("must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle),
		})
	}

	return issues
}
