package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func issuePaths(issues []ValidationIssue) []string {
	var paths []string
	for _, i := range issues {
		paths = append(paths, i.Path)
	}
	return paths
}

func TestValidate_Defaults(t *testing.T) {
	cfg := Defaults()
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_BadURLs(t *testing.T) {
	cfg := Defaults()
	cfg.Server.BaseURL = "not a url"
	cfg.Server.SocketURL = "::::"

	paths := issuePaths(Validate(&cfg))
	assert.Contains(t, paths, "server.baseUrl")
	assert.Contains(t, paths, "server.socketUrl")
}

func TestValidate_MissingBaseURL(t *testing.T) {
	cfg := Defaults()
	cfg.Server.BaseURL = ""
	assert.Contains(t, issuePaths(Validate(&cfg)), "server.baseUrl")
}

func TestValidate_NegativeLimits(t *testing.T) {
	cfg := Defaults()
	cfg.Server.TimeoutSeconds = -1
	cfg.Server.MaxReconnects = -2

	paths := issuePaths(Validate(&cfg))
	assert.Contains(t, paths, "server.timeoutSeconds")
	assert.Contains(t, paths, "server.maxReconnects")
}

func TestValidate_PartialModelPreference(t *testing.T) {
	cfg := Defaults()
	cfg.Chat.Provider = "anthropic"
	assert.Contains(t, issuePaths(Validate(&cfg)), "chat")

	cfg.Chat.Model = "sonnet"
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_Logging(t *testing.T) {
	cfg := Defaults()
	cfg.Logging.Level = "loud"
	cfg.Logging.ConsoleStyle = "neon"

	paths := issuePaths(Validate(&cfg))
	assert.Contains(t, paths, "logging.level")
	assert.Contains(t, paths, "logging.consoleStyle")
}
