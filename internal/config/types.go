package config

import "strings"

// Config is the root configuration for opsdeck.
type Config struct {
	Server  ServerConfig  `yaml:"server,omitempty"`
	Chat    ChatConfig    `yaml:"chat,omitempty"`
	Storage StorageConfig `yaml:"storage,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
}

// ServerConfig points at the ops-center API and its realtime endpoints.
type ServerConfig struct {
	BaseURL        string `yaml:"baseUrl,omitempty"`
	Token          string `yaml:"token,omitempty"`
	SocketURL      string `yaml:"socketUrl,omitempty"` // derived from baseUrl when empty
	EventsURL      string `yaml:"eventsUrl,omitempty"` // derived from baseUrl when empty
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty"`
	MaxReconnects  int    `yaml:"maxReconnects,omitempty"`
}

// ResolveSocketURL returns the duplex socket endpoint, derived from BaseURL
// unless set explicitly.
func (s ServerConfig) ResolveSocketURL() string {
	if s.SocketURL != "" {
		return s.SocketURL
	}
	base := s.BaseURL
	base = strings.Replace(base, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	return strings.TrimRight(base, "/") + "/api/socket"
}

// ResolveEventsURL returns the server-push event stream endpoint, derived
// from BaseURL unless set explicitly.
func (s ServerConfig) ResolveEventsURL() string {
	if s.EventsURL != "" {
		return s.EventsURL
	}
	return strings.TrimRight(s.BaseURL, "/") + "/api/events"
}

// ChatConfig seeds chat behavior. Provider/Model are only the initial model
// preference; the persisted preference in the data store wins once set.
type ChatConfig struct {
	Provider string `yaml:"provider,omitempty"`
	Model    string `yaml:"model,omitempty"`
	Buffered bool   `yaml:"buffered,omitempty"` // use the non-streaming exchange mode
}

// StorageConfig controls the local database.
type StorageConfig struct {
	Path string `yaml:"path,omitempty"` // defaults to <data dir>/opsdeck.db
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"`        // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}
