package config

import (
	"sync"
)

// Config is the root configuration for the LiveDesk gateway.
type Config struct {
	Gateway       GatewayConfig       `json:"gateway"`
	Line          LineConfig          `json:"line"`
	Provider      ProviderConfig      `json:"provider"`
	Handoff       HandoffConfig       `json:"handoff"`
	Notifications NotificationsConfig `json:"notifications"`
	Database      DatabaseConfig      `json:"database,omitempty"`
	Telemetry     TelemetryConfig     `json:"telemetry,omitempty"`

	mu sync.RWMutex
}

// GatewayConfig configures the HTTP/WebSocket listener.
type GatewayConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	AdminToken     string   `json:"-"` // from env LIVEDESK_ADMIN_TOKEN only
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
	RateLimitRPS   float64  `json:"rate_limit_rps,omitempty"` // operator REST; 0 = disabled
}

// LineConfig holds LINE Messaging API credentials and endpoints.
// Secrets come from env only (LIVEDESK_LINE_SECRET, LIVEDESK_LINE_TOKEN).
type LineConfig struct {
	ChannelSecret string `json:"-"`
	ChannelToken  string `json:"-"`
	APIBase       string `json:"api_base,omitempty"`  // default https://api.line.me
	BlobBase      string `json:"blob_base,omitempty"` // default https://api-data.line.me
}

// ProviderConfig configures the AI completion service.
type ProviderConfig struct {
	APIKey         string  `json:"-"` // from env LIVEDESK_PROVIDER_API_KEY only
	APIBase        string  `json:"api_base,omitempty"`
	Model          string  `json:"model"`
	MaxTokens      int     `json:"max_tokens"`
	Temperature    float64 `json:"temperature"`
	TimeoutSeconds int     `json:"timeout_seconds"` // per-call timeout
}

// HandoffConfig controls the bot-to-human handoff trigger.
type HandoffConfig struct {
	Phrases      []string `json:"phrases"`       // case-insensitive substrings
	AckMessage   string   `json:"ack_message"`   // sent to the user on handoff
	EndMessage   string   `json:"end_message"`   // sent when an operator ends the chat
	WelcomeText  string   `json:"welcome_text"`  // sent on follow
	ApologyText  string   `json:"apology_text"`  // final tool-router fallback
}

// NotificationsConfig configures the operator alert outbox.
type NotificationsConfig struct {
	Channel        string `json:"channel,omitempty"` // "telegram" (default) or "discord"
	TelegramToken  string `json:"-"`                 // env LIVEDESK_TELEGRAM_TOKEN
	TelegramChatID string `json:"telegram_chat_id,omitempty"`
	DiscordToken   string `json:"-"` // env LIVEDESK_DISCORD_TOKEN
	DiscordChannel string `json:"discord_channel_id,omitempty"`
	DrainSchedule  string `json:"drain_schedule,omitempty"` // cron expr; empty = manual drain only
	DrainBatch     int    `json:"drain_batch,omitempty"`
}

// DatabaseConfig selects the storage backend.
// PostgresDSN is never read from the config file (secret); it comes from
// env LIVEDESK_POSTGRES_DSN only.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`
	SQLitePath  string `json:"sqlite_path,omitempty"` // standalone mode (default livedesk.db)
}

// IsManaged reports whether the gateway runs against Postgres.
func (c *Config) IsManaged() bool {
	return c.Database.PostgresDSN != ""
}

// TelemetryConfig configures the optional OTLP trace exporter.
type TelemetryConfig struct {
	Endpoint    string `json:"endpoint,omitempty"` // e.g. "localhost:4318"; empty = disabled
	ServiceName string `json:"service_name,omitempty"`
	Insecure    bool   `json:"insecure,omitempty"`
}

// HandoffPhrases returns the current phrase list under the config lock.
// The list can be swapped at runtime by the fsnotify watcher.
func (c *Config) HandoffPhrases() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.Handoff.Phrases))
	copy(out, c.Handoff.Phrases)
	return out
}

// SetHandoffPhrases replaces the phrase list (hot reload).
func (c *Config) SetHandoffPhrases(phrases []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Handoff.Phrases = phrases
}
