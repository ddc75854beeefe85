package config

type Config struct {
	Discord  DiscordConfig  `json:"discord"`
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Store controls where tenant records (links, subscriptions, discovered
	// chats) are persisted.
	Store StoreConfig `json:"store"`

	Delivery DeliveryConfig `json:"delivery,omitempty"`
	Metrics  MetricsConfig  `json:"metrics,omitempty"`
}

type DiscordConfig struct {
	// Token may be left empty in the file and supplied via the DISCORD_TOKEN
	// environment variable (.env is honored).
	Token string `json:"token,omitempty"`

	// OpsChannel is an optional channel id that warn+ logs are forwarded to.
	OpsChannel string `json:"ops_channel,omitempty"`
}

type TelegramConfig struct {
	// HTTPTimeout is a Go duration string (e.g. "10s", "1m") bounding each
	// Bot API call. Polling uses short-poll getUpdates, so this stays small.
	HTTPTimeout string `json:"http_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string         `json:"level"`
	Console bool           `json:"console"`
	File    LoggingFile    `json:"file"`
	Discord LoggingDiscord `json:"discord"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingDiscord struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StoreConfig controls the tenant persistence layer.
//
// Driver values:
//   - "file" (default): single JSON document, written back whole
//   - "sqlite": SQLite database file
type StoreConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type DeliveryConfig struct {
	// RatePerSec caps outbound Discord sends. 0 uses the default.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:9090"
}
