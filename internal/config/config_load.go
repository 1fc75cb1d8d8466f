package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:         "0.0.0.0",
			Port:         8490,
			RateLimitRPS: 10,
		},
		Line: LineConfig{
			APIBase:  "https://api.line.me",
			BlobBase: "https://api-data.line.me",
		},
		Provider: ProviderConfig{
			APIBase:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			MaxTokens:      1024,
			Temperature:    0.7,
			TimeoutSeconds: 30,
		},
		Handoff: HandoffConfig{
			Phrases: []string{
				"คุยกับแอดมิน", "ติดต่อเจ้าหน้าที่", "คุยกับคน", "admin", "help",
			},
			AckMessage:  "รับทราบค่ะ กำลังโอนสายไปยังเจ้าหน้าที่ให้นะคะ รอสักครู่ค่ะ",
			EndMessage:  "เจ้าหน้าที่ได้จบการสนทนาแล้วค่ะ หากมีคำถามเพิ่มเติม พิมพ์คุยกับบอทได้เลยค่ะ",
			WelcomeText: "สวัสดีค่ะ ยินดีต้อนรับค่ะ มีอะไรให้ช่วยเหลือไหมคะ",
			ApologyText: "ขออภัยค่ะ เกิดข้อผิดพลาดในการประมวลผล กรุณาลองใหม่อีกครั้ง หรือติดต่อเจ้าหน้าที่",
		},
		Notifications: NotificationsConfig{
			Channel:    "telegram",
			DrainBatch: 20,
		},
		Database: DatabaseConfig{
			SQLitePath: "livedesk.db",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "livedesk",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error; defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overlays environment variables. Secrets are env-only so they
// never end up in a config file committed by accident.
func applyEnv(cfg *Config) {
	if v := os.Getenv("LIVEDESK_LINE_SECRET"); v != "" {
		cfg.Line.ChannelSecret = v
	}
	if v := os.Getenv("LIVEDESK_LINE_TOKEN"); v != "" {
		cfg.Line.ChannelToken = v
	}
	if v := os.Getenv("LIVEDESK_PROVIDER_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("LIVEDESK_TELEGRAM_TOKEN"); v != "" {
		cfg.Notifications.TelegramToken = v
	}
	if v := os.Getenv("LIVEDESK_TELEGRAM_CHAT_ID"); v != "" {
		cfg.Notifications.TelegramChatID = v
	}
	if v := os.Getenv("LIVEDESK_DISCORD_TOKEN"); v != "" {
		cfg.Notifications.DiscordToken = v
	}
	if v := os.Getenv("LIVEDESK_POSTGRES_DSN"); v != "" {
		cfg.Database.PostgresDSN = v
	}
	if v := os.Getenv("LIVEDESK_ADMIN_TOKEN"); v != "" {
		cfg.Gateway.AdminToken = v
	}
	if v := os.Getenv("LIVEDESK_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = p
		}
	}
	if v := os.Getenv("LIVEDESK_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.Endpoint = v
	}
}

// Validate reports missing settings the gateway cannot start without.
func (c *Config) Validate() error {
	if c.Line.ChannelSecret == "" {
		return fmt.Errorf("LINE channel secret is not set (LIVEDESK_LINE_SECRET)")
	}
	if c.Line.ChannelToken == "" {
		return fmt.Errorf("LINE channel access token is not set (LIVEDESK_LINE_TOKEN)")
	}
	return nil
}
