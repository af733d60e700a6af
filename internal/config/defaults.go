package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/rfqrank/data/rfqrank.db"
	}
	if cfg.Storage.SupplierIndexPath == "" {
		cfg.Storage.SupplierIndexPath = "/usr/local/var/rfqrank/data/indices/suppliers"
	}
	if cfg.AI.APIKeyEnv == "" {
		cfg.AI.APIKeyEnv = "GEMINI_API_KEY"
	}
	if cfg.AI.Timeout == 0 {
		cfg.AI.Timeout = 60 * time.Second
	}
	if cfg.AI.MaxAttempts == 0 {
		cfg.AI.MaxAttempts = 3
	}
	if cfg.AI.BaseDelay == 0 {
		cfg.AI.BaseDelay = time.Second
	}
	if cfg.Conversation.Backend == "" {
		cfg.Conversation.Backend = BackendMemory
	}
	if cfg.Conversation.StateTTL == 0 {
		cfg.Conversation.StateTTL = 24 * time.Hour
	}
	if cfg.Conversation.SupplierLimit == 0 {
		cfg.Conversation.SupplierLimit = 10
	}
	if cfg.Inbox.Extensions == nil {
		cfg.Inbox.Extensions = []string{".txt", ".md", ".eml", ".pdf", ".docx", ".xlsx"}
	}
	if cfg.Metrics.Enabled == nil {
		t := true
		cfg.Metrics.Enabled = &t
	}
}
