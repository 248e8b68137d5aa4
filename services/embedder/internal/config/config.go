package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	DefaultImage   = "logo.svg"
	DefaultConfig  = "src/defaults.json"
	DefaultSubject = "logoembed.logo.updated"
)

// Load reads settings from the environment. Every value can be overridden by
// a command line flag.
func Load() (Config, error) {
	cfg := Config{}

	cfg.Dir = getEnv("LOGOEMBED_DIR", ".")
	cfg.Image = getEnv("LOGOEMBED_IMAGE", DefaultImage)
	cfg.ConfigPath = getEnv("LOGOEMBED_CONFIG", DefaultConfig)
	cfg.BackupDir = os.Getenv("LOGOEMBED_BACKUP_DIR")
	cfg.MetricsFile = os.Getenv("LOGOEMBED_METRICS_FILE")

	cfg.NATS.URL = os.Getenv("LOGOEMBED_NATS_URL")
	cfg.NATS.Subject = getEnv("LOGOEMBED_NATS_SUBJECT", DefaultSubject)
	if err := validateSubject(cfg.NATS.Subject); err != nil {
		return Config{}, fmt.Errorf("invalid LOGOEMBED_NATS_SUBJECT: %w", err)
	}

	return cfg, nil
}

// Validate checks the settings after flags have been applied.
func (c Config) Validate() error {
	if err := validateSubject(c.NATS.Subject); err != nil {
		return fmt.Errorf("invalid NATS subject: %w", err)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// validateSubject rejects subjects NATS would refuse to publish on.
func validateSubject(subject string) error {
	if subject == "" {
		return fmt.Errorf("subject is empty")
	}
	if strings.ContainsAny(subject, " \t\r\n") {
		return fmt.Errorf("%q contains whitespace", subject)
	}
	if strings.ContainsAny(subject, "*>") {
		return fmt.Errorf("%q contains a wildcard", subject)
	}
	for _, token := range strings.Split(subject, ".") {
		if token == "" {
			return fmt.Errorf("%q has an empty token", subject)
		}
	}
	return nil
}
