package config

type Config struct {
	Dir         string
	Image       string
	ConfigPath  string
	BackupDir   string
	MetricsFile string
	NATS        NATSConfig
}

type NATSConfig struct {
	URL     string
	Subject string
}
