package embedder

import (
	"context"
	"io"
	"log"
	"time"

	"logoembed/pkg/metrics"
)

// LogoKey is the config field that receives the data URI.
const LogoKey = "logo"

// DefaultSubject is the NATS subject used for update events.
const DefaultSubject = "logoembed.logo.updated"

// ObjectGetter fetches s3:// image sources.
type ObjectGetter interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
}

// Publisher delivers update events.
type Publisher interface {
	Publish(ctx context.Context, subj string, v any) error
}

// EmbedConfig configures a single embed run.
type EmbedConfig struct {
	ImagePath  string
	ConfigPath string
	DryRun     bool
	BackupDir  string
	S3         ObjectGetter
	Publisher  Publisher
	Subject    string
	Metrics    *metrics.Recorder
	Logger     *log.Logger
	Now        func() time.Time
	Stdout     io.Writer
}

// VerifyConfig configures a staleness check.
type VerifyConfig struct {
	ImagePath  string
	ConfigPath string
	S3         ObjectGetter
}

// Result describes a completed embed run.
type Result struct {
	RunID      string
	ConfigPath string
	ImagePath  string
	ImageSize  int
	URILength  int
	Changed    bool
	BackupPath string
}

// Event is the payload published after the config was rewritten.
type Event struct {
	RunID   string `json:"run_id"`
	Config  string `json:"config"`
	Image   string `json:"image"`
	Size    int    `json:"size"`
	Changed bool   `json:"changed"`
}
