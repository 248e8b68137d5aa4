package embedder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"logoembed/pkg/datauri"
	"logoembed/pkg/document"
	"logoembed/pkg/metrics"
	gos3 "logoembed/pkg/s3"
)

var tracer = otel.Tracer("logoembed/services/embedder")

// Embed stores the data URI of the image under LogoKey in the config
// document and rewrites the config file. The config is read first and nothing
// is written unless both inputs were read and parsed.
func Embed(ctx context.Context, cfg EmbedConfig) (*Result, error) {
	if cfg.ImagePath == "" {
		return nil, errors.New("image path is required")
	}
	if cfg.ConfigPath == "" {
		return nil, errors.New("config path is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "embed", trace.WithAttributes(
		attribute.String("logoembed.run_id", runID),
		attribute.String("logoembed.config", cfg.ConfigPath),
		attribute.String("logoembed.image", cfg.ImagePath),
	))
	defer span.End()

	start := cfg.Now()
	res, err := embed(ctx, cfg, runID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		cfg.Metrics.Observe(metrics.ResultError, cfg.Now().Sub(start), 0)
		cfg.Logger.Printf("ERROR run %s: %v", runID, err)
		return nil, err
	}
	cfg.Metrics.Observe(metrics.ResultOK, cfg.Now().Sub(start), res.ImageSize)
	return res, nil
}

func embed(ctx context.Context, cfg EmbedConfig, runID string) (*Result, error) {
	raw, root, err := loadConfig(ctx, cfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	obj, _ := root.Map()

	img, err := readImage(ctx, cfg.S3, cfg.ImagePath)
	if err != nil {
		return nil, err
	}

	_, span := tracer.Start(ctx, "encode")
	uri := document.StringValue(datauri.EncodeSVG(img))
	prev, had := obj.Get(LogoKey)
	changed := !had || !prev.Equal(uri)
	obj.Set(LogoKey, uri)
	out, err := document.Encode(root)
	span.End()
	if err != nil {
		return nil, err
	}

	encoded, _ := uri.Str()
	res := &Result{
		RunID:      runID,
		ConfigPath: cfg.ConfigPath,
		ImagePath:  cfg.ImagePath,
		ImageSize:  len(img),
		URILength:  len(encoded),
		Changed:    changed,
	}

	if cfg.DryRun {
		if _, err := cfg.Stdout.Write(out); err != nil {
			return nil, &IOError{Op: "write", Path: "stdout", Err: err}
		}
		cfg.Logger.Printf("INFO dry run %s: %s left unmodified", runID, cfg.ConfigPath)
		return res, nil
	}

	if cfg.BackupDir != "" {
		backupPath, err := writeBackup(cfg.BackupDir, cfg.ConfigPath, raw, cfg.Now())
		if err != nil {
			return nil, err
		}
		res.BackupPath = backupPath
	}

	if err := writeConfig(ctx, cfg.ConfigPath, out); err != nil {
		return nil, err
	}
	cfg.Logger.Printf("INFO run %s: embedded %s into %s (%d bytes, changed=%t)", runID, cfg.ImagePath, cfg.ConfigPath, len(img), changed)

	if changed && cfg.Publisher != nil {
		event := Event{
			RunID:   runID,
			Config:  cfg.ConfigPath,
			Image:   cfg.ImagePath,
			Size:    len(img),
			Changed: changed,
		}
		if err := cfg.Publisher.Publish(ctx, cfg.Subject, event); err != nil {
			cfg.Logger.Printf("WARN run %s: publish %s: %v", runID, cfg.Subject, err)
		}
	}

	return res, nil
}

// Verify checks that the config's logo field decodes to the current image bytes.
func Verify(ctx context.Context, cfg VerifyConfig) error {
	if cfg.ImagePath == "" {
		return errors.New("image path is required")
	}
	if cfg.ConfigPath == "" {
		return errors.New("config path is required")
	}

	ctx, span := tracer.Start(ctx, "verify")
	defer span.End()

	_, root, err := loadConfig(ctx, cfg.ConfigPath)
	if err != nil {
		return err
	}
	img, err := readImage(ctx, cfg.S3, cfg.ImagePath)
	if err != nil {
		return err
	}

	obj, _ := root.Map()
	v, ok := obj.Get(LogoKey)
	if !ok {
		return fmt.Errorf("%w: %s has no %q field", ErrStale, cfg.ConfigPath, LogoKey)
	}
	uri, ok := v.Str()
	if !ok {
		return fmt.Errorf("%w: %s field %q is %s, want string", ErrStale, cfg.ConfigPath, LogoKey, v.Kind())
	}
	embedded, err := datauri.DecodeSVG(uri)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStale, cfg.ConfigPath, err)
	}
	if !bytes.Equal(embedded, img) {
		return fmt.Errorf("%w: %s does not match %s", ErrStale, cfg.ConfigPath, cfg.ImagePath)
	}
	return nil
}

func loadConfig(ctx context.Context, path string) ([]byte, document.Value, error) {
	_, span := tracer.Start(ctx, "read_config")
	defer span.End()

	raw, err := readFile(path)
	if err != nil {
		return nil, document.Value{}, err
	}
	root, err := document.Parse(raw)
	if err != nil {
		return nil, document.Value{}, &ParseError{Path: path, Err: err}
	}
	if root.Kind() != document.Object {
		return nil, document.Value{}, &StructureError{Path: path, Kind: root.Kind()}
	}
	return raw, root, nil
}

func readImage(ctx context.Context, getter ObjectGetter, location string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "read_image")
	defer span.End()

	if !gos3.IsURL(location) {
		return readFile(location)
	}
	if getter == nil {
		return nil, fmt.Errorf("image %s: s3 client is not configured", location)
	}
	bucket, key, err := gos3.ParseURL(location)
	if err != nil {
		return nil, err
	}
	data, err := getter.GetObject(ctx, bucket, key)
	if err != nil {
		if errors.Is(err, gos3.ErrNotFound) {
			return nil, &NotFoundError{Path: location, Err: err}
		}
		return nil, &IOError{Op: "get", Path: location, Err: err}
	}
	return data, nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Path: path, Err: err}
		}
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	return data, nil
}

func writeConfig(ctx context.Context, path string, data []byte) error {
	_, span := tracer.Start(ctx, "write_config")
	defer span.End()
	return writeConfigFile(path, data)
}

// writeConfigFile overwrites path, keeping the permissions of an existing file.
func writeConfigFile(path string, data []byte) error {
	mode := fs.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(path, data, mode); err != nil {
		return &IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}
