package embedder

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
)

const (
	backupSuffix = ".zst"
	// maxBackupAttempts bounds the numbered names tried when a backup for the
	// same config already exists for this second.
	maxBackupAttempts = 100
)

// backupName returns <base>.<path hash>.<UTC time>[-n].zst. The hash keeps
// configs that share a base name apart.
func backupName(configPath string, now time.Time, attempt int) string {
	abs, err := filepath.Abs(configPath)
	if err != nil {
		abs = filepath.Clean(configPath)
	}
	stamp := now.UTC().Format("20060102T150405Z")
	if attempt > 0 {
		stamp = fmt.Sprintf("%s-%d", stamp, attempt)
	}
	return fmt.Sprintf("%s.%08x.%s%s", filepath.Base(configPath), uint32(xxhash.Sum64String(abs)), stamp, backupSuffix)
}

// writeBackup stores the previous config bytes as a new zstd file. An
// existing backup is never overwritten.
func writeBackup(dir, configPath string, data []byte, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil && !errors.Is(err, os.ErrExist) {
		return "", &IOError{Op: "create backup dir", Path: dir, Err: err}
	}

	var (
		path string
		file *os.File
	)
	for attempt := 0; ; attempt++ {
		path = filepath.Join(dir, backupName(configPath, now, attempt))
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			file = f
			break
		}
		if !errors.Is(err, fs.ErrExist) || attempt+1 >= maxBackupAttempts {
			return "", &IOError{Op: "create backup", Path: path, Err: err}
		}
	}
	defer file.Close()

	encoder, err := zstd.NewWriter(file)
	if err != nil {
		return "", fmt.Errorf("zstd writer: %w", err)
	}
	if _, err := encoder.Write(data); err != nil {
		encoder.Close()
		return "", &IOError{Op: "write backup", Path: path, Err: err}
	}
	if err := encoder.Close(); err != nil {
		return "", &IOError{Op: "write backup", Path: path, Err: err}
	}
	if err := file.Close(); err != nil {
		return "", &IOError{Op: "write backup", Path: path, Err: err}
	}
	return path, nil
}

// RestoreBackup decompresses a backup written by Embed over dest.
func RestoreBackup(backupPath, dest string) error {
	file, err := os.Open(backupPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &NotFoundError{Path: backupPath, Err: err}
		}
		return &IOError{Op: "open backup", Path: backupPath, Err: err}
	}
	defer file.Close()

	decoder, err := zstd.NewReader(file)
	if err != nil {
		return fmt.Errorf("zstd reader: %w", err)
	}
	defer decoder.Close()

	data, err := io.ReadAll(decoder)
	if err != nil {
		return &IOError{Op: "read backup", Path: backupPath, Err: err}
	}
	return writeConfigFile(dest, data)
}
