package embedder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	gos3 "logoembed/pkg/s3"
)

// JobFile lists embeds to run in order.
type JobFile struct {
	Jobs []Job `yaml:"jobs"`
}

// Job is one image/config pair. Relative paths are resolved against the
// directory holding the job file.
type Job struct {
	Name   string `yaml:"name,omitempty"`
	Image  string `yaml:"image"`
	Config string `yaml:"config"`
}

func (j Job) label(index int) string {
	if j.Name != "" {
		return j.Name
	}
	return fmt.Sprintf("job %d", index+1)
}

// LoadJobFile reads and validates a YAML job file.
func LoadJobFile(path string) (*JobFile, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	jf, err := parseJobFile(data)
	if err != nil {
		return nil, fmt.Errorf("job file %s: %w", path, err)
	}
	jf.resolve(filepath.Dir(path))
	return jf, nil
}

func parseJobFile(data []byte) (*JobFile, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var jf JobFile
	if err := dec.Decode(&jf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("no jobs defined")
		}
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(jf.Jobs) == 0 {
		return nil, errors.New("no jobs defined")
	}
	for i, job := range jf.Jobs {
		if strings.TrimSpace(job.Image) == "" {
			return nil, fmt.Errorf("%s: image is required", job.label(i))
		}
		if strings.TrimSpace(job.Config) == "" {
			return nil, fmt.Errorf("%s: config is required", job.label(i))
		}
	}
	return &jf, nil
}

func (jf *JobFile) resolve(base string) {
	for i := range jf.Jobs {
		jf.Jobs[i].Image = ResolvePath(base, jf.Jobs[i].Image)
		jf.Jobs[i].Config = ResolvePath(base, jf.Jobs[i].Config)
	}
}

// ResolvePath joins a relative local path onto base. Absolute paths and
// s3:// locations are returned unchanged.
func ResolvePath(base, p string) string {
	p = strings.TrimSpace(p)
	if gos3.IsURL(p) || filepath.IsAbs(p) || base == "" {
		return p
	}
	return filepath.Join(base, p)
}

// RunJobs embeds every job in order using base for the shared settings. The
// first failure stops the run.
func RunJobs(ctx context.Context, jf *JobFile, base EmbedConfig) ([]*Result, error) {
	if jf == nil || len(jf.Jobs) == 0 {
		return nil, errors.New("no jobs defined")
	}
	results := make([]*Result, 0, len(jf.Jobs))
	for i, job := range jf.Jobs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		cfg := base
		cfg.ImagePath = job.Image
		cfg.ConfigPath = job.Config
		res, err := Embed(ctx, cfg)
		if err != nil {
			return results, fmt.Errorf("%s: %w", job.label(i), err)
		}
		results = append(results, res)
	}
	return results, nil
}

// UsesS3 reports whether any job reads its image from S3.
func (jf *JobFile) UsesS3() bool {
	for _, job := range jf.Jobs {
		if gos3.IsURL(job.Image) {
			return true
		}
	}
	return false
}
