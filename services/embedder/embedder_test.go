package embedder

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"logoembed/pkg/datauri"
	"logoembed/pkg/document"
	"logoembed/pkg/metrics"
	gos3 "logoembed/pkg/s3"
)

const svgLogo = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 32 32"><circle cx="16" cy="16" r="12"/></svg>`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readConfig(t *testing.T, path string) *document.Map {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	v, err := document.Parse(data)
	require.NoError(t, err)
	m, ok := v.Map()
	require.True(t, ok, "config is not an object")
	return m
}

func logoOf(t *testing.T, m *document.Map) string {
	t.Helper()
	v, ok := m.Get(LogoKey)
	require.True(t, ok, "logo field missing")
	s, ok := v.Str()
	require.True(t, ok, "logo field is not a string")
	return s
}

func TestEmbedSelfClosingSVG(t *testing.T) {
	dir := t.TempDir()
	image := writeFile(t, dir, "logo.svg", "<svg/>")
	config := writeFile(t, dir, "src/defaults.json", `{"a": 1}`)

	res, err := Embed(context.Background(), EmbedConfig{ImagePath: image, ConfigPath: config})
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.Equal(t, 6, res.ImageSize)
	require.NotEmpty(t, res.RunID)

	data, err := os.ReadFile(config)
	require.NoError(t, err)
	require.Equal(t, "{\n  \"a\": 1,\n  \"logo\": \"data:image/svg+xml;base64,PHN2Zy8+\"\n}\n", string(data))
}

func TestEmbedPreservesOtherFields(t *testing.T) {
	dir := t.TempDir()
	image := writeFile(t, dir, "async-kernel-logo.svg", svgLogo)
	config := writeFile(t, dir, "defaults.json", `{
  "name": "async-kernel",
  "logo": "data:image/svg+xml;base64,b2xk",
  "resources": {"logo-32x32": "", "sizes": [32, 64]},
  "ratio": 1.50,
  "enabled": true,
  "extra": null
}`)

	before := readConfig(t, config)

	_, err := Embed(context.Background(), EmbedConfig{ImagePath: image, ConfigPath: config})
	require.NoError(t, err)

	after := readConfig(t, config)
	require.Equal(t, before.Keys(), after.Keys(), "key order changed")
	for _, key := range before.Keys() {
		if key == LogoKey {
			continue
		}
		want, _ := before.Get(key)
		got, _ := after.Get(key)
		require.Truef(t, want.Equal(got), "field %q changed", key)
	}
	require.Equal(t, datauri.EncodeSVG([]byte(svgLogo)), logoOf(t, after))
}

func TestEmbedKeepsEscapedStrings(t *testing.T) {
	dir := t.TempDir()
	image := writeFile(t, dir, "logo.svg", "<svg/>")
	config := writeFile(t, dir, "defaults.json", `{"note": "\ud83d", "title": "\u004bernel \"q\""}`)

	_, err := Embed(context.Background(), EmbedConfig{ImagePath: image, ConfigPath: config})
	require.NoError(t, err)

	data, err := os.ReadFile(config)
	require.NoError(t, err)
	require.Equal(t, "{\n"+
		`  "note": "\ud83d",`+"\n"+
		`  "title": "\u004bernel \"q\"",`+"\n"+
		`  "logo": "data:image/svg+xml;base64,PHN2Zy8+"`+"\n"+
		"}\n", string(data))
}

func TestEmbedRoundTripsImageBytes(t *testing.T) {
	dir := t.TempDir()
	content := svgLogo + "\n<!-- ünïcödé & \"quotes\" -->\n"
	image := writeFile(t, dir, "logo.svg", content)
	config := writeFile(t, dir, "defaults.json", `{}`)

	_, err := Embed(context.Background(), EmbedConfig{ImagePath: image, ConfigPath: config})
	require.NoError(t, err)

	uri := logoOf(t, readConfig(t, config))
	payload, ok := strings.CutPrefix(uri, "data:image/svg+xml;base64,")
	require.True(t, ok)
	decoded, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err)
	require.Equal(t, []byte(content), decoded)
}

func TestEmbedIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	image := writeFile(t, dir, "logo.svg", svgLogo)
	config := writeFile(t, dir, "defaults.json", `{"b": [1, {"c": "d"}], "a": "x"}`)

	first, err := Embed(context.Background(), EmbedConfig{ImagePath: image, ConfigPath: config})
	require.NoError(t, err)
	require.True(t, first.Changed)
	once, err := os.ReadFile(config)
	require.NoError(t, err)

	second, err := Embed(context.Background(), EmbedConfig{ImagePath: image, ConfigPath: config})
	require.NoError(t, err)
	require.False(t, second.Changed)
	twice, err := os.ReadFile(config)
	require.NoError(t, err)

	require.Equal(t, string(once), string(twice))
}

func TestEmbedMissingImageLeavesConfigUntouched(t *testing.T) {
	dir := t.TempDir()
	original := `{"a":1}`
	config := writeFile(t, dir, "defaults.json", original)

	_, err := Embed(context.Background(), EmbedConfig{
		ImagePath:  filepath.Join(dir, "missing.svg"),
		ConfigPath: config,
	})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrNotFound)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, filepath.Join(dir, "missing.svg"), notFound.Path)

	data, err := os.ReadFile(config)
	require.NoError(t, err)
	require.Equal(t, original, string(data))
}

func TestEmbedMissingConfig(t *testing.T) {
	dir := t.TempDir()
	image := writeFile(t, dir, "logo.svg", svgLogo)

	_, err := Embed(context.Background(), EmbedConfig{
		ImagePath:  image,
		ConfigPath: filepath.Join(dir, "src", "defaults.json"),
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEmbedConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		check   func(t *testing.T, err error)
	}{
		{
			name:    "list at top level",
			content: `[1,2,3]`,
			check: func(t *testing.T, err error) {
				var structure *StructureError
				require.ErrorAs(t, err, &structure)
				require.Equal(t, document.Array, structure.Kind)
			},
		},
		{
			name:    "string at top level",
			content: `"logo"`,
			check: func(t *testing.T, err error) {
				var structure *StructureError
				require.ErrorAs(t, err, &structure)
				require.Equal(t, document.String, structure.Kind)
			},
		},
		{
			name:    "invalid json",
			content: `{"a": 1,`,
			check: func(t *testing.T, err error) {
				var parseErr *ParseError
				require.ErrorAs(t, err, &parseErr)
				var syntaxErr *document.SyntaxError
				require.ErrorAs(t, err, &syntaxErr)
			},
		},
		{
			name:    "empty file",
			content: ``,
			check: func(t *testing.T, err error) {
				var parseErr *ParseError
				require.ErrorAs(t, err, &parseErr)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			image := writeFile(t, dir, "logo.svg", svgLogo)
			config := writeFile(t, dir, "defaults.json", tt.content)

			_, err := Embed(context.Background(), EmbedConfig{ImagePath: image, ConfigPath: config})
			require.Error(t, err)
			tt.check(t, err)

			data, readErr := os.ReadFile(config)
			require.NoError(t, readErr)
			require.Equal(t, tt.content, string(data))
		})
	}
}

func TestEmbedRequiresPaths(t *testing.T) {
	_, err := Embed(context.Background(), EmbedConfig{ConfigPath: "defaults.json"})
	require.Error(t, err)
	_, err = Embed(context.Background(), EmbedConfig{ImagePath: "logo.svg"})
	require.Error(t, err)
}

func TestEmbedCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Embed(ctx, EmbedConfig{ImagePath: "logo.svg", ConfigPath: "defaults.json"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestEmbedDryRun(t *testing.T) {
	dir := t.TempDir()
	image := writeFile(t, dir, "logo.svg", "<svg/>")
	original := `{"a": 1}`
	config := writeFile(t, dir, "defaults.json", original)

	var out bytes.Buffer
	res, err := Embed(context.Background(), EmbedConfig{
		ImagePath:  image,
		ConfigPath: config,
		DryRun:     true,
		Stdout:     &out,
	})
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.Contains(t, out.String(), `"logo": "data:image/svg+xml;base64,PHN2Zy8+"`)

	data, err := os.ReadFile(config)
	require.NoError(t, err)
	require.Equal(t, original, string(data))
}

func TestEmbedKeepsFileMode(t *testing.T) {
	dir := t.TempDir()
	image := writeFile(t, dir, "logo.svg", "<svg/>")
	config := writeFile(t, dir, "defaults.json", `{}`)
	require.NoError(t, os.Chmod(config, 0o600))

	_, err := Embed(context.Background(), EmbedConfig{ImagePath: image, ConfigPath: config})
	require.NoError(t, err)

	info, err := os.Stat(config)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

type fakeGetter struct {
	objects map[string][]byte
	calls   []string
}

func (f *fakeGetter) GetObject(_ context.Context, bucket, key string) ([]byte, error) {
	f.calls = append(f.calls, bucket+"/"+key)
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, gos3.ErrNotFound
	}
	return data, nil
}

func TestEmbedFromS3(t *testing.T) {
	dir := t.TempDir()
	config := writeFile(t, dir, "defaults.json", `{"a": 1}`)
	getter := &fakeGetter{objects: map[string][]byte{"branding/logo.svg": []byte("<svg/>")}}

	_, err := Embed(context.Background(), EmbedConfig{
		ImagePath:  "s3://branding/logo.svg",
		ConfigPath: config,
		S3:         getter,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"branding/logo.svg"}, getter.calls)
	require.Equal(t, "data:image/svg+xml;base64,PHN2Zy8+", logoOf(t, readConfig(t, config)))

	_, err = Embed(context.Background(), EmbedConfig{
		ImagePath:  "s3://branding/missing.svg",
		ConfigPath: config,
		S3:         getter,
	})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = Embed(context.Background(), EmbedConfig{
		ImagePath:  "s3://branding/logo.svg",
		ConfigPath: config,
	})
	require.Error(t, err)
}

type recordingPublisher struct {
	subjects []string
	events   []Event
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, subj string, v any) error {
	p.subjects = append(p.subjects, subj)
	if ev, ok := v.(Event); ok {
		p.events = append(p.events, ev)
	}
	return p.err
}

func TestEmbedPublishesOnlyChanges(t *testing.T) {
	dir := t.TempDir()
	image := writeFile(t, dir, "logo.svg", "<svg/>")
	config := writeFile(t, dir, "defaults.json", `{}`)
	pub := &recordingPublisher{}

	cfg := EmbedConfig{ImagePath: image, ConfigPath: config, Publisher: pub}
	first, err := Embed(context.Background(), cfg)
	require.NoError(t, err)
	_, err = Embed(context.Background(), cfg)
	require.NoError(t, err)

	require.Equal(t, []string{DefaultSubject}, pub.subjects)
	require.Len(t, pub.events, 1)
	require.Equal(t, first.RunID, pub.events[0].RunID)
	require.Equal(t, 6, pub.events[0].Size)
	require.True(t, pub.events[0].Changed)
}

func TestEmbedPublishFailureIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	image := writeFile(t, dir, "logo.svg", "<svg/>")
	config := writeFile(t, dir, "defaults.json", `{}`)
	pub := &recordingPublisher{err: errors.New("nats: no responders")}

	_, err := Embed(context.Background(), EmbedConfig{
		ImagePath:  image,
		ConfigPath: config,
		Publisher:  pub,
		Subject:    "kernels.defaults",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"kernels.defaults"}, pub.subjects)
}

func TestEmbedRecordsMetrics(t *testing.T) {
	dir := t.TempDir()
	image := writeFile(t, dir, "logo.svg", "<svg/>")
	config := writeFile(t, dir, "defaults.json", `{}`)
	rec := metrics.New()

	_, err := Embed(context.Background(), EmbedConfig{ImagePath: image, ConfigPath: config, Metrics: rec})
	require.NoError(t, err)
	_, err = Embed(context.Background(), EmbedConfig{ImagePath: filepath.Join(dir, "nope.svg"), ConfigPath: config, Metrics: rec})
	require.Error(t, err)

	families, err := rec.Gatherer().Gather()
	require.NoError(t, err)
	counts := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "logoembed_runs_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, label := range m.GetLabel() {
				counts[label.GetValue()] = m.GetCounter().GetValue()
			}
		}
	}
	require.Equal(t, map[string]float64{metrics.ResultOK: 1, metrics.ResultError: 1}, counts)
}

func TestEmbedWritesBackup(t *testing.T) {
	dir := t.TempDir()
	image := writeFile(t, dir, "logo.svg", "<svg/>")
	original := `{"a": 1}`
	config := writeFile(t, dir, "defaults.json", original)
	backups := filepath.Join(dir, "backups")
	now := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

	res, err := Embed(context.Background(), EmbedConfig{
		ImagePath:  image,
		ConfigPath: config,
		BackupDir:  backups,
		Now:        func() time.Time { return now },
	})
	require.NoError(t, err)
	require.Equal(t, backups, filepath.Dir(res.BackupPath))
	require.Regexp(t, `^defaults\.json\.[0-9a-f]{8}\.20261019T093000Z\.zst$`, filepath.Base(res.BackupPath))

	restored := filepath.Join(dir, "restored.json")
	require.NoError(t, RestoreBackup(res.BackupPath, restored))
	data, err := os.ReadFile(restored)
	require.NoError(t, err)
	require.Equal(t, original, string(data))
}

func TestRestoreBackupMissing(t *testing.T) {
	err := RestoreBackup(filepath.Join(t.TempDir(), "none.zst"), filepath.Join(t.TempDir(), "out.json"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestVerify(t *testing.T) {
	dir := t.TempDir()
	image := writeFile(t, dir, "logo.svg", svgLogo)
	config := writeFile(t, dir, "defaults.json", `{"a": 1}`)
	cfg := VerifyConfig{ImagePath: image, ConfigPath: config}

	err := Verify(context.Background(), cfg)
	require.ErrorIs(t, err, ErrStale, "missing logo field")

	_, err = Embed(context.Background(), EmbedConfig{ImagePath: image, ConfigPath: config})
	require.NoError(t, err)
	require.NoError(t, Verify(context.Background(), cfg))

	writeFile(t, dir, "logo.svg", "<svg/>")
	require.ErrorIs(t, Verify(context.Background(), cfg), ErrStale)

	writeFile(t, dir, "defaults.json", `{"logo": 7}`)
	require.ErrorIs(t, Verify(context.Background(), cfg), ErrStale)

	writeFile(t, dir, "defaults.json", `{"logo": "data:image/png;base64,PHN2Zy8+"}`)
	require.ErrorIs(t, Verify(context.Background(), cfg), ErrStale)

	err = Verify(context.Background(), VerifyConfig{ImagePath: filepath.Join(dir, "gone.svg"), ConfigPath: config})
	require.ErrorIs(t, err, ErrNotFound)
}
