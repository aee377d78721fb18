package transcode

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"camguard-go/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveTargetPath(t *testing.T) {
	got := DeriveTargetPath("/data/recordings", "/data/recordings/cam-1/20260829_143500.mp4")
	want := filepath.Join("/data/recordings", ".transcoded", "20260829_143500_h264.mp4")
	assert.Equal(t, want, got)
}

func TestSelectEncoderFallsBackToSoftware(t *testing.T) {
	// Kein Encoder besteht die Probe: Software-Fallback
	failAll := func(ctx context.Context, name string, args ...string) error {
		return errors.New("encoder not available")
	}
	assert.Equal(t, "libx264", selectEncoder("ffmpeg", "", failAll))
}

func TestSelectEncoderPrefersUserChoice(t *testing.T) {
	var probed []string
	runner := func(ctx context.Context, name string, args ...string) error {
		for i, a := range args {
			if a == "-c:v" {
				probed = append(probed, args[i+1])
			}
		}
		return nil
	}

	assert.Equal(t, "h264_vaapi", selectEncoder("ffmpeg", "h264_vaapi", runner))
	assert.Equal(t, []string{"h264_vaapi"}, probed)
}

func TestSelectEncoderHardwareOrder(t *testing.T) {
	// Nur qsv besteht die Probe
	runner := func(ctx context.Context, name string, args ...string) error {
		for i, a := range args {
			if a == "-c:v" && args[i+1] == "h264_qsv" {
				return nil
			}
		}
		return errors.New("not usable")
	}
	assert.Equal(t, "h264_qsv", selectEncoder("ffmpeg", "", runner))
}

// fakeRunner zeichnet Encoder-Aufrufe auf und legt die Zieldatei an
type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	fail  bool
}

func (f *fakeRunner) run(ctx context.Context, name string, args ...string) error {
	f.mu.Lock()
	f.calls = append(f.calls, args)
	f.mu.Unlock()

	if f.fail {
		return errors.New("encode failed")
	}
	// ffmpeg schreibt die Ausgabe: letztes Argument ist der Zielpfad
	return os.WriteFile(args[len(args)-1], []byte("h264"), 0644)
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestPipeline(t *testing.T, root string, replace bool, runner CommandRunner) *Pipeline {
	t.Helper()

	p := NewPipeline(config.TranscodeConfig{
		Enabled:          true,
		Workers:          1,
		TimeoutMinutes:   1,
		ReplaceOriginals: replace,
		FFmpegPath:       "ffmpeg",
	}, root)
	p.SetRunner(runner)
	p.encoder = "libx264" // Probe im Test überspringen
	return p
}

func TestProcessJobSkipsMissingSource(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{}
	p := newTestPipeline(t, dir, false, runner.run)

	require.NoError(t, p.processJob(context.Background(), filepath.Join(dir, "gone.mp4")))
	assert.Equal(t, 0, runner.callCount())
}

func TestProcessJobSkipsExistingTarget(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "cam-1", "a.mp4")
	require.NoError(t, os.MkdirAll(filepath.Dir(source), 0755))
	require.NoError(t, os.WriteFile(source, []byte("mp4v"), 0644))

	target := DeriveTargetPath(dir, source)
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0755))
	require.NoError(t, os.WriteFile(target, []byte("h264"), 0644))

	runner := &fakeRunner{}
	p := newTestPipeline(t, dir, false, runner.run)

	require.NoError(t, p.processJob(context.Background(), source))
	assert.Equal(t, 0, runner.callCount())
}

func TestProcessJobKeepsBothWithoutReplace(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "cam-1", "a.mp4")
	require.NoError(t, os.MkdirAll(filepath.Dir(source), 0755))
	require.NoError(t, os.WriteFile(source, []byte("mp4v"), 0644))

	runner := &fakeRunner{}
	p := newTestPipeline(t, dir, false, runner.run)

	require.NoError(t, p.processJob(context.Background(), source))

	_, err := os.Stat(source)
	assert.NoError(t, err)
	_, err = os.Stat(DeriveTargetPath(dir, source))
	assert.NoError(t, err)
}

func TestProcessJobReplaceKeepsCatalogPathValid(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "cam-1", "a.mp4")
	require.NoError(t, os.MkdirAll(filepath.Dir(source), 0755))
	require.NoError(t, os.WriteFile(source, []byte("mp4v"), 0644))

	runner := &fakeRunner{}
	p := newTestPipeline(t, dir, true, runner.run)

	require.NoError(t, p.processJob(context.Background(), source))

	// Die Ausgabe ist an den Quellpfad rotiert: genau eine Datei, unter dem
	// Pfad, den der Index kennt
	data, err := os.ReadFile(source)
	require.NoError(t, err)
	assert.Equal(t, []byte("h264"), data)

	_, err = os.Stat(DeriveTargetPath(dir, source))
	assert.True(t, os.IsNotExist(err))
}

func TestProcessJobFailureKeepsSource(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "cam-1", "a.mp4")
	require.NoError(t, os.MkdirAll(filepath.Dir(source), 0755))
	require.NoError(t, os.WriteFile(source, []byte("mp4v"), 0644))

	runner := &fakeRunner{fail: true}
	p := newTestPipeline(t, dir, true, runner.run)

	require.Error(t, p.processJob(context.Background(), source))

	// Quelle bleibt unangetastet, keine halbe Ausgabe
	data, err := os.ReadFile(source)
	require.NoError(t, err)
	assert.Equal(t, []byte("mp4v"), data)

	_, err = os.Stat(DeriveTargetPath(dir, source))
	assert.True(t, os.IsNotExist(err))

	status := p.Status()
	assert.Equal(t, int64(0), status.Processed)
}

func TestPipelineWorkersDrainQueue(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "cam-1", "a.mp4")
	require.NoError(t, os.MkdirAll(filepath.Dir(source), 0755))
	require.NoError(t, os.WriteFile(source, []byte("mp4v"), 0644))

	runner := &fakeRunner{}
	p := NewPipeline(config.TranscodeConfig{
		Enabled:        true,
		Workers:        2,
		TimeoutMinutes: 1,
		FFmpegPath:     "ffmpeg",
	}, dir)
	p.SetRunner(func(ctx context.Context, name string, args ...string) error {
		// Probe-Aufrufe bestehen lassen, echte Encodes an den fakeRunner geben
		for _, a := range args {
			if a == "lavfi" {
				return errors.New("no hardware in tests")
			}
		}
		return runner.run(ctx, name, args...)
	})

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	p.Enqueue(source)

	// Auf den Encode warten, dann herunterfahren
	require.Eventually(t, func() bool {
		return p.Status().Processed == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	p.Wait()

	_, err := os.Stat(DeriveTargetPath(dir, source))
	assert.NoError(t, err)
	assert.Equal(t, "libx264", p.Status().ActiveEncoder)
}

func TestEnqueueIgnoredWhenDisabled(t *testing.T) {
	p := NewPipeline(config.TranscodeConfig{Enabled: false}, t.TempDir())
	p.Enqueue("/rec/a.mp4")
	assert.Equal(t, 0, p.Status().QueueDepth)
}
