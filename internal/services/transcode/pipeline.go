package transcode

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"camguard-go/config"

	log "github.com/sirupsen/logrus"
)

// Job beschreibt einen Transcode-Auftrag. Transient: nie persistiert, aus
// jeder vorhandenen Segmentdatei neu ableitbar.
type Job struct {
	SourcePath string
	TargetPath string
	Encoder    string
}

// Status ist der nach außen sichtbare Zustand der Pipeline
type Status struct {
	ActiveEncoder string `json:"active_encoder"`
	QueueDepth    int    `json:"queue_depth"`
	Workers       int    `json:"workers"`
	Processed     int64  `json:"processed"`
	Failed        int64  `json:"failed"`
}

// Pipeline hebt fertige Segmente im Hintergrund auf browserkompatibles H.264.
// Fester Worker-Pool über einer unbegrenzten FIFO-Queue; der Speicherpreis
// eines Eintrags ist ein Pfad-String, keine Frame-Daten.
type Pipeline struct {
	cfg         config.TranscodeConfig
	storageRoot string
	runner      CommandRunner
	encoder     string

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []string
	stopped bool

	workers   int
	wg        sync.WaitGroup
	processed atomic.Int64
	failed    atomic.Int64
}

// NewPipeline erstellt die Transcode-Pipeline
func NewPipeline(cfg config.TranscodeConfig, storageRoot string) *Pipeline {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	p := &Pipeline{
		cfg:         cfg,
		storageRoot: storageRoot,
		runner:      execRunner,
		workers:     workers,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// SetRunner ersetzt den Encoder-Aufruf (für Tests)
func (p *Pipeline) SetRunner(runner CommandRunner) {
	p.runner = runner
}

// Start probt den Encoder und startet die Worker. Der gewählte Encoder ist
// für die Lebensdauer der Pipeline fix.
func (p *Pipeline) Start(ctx context.Context) {
	if !p.cfg.Enabled {
		log.Info("Transcode pipeline disabled in configuration")
		return
	}

	p.encoder = selectEncoder(p.cfg.FFmpegPath, p.cfg.PreferredEncoder, p.runner)
	log.Infof("Transcode pipeline started with %d workers, encoder %s", p.workers, p.encoder)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	// Bei Kontext-Ende die Worker aus dem Cond-Wait holen
	go func() {
		<-ctx.Done()
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		p.cond.Broadcast()
	}()
}

// Wait blockiert, bis alle Worker beendet sind
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Enqueue reiht eine fertige Segmentdatei zur Transkodierung ein. Blockiert nie.
func (p *Pipeline) Enqueue(path string) {
	if !p.cfg.Enabled || path == "" {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.queue = append(p.queue, path)
	p.cond.Signal()
}

// Status gibt den aktuellen Pipeline-Zustand zurück
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	depth := len(p.queue)
	p.mu.Unlock()

	return Status{
		ActiveEncoder: p.encoder,
		QueueDepth:    depth,
		Workers:       p.workers,
		Processed:     p.processed.Load(),
		Failed:        p.failed.Load(),
	}
}

// worker zieht Jobs aus der Queue, bis der Kontext endet
func (p *Pipeline) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log.Debugf("Transcode worker %d started", id)

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.stopped {
			p.cond.Wait()
		}
		if p.stopped && len(p.queue) == 0 {
			p.mu.Unlock()
			log.Debugf("Transcode worker %d shutting down", id)
			return
		}
		source := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		if err := p.processJob(ctx, source); err != nil {
			p.failed.Add(1)
			log.Warnf("Transcode of %s failed: %v", source, err)
		}
	}
}

// DeriveTargetPath leitet den Pfad der transkodierten Ausgabe ab:
// storage_root/.transcoded/<stem>_h264.mp4
func DeriveTargetPath(storageRoot, sourcePath string) string {
	stem := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	return filepath.Join(storageRoot, ".transcoded", stem+"_h264.mp4")
}

// processJob transkodiert genau eine Segmentdatei. Jobs sind unabhängig und
// idempotent: existierende Ausgaben werden übersprungen, halbe Ausgaben nach
// Fehlern entfernt, die Quelle bleibt bei Fehlern unangetastet.
func (p *Pipeline) processJob(ctx context.Context, source string) error {
	if _, err := os.Stat(source); err != nil {
		// Quelle inzwischen weg (z.B. Eviction): nichts zu tun
		log.Debugf("Transcode source %s gone, skipping", source)
		return nil
	}

	job := Job{
		SourcePath: source,
		TargetPath: DeriveTargetPath(p.storageRoot, source),
		Encoder:    p.encoder,
	}

	if _, err := os.Stat(job.TargetPath); err == nil {
		log.Debugf("Transcoded output for %s already exists, skipping", source)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(job.TargetPath), 0755); err != nil {
		return err
	}

	timeout := time.Duration(p.cfg.TimeoutMinutes) * time.Minute
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", job.SourcePath,
		"-c:v", job.Encoder,
		"-c:a", "copy",
		"-movflags", "+faststart",
		job.TargetPath,
	}
	if err := p.runner(jobCtx, p.cfg.FFmpegPath, args...); err != nil {
		// Halbe Ausgabe nach Fehler oder Timeout entfernen, Quelle bleibt intakt
		if rmErr := os.Remove(job.TargetPath); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Warnf("Failed to remove partial transcode output %s: %v", job.TargetPath, rmErr)
		}
		return err
	}

	if p.cfg.ReplaceOriginals {
		// Ausgabe an den Quellpfad rotieren, damit der Katalogpfad gültig bleibt
		if err := os.Remove(job.SourcePath); err != nil && !os.IsNotExist(err) {
			return err
		}
		if err := os.Rename(job.TargetPath, job.SourcePath); err != nil {
			return err
		}
	}

	p.processed.Add(1)
	log.Infof("Transcoded %s with %s in %v", source, job.Encoder, time.Since(start).Round(time.Millisecond))
	return nil
}
