package retention

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"camguard-go/config"
	"camguard-go/internal/core/models"
	"camguard-go/internal/db/repository"
	"camguard-go/internal/utils"

	"github.com/shirou/gopsutil/v3/disk"
	log "github.com/sirupsen/logrus"
)

// Dateiendungen, die als Aufnahmedateien gelten
var recordingExtensions = map[string]bool{
	".mp4": true,
	".avi": true,
	".mkv": true,
}

// DiskUsage liefert die Belegung des Dateisystems unter path.
// Austauschbar, damit Tests ohne echte Plattenbelegung arbeiten können.
type DiskUsage func(path string) (total, used, free uint64, err error)

// gopsutilDiskUsage ist die Standard-Implementierung über gopsutil
func gopsutilDiskUsage(path string) (uint64, uint64, uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, 0, 0, err
	}
	return usage.Total, usage.Used, usage.Free, nil
}

// Service ist der Speicher-Sweeper: löscht die ältesten Aufnahmen, bis die
// Belegung wieder unter dem Ziel liegt. Weiche und harte Durchgänge teilen sich
// denselben Mutex, und "Datei schon weg" zählt als Erfolg, damit konkurrierende
// Löschungen harmlos bleiben.
type Service struct {
	mu        sync.Mutex
	cfg       config.StorageConfig
	index     repository.Index
	diskUsage DiskUsage

	lastSweep      time.Time
	lastFreedBytes int64
}

// NewService erstellt einen Retention-Service
func NewService(cfg config.StorageConfig, index repository.Index) *Service {
	return &Service{
		cfg:       cfg,
		index:     index,
		diskUsage: gopsutilDiskUsage,
	}
}

// SetDiskUsage ersetzt die Belegungsabfrage (für Tests)
func (s *Service) SetDiskUsage(fn DiskUsage) {
	s.diskUsage = fn
}

// Start startet den Sweeper im Hintergrund
func (s *Service) Start(ctx context.Context) {
	log.Info("Retention service started")

	interval := time.Duration(s.cfg.SweepIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	// Sofort einen ersten Durchgang machen
	if err := s.RunSweep(); err != nil {
		log.Errorf("Initial retention sweep failed: %v", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.RunSweep(); err != nil {
				log.Errorf("Retention sweep failed: %v", err)
			}
		case <-ctx.Done():
			log.Info("Retention service stopped")
			return
		}
	}
}

// RunSweep prüft die Auslöser und räumt bei Bedarf auf. Ein weicher Durchgang
// respektiert das Retention-Fenster; bleibt die harte Untergrenze an freiem
// Speicher danach verletzt, folgt ein harter Durchgang ohne Fenster.
func (s *Service) RunSweep() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	total, used, free, err := s.diskUsage(s.cfg.Root)
	if err != nil {
		return err
	}
	if total == 0 {
		return nil
	}

	usedPct := float64(used) / float64(total) * 100
	reserveViolated := free < s.cfg.ReservedMinFreeBytes

	if usedPct < s.cfg.UsageThresholdPct && !reserveViolated {
		return nil
	}

	// Zielmenge: Belegung auf das Ziel drücken UND die Reserve wieder herstellen
	var target int64
	if targetUsed := uint64(float64(total) * s.cfg.UsageTargetPct / 100); used > targetUsed {
		target = int64(used - targetUsed)
	}
	if free < s.cfg.ReservedMinFreeBytes {
		if deficit := int64(s.cfg.ReservedMinFreeBytes - free); deficit > target {
			target = deficit
		}
	}
	if target <= 0 {
		return nil
	}

	log.Warnf("Storage pressure: %.1f%% used, %s free; evicting ~%d bytes",
		usedPct, utils.FormatBytes(free), target)

	freed := s.evict(target, false, usedPct)

	// Reserve immer noch verletzt: harter Durchgang, Retention-Fenster zählt nicht mehr
	if free+uint64(freed) < s.cfg.ReservedMinFreeBytes {
		deficit := int64(s.cfg.ReservedMinFreeBytes-free) - freed
		log.Warnf("Reserved free space still violated after soft pass, evicting %d bytes ignoring retention", deficit)
		freed += s.evict(deficit, true, usedPct)
	}

	if freed == 0 {
		// Nichts löschbar: kritisch loggen, aber weiterlaufen (best effort)
		log.Error("Storage eviction could not free any file; recording continues best-effort")
	}

	s.lastSweep = time.Now()
	s.lastFreedBytes = freed
	return nil
}

// candidate ist eine Aufnahmedatei als Löschkandidat
type candidate struct {
	path    string
	size    int64
	modTime time.Time
}

// evict löscht Kandidaten, älteste zuerst, bis die Zielmenge erreicht ist oder
// der nächste Kandidat jünger als der Retention-Cutoff ist. Weil die Liste nach
// Änderungszeit sortiert ist, bedeutet ein zu junger Kandidat: keine weiteren
// löschbaren Dateien, dort endet der Durchlauf.
func (s *Service) evict(targetBytes int64, ignoreRetention bool, usedPct float64) int64 {
	candidates, err := s.listRecordings()
	if err != nil {
		log.Errorf("Failed to enumerate recording files: %v", err)
		return 0
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime.Before(candidates[j].modTime)
	})

	cutoff := time.Now().AddDate(0, 0, -s.cfg.RetentionDays)
	reason := "storage threshold exceeded"
	if ignoreRetention {
		reason = "reserved free space violated"
	}

	var freed int64
	for _, c := range candidates {
		if freed >= targetBytes {
			break
		}
		if !ignoreRetention && c.modTime.After(cutoff) {
			// Alle weiteren Kandidaten sind noch jünger: fertig
			break
		}

		if err := s.deleteRecording(c, reason, usedPct); err != nil {
			// Einzelfehler tolerieren, mit dem nächsten Kandidaten weitermachen
			log.Warnf("Failed to evict %s: %v", c.path, err)
			continue
		}
		freed += c.size
	}

	if freed > 0 {
		log.Infof("Eviction freed %s (%s)", utils.FormatBytes(uint64(freed)), reason)
	}
	return freed
}

// listRecordings sammelt alle Aufnahmedateien unterhalb der Storage-Wurzel
func (s *Service) listRecordings() ([]candidate, error) {
	var out []candidate
	err := filepath.Walk(s.cfg.Root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.Debugf("Skipping %s during eviction walk: %v", path, err)
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if !recordingExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		out = append(out, candidate{path: path, size: info.Size(), modTime: info.ModTime()})
		return nil
	})
	return out, err
}

// deleteRecording löscht Datei, Segment-Zeile und enthaltene Bewegungsereignisse
// im Gleichschritt und protokolliert die Löschung
func (s *Service) deleteRecording(c candidate, reason string, usedPct float64) error {
	// Metadaten aus dem Index holen, bevor die Zeile verschwindet
	segment, err := s.index.GetSegmentByPath(c.path)
	if err != nil {
		log.Warnf("Index lookup for %s failed: %v", c.path, err)
	}

	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return err
	}

	entry := &models.DeletionLog{
		FilePath:      c.path,
		FileSizeBytes: c.size,
		Reason:        reason,
	}
	if details, err := json.Marshal(map[string]interface{}{
		"used_pct_at_deletion": usedPct,
		"mod_time":             c.modTime,
	}); err == nil {
		entry.Details = details
	}

	if segment != nil {
		entry.CameraID = segment.CameraID
		entry.RecordingStart = &segment.StartTime
		entry.RecordingEnd = segment.EndTime
	}

	if err := s.index.AddDeletionLog(entry); err != nil {
		log.Warnf("Failed to write deletion log for %s: %v", c.path, err)
	}

	if err := s.index.DeleteSegmentByPath(c.path); err != nil {
		log.Warnf("Failed to delete segment row for %s: %v", c.path, err)
	}

	// Bewegungsereignisse im Zeitraum des gelöschten Segments mitnehmen
	if segment != nil && segment.EndTime != nil {
		if _, err := s.index.DeleteMotionEventsInRange(segment.CameraID, segment.StartTime, *segment.EndTime); err != nil {
			log.Warnf("Failed to delete motion events for %s: %v", c.path, err)
		}
	}

	log.Infof("Evicted %s (%s, %s)", c.path, utils.FormatBytes(uint64(c.size)), reason)
	return nil
}

// LastSweep gibt Zeitpunkt und freigegebene Bytes des letzten Durchgangs zurück
func (s *Service) LastSweep() (time.Time, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSweep, s.lastFreedBytes
}

