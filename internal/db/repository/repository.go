package repository

import (
	"errors"
	"os"
	"time"

	"camguard-go/internal/core/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Grobe Heuristik für die End-Zeit-Schätzung offener Segmente: wie viele Bytes
// eine Minute Aufnahme typischerweise belegt (mp4v, ~720p, moderate FPS).
const estimateBytesPerMinute = 10 * 1024 * 1024

// Index definiert die Schnittstelle des Segment-Index
type Index interface {
	// Segment-Methoden
	AddSegment(segment *models.RecordingSegment) error
	UpdateSegmentEnd(cameraID, filePath string, end time.Time, sizeBytes int64) error
	DeleteSegmentByPath(filePath string) error
	GetSegmentsInRange(cameraID string, start, end time.Time) ([]models.RecordingSegment, error)
	GetAllSegments(cameraID string) ([]models.RecordingSegment, error)
	GetAllSegmentsInRange(start, end time.Time) ([]models.RecordingSegment, error)
	GetSegmentByPath(filePath string) (*models.RecordingSegment, error)
	GetRecordingDays(cameraID string) ([]string, error)

	// Ereignis-Methoden
	AddMotionEvent(event *models.MotionEvent) error
	GetMotionEventsInRange(cameraID string, start, end time.Time) ([]models.MotionEvent, error)
	DeleteMotionEventsInRange(cameraID string, start, end time.Time) (int64, error)

	// Lösch-Protokoll
	AddDeletionLog(entry *models.DeletionLog) error
	GetDeletionLogs(limit int) ([]models.DeletionLog, error)

	// Statistik und Wartung
	GetStorageStats() (models.StorageStats, error)
	RepairMissingEndTimes(olderThan time.Duration) (repaired, removed int, err error)
	CleanupDeletedFiles() (int, error)
	Optimize() error
}

// SQLiteIndex implementiert den Segment-Index auf SQLite
type SQLiteIndex struct {
	db *gorm.DB
}

// NewSQLiteIndex erstellt eine neue Index-Instanz
func NewSQLiteIndex(db *gorm.DB) *SQLiteIndex {
	return &SQLiteIndex{db: db}
}

// Segment-Methoden

// AddSegment legt ein Segment an. Existiert bereits eine Zeile mit gleichem
// (camera_id, file_path), wird sie ersetzt statt dupliziert.
func (r *SQLiteIndex) AddSegment(segment *models.RecordingSegment) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "camera_id"}, {Name: "file_path"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"camera_name", "start_time", "end_time",
			"duration_seconds", "file_size_bytes", "fps", "width", "height",
		}),
	}).Create(segment).Error
}

// UpdateSegmentEnd finalisiert ein Segment mit gemessener End-Zeit und Dateigröße
func (r *SQLiteIndex) UpdateSegmentEnd(cameraID, filePath string, end time.Time, sizeBytes int64) error {
	var segment models.RecordingSegment
	result := r.db.Where("camera_id = ? AND file_path = ?", cameraID, filePath).First(&segment)
	if result.Error != nil {
		return result.Error
	}

	segment.EndTime = &end
	segment.DurationSeconds = end.Sub(segment.StartTime).Seconds()
	segment.FileSizeBytes = sizeBytes
	return r.db.Save(&segment).Error
}

// DeleteSegmentByPath löscht die Segment-Zeile zur angegebenen Datei
func (r *SQLiteIndex) DeleteSegmentByPath(filePath string) error {
	return r.db.Where("file_path = ?", filePath).Delete(&models.RecordingSegment{}).Error
}

// GetSegmentByPath holt ein Segment anhand seines Dateipfads
func (r *SQLiteIndex) GetSegmentByPath(filePath string) (*models.RecordingSegment, error) {
	var segment models.RecordingSegment
	result := r.db.Where("file_path = ?", filePath).First(&segment)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &segment, nil
}

// GetSegmentsInRange holt alle Segmente einer Kamera, die das Abfragefenster überlappen.
// Offene Segmente (end_time NULL) zählen als überlappend, solange sie vor dem Fensterende beginnen.
func (r *SQLiteIndex) GetSegmentsInRange(cameraID string, start, end time.Time) ([]models.RecordingSegment, error) {
	var segments []models.RecordingSegment
	result := r.db.
		Where("camera_id = ? AND start_time < ? AND (end_time > ? OR end_time IS NULL)", cameraID, end, start).
		Order("start_time ASC").
		Find(&segments)
	if result.Error != nil {
		return nil, result.Error
	}
	return segments, nil
}

// GetAllSegments holt alle Segmente einer Kamera
func (r *SQLiteIndex) GetAllSegments(cameraID string) ([]models.RecordingSegment, error) {
	var segments []models.RecordingSegment
	result := r.db.Where("camera_id = ?", cameraID).Order("start_time ASC").Find(&segments)
	if result.Error != nil {
		return nil, result.Error
	}
	return segments, nil
}

// GetAllSegmentsInRange holt überlappende Segmente aller Kameras
func (r *SQLiteIndex) GetAllSegmentsInRange(start, end time.Time) ([]models.RecordingSegment, error) {
	var segments []models.RecordingSegment
	result := r.db.
		Where("start_time < ? AND (end_time > ? OR end_time IS NULL)", end, start).
		Order("start_time ASC").
		Find(&segments)
	if result.Error != nil {
		return nil, result.Error
	}
	return segments, nil
}

// GetRecordingDays liefert alle Kalendertage (YYYY-MM-DD, lokale Zeit), an denen
// für die Kamera Segmente existieren
func (r *SQLiteIndex) GetRecordingDays(cameraID string) ([]string, error) {
	var starts []time.Time
	result := r.db.Model(&models.RecordingSegment{}).
		Where("camera_id = ?", cameraID).
		Order("start_time ASC").
		Pluck("start_time", &starts)
	if result.Error != nil {
		return nil, result.Error
	}

	seen := make(map[string]bool)
	var days []string
	for _, s := range starts {
		day := s.Local().Format("2006-01-02")
		if !seen[day] {
			seen[day] = true
			days = append(days, day)
		}
	}
	return days, nil
}

// Ereignis-Methoden

// AddMotionEvent speichert ein abgeschlossenes Bewegungsereignis
func (r *SQLiteIndex) AddMotionEvent(event *models.MotionEvent) error {
	if event.EventType == "" {
		event.EventType = models.EventTypeMotion
	}
	return r.db.Create(event).Error
}

// GetMotionEventsInRange holt Bewegungsereignisse einer Kamera im Zeitfenster
func (r *SQLiteIndex) GetMotionEventsInRange(cameraID string, start, end time.Time) ([]models.MotionEvent, error) {
	var events []models.MotionEvent
	result := r.db.
		Where("camera_id = ? AND event_time >= ? AND event_time < ?", cameraID, start, end).
		Order("event_time ASC").
		Find(&events)
	if result.Error != nil {
		return nil, result.Error
	}
	return events, nil
}

// DeleteMotionEventsInRange löscht Ereignisse, deren Startzeit im Fenster liegt
// (verwendet von der Eviction, wenn das zugehörige Segment gelöscht wurde)
func (r *SQLiteIndex) DeleteMotionEventsInRange(cameraID string, start, end time.Time) (int64, error) {
	result := r.db.
		Where("camera_id = ? AND event_time >= ? AND event_time <= ?", cameraID, start, end).
		Delete(&models.MotionEvent{})
	return result.RowsAffected, result.Error
}

// Lösch-Protokoll

// AddDeletionLog protokolliert eine Löschung durch die Eviction
func (r *SQLiteIndex) AddDeletionLog(entry *models.DeletionLog) error {
	return r.db.Create(entry).Error
}

// GetDeletionLogs holt die jüngsten Protokolleinträge
func (r *SQLiteIndex) GetDeletionLogs(limit int) ([]models.DeletionLog, error) {
	var entries []models.DeletionLog
	result := r.db.Order("created_at DESC").Limit(limit).Find(&entries)
	if result.Error != nil {
		return nil, result.Error
	}
	return entries, nil
}

// Statistik-Methoden

// GetStorageStats gibt Speicherstatistiken pro Kamera und gesamt zurück
func (r *SQLiteIndex) GetStorageStats() (models.StorageStats, error) {
	var stats models.StorageStats

	if err := r.db.Model(&models.RecordingSegment{}).Count(&stats.TotalSegments).Error; err != nil {
		return stats, err
	}
	if err := r.db.Model(&models.MotionEvent{}).Count(&stats.TotalEvents).Error; err != nil {
		return stats, err
	}

	type row struct {
		CameraID     string
		CameraName   string
		SegmentCount int64
		TotalBytes   int64
		OldestStart  *time.Time
		NewestStart  *time.Time
	}
	var rows []row
	err := r.db.Model(&models.RecordingSegment{}).
		Select("camera_id, camera_name, COUNT(*) AS segment_count, " +
			"COALESCE(SUM(file_size_bytes), 0) AS total_bytes, " +
			"MIN(start_time) AS oldest_start, MAX(start_time) AS newest_start").
		Group("camera_id").
		Scan(&rows).Error
	if err != nil {
		return stats, err
	}

	for _, c := range rows {
		stats.TotalBytes += c.TotalBytes
		stats.Cameras = append(stats.Cameras, models.CameraStorageStats{
			CameraID:     c.CameraID,
			CameraName:   c.CameraName,
			SegmentCount: c.SegmentCount,
			TotalBytes:   c.TotalBytes,
			OldestStart:  c.OldestStart,
			NewestStart:  c.NewestStart,
		})
	}
	return stats, nil
}

// Wartungs-Methoden

// RepairMissingEndTimes finalisiert verwaiste offene Segmente. Abrupte Stops und
// Prozessabstürze können Zeilen mit end_time NULL hinterlassen; existiert die
// Datei noch, wird die End-Zeit aus der Dateigröße geschätzt, sonst fliegt die Zeile raus.
func (r *SQLiteIndex) RepairMissingEndTimes(olderThan time.Duration) (int, int, error) {
	cutoff := time.Now().Add(-olderThan)

	var open []models.RecordingSegment
	if err := r.db.
		Where("end_time IS NULL AND start_time < ?", cutoff).
		Find(&open).Error; err != nil {
		return 0, 0, err
	}

	var repaired, removed int
	for _, segment := range open {
		info, statErr := os.Stat(segment.FilePath)
		if statErr != nil {
			// Datei weg: Zeile ist nicht mehr zu retten
			if err := r.db.Delete(&models.RecordingSegment{}, segment.ID).Error; err != nil {
				log.Errorf("Failed to remove stale segment row %d: %v", segment.ID, err)
				continue
			}
			removed++
			continue
		}

		estimatedMinutes := float64(info.Size()) / float64(estimateBytesPerMinute)
		if estimatedMinutes <= 0 {
			estimatedMinutes = 0.1
		}
		end := segment.StartTime.Add(time.Duration(estimatedMinutes * float64(time.Minute)))
		segment.EndTime = &end
		segment.DurationSeconds = end.Sub(segment.StartTime).Seconds()
		segment.FileSizeBytes = info.Size()

		if err := r.db.Save(&segment).Error; err != nil {
			log.Errorf("Failed to repair segment row %d: %v", segment.ID, err)
			continue
		}
		repaired++
	}

	if repaired > 0 || removed > 0 {
		log.Infof("Index repair: finalized %d segments, removed %d stale rows", repaired, removed)
	}
	return repaired, removed, nil
}

// CleanupDeletedFiles entfernt Zeilen, deren Dateien nicht mehr existieren
func (r *SQLiteIndex) CleanupDeletedFiles() (int, error) {
	var segments []models.RecordingSegment
	if err := r.db.Find(&segments).Error; err != nil {
		return 0, err
	}

	var removed int
	for _, segment := range segments {
		if _, err := os.Stat(segment.FilePath); os.IsNotExist(err) {
			if err := r.db.Delete(&models.RecordingSegment{}, segment.ID).Error; err != nil {
				log.Errorf("Failed to remove segment row %d for missing file %s: %v",
					segment.ID, segment.FilePath, err)
				continue
			}
			removed++
		}
	}

	if removed > 0 {
		log.Infof("Index cleanup: removed %d rows for missing files", removed)
	}
	return removed, nil
}

// Optimize verdichtet die Datenbank und aktualisiert die Query-Statistiken
func (r *SQLiteIndex) Optimize() error {
	if err := r.db.Exec("ANALYZE").Error; err != nil {
		return err
	}
	return r.db.Exec("VACUUM").Error
}
