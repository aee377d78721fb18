package models

import (
	"time"

	"gorm.io/datatypes"
)

// Ereignistypen für MotionEvent
const (
	EventTypeMotion    = "motion"
	EventTypeAIPerson  = "ai_person"
	EventTypeAIVehicle = "ai_vehicle"
)

// RecordingSegment repräsentiert eine abgeschlossene oder laufende Segmentdatei einer Kamera.
// EndTime ist genau dann NULL, wenn das Segment gerade von seiner Session geschrieben wird.
type RecordingSegment struct {
	ID              uint       `gorm:"primaryKey"`
	CameraName      string     `gorm:"index"`                                          // denormalisiert für die Anzeige
	CameraID        string     `gorm:"index:idx_segments_camera_time;uniqueIndex:idx_segments_camera_file;not null"`
	FilePath        string     `gorm:"uniqueIndex:idx_segments_camera_file;not null"`  // absoluter Pfad der Segmentdatei
	StartTime       time.Time  `gorm:"index:idx_segments_camera_time"`
	EndTime         *time.Time // NULL solange die Session schreibt
	DurationSeconds float64
	FileSizeBytes   int64
	FPS             float64
	Width           int
	Height          int
	CreatedAt       time.Time
}

// MotionEvent repräsentiert ein abgeschlossenes, persistiertes Bewegungsereignis.
// Wird nur beim Ereignis-Abschluss angelegt, nie pro Frame.
type MotionEvent struct {
	ID              uint      `gorm:"primaryKey"`
	CameraName      string    `gorm:"index"`
	CameraID        string    `gorm:"index:idx_events_camera_time;not null"`
	EventTime       time.Time `gorm:"index:idx_events_camera_time"` // Beginn des Ereignisses
	DurationSeconds float64
	FrameCount      int
	Intensity       float64
	EventType       string `gorm:"default:motion"`
	CreatedAt       time.Time
}

// DeletionLog protokolliert jede Löschung durch die Eviction, inklusive Grund
type DeletionLog struct {
	ID             uint   `gorm:"primaryKey"`
	CameraID       string `gorm:"index"`
	FilePath       string
	FileSizeBytes  int64
	RecordingStart *time.Time
	RecordingEnd   *time.Time
	Reason         string
	Details        datatypes.JSON `gorm:"type:json;null"` // Rohdaten (z.B. Belegung zum Löschzeitpunkt)
	CreatedAt      time.Time
}

// CameraHealth ist der Gesundheits-Snapshot einer Kamera-Session
type CameraHealth struct {
	CameraID                 string    `json:"camera_id"`
	CameraName               string    `json:"camera_name"`
	Connected                bool      `json:"connected"`
	Recording                bool      `json:"recording"`
	StreamingOnly            bool      `json:"streaming_only"`
	Degraded                 bool      `json:"degraded"`
	ConsecutiveFailures      int       `json:"consecutive_failures"`
	TotalReconnects          int       `json:"total_reconnects"`
	LastFrameTime            time.Time `json:"last_frame_time"`
	LastConnectionAttempt    time.Time `json:"last_connection_attempt"`
	LastSuccessfulConnection time.Time `json:"last_successful_connection"`
	StreamFPS                float64   `json:"stream_fps"`
	StreamWidth              int       `json:"stream_width"`
	StreamHeight             int       `json:"stream_height"`
}

// CameraStorageStats enthält Speicherstatistiken für eine einzelne Kamera
type CameraStorageStats struct {
	CameraID     string     `json:"camera_id"`
	CameraName   string     `json:"camera_name"`
	SegmentCount int64      `json:"segment_count"`
	TotalBytes   int64      `json:"total_bytes"`
	OldestStart  *time.Time `json:"oldest_start,omitempty"`
	NewestStart  *time.Time `json:"newest_start,omitempty"`
}

// StorageStats fasst die Speicherbelegung über alle Kameras zusammen
type StorageStats struct {
	TotalSegments int64                `json:"total_segments"`
	TotalBytes    int64                `json:"total_bytes"`
	TotalEvents   int64                `json:"total_events"`
	Cameras       []CameraStorageStats `json:"cameras"`
}
