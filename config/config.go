package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config repräsentiert die Hauptkonfiguration der Anwendung
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	DB          DBConfig          `mapstructure:"db"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Recording   RecordingConfig   `mapstructure:"recording"`
	Motion      MotionConfig      `mapstructure:"motion"`
	Transcode   TranscodeConfig   `mapstructure:"transcode"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
	Cameras     []CameraConfig    `mapstructure:"cameras"`
}

// ServerConfig enthält prozessweite Einstellungen
type ServerConfig struct {
	DataDir  string `mapstructure:"data_dir"`
	Timezone string `mapstructure:"timezone"`
}

// LogConfig enthält Log-Einstellungen
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DBConfig enthält Datenbankeinstellungen (SQLite)
type DBConfig struct {
	File string `mapstructure:"file"`
}

// StorageConfig enthält Einstellungen für Aufnahme-Speicher und Eviction
type StorageConfig struct {
	Root                 string  `mapstructure:"root"`                    // Wurzelverzeichnis der Aufnahmen
	RetentionDays        int     `mapstructure:"retention_days"`          // Schutzfenster für routinemäßige Eviction
	UsageThresholdPct    float64 `mapstructure:"usage_threshold_pct"`     // Eviction startet ab dieser Belegung
	UsageTargetPct       float64 `mapstructure:"usage_target_pct"`        // Zielbelegung nach einer Eviction-Runde
	ReservedMinFreeBytes uint64  `mapstructure:"reserved_min_free_bytes"` // harte Untergrenze an freiem Speicher
	SweepIntervalMinutes int     `mapstructure:"sweep_interval_minutes"`
}

// RecordingConfig enthält prozessweite Aufnahme-Einstellungen
type RecordingConfig struct {
	SegmentMinutes   int     `mapstructure:"segment_minutes"`   // Länge eines Segments (Wanduhr-ausgerichtet)
	DefaultMode      string  `mapstructure:"default_mode"`      // continuous|motion_only|scheduled|motion_scheduled
	MaxResolution    int     `mapstructure:"max_resolution"`    // Standard-Auflösungsobergrenze (Höhe in Pixeln)
	FallbackFPS      float64 `mapstructure:"fallback_fps"`      // FPS, wenn der Stream keine meldet
	CorruptionFilter bool    `mapstructure:"corruption_filter"` // optionaler Heuristik-Filter für kaputte Frames
}

// MotionConfig enthält Einstellungen für Bewegungserkennung und -Aggregation
type MotionConfig struct {
	DetectionEnabled bool    `mapstructure:"detection_enabled"` // eingebaute Erkennung per Hintergrund-Subtraktion
	MinAreaPct       float64 `mapstructure:"min_area_pct"`      // Vordergrund-Anteil (%), ab dem ein Frame als Bewegung zählt
	DetectEveryN     int     `mapstructure:"detect_every_n"`    // nur jeder N-te Frame wird ausgewertet

	CooldownSeconds float64 `mapstructure:"cooldown_seconds"` // Frame-Ebene: Lücke, bis ein Ereignis endet
	PreSeconds      int     `mapstructure:"pre_seconds"`      // akzeptiert, aber nicht durchgesetzt (kein Pre-Roll)
	PostSeconds     int     `mapstructure:"post_seconds"`     // Nachlauf der Aufnahme nach letzter Bewegung
	TimeoutSeconds  int     `mapstructure:"timeout_seconds"`
	MinEventSeconds float64 `mapstructure:"min_event_seconds"` // Ereignis-Ebene: Mindestdauer für Persistierung
	MinEventFrames  int     `mapstructure:"min_event_frames"`  // Ereignis-Ebene: Mindest-Framezahl
}

// TranscodeConfig enthält Einstellungen für die Hintergrund-Transkodierung
type TranscodeConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	Workers          int    `mapstructure:"workers"`
	PreferredEncoder string `mapstructure:"preferred_encoder"` // z.B. "h264_nvenc", leer = automatische Wahl
	TimeoutMinutes   int    `mapstructure:"timeout_minutes"`
	ReplaceOriginals bool   `mapstructure:"replace_originals"`
	FFmpegPath       string `mapstructure:"ffmpeg_path"`
}

// MaintenanceConfig enthält Intervalle für die Index-Wartung
type MaintenanceConfig struct {
	RepairIntervalMinutes   int `mapstructure:"repair_interval_minutes"`
	OptimizeIntervalMinutes int `mapstructure:"optimize_interval_minutes"`
	RepairAfterHours        int `mapstructure:"repair_after_hours"` // Alter, ab dem offene Segmente repariert werden
}

// MQTTConfig enthält die Konfiguration für den MQTT-Publisher
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// CameraConfig beschreibt eine konfigurierte Kamera
type CameraConfig struct {
	ID            string `mapstructure:"id"`             // stabile ID; leer = wird beim Start generiert
	Name          string `mapstructure:"name"`           // Anzeigename, darf sich ändern
	URL           string `mapstructure:"url"`            // RTSP/HTTP-Quelle
	MaxResolution int    `mapstructure:"max_resolution"` // überschreibt recording.max_resolution
	Mode          string `mapstructure:"mode"`           // überschreibt recording.default_mode
	StreamingOnly bool   `mapstructure:"streaming_only"` // nur Live-Ansicht, keine Aufnahme
}

// Load lädt die Konfiguration aus Datei, Umgebungsvariablen und Standardwerten
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Standardwerte festlegen
	setDefaults(v)

	// Konfigurationsdatei laden, wenn vorhanden
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	// Umgebungsvariablen überlagern die Konfiguration
	v.AutomaticEnv()
	v.SetEnvPrefix("CAMGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Konfiguration in Struct umwandeln
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Sicherstellen, dass erforderliche Verzeichnisse existieren
	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return &cfg, nil
}

// setDefaults legt Standardwerte für die Konfiguration fest
func setDefaults(v *viper.Viper) {
	// Server-Standardwerte
	v.SetDefault("server.data_dir", "/data")
	v.SetDefault("server.timezone", "UTC")

	// Log-Standardwerte
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "/data/logs/camguard.log")

	// DB-Standardwerte
	v.SetDefault("db.file", "/data/camguard.db")

	// Storage-Standardwerte
	v.SetDefault("storage.root", "/data/recordings")
	v.SetDefault("storage.retention_days", 14)
	v.SetDefault("storage.usage_threshold_pct", 85.0)
	v.SetDefault("storage.usage_target_pct", 75.0)
	v.SetDefault("storage.reserved_min_free_bytes", 2*1024*1024*1024)
	v.SetDefault("storage.sweep_interval_minutes", 10)

	// Aufnahme-Standardwerte
	v.SetDefault("recording.segment_minutes", 5)
	v.SetDefault("recording.default_mode", "continuous")
	v.SetDefault("recording.max_resolution", 1080)
	v.SetDefault("recording.fallback_fps", 15.0)
	v.SetDefault("recording.corruption_filter", false)

	// Bewegungs-Standardwerte
	v.SetDefault("motion.detection_enabled", true)
	v.SetDefault("motion.min_area_pct", 1.0)
	v.SetDefault("motion.detect_every_n", 3)
	v.SetDefault("motion.cooldown_seconds", 3.0)
	v.SetDefault("motion.pre_seconds", 5)
	v.SetDefault("motion.post_seconds", 30)
	v.SetDefault("motion.timeout_seconds", 30)
	v.SetDefault("motion.min_event_seconds", 1.0)
	v.SetDefault("motion.min_event_frames", 10)

	// Transcode-Standardwerte
	v.SetDefault("transcode.enabled", true)
	v.SetDefault("transcode.workers", 2)
	v.SetDefault("transcode.preferred_encoder", "")
	v.SetDefault("transcode.timeout_minutes", 15)
	v.SetDefault("transcode.replace_originals", true)
	v.SetDefault("transcode.ffmpeg_path", "ffmpeg")

	// Wartungs-Standardwerte
	v.SetDefault("maintenance.repair_interval_minutes", 60)
	v.SetDefault("maintenance.optimize_interval_minutes", 720)
	v.SetDefault("maintenance.repair_after_hours", 24)

	// MQTT-Standardwerte
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "camguard")
	v.SetDefault("mqtt.topic_prefix", "camguard")
}

// ensureDirectories stellt sicher, dass alle erforderlichen Verzeichnisse existieren
func ensureDirectories(cfg *Config) error {
	// Daten-Basisverzeichnis
	if cfg.Server.DataDir != "" {
		if err := os.MkdirAll(cfg.Server.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	// Aufnahme-Wurzelverzeichnis
	if err := os.MkdirAll(cfg.Storage.Root, 0755); err != nil {
		return fmt.Errorf("failed to create storage root: %w", err)
	}

	// Log-Verzeichnis
	if cfg.Log.File != "" {
		logDir := filepath.Dir(cfg.Log.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	// Datenbank-Verzeichnis
	if cfg.DB.File != "" {
		dbDir := filepath.Dir(cfg.DB.File)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	return nil
}

// SegmentDurationMinutes gibt die konfigurierte Segmentlänge zurück (mindestens 1 Minute)
func (r RecordingConfig) SegmentDurationMinutes() int {
	if r.SegmentMinutes <= 0 {
		return 5
	}
	return r.SegmentMinutes
}
