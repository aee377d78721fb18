package policy

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// Mode ist der geschlossene Satz an Aufnahmemodi
type Mode int

const (
	ModeContinuous Mode = iota // immer aufnehmen
	ModeMotionOnly             // nur bei Bewegung
	ModeScheduled              // nur innerhalb des Zeitplans
	ModeMotionScheduled        // Zeitplan UND Bewegung
)

// String gibt den Konfigurations-String des Modus zurück
func (m Mode) String() string {
	switch m {
	case ModeMotionOnly:
		return "motion_only"
	case ModeScheduled:
		return "scheduled"
	case ModeMotionScheduled:
		return "motion_scheduled"
	default:
		return "continuous"
	}
}

// ParseMode wandelt einen Konfigurations-String in einen Modus um.
// Unbekannte Strings fallen mit Warnung auf continuous zurück, niemals stiller No-Op.
func ParseMode(s string) Mode {
	switch s {
	case "continuous", "":
		return ModeContinuous
	case "motion_only":
		return ModeMotionOnly
	case "scheduled":
		return ModeScheduled
	case "motion_scheduled":
		return ModeMotionScheduled
	default:
		log.Warnf("Unknown recording mode '%s', falling back to continuous", s)
		return ModeContinuous
	}
}

// TimeRange beschreibt ein tägliches Zeitfenster. Liegt End vor Start,
// läuft das Fenster über Mitternacht hinaus.
type TimeRange struct {
	StartHour   int
	StartMinute int
	EndHour     int
	EndMinute   int
	Days        []time.Weekday // leer = alle Tage
}

// matchesDay prüft, ob der Wochentag im Fenster konfiguriert ist
func (t TimeRange) matchesDay(day time.Weekday) bool {
	if len(t.Days) == 0 {
		return true
	}
	for _, d := range t.Days {
		if d == day {
			return true
		}
	}
	return false
}

// Contains prüft, ob der Zeitpunkt im Fenster liegt
func (t TimeRange) Contains(now time.Time) bool {
	nowMin := now.Hour()*60 + now.Minute()
	startMin := t.StartHour*60 + t.StartMinute
	endMin := t.EndHour*60 + t.EndMinute

	if startMin <= endMin {
		return t.matchesDay(now.Weekday()) && nowMin >= startMin && nowMin < endMin
	}

	// Fenster läuft über Mitternacht: vor Mitternacht zählt der heutige Tag,
	// nach Mitternacht der Tag, an dem das Fenster begonnen hat
	if nowMin >= startMin {
		return t.matchesDay(now.Weekday())
	}
	if nowMin < endMin {
		return t.matchesDay(now.AddDate(0, 0, -1).Weekday())
	}
	return false
}

// RecordingModeConfig ist die Aufnahme-Policy einer Kamera
type RecordingModeConfig struct {
	Mode                 Mode
	Schedule             []TimeRange
	PreMotionSeconds     int // akzeptiert, aber ohne Wirkung: Pre-Roll ist nicht implementiert
	PostMotionSeconds    int
	MotionTimeoutSeconds int
}

// scheduleActive prüft den Zeitplan; ohne konfigurierte Fenster gilt er als aktiv
func (c RecordingModeConfig) scheduleActive(now time.Time) bool {
	if len(c.Schedule) == 0 {
		return true
	}
	for _, r := range c.Schedule {
		if r.Contains(now) {
			return true
		}
	}
	return false
}

// ShouldRecord entscheidet, ob der aktuelle Frame aufgezeichnet werden soll.
// lastMotion ist der Zeitpunkt der letzten Bewegung (Zero-Wert: nie).
// Nach der Modus-Auswertung erzwingt kürzlich beendete Bewegung innerhalb von
// PostMotionSeconds weiterhin true (Nachlauf).
func ShouldRecord(cfg RecordingModeConfig, hasMotion bool, lastMotion time.Time, now time.Time) bool {
	var record bool
	switch cfg.Mode {
	case ModeContinuous:
		record = true
	case ModeMotionOnly:
		record = hasMotion
	case ModeScheduled:
		record = cfg.scheduleActive(now)
	case ModeMotionScheduled:
		record = cfg.scheduleActive(now) && hasMotion
	}

	if !record && !hasMotion && !lastMotion.IsZero() && cfg.PostMotionSeconds > 0 {
		if now.Sub(lastMotion) <= time.Duration(cfg.PostMotionSeconds)*time.Second {
			record = true
		}
	}
	return record
}
