package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseMode(t *testing.T) {
	assert.Equal(t, ModeContinuous, ParseMode("continuous"))
	assert.Equal(t, ModeContinuous, ParseMode(""))
	assert.Equal(t, ModeMotionOnly, ParseMode("motion_only"))
	assert.Equal(t, ModeScheduled, ParseMode("scheduled"))
	assert.Equal(t, ModeMotionScheduled, ParseMode("motion_scheduled"))

	// Unbekannte Modi fallen auf continuous zurück
	assert.Equal(t, ModeContinuous, ParseMode("turbo"))
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "continuous", ModeContinuous.String())
	assert.Equal(t, "motion_only", ModeMotionOnly.String())
	assert.Equal(t, "scheduled", ModeScheduled.String())
	assert.Equal(t, "motion_scheduled", ModeMotionScheduled.String())
}

func TestShouldRecordContinuous(t *testing.T) {
	cfg := RecordingModeConfig{Mode: ModeContinuous}
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	assert.True(t, ShouldRecord(cfg, false, time.Time{}, now))
	assert.True(t, ShouldRecord(cfg, true, now, now))
}

func TestShouldRecordMotionOnly(t *testing.T) {
	cfg := RecordingModeConfig{Mode: ModeMotionOnly}
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	assert.True(t, ShouldRecord(cfg, true, now, now))
	assert.False(t, ShouldRecord(cfg, false, time.Time{}, now))
}

func TestShouldRecordPostMotionLinger(t *testing.T) {
	cfg := RecordingModeConfig{Mode: ModeMotionOnly, PostMotionSeconds: 30}
	lastMotion := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	// Innerhalb des Nachlaufs wird weiter aufgezeichnet
	assert.True(t, ShouldRecord(cfg, false, lastMotion, lastMotion.Add(10*time.Second)))
	assert.True(t, ShouldRecord(cfg, false, lastMotion, lastMotion.Add(30*time.Second)))

	// Danach nicht mehr
	assert.False(t, ShouldRecord(cfg, false, lastMotion, lastMotion.Add(31*time.Second)))

	// Ohne jemals gesehene Bewegung greift der Nachlauf nicht
	assert.False(t, ShouldRecord(cfg, false, time.Time{}, lastMotion))
}

func TestShouldRecordScheduled(t *testing.T) {
	cfg := RecordingModeConfig{
		Mode: ModeScheduled,
		Schedule: []TimeRange{
			{StartHour: 8, EndHour: 17},
		},
	}

	inside := time.Date(2026, 8, 29, 12, 30, 0, 0, time.UTC)
	outside := time.Date(2026, 8, 29, 18, 0, 0, 0, time.UTC)

	assert.True(t, ShouldRecord(cfg, false, time.Time{}, inside))
	assert.False(t, ShouldRecord(cfg, false, time.Time{}, outside))
}

func TestShouldRecordMotionScheduled(t *testing.T) {
	cfg := RecordingModeConfig{
		Mode: ModeMotionScheduled,
		Schedule: []TimeRange{
			{StartHour: 8, EndHour: 17},
		},
	}

	inside := time.Date(2026, 8, 29, 12, 30, 0, 0, time.UTC)
	outside := time.Date(2026, 8, 29, 18, 0, 0, 0, time.UTC)

	assert.True(t, ShouldRecord(cfg, true, inside, inside))
	assert.False(t, ShouldRecord(cfg, false, time.Time{}, inside))
	assert.False(t, ShouldRecord(cfg, true, outside, outside))
}

func TestTimeRangeMidnightWrap(t *testing.T) {
	// 22:00 bis 06:00, läuft über Mitternacht
	r := TimeRange{StartHour: 22, EndHour: 6}

	assert.True(t, r.Contains(time.Date(2026, 8, 29, 23, 30, 0, 0, time.UTC)))
	assert.True(t, r.Contains(time.Date(2026, 8, 30, 2, 0, 0, 0, time.UTC)))
	assert.False(t, r.Contains(time.Date(2026, 8, 29, 7, 0, 0, 0, time.UTC)))
	assert.False(t, r.Contains(time.Date(2026, 8, 29, 21, 59, 0, 0, time.UTC)))
}

func TestTimeRangeMidnightWrapWeekday(t *testing.T) {
	// Freitagnacht 22:00–06:00: Samstag 02:00 gehört noch zum Freitag-Fenster
	r := TimeRange{StartHour: 22, EndHour: 6, Days: []time.Weekday{time.Friday}}

	friday := time.Date(2026, 9, 4, 23, 0, 0, 0, time.UTC) // ein Freitag
	saturdayEarly := time.Date(2026, 9, 5, 2, 0, 0, 0, time.UTC)
	saturdayLate := time.Date(2026, 9, 5, 23, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Friday, friday.Weekday())
	assert.True(t, r.Contains(friday))
	assert.True(t, r.Contains(saturdayEarly))
	assert.False(t, r.Contains(saturdayLate))
}

func TestManagerPerCameraOverride(t *testing.T) {
	m := NewManager(RecordingModeConfig{Mode: ModeContinuous})

	// Ohne Override gilt der Default
	assert.Equal(t, ModeContinuous, m.Get("front_door").Mode)

	m.Set("front_door", RecordingModeConfig{Mode: ModeMotionOnly})
	assert.Equal(t, ModeMotionOnly, m.Get("front_door").Mode)
	assert.Equal(t, ModeContinuous, m.Get("garage").Mode)

	m.Reset("front_door")
	assert.Equal(t, ModeContinuous, m.Get("front_door").Mode)
}
