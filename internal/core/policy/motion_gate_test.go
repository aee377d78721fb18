package policy

import (
	"testing"
	"time"

	"camguard-go/internal/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gateConfig() GateConfig {
	return GateConfig{
		Cooldown:        3 * time.Second,
		MinEventSeconds: 1.0,
		MinEventFrames:  10,
	}
}

// feedMotion schickt frames Bewegungs-Updates im Abstand von step an das Gate
func feedMotion(g *MotionGate, start time.Time, frames int, step time.Duration) time.Time {
	now := start
	for i := 0; i < frames; i++ {
		g.Update(true, 10.0, "", now)
		now = now.Add(step)
	}
	return now
}

func TestMotionGateDiscardsShortEvents(t *testing.T) {
	var events []*models.MotionEvent
	g := NewMotionGate("cam-1", "front_door", gateConfig(), func(e *models.MotionEvent) {
		events = append(events, e)
	})

	start := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	// 0,5s und 5 Frames: unter beiden Schwellen, wird als Rauschen verworfen
	now := feedMotion(g, start, 5, 125*time.Millisecond)
	g.Update(false, 0, "", now.Add(4*time.Second))

	assert.False(t, g.Active())
	assert.Empty(t, events)
}

func TestMotionGateDiscardsTooFewFrames(t *testing.T) {
	var events []*models.MotionEvent
	g := NewMotionGate("cam-1", "front_door", gateConfig(), func(e *models.MotionEvent) {
		events = append(events, e)
	})

	start := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	// Lang genug (2s), aber nur 5 Frames
	now := feedMotion(g, start, 5, 500*time.Millisecond)
	g.Update(false, 0, "", now.Add(4*time.Second))

	assert.Empty(t, events)
}

func TestMotionGatePersistsRealEvents(t *testing.T) {
	var events []*models.MotionEvent
	g := NewMotionGate("cam-1", "front_door", gateConfig(), func(e *models.MotionEvent) {
		events = append(events, e)
	})

	start := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	// 12 Frames über 1,2s: über beiden Schwellen
	now := feedMotion(g, start, 12, 109*time.Millisecond)
	assert.True(t, g.Active())

	g.Update(false, 0, "", now.Add(4*time.Second))

	require.Len(t, events, 1)
	assert.Equal(t, "cam-1", events[0].CameraID)
	assert.Equal(t, "front_door", events[0].CameraName)
	assert.Equal(t, 12, events[0].FrameCount)
	assert.Equal(t, models.EventTypeMotion, events[0].EventType)
	assert.Equal(t, start, events[0].EventTime)
	assert.InDelta(t, 1.199, events[0].DurationSeconds, 0.01)
	assert.InDelta(t, 10.0, events[0].Intensity, 0.001)
}

func TestMotionGateCooldownBridgesGaps(t *testing.T) {
	var events []*models.MotionEvent
	g := NewMotionGate("cam-1", "front_door", gateConfig(), func(e *models.MotionEvent) {
		events = append(events, e)
	})

	start := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	// Flackernde Bewegung: Lücken unterhalb des Cooldowns halten das Ereignis offen
	now := feedMotion(g, start, 8, 200*time.Millisecond)
	g.Update(false, 0, "", now.Add(2*time.Second)) // Lücke < 3s
	assert.True(t, g.Active())

	now = feedMotion(g, now.Add(2500*time.Millisecond), 8, 200*time.Millisecond)
	g.Update(false, 0, "", now.Add(4*time.Second)) // Lücke > 3s: Ereignis endet

	// Ein einziges Ereignis, nicht zwei
	require.Len(t, events, 1)
	assert.Equal(t, 16, events[0].FrameCount)
}

func TestMotionGateUpgradesEventType(t *testing.T) {
	var events []*models.MotionEvent
	g := NewMotionGate("cam-1", "front_door", gateConfig(), func(e *models.MotionEvent) {
		events = append(events, e)
	})

	start := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	now := start
	for i := 0; i < 12; i++ {
		kind := ""
		if i == 6 {
			kind = models.EventTypeAIPerson
		}
		g.Update(true, 5.0, kind, now)
		now = now.Add(200 * time.Millisecond)
	}
	g.Update(false, 0, "", now.Add(4*time.Second))

	require.Len(t, events, 1)
	assert.Equal(t, models.EventTypeAIPerson, events[0].EventType)
}

func TestMotionGateFlush(t *testing.T) {
	var events []*models.MotionEvent
	g := NewMotionGate("cam-1", "front_door", gateConfig(), func(e *models.MotionEvent) {
		events = append(events, e)
	})

	start := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	feedMotion(g, start, 15, 200*time.Millisecond)
	require.True(t, g.Active())

	// Shutdown: offenes Ereignis wird sofort abgeschlossen
	g.Flush()

	assert.False(t, g.Active())
	require.Len(t, events, 1)
	assert.Equal(t, 15, events[0].FrameCount)
}

func TestMotionGateLastMotion(t *testing.T) {
	g := NewMotionGate("cam-1", "front_door", gateConfig(), nil)

	assert.True(t, g.LastMotion().IsZero())

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	g.Update(true, 1.0, "", now)
	assert.Equal(t, now, g.LastMotion())
}
