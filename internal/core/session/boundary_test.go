package session

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextBoundary(t *testing.T) {
	// 14:32:10 mit 5-Minuten-Segmenten: nächste Grenze ist 14:35:00
	now := time.Date(2026, 8, 29, 14, 32, 10, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 29, 14, 35, 0, 0, time.UTC), NextBoundary(now, 5))

	// Exakt auf der Grenze: die nächste Grenze, nicht dieselbe
	onBoundary := time.Date(2026, 8, 29, 14, 35, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 29, 14, 40, 0, 0, time.UTC), NextBoundary(onBoundary, 5))

	// Tagesüberlauf: das Raster startet um Mitternacht neu
	late := time.Date(2026, 8, 29, 23, 58, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), NextBoundary(late, 5))

	// Ungültige Segmentlänge fällt auf 5 Minuten zurück
	assert.Equal(t, time.Date(2026, 8, 29, 14, 35, 0, 0, time.UTC), NextBoundary(now, 0))
}

func TestNextBoundaryOddSegmentLength(t *testing.T) {
	// 7-Minuten-Raster: :00, :07, :14, ... relativ zu Mitternacht
	now := time.Date(2026, 8, 29, 0, 10, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 29, 0, 14, 0, 0, time.UTC), NextBoundary(now, 7))
}

func TestSegmentFileName(t *testing.T) {
	boundary := time.Date(2026, 8, 29, 14, 35, 0, 0, time.UTC)
	assert.Equal(t, "20260829_143500.mp4", SegmentFileName(boundary))
}

func TestSegmentPath(t *testing.T) {
	boundary := time.Date(2026, 8, 29, 14, 35, 0, 0, time.UTC)
	want := filepath.Join("/data/recordings", "cam-1", "20260829_143500.mp4")
	assert.Equal(t, want, SegmentPath("/data/recordings", "cam-1", boundary))
}

func TestPickResolutionPreset(t *testing.T) {
	// Quelle passt bereits unter die Obergrenze: keine Skalierung
	assert.Equal(t, 0, PickResolutionPreset(720, 1080))
	assert.Equal(t, 0, PickResolutionPreset(1080, 1080))

	// Quelle zu groß: größtes Preset unterhalb von Obergrenze und Quelle
	assert.Equal(t, 1080, PickResolutionPreset(2160, 1080))
	assert.Equal(t, 720, PickResolutionPreset(1080, 720))
	assert.Equal(t, 480, PickResolutionPreset(720, 480))

	// Keine Obergrenze konfiguriert: keine Skalierung
	assert.Equal(t, 0, PickResolutionPreset(2160, 0))

	// Unbekannte Quellauflösung: keine Skalierung
	assert.Equal(t, 0, PickResolutionPreset(0, 1080))
}

func TestScaledWidth(t *testing.T) {
	assert.Equal(t, 1280, ScaledWidth(1920, 1080, 720))
	assert.Equal(t, 640, ScaledWidth(1280, 720, 360))

	// Ungerade Breiten werden auf gerade abgerundet
	assert.Equal(t, 852, ScaledWidth(1280, 721, 480))

	// Ungültige Eingaben lassen die Breite unverändert
	assert.Equal(t, 1920, ScaledWidth(1920, 0, 720))
	assert.Equal(t, 1920, ScaledWidth(1920, 1080, 0))
}

func TestReconnectDelay(t *testing.T) {
	// 5s, verdoppelt, gedeckelt bei 300s
	assert.Equal(t, 5*time.Second, reconnectDelay(1))
	assert.Equal(t, 10*time.Second, reconnectDelay(2))
	assert.Equal(t, 20*time.Second, reconnectDelay(3))
	assert.Equal(t, 40*time.Second, reconnectDelay(4))
	assert.Equal(t, 80*time.Second, reconnectDelay(5))
	assert.Equal(t, 160*time.Second, reconnectDelay(6))
	assert.Equal(t, 300*time.Second, reconnectDelay(7))
	assert.Equal(t, 300*time.Second, reconnectDelay(100))

	// Nach erfolgreichem Connect beginnt die Zählung wieder bei der Basis
	assert.Equal(t, 5*time.Second, reconnectDelay(0))
}

func TestThrottledFailureLog(t *testing.T) {
	// Die ersten drei Fehlversuche werden immer geloggt
	assert.True(t, throttledFailureLog(1))
	assert.True(t, throttledFailureLog(2))
	assert.True(t, throttledFailureLog(3))

	// Danach nur noch jeder zehnte
	assert.False(t, throttledFailureLog(4))
	assert.False(t, throttledFailureLog(9))
	assert.True(t, throttledFailureLog(10))
	assert.False(t, throttledFailureLog(11))
	assert.True(t, throttledFailureLog(20))
}
