package policy

import (
	"sync"
	"time"

	"camguard-go/internal/core/models"

	log "github.com/sirupsen/logrus"
)

// EventSink nimmt abgeschlossene Bewegungsereignisse entgegen (Index, MQTT, ...)
type EventSink func(event *models.MotionEvent)

// GateConfig konfiguriert die Bewegungs-Aggregation einer Kamera
type GateConfig struct {
	Cooldown        time.Duration // Frame-Ebene: so lange überbrückt das Gate Lücken ohne Bewegung
	MinEventSeconds float64       // Ereignis-Ebene: kürzere Ereignisse werden als Rauschen verworfen
	MinEventFrames  int           // Ereignis-Ebene: Ereignisse mit weniger Frames werden verworfen
}

// MotionGate hält pro Kamera den Bewegungszustand über kurze Lücken hinweg zusammen,
// damit Flackern ein reales Ereignis nicht in viele kleine zerlegt. Erst wenn die
// Lücke seit dem letzten Bewegungs-Frame den Cooldown überschreitet, endet das
// Ereignis; persistiert wird es nur oberhalb der Mindestgrößen. Die beiden
// Schwellen (Cooldown und Mindestgröße) sind bewusst getrennte Ebenen.
type MotionGate struct {
	mu         sync.Mutex
	cameraID   string
	cameraName string
	cfg        GateConfig
	sink       EventSink

	active       bool
	eventStart   time.Time
	lastMotion   time.Time
	frameCount   int
	intensitySum float64
	eventType    string
}

// NewMotionGate erstellt ein Bewegungs-Gate für eine Kamera
func NewMotionGate(cameraID, cameraName string, cfg GateConfig, sink EventSink) *MotionGate {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 3 * time.Second
	}
	return &MotionGate{
		cameraID:   cameraID,
		cameraName: cameraName,
		cfg:        cfg,
		sink:       sink,
		eventType:  models.EventTypeMotion,
	}
}

// Update verarbeitet ein Bewegungssignal für den aktuellen Zeitpunkt.
// eventType ist leer für gewöhnliche Bewegung; KI-Detektoren liefern
// z.B. "ai_person" über dieselbe Senke.
func (g *MotionGate) Update(hasMotion bool, intensity float64, eventType string, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if hasMotion {
		if !g.active {
			g.active = true
			g.eventStart = now
			g.frameCount = 0
			g.intensitySum = 0
			g.eventType = models.EventTypeMotion
		}
		g.frameCount++
		g.intensitySum += intensity
		g.lastMotion = now
		if eventType != "" && eventType != models.EventTypeMotion {
			g.eventType = eventType
		}
		return
	}

	// Keine Bewegung: Ereignis bleibt offen, bis die Lücke den Cooldown überschreitet
	if g.active && now.Sub(g.lastMotion) > g.cfg.Cooldown {
		g.closeEvent()
	}
}

// Active meldet, ob gerade ein Bewegungsereignis offen ist
func (g *MotionGate) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// LastMotion gibt den Zeitpunkt des letzten Bewegungs-Frames zurück (Zero-Wert: nie)
func (g *MotionGate) LastMotion() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastMotion
}

// Flush schließt ein offenes Ereignis sofort ab (Shutdown, Kamera entfernt)
func (g *MotionGate) Flush() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active {
		g.closeEvent()
	}
}

// closeEvent beendet das offene Ereignis und persistiert es, wenn es groß genug ist.
// Muss mit gehaltenem Lock aufgerufen werden.
func (g *MotionGate) closeEvent() {
	duration := g.lastMotion.Sub(g.eventStart).Seconds()
	frames := g.frameCount

	g.active = false

	if duration < g.cfg.MinEventSeconds || frames < g.cfg.MinEventFrames {
		log.Debugf("Camera %s: discarding motion event (%.2fs, %d frames) as noise",
			g.cameraName, duration, frames)
		return
	}

	intensity := 0.0
	if frames > 0 {
		intensity = g.intensitySum / float64(frames)
	}

	event := &models.MotionEvent{
		CameraID:        g.cameraID,
		CameraName:      g.cameraName,
		EventTime:       g.eventStart,
		DurationSeconds: duration,
		FrameCount:      frames,
		Intensity:       intensity,
		EventType:       g.eventType,
	}

	log.Infof("Camera %s: motion event closed (%.2fs, %d frames, type %s)",
		g.cameraName, duration, frames, event.EventType)

	if g.sink != nil {
		g.sink(event)
	}
}
