package session

import (
	"fmt"
	"sync"
	"time"

	"camguard-go/config"
	"camguard-go/internal/core/detector"
	"camguard-go/internal/core/models"
	"camguard-go/internal/core/policy"
	"camguard-go/internal/db/repository"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Manager ist die Registry aller Kamera-Sessions. Eigene Instanz statt
// Prozess-Singleton, damit Tests isolierte Manager aufbauen können.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	recCfg      config.RecordingConfig
	motionCfg   config.MotionConfig
	storageRoot string
	policies    *policy.Manager
	index       repository.Index
	sink        SegmentSink
	extraEvents policy.EventSink // zusätzliche Senke für Ereignisse (z.B. MQTT), optional
}

// NewManager erstellt eine Session-Registry
func NewManager(recCfg config.RecordingConfig, motionCfg config.MotionConfig, storageRoot string,
	policies *policy.Manager, index repository.Index, sink SegmentSink, extraEvents policy.EventSink) *Manager {

	return &Manager{
		sessions:    make(map[string]*Session),
		recCfg:      recCfg,
		motionCfg:   motionCfg,
		storageRoot: storageRoot,
		policies:    policies,
		index:       index,
		sink:        sink,
		extraEvents: extraEvents,
	}
}

// AddCamera legt eine Session für die Kamera an. Eine fehlende ID wird einmalig
// generiert und bleibt danach stabil; der Anker für alle historischen Daten.
func (m *Manager) AddCamera(cam config.CameraConfig) (*Session, error) {
	if cam.ID == "" {
		cam.ID = uuid.NewString()
		log.Infof("Camera '%s' has no configured id, generated %s", cam.Name, cam.ID)
	}
	if cam.Name == "" {
		cam.Name = cam.ID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[cam.ID]; exists {
		return nil, fmt.Errorf("camera %s already registered", cam.ID)
	}

	gate := policy.NewMotionGate(cam.ID, cam.Name, policy.GateConfig{
		Cooldown:        time.Duration(m.motionCfg.CooldownSeconds * float64(time.Second)),
		MinEventSeconds: m.motionCfg.MinEventSeconds,
		MinEventFrames:  m.motionCfg.MinEventFrames,
	}, m.eventSink())

	// Kameraspezifischer Modus aus der Konfiguration
	if cam.Mode != "" {
		m.policies.Set(cam.Name, policy.RecordingModeConfig{
			Mode:                 policy.ParseMode(cam.Mode),
			PreMotionSeconds:     m.motionCfg.PreSeconds,
			PostMotionSeconds:    m.motionCfg.PostSeconds,
			MotionTimeoutSeconds: m.motionCfg.TimeoutSeconds,
		})
	}

	var det *detector.MotionDetector
	if m.motionCfg.DetectionEnabled {
		det = detector.NewMotionDetector(m.motionCfg)
	}

	sess := NewSession(cam, m.recCfg, m.storageRoot, m.policies, gate, det, m.index, m.sink)
	m.sessions[cam.ID] = sess
	return sess, nil
}

// RemoveCamera stoppt und entfernt die Session der Kamera
func (m *Manager) RemoveCamera(cameraID string) {
	m.mu.Lock()
	sess, ok := m.sessions[cameraID]
	delete(m.sessions, cameraID)
	m.mu.Unlock()

	if ok {
		sess.Stop()
		log.Infof("Camera %s removed", cameraID)
	}
}

// RenameCamera ändert den Anzeigenamen; Dateien und Historie bleiben unter der camera_id
func (m *Manager) RenameCamera(cameraID, newName string) bool {
	m.mu.RLock()
	sess, ok := m.sessions[cameraID]
	m.mu.RUnlock()

	if !ok {
		return false
	}
	sess.Rename(newName)
	return true
}

// Get liefert die Session einer Kamera oder nil
func (m *Manager) Get(cameraID string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[cameraID]
}

// StartAll startet alle Sessions
func (m *Manager) StartAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sess := range m.sessions {
		sess.Start(sess.streamingOnlyConfigured())
	}
}

// StopAll stoppt alle Sessions (blockierend, mit begrenzter Wartezeit pro Session)
func (m *Manager) StopAll() {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.mu.RUnlock()

	for _, sess := range sessions {
		sess.Stop()
	}
}

// HealthSnapshots liefert die Gesundheits-Snapshots aller Sessions
func (m *Manager) HealthSnapshots() []models.CameraHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.CameraHealth, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess.Health())
	}
	return out
}

// eventSink baut die Ereignis-Senke der Gates: persistieren, dann weiterreichen
func (m *Manager) eventSink() policy.EventSink {
	return func(event *models.MotionEvent) {
		if err := m.index.AddMotionEvent(event); err != nil {
			log.Errorf("Failed to persist motion event for camera %s: %v", event.CameraID, err)
		}
		if m.extraEvents != nil {
			m.extraEvents(event)
		}
	}
}
