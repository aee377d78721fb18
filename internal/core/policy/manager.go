package policy

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Manager verwaltet die Aufnahme-Policies aller Kameras, geschlüsselt nach
// Kameraname, mit einem prozessweiten Default als Rückfallebene.
// Eigene Instanz statt globalem Zustand, damit Tests isoliert bleiben.
type Manager struct {
	mu        sync.RWMutex
	defaults  RecordingModeConfig
	perCamera map[string]RecordingModeConfig
}

// NewManager erstellt einen Policy-Manager mit dem angegebenen Default
func NewManager(defaults RecordingModeConfig) *Manager {
	return &Manager{
		defaults:  defaults,
		perCamera: make(map[string]RecordingModeConfig),
	}
}

// Get liefert die Policy der Kamera oder den Default
func (m *Manager) Get(cameraName string) RecordingModeConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if cfg, ok := m.perCamera[cameraName]; ok {
		return cfg
	}
	return m.defaults
}

// Set setzt eine kameraspezifische Policy
func (m *Manager) Set(cameraName string, cfg RecordingModeConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.perCamera[cameraName] = cfg
	log.Infof("Recording mode for camera '%s' set to %s", cameraName, cfg.Mode)
}

// Reset entfernt die kameraspezifische Policy, die Kamera fällt auf den Default zurück
func (m *Manager) Reset(cameraName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.perCamera, cameraName)
	log.Infof("Recording mode for camera '%s' reset to default (%s)", cameraName, m.defaults.Mode)
}

// SetDefault ersetzt die prozessweite Default-Policy
func (m *Manager) SetDefault(cfg RecordingModeConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaults = cfg
}

// Snapshot liefert eine Kopie aller kameraspezifischen Policies
func (m *Manager) Snapshot() map[string]RecordingModeConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]RecordingModeConfig, len(m.perCamera))
	for name, cfg := range m.perCamera {
		out[name] = cfg
	}
	return out
}
