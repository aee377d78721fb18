package maintenance

import (
	"context"
	"time"

	"camguard-go/config"
	"camguard-go/internal/db/repository"

	log "github.com/sirupsen/logrus"
)

// Service hält den Segment-Index konsistent: abrupte Stops und Abstürze können
// Zeilen mit end_time NULL oder Zeilen ohne Datei hinterlassen; dieser Dienst
// gleicht das periodisch wieder an (eventual consistency statt strikter
// Transaktion beim Segment-Abschluss).
type Service struct {
	cfg   config.MaintenanceConfig
	index repository.Index
}

// NewService erstellt einen Wartungsdienst
func NewService(cfg config.MaintenanceConfig, index repository.Index) *Service {
	return &Service{cfg: cfg, index: index}
}

// Start startet die Wartungsschleifen im Hintergrund
func (s *Service) Start(ctx context.Context) {
	log.Info("Index maintenance service started")

	repairInterval := time.Duration(s.cfg.RepairIntervalMinutes) * time.Minute
	if repairInterval <= 0 {
		repairInterval = time.Hour
	}
	optimizeInterval := time.Duration(s.cfg.OptimizeIntervalMinutes) * time.Minute
	if optimizeInterval <= 0 {
		optimizeInterval = 12 * time.Hour
	}

	// Beim Start einmal sofort reparieren (Reste des letzten Prozesslaufs)
	s.RunRepair()

	repairTicker := time.NewTicker(repairInterval)
	defer repairTicker.Stop()
	optimizeTicker := time.NewTicker(optimizeInterval)
	defer optimizeTicker.Stop()

	for {
		select {
		case <-repairTicker.C:
			s.RunRepair()
		case <-optimizeTicker.C:
			log.Info("Running index optimization")
			if err := s.index.Optimize(); err != nil {
				log.Errorf("Index optimization failed: %v", err)
			}
		case <-ctx.Done():
			log.Info("Index maintenance service stopped")
			return
		}
	}
}

// RunRepair führt Reparatur und Bereinigung einmal aus
func (s *Service) RunRepair() {
	repairAfter := time.Duration(s.cfg.RepairAfterHours) * time.Hour
	if repairAfter <= 0 {
		repairAfter = 24 * time.Hour
	}

	if _, _, err := s.index.RepairMissingEndTimes(repairAfter); err != nil {
		log.Errorf("Repairing open segments failed: %v", err)
	}
	if _, err := s.index.CleanupDeletedFiles(); err != nil {
		log.Errorf("Cleaning up rows for deleted files failed: %v", err)
	}
}
