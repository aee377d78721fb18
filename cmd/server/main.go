package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"camguard-go/config"
	"camguard-go/internal/core/policy"
	"camguard-go/internal/core/session"
	"camguard-go/internal/db"
	"camguard-go/internal/db/repository"
	"camguard-go/internal/integrations/mqtt"
	"camguard-go/internal/logger"
	"camguard-go/internal/services/maintenance"
	"camguard-go/internal/services/retention"
	"camguard-go/internal/services/transcode"
	"camguard-go/internal/util/timezone"
	"camguard-go/internal/utils"

	log "github.com/sirupsen/logrus"
)

const configPath = "/config/config.yaml"

func main() {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Log); err != nil {
		log.Errorf("Failed to initialize logger completely: %v", err)
	}

	// Zeitzone vor dem Start der Sessions setzen (Wanduhr-Raster der Segmente)
	timezone.Initialize(cfg.Server.Timezone)

	// Initialize database connection
	log.Info("Initializing database...")
	database, err := db.Initialize(cfg.DB)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	index := repository.NewSQLiteIndex(database)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize MQTT publisher if enabled
	var publisher *mqtt.Publisher
	if cfg.MQTT.Enabled {
		publisher = mqtt.NewPublisher(cfg.MQTT)
		if err := publisher.Start(); err != nil {
			log.Warnf("Failed to start MQTT publisher: %v. Continuing without MQTT.", err)
			publisher = nil
		} else {
			defer publisher.Stop()
		}
	} else {
		log.Info("MQTT is disabled in config.")
	}

	// Transcode-Pipeline starten (Encoder-Probe läuft beim Start)
	pipeline := transcode.NewPipeline(cfg.Transcode, cfg.Storage.Root)
	pipeline.Start(ctx)

	// Policy-Manager mit prozessweitem Default
	policies := policy.NewManager(policy.RecordingModeConfig{
		Mode:                 policy.ParseMode(cfg.Recording.DefaultMode),
		PreMotionSeconds:     cfg.Motion.PreSeconds,
		PostMotionSeconds:    cfg.Motion.PostSeconds,
		MotionTimeoutSeconds: cfg.Motion.TimeoutSeconds,
	})

	// Session-Registry aufbauen; MQTT als zusätzliche Ereignis-Senke
	sessions := session.NewManager(cfg.Recording, cfg.Motion, cfg.Storage.Root,
		policies, index, pipeline, publisher.PublishMotionEvent)

	for _, cam := range cfg.Cameras {
		if _, err := sessions.AddCamera(cam); err != nil {
			log.Errorf("Failed to register camera '%s': %v", cam.Name, err)
		}
	}

	// Index-Wartung und Speicher-Sweeper im Hintergrund
	maintenanceSvc := maintenance.NewService(cfg.Maintenance, index)
	go maintenanceSvc.Start(ctx)

	retentionSvc := retention.NewService(cfg.Storage, index)
	go retentionSvc.Start(ctx)

	// Kamera-Sessions starten
	sessions.StartAll()
	log.Infof("camguard started with %d cameras", len(cfg.Cameras))

	// Periodisch Gesundheits-Snapshots und System-Statistiken veröffentlichen
	if publisher != nil {
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					for _, h := range sessions.HealthSnapshots() {
						publisher.PublishHealth(h)
					}
					publisher.PublishSystemStats(utils.GetSystemStats(cfg.Storage.Root))
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// Auf Shutdown-Signal warten
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Infof("Received signal %v, shutting down", sig)

	cancel()
	sessions.StopAll()
	pipeline.Wait()

	log.Info("camguard stopped.")
}
