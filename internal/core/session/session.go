package session

import (
	"image"
	"os"
	"sync"
	"time"

	"camguard-go/config"
	"camguard-go/internal/core/detector"
	"camguard-go/internal/core/models"
	"camguard-go/internal/core/policy"
	"camguard-go/internal/db/repository"

	log "github.com/sirupsen/logrus"
	gocv "gocv.io/x/gocv"
)

const (
	// Nach so vielen Lesefehlern in Folge wird die Verbindung zwangsweise neu aufgebaut
	maxConsecutiveReadFailures = 30
	// Begrenzte Wartezeit beim Stop, bevor der Stream-Handle zwangsfreigegeben wird
	stopWaitTimeout = 3 * time.Second
	// Codec für die Segmentaufnahme; die Hintergrund-Transkodierung hebt die
	// Dateien später auf browserkompatibles H.264
	segmentCodec = "mp4v"
)

// SegmentSink nimmt fertig geschriebene Segmentdateien entgegen (Transcode-Pipeline)
type SegmentSink interface {
	Enqueue(path string)
}

// Session ist die autonome Aufnahme-Einheit einer Kamera: Verbindungsaufbau mit
// Backoff, Frame-Pipeline, Segment-Rotation und Policy-Durchsetzung.
type Session struct {
	cameraID    string
	storageRoot string
	recCfg      config.RecordingConfig
	policies    *policy.Manager
	gate        *policy.MotionGate
	detector    *detector.MotionDetector // nil, wenn die eingebaute Erkennung deaktiviert ist
	index       repository.Index
	sink        SegmentSink
	cache       *FrameCache

	mu            sync.Mutex
	cameraName    string
	sourceURL     string
	maxResolution int
	cfgStreamOnly bool // streaming_only aus der Konfiguration
	running       bool
	streamingOnly bool
	stopCh        chan struct{}
	doneCh        chan struct{}
	health        models.CameraHealth

	// Stream-Ressourcen, geteilt zwischen Worker und Zwangsfreigabe beim Stop
	streamMu    sync.Mutex
	capture     *gocv.VideoCapture
	writer      *gocv.VideoWriter
	openSegment *models.RecordingSegment
	boundary    time.Time
}

// NewSession erstellt eine Session für eine konfigurierte Kamera
func NewSession(cam config.CameraConfig, recCfg config.RecordingConfig, storageRoot string,
	policies *policy.Manager, gate *policy.MotionGate, det *detector.MotionDetector,
	index repository.Index, sink SegmentSink) *Session {

	maxRes := cam.MaxResolution
	if maxRes <= 0 {
		maxRes = recCfg.MaxResolution
	}

	return &Session{
		cameraID:      cam.ID,
		cameraName:    cam.Name,
		sourceURL:     cam.URL,
		maxResolution: maxRes,
		cfgStreamOnly: cam.StreamingOnly,
		storageRoot:   storageRoot,
		recCfg:        recCfg,
		policies:      policies,
		gate:          gate,
		detector:      det,
		index:         index,
		sink:          sink,
		cache:         NewFrameCache(2),
	}
}

// CameraID gibt die unveränderliche Kamera-ID zurück
func (s *Session) CameraID() string {
	return s.cameraID
}

// streamingOnlyConfigured gibt das konfigurierte streaming_only-Flag zurück
func (s *Session) streamingOnlyConfigured() bool {
	return s.cfgStreamOnly
}

// Rename ändert nur den Anzeigenamen; die camera_id und damit alle
// historischen Daten bleiben unangetastet
func (s *Session) Rename(newName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log.Infof("Camera %s renamed from '%s' to '%s'", s.cameraID, s.cameraName, newName)
	s.cameraName = newName
}

// Start startet den Aufnahme-Worker. Gibt false zurück, wenn die Session bereits läuft.
func (s *Session) Start(streamingOnly bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return false
	}

	s.running = true
	s.streamingOnly = streamingOnly
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.health.Degraded = false
	s.health.ConsecutiveFailures = 0

	log.Infof("Starting camera session %s ('%s'), streaming_only=%v", s.cameraID, s.cameraName, streamingOnly)
	go s.run(s.stopCh, s.doneCh)
	return true
}

// Stop beendet den Worker kooperativ mit begrenzter Wartezeit und gibt danach
// notfalls den Stream-Handle zwangsweise frei. Idempotent und jederzeit sicher.
// Die Zwangsfreigabe kann ein Segment mit end_time NULL hinterlassen; das
// repariert später die Index-Wartung.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	doneCh := s.doneCh
	s.mu.Unlock()

	select {
	case <-doneCh:
		// Worker hat sauber beendet
	case <-time.After(stopWaitTimeout):
		log.Warnf("Camera %s: worker did not exit in time, force-releasing stream", s.cameraID)
		s.releaseStream()
		s.finalizeOpenSegment(time.Now())
	}

	// Offene Bewegungsereignisse abschließen, Detektor-Ressourcen freigeben
	if s.gate != nil {
		s.gate.Flush()
	}
	if s.detector != nil {
		s.detector.Close()
	}
	log.Infof("Camera session %s stopped", s.cameraID)
}

// GetLatestFrame gibt den neuesten Live-Frame (JPEG) zurück, nil wenn noch keiner
// ankam. Blockiert nie.
func (s *Session) GetLatestFrame() []byte {
	return s.cache.Latest()
}

// UpdateMotionState meldet das Bewegungssignal des aktiven Detektors
func (s *Session) UpdateMotionState(hasMotion bool, intensity float64) {
	if s.gate != nil {
		s.gate.Update(hasMotion, intensity, "", time.Now())
	}
}

// ReportDetection meldet ein KI-Detektionssignal (z.B. ai_person) über dieselbe Senke
func (s *Session) ReportDetection(eventType string, intensity float64) {
	if s.gate != nil {
		s.gate.Update(true, intensity, eventType, time.Now())
	}
}

// Health gibt einen Snapshot der Gesundheitsmetriken zurück
func (s *Session) Health() models.CameraHealth {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.health
	h.CameraID = s.cameraID
	h.CameraName = s.cameraName
	h.StreamingOnly = s.streamingOnly
	s.streamMu.Lock()
	h.Recording = s.openSegment != nil
	s.streamMu.Unlock()
	return h
}

// run ist die äußere Verbindungsschleife: verbinden, streamen, bei Fehlern mit
// exponentiellem Backoff (5s, verdoppelt, Deckel 300s) erneut versuchen.
func (s *Session) run(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	for {
		if stopped(stopCh) {
			return
		}

		s.mu.Lock()
		s.health.LastConnectionAttempt = time.Now()
		failures := s.health.ConsecutiveFailures
		url := s.sourceURL
		s.mu.Unlock()

		capture, err := gocv.OpenVideoCapture(url)
		if err != nil || !capture.IsOpened() {
			if capture != nil {
				capture.Close()
			}
			failures++
			s.mu.Lock()
			s.health.ConsecutiveFailures = failures
			s.health.Connected = false
			s.mu.Unlock()

			if throttledFailureLog(failures) {
				log.Warnf("Camera %s: connection attempt %d failed (retrying in %s): %v",
					s.cameraID, failures, reconnectDelay(failures), err)
			}
			if !sleepInterruptible(reconnectDelay(failures), stopCh) {
				return
			}
			continue
		}

		// Verbindung steht: Backoff zurücksetzen
		s.mu.Lock()
		if s.health.ConsecutiveFailures > 0 {
			s.health.TotalReconnects++
		}
		s.health.ConsecutiveFailures = 0
		s.health.Connected = true
		s.health.LastSuccessfulConnection = time.Now()
		s.mu.Unlock()

		s.streamMu.Lock()
		s.capture = capture
		s.streamMu.Unlock()

		log.Infof("Camera %s: stream connected", s.cameraID)
		s.streamLoop(capture, stopCh)

		s.releaseStream()
		s.finalizeOpenSegment(time.Now())

		s.mu.Lock()
		s.health.Connected = false
		s.mu.Unlock()

		if stopped(stopCh) {
			return
		}
		log.Infof("Camera %s: stream lost, reconnecting", s.cameraID)
	}
}

// streamLoop ist die Frame-Schleife einer stehenden Verbindung
func (s *Session) streamLoop(capture *gocv.VideoCapture, stopCh <-chan struct{}) {
	fps := capture.Get(gocv.VideoCaptureFPS)
	if fps <= 0 || fps > 240 {
		fps = s.recCfg.FallbackFPS
	}
	srcWidth := int(capture.Get(gocv.VideoCaptureFrameWidth))
	srcHeight := int(capture.Get(gocv.VideoCaptureFrameHeight))

	// Auflösungs-Preset einmal pro Verbindung wählen und festhalten
	targetHeight := PickResolutionPreset(srcHeight, s.maxResolution)
	targetWidth := srcWidth
	if targetHeight > 0 {
		targetWidth = ScaledWidth(srcWidth, srcHeight, targetHeight)
		log.Infof("Camera %s: downscaling %dx%d -> %dx%d", s.cameraID, srcWidth, srcHeight, targetWidth, targetHeight)
	} else {
		targetHeight = srcHeight
	}

	s.mu.Lock()
	s.health.StreamFPS = fps
	s.health.StreamWidth = targetWidth
	s.health.StreamHeight = targetHeight
	s.mu.Unlock()

	img := gocv.NewMat()
	defer img.Close()
	resized := gocv.NewMat()
	defer resized.Close()

	readFailures := 0
	for {
		if stopped(stopCh) {
			return
		}

		if ok := capture.Read(&img); !ok || img.Empty() {
			readFailures++
			if readFailures >= maxConsecutiveReadFailures {
				log.Warnf("Camera %s: %d consecutive read failures, forcing reconnect",
					s.cameraID, readFailures)
				return
			}
			continue
		}
		readFailures = 0
		now := time.Now()

		s.mu.Lock()
		s.health.LastFrameTime = now
		streamingOnly := s.streamingOnly
		cameraName := s.cameraName
		s.mu.Unlock()

		// Herunterskalieren, wenn die Quelle über der Obergrenze liegt
		frame := img
		if targetHeight > 0 && targetHeight < srcHeight {
			gocv.Resize(img, &resized, image.Pt(targetWidth, targetHeight), 0, 0, gocv.InterpolationArea)
			frame = resized
		}

		// Optionaler Heuristik-Filter für offensichtlich kaputte Frames
		if s.recCfg.CorruptionFilter && frameLooksCorrupt(frame) {
			continue
		}

		// Eingebaute Bewegungserkennung speist das Gate
		if s.detector != nil && s.gate != nil {
			if hasMotion, intensity, ok := s.detector.Process(frame); ok {
				s.gate.Update(hasMotion, intensity, "", now)
			}
		}

		// Policy fragen: soll dieser Frame aufgezeichnet werden?
		record := false
		if !streamingOnly {
			hasMotion := false
			var lastMotion time.Time
			if s.gate != nil {
				hasMotion = s.gate.Active()
				lastMotion = s.gate.LastMotion()
			}
			record = policy.ShouldRecord(s.policies.Get(cameraName), hasMotion, lastMotion, now)
		}

		if record {
			s.writeFrame(frame, now, fps, targetWidth, targetHeight, cameraName)
		} else {
			// Aufnahme aus: offenes Segment abschließen
			s.finalizeOpenSegment(now)
		}

		// Live-Ansicht unabhängig vom Aufnahmezustand bedienen
		s.publishLiveFrame(frame)
	}
}

// writeFrame schreibt den Frame in das offene Segment und rotiert an Rastergrenzen
func (s *Session) writeFrame(frame gocv.Mat, now time.Time, fps float64, width, height int, cameraName string) {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()

	// Segment öffnen bzw. an der Wanduhr-Grenze rotieren
	if s.openSegment == nil || !now.Before(s.boundary) {
		if s.openSegment != nil {
			s.finalizeOpenSegmentLocked(now)
		}
		if !s.openSegmentLocked(now, fps, width, height, cameraName) {
			return
		}
	}

	if err := s.writer.Write(frame); err != nil {
		// Schreibfehler (Platte voll, Rechte): Segment abbrechen, Session lebt weiter
		log.Errorf("Camera %s: segment write failed, aborting segment: %v", s.cameraID, err)
		s.finalizeOpenSegmentLocked(now)
		s.markDegraded()
	}
}

// openSegmentLocked öffnet ein neues Segment; streamMu muss gehalten werden
func (s *Session) openSegmentLocked(now time.Time, fps float64, width, height int, cameraName string) bool {
	boundary := NextBoundary(now, s.recCfg.SegmentDurationMinutes())
	path := SegmentPath(s.storageRoot, s.cameraID, boundary)

	if err := os.MkdirAll(segmentDirFor(s.storageRoot, s.cameraID), 0755); err != nil {
		log.Errorf("Camera %s: failed to create segment directory: %v", s.cameraID, err)
		s.markDegraded()
		return false
	}

	writer, err := gocv.VideoWriterFile(path, segmentCodec, fps, width, height, true)
	if err != nil || !writer.IsOpened() {
		if writer != nil {
			writer.Close()
		}
		log.Errorf("Camera %s: failed to open segment writer for %s: %v", s.cameraID, path, err)
		s.markDegraded()
		return false
	}

	segment := &models.RecordingSegment{
		CameraID:   s.cameraID,
		CameraName: cameraName,
		FilePath:   path,
		StartTime:  now,
		FPS:        fps,
		Width:      width,
		Height:     height,
	}

	// Index-Fehler werden absorbiert: Frames gehen nicht verloren, die Wartung
	// gleicht den Katalog später ab
	if err := s.index.AddSegment(segment); err != nil {
		log.Errorf("Camera %s: failed to index new segment %s: %v", s.cameraID, path, err)
	}

	s.writer = writer
	s.openSegment = segment
	s.boundary = boundary
	log.Debugf("Camera %s: opened segment %s (boundary %s)", s.cameraID, path, boundary.Format(time.RFC3339))
	return true
}

// finalizeOpenSegment schließt ein offenes Segment ab (nimmt streamMu selbst)
func (s *Session) finalizeOpenSegment(now time.Time) {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	s.finalizeOpenSegmentLocked(now)
}

// finalizeOpenSegmentLocked schließt Writer und Index-Zeile ab und übergibt die
// fertige Datei an die Transcode-Pipeline; streamMu muss gehalten werden
func (s *Session) finalizeOpenSegmentLocked(now time.Time) {
	if s.openSegment == nil {
		return
	}

	segment := s.openSegment
	s.openSegment = nil

	if s.writer != nil {
		if err := s.writer.Close(); err != nil {
			log.Warnf("Camera %s: error closing segment writer: %v", s.cameraID, err)
		}
		s.writer = nil
	}

	var size int64
	if info, err := os.Stat(segment.FilePath); err == nil {
		size = info.Size()
	}

	if err := s.index.UpdateSegmentEnd(s.cameraID, segment.FilePath, now, size); err != nil {
		log.Errorf("Camera %s: failed to finalize segment %s in index: %v", s.cameraID, segment.FilePath, err)
	}

	log.Infof("Camera %s: segment finalized %s (%.1fs, %d bytes)",
		s.cameraID, segment.FilePath, now.Sub(segment.StartTime).Seconds(), size)

	if s.sink != nil {
		s.sink.Enqueue(segment.FilePath)
	}
}

// publishLiveFrame komprimiert den Frame für die Live-Ansicht in den Cache
func (s *Session) publishLiveFrame(frame gocv.Mat) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame)
	if err != nil {
		log.Debugf("Camera %s: failed to encode live frame: %v", s.cameraID, err)
		return
	}
	defer buf.Close()

	// Kopie nötig: der Puffer gehört nativer Speicherverwaltung
	jpeg := append([]byte(nil), buf.GetBytes()...)
	s.cache.Push(jpeg)
}

// releaseStream gibt den Capture-Handle frei (auch zur Zwangsfreigabe beim Stop)
func (s *Session) releaseStream() {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()

	if s.capture != nil {
		if err := s.capture.Close(); err != nil {
			log.Debugf("Camera %s: error closing capture: %v", s.cameraID, err)
		}
		s.capture = nil
	}
}

// markDegraded setzt das Degraded-Flag im Health-Snapshot
func (s *Session) markDegraded() {
	s.mu.Lock()
	s.health.Degraded = true
	s.mu.Unlock()
}

// frameLooksCorrupt ist die Best-Effort-Heuristik für kaputte Frames:
// vollständig schwarze oder weiße Bilder werden verworfen
func frameLooksCorrupt(frame gocv.Mat) bool {
	mean := frame.Mean()
	avg := (mean.Val1 + mean.Val2 + mean.Val3) / 3
	return avg < 2.0 || avg > 253.0
}

// stopped prüft nicht-blockierend, ob ein Stop angefordert wurde
func stopped(stopCh <-chan struct{}) bool {
	select {
	case <-stopCh:
		return true
	default:
		return false
	}
}

// sleepInterruptible wartet die Dauer ab, bricht aber bei Stop sofort ab.
// Gibt false zurück, wenn gestoppt wurde.
func sleepInterruptible(d time.Duration, stopCh <-chan struct{}) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-stopCh:
		return false
	}
}
