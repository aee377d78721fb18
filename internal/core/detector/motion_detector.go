package detector

import (
	"sync"

	"camguard-go/config"

	log "github.com/sirupsen/logrus"
	gocv "gocv.io/x/gocv"
)

// MOG2 markiert Schatten mit dem Wert 127; alles darüber ist Vordergrund
const foregroundThreshold = 128

// MotionDetector erkennt Bewegung per Hintergrund-Subtraktion (MOG2) direkt auf
// dem Frame-Strom einer Session. Das Ergebnis ist das rohe Bewegungssignal für
// das Gate; Entprellung und Mindestgrößen sind dort angesiedelt, nicht hier.
type MotionDetector struct {
	mu  sync.Mutex
	cfg config.MotionConfig

	mog2     gocv.BackgroundSubtractorMOG2
	mask     gocv.Mat
	frameNum int
	closed   bool
}

// NewMotionDetector erstellt einen Bewegungsdetektor für eine Kamera
func NewMotionDetector(cfg config.MotionConfig) *MotionDetector {
	return &MotionDetector{
		cfg:  cfg,
		mog2: gocv.NewBackgroundSubtractorMOG2(),
		mask: gocv.NewMat(),
	}
}

// Process wertet einen Frame aus. ok ist false, wenn der Frame übersprungen
// wurde (jeder N-te Frame reicht, Bewegung ist träger als die Framerate);
// sonst liefert hasMotion das Signal und intensity den Vordergrund-Anteil
// in Prozent der Bildfläche.
func (d *MotionDetector) Process(frame gocv.Mat) (hasMotion bool, intensity float64, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed || frame.Empty() {
		return false, 0, false
	}

	d.frameNum++
	every := d.cfg.DetectEveryN
	if every <= 0 {
		every = 1
	}
	if d.frameNum%every != 0 {
		return false, 0, false
	}

	d.mog2.Apply(frame, &d.mask)

	// Schatten aus der Maske werfen, nur echten Vordergrund zählen
	gocv.Threshold(d.mask, &d.mask, foregroundThreshold-1, 255, gocv.ThresholdBinary)

	total := d.mask.Rows() * d.mask.Cols()
	if total == 0 {
		return false, 0, false
	}

	foreground := gocv.CountNonZero(d.mask)
	intensity = float64(foreground) / float64(total) * 100

	minArea := d.cfg.MinAreaPct
	if minArea <= 0 {
		minArea = 1.0
	}
	return intensity >= minArea, intensity, true
}

// Close gibt die nativen Ressourcen des Detektors frei
func (d *MotionDetector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true

	if err := d.mog2.Close(); err != nil {
		log.Debugf("Error closing background subtractor: %v", err)
	}
	if err := d.mask.Close(); err != nil {
		log.Debugf("Error closing detector mask: %v", err)
	}
}
