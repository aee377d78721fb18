package transcode

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	log "github.com/sirupsen/logrus"
)

// Hardware-Encoder in fester Präferenzreihenfolge; danach Software-Fallback
var hardwareEncoders = []string{
	"h264_nvenc",
	"h264_qsv",
	"h264_vaapi",
	"h264_videotoolbox",
}

// softwareEncoder ist der Fallback, der überall funktioniert
const softwareEncoder = "libx264"

// CommandRunner führt einen externen Encoder-Aufruf aus. Austauschbar, damit
// Tests ohne installiertes ffmpeg laufen.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// execRunner ist der Standard-Runner über os/exec
func execRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s failed: %w (%s)", name, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}

// probeEncoder validiert einen Encoder durch einen echten Minimal-Encode eines
// synthetischen Frames. Nur das beweist, dass die Hardware wirklich da ist;
// die reine Encoder-Liste von ffmpeg reicht dafür nicht.
func probeEncoder(ffmpegPath, encoder string, runner CommandRunner) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "color=c=black:s=320x240:d=0.1",
		"-frames:v", "1",
		"-c:v", encoder,
		"-f", "null", "-",
	}
	if err := runner(ctx, ffmpegPath, args...); err != nil {
		log.Debugf("Encoder %s not usable: %v", encoder, err)
		return false
	}
	return true
}

// selectEncoder wählt den Encoder für die Lebensdauer der Pipeline: die
// Nutzerpräferenz, wenn sie funktioniert, sonst die Hardware-Kandidaten in
// Präferenzreihenfolge, zuletzt der Software-Fallback.
func selectEncoder(ffmpegPath, preferred string, runner CommandRunner) string {
	if preferred != "" {
		if probeEncoder(ffmpegPath, preferred, runner) {
			log.Infof("Using preferred encoder %s", preferred)
			return preferred
		}
		log.Warnf("Preferred encoder %s unavailable, probing alternatives", preferred)
	}

	for _, encoder := range hardwareEncoders {
		if encoder == preferred {
			continue
		}
		if probeEncoder(ffmpegPath, encoder, runner) {
			log.Infof("Using hardware encoder %s", encoder)
			return encoder
		}
	}

	log.Infof("No hardware encoder available, falling back to %s", softwareEncoder)
	return softwareEncoder
}
