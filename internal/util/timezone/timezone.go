package timezone

import (
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

// Initialize setzt die Prozess-Zeitzone: konfigurierter Wert vor TZ-Umgebungsvariable,
// Rückfall auf UTC. Muss beim Programmstart laufen, bevor Sessions starten:
// das Wanduhr-Raster der Segmente und die Tagesgrenzen im Index hängen an time.Local.
func Initialize(configured string) {
	tzName := configured
	if tzName == "" {
		tzName = os.Getenv("TZ")
	}
	if tzName == "" {
		tzName = "UTC"
	}

	loc, err := time.LoadLocation(tzName)
	if err != nil {
		log.Warnf("Failed to load timezone %s: %v. Falling back to UTC.", tzName, err)
		time.Local = time.UTC
		return
	}

	time.Local = loc
	log.Infof("Timezone initialized to %s", tzName)
}
