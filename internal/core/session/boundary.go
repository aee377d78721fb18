package session

import (
	"path/filepath"
	"time"
)

// Auflösungs-Presets für die Begrenzung der Aufnahmehöhe. Die Wahl erfolgt
// einmal pro Verbindung und bleibt bis zum Reconnect fix, damit die Größe
// nicht mitten im Segment springt.
var resolutionPresets = []int{1080, 720, 480, 360}

// NextBoundary rundet die aktuelle Zeit auf das nächste Wanduhr-Vielfache der
// Segmentlänge auf (5-Minuten-Segmente: :00/:05/:10, ...). Liegt das Ergebnis
// hinter Mitternacht, beginnt das Segmentraster am Folgetag bei 00:00:00.
func NextBoundary(now time.Time, segmentMinutes int) time.Time {
	if segmentMinutes <= 0 {
		segmentMinutes = 5
	}

	minutesIntoDay := now.Hour()*60 + now.Minute()
	nextSlot := (minutesIntoDay/segmentMinutes + 1) * segmentMinutes

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if nextSlot >= 24*60 {
		// Tagesüberlauf: das Raster startet am nächsten Tag neu
		return midnight.AddDate(0, 0, 1)
	}
	return midnight.Add(time.Duration(nextSlot) * time.Minute)
}

// SegmentFileName liefert den deterministischen Dateinamen eines Segments.
// Benannt wird nach der Rastergrenze, nicht nach dem tatsächlichen Öffnungszeitpunkt,
// damit Dateinamen über Neustarts hinweg stabil bleiben.
func SegmentFileName(boundary time.Time) string {
	return boundary.Format("20060102_150405") + ".mp4"
}

// SegmentPath baut den vollständigen Pfad eines Segments auf. Verzeichnisse sind
// nach camera_id benannt, nicht nach dem Anzeigenamen, damit Umbenennungen
// niemals Dateien verschieben.
func SegmentPath(storageRoot, cameraID string, boundary time.Time) string {
	return filepath.Join(storageRoot, cameraID, SegmentFileName(boundary))
}

// PickResolutionPreset wählt die Zielhöhe für die Aufnahme: das größte Preset,
// das weder die Quellauflösung noch die konfigurierte Obergrenze überschreitet.
// 0 bedeutet: keine Skalierung nötig.
func PickResolutionPreset(sourceHeight, maxHeight int) int {
	if sourceHeight <= 0 {
		return 0
	}
	if maxHeight <= 0 || sourceHeight <= maxHeight {
		return 0
	}
	for _, preset := range resolutionPresets {
		if preset <= maxHeight && preset < sourceHeight {
			return preset
		}
	}
	return resolutionPresets[len(resolutionPresets)-1]
}

// ScaledWidth skaliert die Breite proportional zur neuen Höhe (auf gerade Werte
// gerundet, Video-Encoder mögen keine ungeraden Dimensionen)
func ScaledWidth(sourceWidth, sourceHeight, targetHeight int) int {
	if sourceHeight <= 0 || targetHeight <= 0 {
		return sourceWidth
	}
	w := sourceWidth * targetHeight / sourceHeight
	if w%2 != 0 {
		w--
	}
	if w < 2 {
		w = 2
	}
	return w
}

// reconnectDelay berechnet die Backoff-Wartezeit nach der n-ten aufeinander
// folgenden Fehlverbindung: 5s, verdoppelt, gedeckelt bei 300s.
func reconnectDelay(consecutiveFailures int) time.Duration {
	const (
		baseDelay = 5 * time.Second
		maxDelay  = 300 * time.Second
	)
	if consecutiveFailures <= 1 {
		return baseDelay
	}
	delay := baseDelay
	for i := 1; i < consecutiveFailures; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return delay
}

// throttledFailureLog entscheidet, ob der n-te Fehlversuch geloggt wird:
// die ersten drei immer, danach nur noch jeder zehnte, damit eine dauerhaft
// offline gegangene Kamera das Log nicht flutet.
func throttledFailureLog(consecutiveFailures int) bool {
	if consecutiveFailures <= 3 {
		return true
	}
	return consecutiveFailures%10 == 0
}

// segmentDirFor liefert das Aufnahmeverzeichnis einer Kamera
func segmentDirFor(storageRoot, cameraID string) string {
	return filepath.Join(storageRoot, cameraID)
}
