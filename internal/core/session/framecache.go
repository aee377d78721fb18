package session

import "sync"

// FrameCache ist der begrenzte Live-Frame-Puffer einer Session: Tiefe 2,
// latest-wins, plus ein "last known good"-Frame als Rückfallebene, damit
// Konsumenten niemals eine Lücke sehen. Leser blockieren nie.
type FrameCache struct {
	mu       sync.Mutex
	frames   [][]byte
	depth    int
	lastGood []byte
}

// NewFrameCache erstellt einen Frame-Cache mit der angegebenen Tiefe
func NewFrameCache(depth int) *FrameCache {
	if depth <= 0 {
		depth = 2
	}
	return &FrameCache{depth: depth}
}

// Push legt einen neuen Frame ab; ist der Puffer voll, fliegt der älteste raus
func (c *FrameCache) Push(frame []byte) {
	if len(frame) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.frames = append(c.frames, frame)
	if len(c.frames) > c.depth {
		c.frames = c.frames[len(c.frames)-c.depth:]
	}
	c.lastGood = frame
}

// Latest gibt den neuesten Frame zurück, ersatzweise den letzten bekannten
// guten Frame; nil nur, wenn noch nie ein Frame ankam
func (c *FrameCache) Latest() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.frames) > 0 {
		return c.frames[len(c.frames)-1]
	}
	return c.lastGood
}

// Clear leert den Puffer, behält aber den last-known-good-Frame
func (c *FrameCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

// Len gibt die aktuelle Pufferbelegung zurück
func (c *FrameCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}
