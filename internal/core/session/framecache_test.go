package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameCacheLatestWins(t *testing.T) {
	c := NewFrameCache(2)

	assert.Nil(t, c.Latest())

	c.Push([]byte("frame-1"))
	c.Push([]byte("frame-2"))
	c.Push([]byte("frame-3"))

	// Tiefe 2: der älteste Frame ist rausgefallen, der neueste gewinnt
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []byte("frame-3"), c.Latest())
}

func TestFrameCacheLastKnownGood(t *testing.T) {
	c := NewFrameCache(2)

	c.Push([]byte("frame-1"))
	c.Clear()

	// Puffer leer, aber der letzte bekannte gute Frame bleibt verfügbar
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, []byte("frame-1"), c.Latest())
}

func TestFrameCacheIgnoresEmptyFrames(t *testing.T) {
	c := NewFrameCache(2)

	c.Push(nil)
	c.Push([]byte{})

	assert.Equal(t, 0, c.Len())
	assert.Nil(t, c.Latest())
}

func TestFrameCacheDefaultDepth(t *testing.T) {
	c := NewFrameCache(0)

	c.Push([]byte("a"))
	c.Push([]byte("b"))
	c.Push([]byte("c"))

	assert.Equal(t, 2, c.Len())
}
