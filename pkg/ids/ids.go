package ids

import (
	"strconv"
	"sync"
	"time"
)

const (
	// Epoch is the custom epoch (January 1, 2024 00:00:00 UTC) in milliseconds.
	Epoch int64 = 1704067200000

	sequenceBits uint8 = 12
	sequenceMask int64 = -1 ^ (-1 << sequenceBits)
)

// Generator allocates process-local monotonic IDs: the millisecond timestamp
// above a per-millisecond sequence. IDs from one generator are strictly
// increasing, so insertion order is recoverable from the ID itself.
type Generator struct {
	mu         sync.Mutex
	epoch      int64
	lastMillis int64
	sequence   int64
}

// New creates a generator using the package epoch.
func New() *Generator {
	return &Generator{epoch: Epoch}
}

// Next returns the next ID.
func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	millis := currentMillis()
	// A clock step backwards reuses the last observed millisecond so IDs
	// stay monotonic.
	if millis < g.lastMillis {
		millis = g.lastMillis
	}

	if millis == g.lastMillis {
		g.sequence = (g.sequence + 1) & sequenceMask
		if g.sequence == 0 {
			// Sequence exhausted for this millisecond, wait for the next one.
			for millis <= g.lastMillis {
				millis = currentMillis()
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastMillis = millis

	return (millis-g.epoch)<<sequenceBits | g.sequence
}

// NextString returns the next ID in decimal string form.
func (g *Generator) NextString() string {
	return strconv.FormatInt(g.Next(), 10)
}

// Timestamp extracts the creation time encoded in an ID.
func (g *Generator) Timestamp(id int64) time.Time {
	millis := (id >> sequenceBits) + g.epoch
	return time.UnixMilli(millis)
}

func currentMillis() int64 {
	return time.Now().UnixMilli()
}
