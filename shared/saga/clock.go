package saga

import (
	"time"

	"github.com/orderflow/saga-system/shared/models"
)

// Clock supplies the current time. The engine never reads the wall clock
// directly so tests can drive time deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock {
	return systemClock{}
}

// IDGenerator allocates transaction identifiers.
type IDGenerator interface {
	NewID() models.ID
}

type uuidGenerator struct{}

func (uuidGenerator) NewID() models.ID {
	return models.GenerateUUID()
}

// UUIDGenerator returns an IDGenerator backed by random UUIDs.
func UUIDGenerator() IDGenerator {
	return uuidGenerator{}
}

// FixedClock is a Clock that always returns the same instant.
type FixedClock struct {
	Instant time.Time
}

func (c FixedClock) Now() time.Time {
	return c.Instant
}

// SequenceIDGenerator hands out a fixed sequence of ids, falling back to
// UUIDs once the sequence is exhausted.
type SequenceIDGenerator struct {
	IDs  []models.ID
	next int
}

func (g *SequenceIDGenerator) NewID() models.ID {
	if g.next < len(g.IDs) {
		id := g.IDs[g.next]
		g.next++
		return id
	}
	return models.GenerateUUID()
}
