package comm

import (
	"time"

	"github.com/google/uuid"
)

// Clock supplies timestamps and collision-resistant identifiers to every
// component in this package. Tests substitute a fake to drive time-based
// behavior deterministically.
type Clock interface {
	Now() time.Time
	NewID() string
}

type systemClock struct{}

// SystemClock returns the production Clock backed by time.Now and UUIDv4.
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) NewID() string {
	return uuid.NewString()
}
