package trace

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// IDGen mints globally unique identifiers for traces and audit events.
type IDGen interface {
	NewID() string
}

// UUIDGen generates random UUIDv4 identifiers.
type UUIDGen struct{}

func (UUIDGen) NewID() string { return uuid.NewString() }
