package backend

import (
	"context"

	"gastos/internal/amqp"
	"gastos/internal/services"
)

// CleanupFunc releases what CreateBackend opened.
type CleanupFunc func() error

// BackendResult is a ready data service plus the handles main needs.
type BackendResult struct {
	Service *services.DataService
	// Bus is nil when the change bus is disabled or unreachable at startup.
	Bus     *amqp.Client
	Cleanup CleanupFunc
}

// Factory builds the data service for a Config.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config is the slice of the application config the factory reads.
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Memory specific, optional JSON seed
	MemorySeedFile string

	// Change bus, disabled when AMQPURL is empty
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google sign-in, disabled when empty
	GoogleClientID string
}

// BackendType names a repository implementation.
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
