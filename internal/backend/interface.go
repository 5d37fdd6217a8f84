package backend

import (
	"context"

	"projection/internal/ports"
)

// CleanupFunc releases the resources opened by a factory.
type CleanupFunc func() error

// Result holds the repository, the optional event publisher and the cleanup
// that closes both.
type Result struct {
	Repository ports.Repository
	// Publisher is nil when AMQP is not configured or unreachable.
	Publisher ports.EventPublisher
	// Subscriber is set together with Publisher.
	Subscriber ports.EventSubscriber
	Cleanup    CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type Type

	SQLiteDBPath string
	DatabaseURL  string

	// Optional: events are published only when AMQPURL is set.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// Type is the storage engine backing the repository.
type Type string

const (
	SQLiteBackend   Type = "sqlite"
	PostgresBackend Type = "postgres"
	MemoryBackend   Type = "memory"
)

func (t Type) String() string {
	return string(t)
}

func (t Type) IsValid() bool {
	switch t {
	case SQLiteBackend, PostgresBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
