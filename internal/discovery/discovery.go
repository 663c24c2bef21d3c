package discovery

import (
	"context"
	"fmt"

	"github.com/pgrekey/pgrekey/internal/config"
	"github.com/pgrekey/pgrekey/internal/schema"
)

// Discoverer reads the catalog of one database.
type Discoverer interface {
	// Connect establishes a read-only connection to the database.
	Connect(ctx context.Context) error

	// Discover extracts the full schema catalog. Each call runs the
	// introspection queries fresh; nothing is cached between calls.
	Discover(ctx context.Context) (*schema.Schema, error)

	// Close closes the database connection.
	Close() error
}

// New creates a Discoverer for the given endpoint.
func New(ep *config.Endpoint) Discoverer {
	return NewPostgres(ep)
}

// IntrospectError reports a catalog query failure during Discover, so
// callers can tell catalog problems apart from data-copy problems.
type IntrospectError struct {
	Stage string // tables, columns, primary keys, foreign keys, indexes
	Err   error
}

func (e *IntrospectError) Error() string {
	return fmt.Sprintf("introspecting %s: %v", e.Stage, e.Err)
}

func (e *IntrospectError) Unwrap() error { return e.Err }
