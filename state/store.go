package state

import (
	"context"
)

// Store persists the session blobs. Writes are whole-blob replacements;
// callers do read-modify-write and the InProgress flags are advisory only.
type Store interface {
	// GetProduct returns the product state, or a fresh idle state when
	// none has been saved yet.
	GetProduct(ctx context.Context) (*ProductState, error)
	SaveProduct(ctx context.Context, s *ProductState) error
	ClearProduct(ctx context.Context) error

	// GetStatus returns the status projection, or an idle zero-progress
	// status when none has been saved yet.
	GetStatus(ctx context.Context) (*ProductStatus, error)
	SaveStatus(ctx context.Context, s *ProductStatus) error
	ClearStatus(ctx context.Context) error

	// GetPackaging returns the packaging state, or a default box state
	// when none has been saved yet.
	GetPackaging(ctx context.Context) (*PackagingState, error)
	SavePackaging(ctx context.Context, s *PackagingState) error
	ClearPackaging(ctx context.Context) error

	// Ping checks store health.
	Ping(ctx context.Context) error

	// Close releases store resources.
	Close() error
}
