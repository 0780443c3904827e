package index

import (
	"context"

	"github.com/starford/sitefeed/internal/models"
	"github.com/starford/sitefeed/internal/orderedset"
	"github.com/starford/sitefeed/internal/query"
)

// Catalog defines the catalog operations consumers depend on.
// Depending on this interface rather than *DB keeps callers testable.
type Catalog interface {
	UpsertItem(it *models.Item) error
	DeleteItem(path string) error
	DeleteFile(file string) error
	GetChecksum(file string) (string, error)
	AllChecksums() (map[string]string, error)
	GetBrain(ctx context.Context, path string) (*models.Brain, error)
	Search(ctx context.Context, q query.Node) ([]models.Brain, error)
	Count(ctx context.Context, q query.Node) (int, error)
	TagNames(ctx context.Context) ([]string, error)
	orderedset.Store
	Close() error
}

// Verify *DB satisfies Catalog at compile time.
var _ Catalog = (*DB)(nil)
