// Package directory stores personnel profiles and answers batched
// lookup-by-name queries for reconciliation.
package directory

import (
	"context"

	"github.com/sells-group/feerecon/internal/model"
)

// Lookup resolves a set of normalized names to their profiles. Names with
// no profile are absent from the result. Profiles for one name keep the
// directory's insertion order.
type Lookup interface {
	FindByNames(ctx context.Context, names []string) (map[string][]model.Profile, error)
}

// Store is a persistent directory.
type Store interface {
	Lookup

	// Insert adds profiles. Names are normalized; profiles without a name
	// are rejected. Returns the number of rows written.
	Insert(ctx context.Context, profiles []model.Profile) (int, error)

	Migrate(ctx context.Context) error
	Close() error
}

// lookupChunk bounds the number of bind parameters per IN query.
const lookupChunk = 500

func uniqueNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
