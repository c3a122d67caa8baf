package controller

import (
	"context"

	"github.com/pushkeep-io/pushkeep/internal/model"
)

// TableLookup resolves a TableId to a TableRef (spec §6.1). Pure, safe
// for concurrent use, never mutates.
type TableLookup interface {
	LookupTable(ctx context.Context, id model.TableId) (model.TableRef, bool)
}

// DestinationLookup resolves a DestinationId to a Destination (spec
// §6.2). Pure, safe for concurrent use, never mutates.
type DestinationLookup interface {
	LookupDestination(ctx context.Context, id model.DestinationId) (model.Destination, bool)
}
