package storage

import (
	"context"

	"swapRouter/internal/model"
)

// Journal is an append-only sink for applied events. It is an audit trail;
// losing it never affects cache correctness.
type Journal interface {
	Append(ctx context.Context, rec model.JournalRecord) error
}
