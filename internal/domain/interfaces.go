package domain

import (
	"context"
	"time"
)

// ReportArchiver stores finished run reports outside the local database.
// Declared here to keep the runs service free of storage SDK imports.
type ReportArchiver interface {
	Enabled() bool
	Archive(ctx context.Context, runID string, createdAt time.Time, payload []byte) (string, error)
}
