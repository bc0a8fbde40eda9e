// Package protocol defines the adapter contracts the sync engine consumes:
// the WFM source system, the destination scheduling system, and the secrets
// store. Implementations live under pkg/adapters.
package protocol

import (
	"context"
	"time"

	"github.com/shiftbridge/shiftbridge/pkg/models"
)

// Source reads shift data from the workforce-management system of record.
// Records carry only source-side identifiers; destination references are
// resolved by the applier.
type Source interface {
	// ListWeekShifts returns every shift of the business unit whose week
	// starts at weekStart, in the team's time zone.
	ListWeekShifts(ctx context.Context, team *models.Team, weekStart time.Time) ([]*models.ShiftRecord, error)

	// GetEmployee resolves a source employee id to its login.
	GetEmployee(ctx context.Context, team *models.Team, sourceID string) (login string, err error)

	// GetJob resolves a source job reference to its display name.
	GetJob(ctx context.Context, team *models.Team, sourceRef string) (name string, err error)
}
