// Package delta computes the reconciliation delta between two shift
// snapshots: which records must be created, updated or deleted downstream
// for the destination to match the source.
package delta

import (
	"github.com/shiftbridge/shiftbridge/pkg/models"
)

// Compute reconciles two snapshots keyed by source id. It is pure and
// deterministic: Skipped and Failed are always empty here and belong to the
// component applying the delta.
//
// For records present in both snapshots the destination key from the prior
// snapshot is carried onto the new record unconditionally; the destination
// object identity never changes across updates. Destination employee and
// group references are carried only while the corresponding source
// reference is unchanged, otherwise they are cleared so the applier
// re-resolves them.
func Compute(from, to []*models.ShiftRecord) *models.DeltaResult {
	fromByID := indexBySourceID(from)
	toByID := indexBySourceID(to)

	result := &models.DeltaResult{}

	for _, record := range to {
		prior, exists := fromByID[record.SourceID]
		if !exists {
			result.Created = append(result.Created, record)

			continue
		}

		carryDestinationRefs(prior, record)

		if hasChanges(prior, record) {
			result.Updated = append(result.Updated, record)
		}
	}

	for _, record := range from {
		if _, exists := toByID[record.SourceID]; !exists {
			result.Deleted = append(result.Deleted, record)
		}
	}

	return result
}

func indexBySourceID(records []*models.ShiftRecord) map[string]*models.ShiftRecord {
	index := make(map[string]*models.ShiftRecord, len(records))
	for _, record := range records {
		index[record.SourceID] = record
	}

	return index
}

func carryDestinationRefs(prior, record *models.ShiftRecord) {
	record.DestinationID = prior.DestinationID

	if record.Employee.SourceID == prior.Employee.SourceID {
		record.Employee.DestinationID = prior.Employee.DestinationID
	} else {
		record.Employee.DestinationID = ""
	}

	if record.Group.SourceRef == prior.Group.SourceRef {
		record.Group.DestinationID = prior.Group.DestinationID
	} else {
		record.Group.DestinationID = ""
	}
}

// hasChanges compares the fields that matter downstream. Jobs and
// Activities are compared positionally: sub-elements carry no stable key of
// their own, so index-based comparison is intentional even though it is
// sensitive to source ordering.
func hasChanges(prior, record *models.ShiftRecord) bool {
	if !prior.StartAt.Equal(record.StartAt) || !prior.EndAt.Equal(record.EndAt) {
		return true
	}

	if prior.Employee.SourceID != record.Employee.SourceID {
		return true
	}

	if prior.Group.SourceRef != record.Group.SourceRef {
		return true
	}

	if subShiftsDiffer(prior.Jobs, record.Jobs) {
		return true
	}

	return subShiftsDiffer(prior.Activities, record.Activities)
}

func subShiftsDiffer(prior, current []models.SubShift) bool {
	if len(prior) != len(current) {
		return true
	}

	for i := range prior {
		if subShiftDiffers(prior[i], current[i]) {
			return true
		}
	}

	return false
}

func subShiftDiffers(a, b models.SubShift) bool {
	return a.Code != b.Code ||
		a.DisplayName != b.DisplayName ||
		a.Theme != b.Theme ||
		!a.StartAt.Equal(b.StartAt) ||
		!a.EndAt.Equal(b.EndAt)
}
