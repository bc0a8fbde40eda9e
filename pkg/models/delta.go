package models

// DeltaResult is the outcome of reconciling two shift snapshots. Created,
// Updated and Deleted partition the work needed to make the destination
// match the source; Skipped and Failed are filled in by whoever applies the
// delta, never by the delta computation itself.
type DeltaResult struct {
	Created []*ShiftRecord `json:"created"`
	Updated []*ShiftRecord `json:"updated"`
	Deleted []*ShiftRecord `json:"deleted"`
	Skipped []*ShiftRecord `json:"skipped"`
	Failed  []*ShiftRecord `json:"failed"`
}

// Empty reports whether the delta carries no pending work.
func (d *DeltaResult) Empty() bool {
	return len(d.Created) == 0 && len(d.Updated) == 0 && len(d.Deleted) == 0
}

// Size is the number of pending create/update/delete operations.
func (d *DeltaResult) Size() int {
	return len(d.Created) + len(d.Updated) + len(d.Deleted)
}
