package models

import "time"

// Sub-shift codes with special overlay treatment.
const (
	SubShiftCodeBreak = "break"
	SubShiftCodeMeal  = "meal"
)

// EmployeeRef pairs the WFM identity of an employee with its destination
// counterpart. The destination side is only trusted while the source side
// is unchanged.
type EmployeeRef struct {
	SourceID      string `json:"source_id"`
	DestinationID string `json:"destination_id,omitempty"`
}

// GroupRef pairs the WFM job reference with the destination scheduling
// group it maps to.
type GroupRef struct {
	SourceRef     string `json:"source_ref"`
	DestinationID string `json:"destination_id,omitempty"`
}

// SubShift is a timed sub-segment of a shift: either a job-level period or
// a finer-grained activity such as a meal or break.
type SubShift struct {
	Code        string    `json:"code"`
	DisplayName string    `json:"display_name"`
	Theme       string    `json:"theme,omitempty"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
}

// ShiftRecord is one shift as exchanged between the WFM source and the
// destination scheduling system. SourceID is assigned by the WFM system and
// stable; DestinationID is assigned on first create and never reassigned
// for the life of the source key.
type ShiftRecord struct {
	SourceID      string      `json:"source_id" validate:"required"`
	DestinationID string      `json:"destination_id,omitempty"`
	Employee      EmployeeRef `json:"employee"`
	Group         GroupRef    `json:"group"`
	StartAt       time.Time   `json:"start_at"`
	EndAt         time.Time   `json:"end_at"`
	Jobs          []SubShift  `json:"jobs,omitempty"`
	Activities    []SubShift  `json:"activities,omitempty"`
}

// VisibleActivity is one interval of the resolved, non-overlapping shift
// timeline shown in the destination system.
type VisibleActivity struct {
	DisplayName string    `json:"display_name"`
	Theme       string    `json:"theme,omitempty"`
	Paid        bool      `json:"paid"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
}

// Member is a destination-side team member, cached by login.
type Member struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name,omitempty"`
}

// SyncCounts accumulates per-class outcomes over one week flow.
type SyncCounts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Add folds another counts value into this one.
func (c *SyncCounts) Add(other SyncCounts) {
	c.Created += other.Created
	c.Updated += other.Updated
	c.Deleted += other.Deleted
	c.Skipped += other.Skipped
	c.Failed += other.Failed
}
