package activities

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shiftbridge/shiftbridge/pkg/models"
	"github.com/shiftbridge/shiftbridge/pkg/protocol"
)

type fakeSource struct {
	mu        sync.Mutex
	weeks     map[string][]*models.ShiftRecord
	employees map[string]string
	jobs      map[string]string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		weeks:     make(map[string][]*models.ShiftRecord),
		employees: make(map[string]string),
		jobs:      make(map[string]string),
	}
}

func weekKey(weekStart time.Time) string {
	return weekStart.UTC().Format("2006-01-02")
}

func (s *fakeSource) setWeek(weekStart time.Time, records ...*models.ShiftRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.weeks[weekKey(weekStart)] = records
}

// ListWeekShifts returns deep copies so callers mutating records never
// leak state back into the fixture.
func (s *fakeSource) ListWeekShifts(_ context.Context, _ *models.Team, weekStart time.Time) ([]*models.ShiftRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.weeks[weekKey(weekStart)]

	cloned := make([]*models.ShiftRecord, 0, len(records))

	for _, record := range records {
		raw, err := json.Marshal(record)
		if err != nil {
			return nil, err
		}

		var clone models.ShiftRecord
		if err := json.Unmarshal(raw, &clone); err != nil {
			return nil, err
		}

		cloned = append(cloned, &clone)
	}

	return cloned, nil
}

func (s *fakeSource) GetEmployee(_ context.Context, _ *models.Team, sourceID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	login, ok := s.employees[sourceID]
	if !ok {
		return "", protocol.ErrNotFound
	}

	return login, nil
}

func (s *fakeSource) GetJob(_ context.Context, _ *models.Team, sourceRef string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, ok := s.jobs[sourceRef]
	if !ok {
		return "", protocol.ErrNotFound
	}

	return name, nil
}

type fakeDestination struct {
	mu sync.Mutex

	schedule *protocol.Schedule
	shifts   map[string]*protocol.DestinationShift
	members  []*models.Member
	groups   map[string]string

	nextShiftID int
	nextGroupID int

	createShiftErr error

	listMembersCalls int
	listGroupsCalls  int
	createGroupCalls int
	shareWindows     [][2]time.Time
}

func newFakeDestination() *fakeDestination {
	return &fakeDestination{
		shifts: make(map[string]*protocol.DestinationShift),
		groups: make(map[string]string),
	}
}

func (d *fakeDestination) GetSchedule(_ context.Context, _ string) (*protocol.Schedule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.schedule == nil {
		return nil, protocol.ErrNotFound
	}

	return d.schedule, nil
}

func (d *fakeDestination) CreateSchedule(_ context.Context, teamID, timeZone string) (*protocol.Schedule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.schedule = &protocol.Schedule{ID: "sched-" + teamID, TimeZone: timeZone, Provisioned: false}

	return d.schedule, nil
}

func (d *fakeDestination) CreateShift(_ context.Context, _ string, shift *protocol.DestinationShift) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.createShiftErr != nil {
		return "", d.createShiftErr
	}

	d.nextShiftID++
	id := fmt.Sprintf("shift-%d", d.nextShiftID)

	stored := *shift
	stored.ID = id
	d.shifts[id] = &stored

	return id, nil
}

func (d *fakeDestination) UpdateShift(_ context.Context, _ string, shift *protocol.DestinationShift) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.shifts[shift.ID]; !ok {
		return protocol.ErrNotFound
	}

	stored := *shift
	d.shifts[shift.ID] = &stored

	return nil
}

func (d *fakeDestination) DeleteShift(_ context.Context, _ string, shiftID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.shifts[shiftID]; !ok {
		return protocol.ErrNotFound
	}

	delete(d.shifts, shiftID)

	return nil
}

func (d *fakeDestination) ListShifts(_ context.Context, _ string, from, to time.Time) ([]*protocol.DestinationShift, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var matched []*protocol.DestinationShift

	for _, shift := range d.shifts {
		if shift.StartAt.Before(to) && shift.EndAt.After(from) {
			matched = append(matched, shift)
		}
	}

	return matched, nil
}

func (d *fakeDestination) GetOrCreateSchedulingGroup(_ context.Context, _ string, name string, _ []string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.createGroupCalls++

	if id, ok := d.groups[name]; ok {
		return id, nil
	}

	d.nextGroupID++
	id := fmt.Sprintf("group-%d", d.nextGroupID)
	d.groups[name] = id

	return id, nil
}

func (d *fakeDestination) ListSchedulingGroups(_ context.Context, _ string) (map[string]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.listGroupsCalls++

	listed := make(map[string]string, len(d.groups))
	for name, id := range d.groups {
		listed[name] = id
	}

	return listed, nil
}

func (d *fakeDestination) RemoveSchedulingGroup(_ context.Context, _ string, groupID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for name, id := range d.groups {
		if id == groupID {
			delete(d.groups, name)

			return nil
		}
	}

	return protocol.ErrNotFound
}

func (d *fakeDestination) ShareSchedule(_ context.Context, _ string, start, end time.Time, _ bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.shareWindows = append(d.shareWindows, [2]time.Time{start, end})

	return nil
}

func (d *fakeDestination) ListMembers(_ context.Context, _ string) ([]*models.Member, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.listMembersCalls++

	return d.members, nil
}

func (d *fakeDestination) setCreateShiftErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.createShiftErr = err
}

func (d *fakeDestination) shiftCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.shifts)
}
