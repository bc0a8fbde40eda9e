package activities

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shiftbridge/shiftbridge/pkg/delta"
	"github.com/shiftbridge/shiftbridge/pkg/models"
	"github.com/shiftbridge/shiftbridge/pkg/orchestrator"
	"github.com/shiftbridge/shiftbridge/pkg/overlay"
	"github.com/shiftbridge/shiftbridge/pkg/protocol"
)

// errUnresolved classifies a record whose employee or job reference cannot
// be mapped to the destination. Such records are skipped, not failed; the
// sync continues without them.
var errUnresolved = errors.New("reference unresolved in destination")

type opKind int

const (
	opCreate opKind = iota
	opUpdate
	opDelete
)

type deltaOp struct {
	kind   opKind
	record *models.ShiftRecord
}

// syncWeek applies one batch of the week's delta. The stored snapshot is the
// delta's "from" side; applied changes are folded back into it after the
// batch, so a re-execution of the same invocation recomputes a smaller delta
// and converges instead of duplicating effects.
func (e *Executor) syncWeek(ctx context.Context, input json.RawMessage) (any, error) {
	in, err := decode[orchestrator.SyncWeekInput](input)
	if err != nil {
		return nil, err
	}

	team, weekStart := in.Team, in.WeekStart

	snapshot, err := e.persist.SnapshotRepository().Get(ctx, team.ID, weekStart)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	sourceRecords, err := e.source.ListWeekShifts(ctx, team, weekStart)
	if err != nil {
		return nil, fmt.Errorf("failed to list source shifts: %w", err)
	}

	result := delta.Compute(snapshot, sourceRecords)
	if result.Empty() {
		return orchestrator.SyncWeekResult{Finished: true}, nil
	}

	ops := make([]deltaOp, 0, result.Size())
	for _, record := range result.Created {
		ops = append(ops, deltaOp{kind: opCreate, record: record})
	}

	for _, record := range result.Updated {
		ops = append(ops, deltaOp{kind: opUpdate, record: record})
	}

	for _, record := range result.Deleted {
		ops = append(ops, deltaOp{kind: opDelete, record: record})
	}

	finished := len(ops) <= team.BatchSize
	if !finished {
		ops = ops[:team.BatchSize]
	}

	var (
		counts   models.SyncCounts
		earliest time.Time
		latest   time.Time
	)

	for _, op := range ops {
		switch op.kind {
		case opCreate, opUpdate:
			applied, err := e.applyUpsert(ctx, team, op)
			if err != nil {
				if errors.Is(err, errUnresolved) {
					counts.Skipped++

					e.logger.InfoContext(ctx, "Skipping shift with unresolved reference",
						"team_id", team.ID, "source_id", op.record.SourceID, "reason", err)
				} else {
					counts.Failed++

					e.logger.ErrorContext(ctx, "Failed to apply shift",
						"team_id", team.ID, "source_id", op.record.SourceID, "error", err)
				}

				continue
			}

			snapshot = foldUpsert(snapshot, op.record)

			if op.kind == opCreate {
				counts.Created++

				if earliest.IsZero() || applied.StartAt.Before(earliest) {
					earliest = applied.StartAt
				}

				if applied.EndAt.After(latest) {
					latest = applied.EndAt
				}
			} else {
				counts.Updated++
			}

		case opDelete:
			err := e.applyDelete(ctx, team, op.record)
			if err != nil {
				counts.Failed++

				e.logger.ErrorContext(ctx, "Failed to delete shift",
					"team_id", team.ID, "source_id", op.record.SourceID, "error", err)

				continue
			}

			snapshot = foldRemove(snapshot, op.record.SourceID)
			counts.Deleted++
		}
	}

	err = e.persist.SnapshotRepository().Save(ctx, team.ID, weekStart, snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}

	return orchestrator.SyncWeekResult{
		Finished:      finished,
		Counts:        counts,
		EarliestStart: earliest,
		LatestEnd:     latest,
	}, nil
}

// applyUpsert resolves references, maps the record through the overlay
// resolver and creates or updates the destination shift. On success the
// record carries the (possibly fresh) destination ids.
func (e *Executor) applyUpsert(ctx context.Context, team *models.Team, op deltaOp) (*protocol.DestinationShift, error) {
	record := op.record

	memberID, err := e.resolveMember(ctx, team, record)
	if err != nil {
		return nil, err
	}

	groupID, err := e.resolveGroup(ctx, team, record, memberID)
	if err != nil {
		return nil, err
	}

	shift := buildDestinationShift(team, record, memberID, groupID)

	if op.kind == opCreate {
		id, err := e.destination.CreateShift(ctx, team.ID, shift)
		if err != nil {
			return nil, err
		}

		record.DestinationID = id
	} else {
		err = e.destination.UpdateShift(ctx, team.ID, shift)
		if err != nil {
			return nil, err
		}
	}

	record.Employee.DestinationID = memberID
	record.Group.DestinationID = groupID

	return shift, nil
}

// applyDelete removes the destination shift. A shift already gone
// downstream counts as deleted.
func (e *Executor) applyDelete(ctx context.Context, team *models.Team, record *models.ShiftRecord) error {
	if record.DestinationID == "" {
		return nil
	}

	err := e.destination.DeleteShift(ctx, team.ID, record.DestinationID)
	if err != nil && !errors.Is(err, protocol.ErrNotFound) {
		return err
	}

	return nil
}

// resolveMember maps the record's employee to a destination member id,
// trusting a carried destination reference when present.
func (e *Executor) resolveMember(ctx context.Context, team *models.Team, record *models.ShiftRecord) (string, error) {
	if record.Employee.DestinationID != "" {
		return record.Employee.DestinationID, nil
	}

	login, err := e.source.GetEmployee(ctx, team, record.Employee.SourceID)
	if err != nil {
		if errors.Is(err, protocol.ErrNotFound) {
			return "", fmt.Errorf("employee %s: %w", record.Employee.SourceID, errUnresolved)
		}

		return "", err
	}

	member, ok, err := e.members.GetOrLoad(ctx, team.ID, login, func(ctx context.Context) (map[string]*models.Member, error) {
		listed, listErr := e.destination.ListMembers(ctx, team.ID)
		if listErr != nil {
			return nil, listErr
		}

		byLogin := make(map[string]*models.Member, len(listed))
		for _, m := range listed {
			byLogin[m.Login] = m
		}

		return byLogin, nil
	})
	if err != nil {
		return "", err
	}

	if !ok {
		return "", fmt.Errorf("member %s: %w", login, errUnresolved)
	}

	return member.ID, nil
}

// resolveGroup maps the record's job reference to a destination scheduling
// group, creating the group when the destination has none by that name.
// Group membership is shared mutable state across team instances; the
// create path retries on conflict.
func (e *Executor) resolveGroup(ctx context.Context, team *models.Team, record *models.ShiftRecord, memberID string) (string, error) {
	if record.Group.DestinationID != "" {
		return record.Group.DestinationID, nil
	}

	name, err := e.source.GetJob(ctx, team, record.Group.SourceRef)
	if err != nil {
		if errors.Is(err, protocol.ErrNotFound) {
			return "", fmt.Errorf("job %s: %w", record.Group.SourceRef, errUnresolved)
		}

		return "", err
	}

	id, ok, err := e.groups.GetOrLoad(ctx, team.ID, name, func(ctx context.Context) (map[string]string, error) {
		return e.destination.ListSchedulingGroups(ctx, team.ID)
	})
	if err != nil {
		return "", err
	}

	if ok {
		return id, nil
	}

	err = e.conflictRetry.Do(ctx, func(ctx context.Context) error {
		created, createErr := e.destination.GetOrCreateSchedulingGroup(ctx, team.ID, name, []string{memberID})
		if createErr != nil {
			return createErr
		}

		id = created

		return nil
	})
	if err != nil {
		return "", err
	}

	e.groups.Put(team.ID, name, id)

	return id, nil
}

// buildDestinationShift maps a source record to its destination form, with
// the resolved non-overlapping activity timeline.
func buildDestinationShift(team *models.Team, record *models.ShiftRecord, memberID, groupID string) *protocol.DestinationShift {
	var theme string
	if len(record.Jobs) > 0 {
		theme = record.Jobs[0].Theme
	}

	return &protocol.DestinationShift{
		ID:         record.DestinationID,
		MemberID:   memberID,
		GroupID:    groupID,
		StartAt:    record.StartAt,
		EndAt:      record.EndAt,
		Theme:      theme,
		Draft:      team.DraftMode,
		Activities: overlay.Resolve(overlay.MergeShiftEntries(record)),
	}
}

func foldUpsert(snapshot []*models.ShiftRecord, record *models.ShiftRecord) []*models.ShiftRecord {
	for i, existing := range snapshot {
		if existing.SourceID == record.SourceID {
			snapshot[i] = record

			return snapshot
		}
	}

	return append(snapshot, record)
}

func foldRemove(snapshot []*models.ShiftRecord, sourceID string) []*models.ShiftRecord {
	for i, existing := range snapshot {
		if existing.SourceID == sourceID {
			return append(snapshot[:i], snapshot[i+1:]...)
		}
	}

	return snapshot
}
