// Package file provides file-based persistence for teams, snapshots and
// orchestration instances. Suitable for development and single-node
// deployments.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/shiftbridge/shiftbridge/pkg/persistence"
)

// Persistence implements persistence.Persistence on the file system.
type Persistence struct {
	root         string
	teamRepo     *TeamRepository
	snapshotRepo *SnapshotRepository
	instanceRepo *InstanceRepository
}

// NewPersistence creates a file persistence rooted at the given directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:         cleanRoot,
		teamRepo:     NewTeamRepository(cleanRoot),
		snapshotRepo: NewSnapshotRepository(cleanRoot),
		instanceRepo: NewInstanceRepository(cleanRoot),
	}
}

func (fp *Persistence) TeamRepository() persistence.TeamRepository {
	return fp.teamRepo
}

func (fp *Persistence) SnapshotRepository() persistence.SnapshotRepository {
	return fp.snapshotRepo
}

func (fp *Persistence) InstanceRepository() persistence.InstanceRepository {
	return fp.instanceRepo
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. Nothing to do for files.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}
