package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/arcmgr/internal/catalog"
	"github.com/bamsammich/arcmgr/internal/inventory"
)

// twoFileScopes registers n scopes of two files each under OPS/red/rN/p01.
func twoFileScopes(f *fixture, n int) []int64 {
	ids := make([]int64, n)
	for i := range n {
		rel := fmt.Sprintf("OPS/red/r%d/p01", i+1)
		ids[i] = f.addScope(rel, catalog.StateActive)
		f.addFile(ids[i], rel, "a.fits", fmt.Sprintf("image a%d", i), "raw")
		f.addFile(ids[i], rel, "b.fits.fz", fmt.Sprintf("image b%d", i), "raw")
	}
	return ids
}

// migrateWork runs a real Migrator on each worker's own catalog connection
// and records the outcome per scope.
func migrateWork(f *fixture, confirm func(context.Context, string, *MigrateOutcome) (bool, error)) (WorkFunc, func(string) *MigrateOutcome) {
	var (
		mu       sync.Mutex
		outcomes = map[string]*MigrateOutcome{}
	)
	fn := func(ctx context.Context, w *Worker, t Target) error {
		m := NewMigrator(MigrateConfig{
			Archive:     testArchive,
			Root:        f.root,
			Destination: "moved",
			Algorithm:   inventory.BLAKE3,
			SideFiles:   SideFiles{Dir: f.reports},
			Confirm:     confirm,
		}, w.Store, w.Emit)
		out, err := m.Migrate(ctx, t)
		mu.Lock()
		outcomes[t.Key()] = out
		mu.Unlock()
		return err
	}
	get := func(key string) *MigrateOutcome {
		mu.Lock()
		defer mu.Unlock()
		return outcomes[key]
	}
	return fn, get
}

func TestParallelMigrationsWhileOnePrompts(t *testing.T) {
	f := newFixture(t)
	ids := twoFileScopes(f, 2)

	prompting := make(chan struct{})
	secondDone := make(chan struct{})
	confirm := func(ctx context.Context, scope string, _ *MigrateOutcome) (bool, error) {
		if scope != fmt.Sprint(ids[0]) {
			close(secondDone)
			return true, nil
		}
		close(prompting)
		select {
		case <-secondDone:
			return true, nil
		case <-time.After(20 * time.Second):
			return false, errors.New("second scope never reached the prompt")
		}
	}
	work, outcome := migrateWork(f, confirm)

	// The second scope starts only once the first is waiting on its prompt,
	// so its catalog update runs while the first scope's is already applied.
	staggered := func(ctx context.Context, w *Worker, tg Target) error {
		if tg.ID == ids[1] {
			select {
			case <-prompting:
			case <-time.After(20 * time.Second):
				return errors.New("first scope never prompted")
			}
		}
		return work(ctx, w, tg)
	}

	c := NewCoordinator(CoordinatorConfig{Workers: 2, Open: f.open, SideFiles: SideFiles{Dir: f.reports}})
	res := c.Run(context.Background(), targets(ids...), staggered)
	require.NoError(t, res.Err)

	for i, id := range ids {
		out := outcome(fmt.Sprint(id))
		require.NotNil(t, out)
		assert.Equal(t, PhaseDone, out.Phase)
		want := fmt.Sprintf("moved/OPS/red/r%d/p01", i+1)
		for name, p := range f.catalogPaths(id) {
			assert.Equal(t, want, p, name)
		}
		info, err := f.store.ScopeInfo(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, want, info.RelPath)
	}
}

func TestParallelMigrationsInterrupted(t *testing.T) {
	f := newFixture(t)
	ids := twoFileScopes(f, 3)
	before := snapshotTree(t, f.root)
	pathsBefore := make(map[int64]map[string]string, len(ids))
	for _, id := range ids {
		pathsBefore[id] = f.catalogPaths(id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	arrived := make(chan string, len(ids))
	go func() {
		for range ids {
			<-arrived
		}
		cancel()
	}()

	// Every scope holds at the prompt, after its catalog update, until the
	// interrupt lands.
	confirm := func(cctx context.Context, scope string, _ *MigrateOutcome) (bool, error) {
		arrived <- scope
		select {
		case <-cctx.Done():
			return true, nil
		case <-time.After(20 * time.Second):
			return false, errors.New("interrupt never arrived")
		}
	}
	work, outcome := migrateWork(f, confirm)

	c := NewCoordinator(CoordinatorConfig{Workers: 3, Open: f.open, SideFiles: SideFiles{Dir: f.reports}})
	res := c.Run(ctx, targets(ids...), work)
	require.ErrorIs(t, res.Err, ErrInterrupted)

	require.Len(t, res.Outcomes, len(ids))
	for _, o := range res.Outcomes {
		assert.ErrorIs(t, o.Err, ErrInterrupted, o.Target.Key())
		assert.False(t, o.Skipped, o.Target.Key())
		out := outcome(o.Target.Key())
		require.NotNil(t, out)
		assert.Equal(t, PhaseRolledBack, out.Phase, o.Target.Key())
	}

	assert.Equal(t, before, snapshotTree(t, f.root))
	for i, id := range ids {
		assert.Equal(t, pathsBefore[id], f.catalogPaths(id))
		info, err := f.store.ScopeInfo(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("OPS/red/r%d/p01", i+1), info.RelPath)
	}
}

func TestMigrateDeclineRestoresCommittedPaths(t *testing.T) {
	f := newFixture(t)
	id := fiveFileScope(f)
	pathsBefore := f.catalogPaths(id)

	var during map[string]string
	m, s := newTestMigrator(f, func(c *MigrateConfig) {
		c.Confirm = func(context.Context, string, *MigrateOutcome) (bool, error) {
			during = f.catalogPaths(id)
			return false, nil
		}
	})
	out, err := m.Migrate(context.Background(), Target{ID: id})
	require.NoError(t, err)
	assert.True(t, out.Declined)

	// The update is visible to other connections while the prompt is open.
	for name, p := range during {
		assert.Contains(t, p, "moved/", name)
	}
	assert.Equal(t, pathsBefore, f.catalogPaths(id))
	info, err := f.store.ScopeInfo(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, scopePath, info.RelPath)
	assert.Equal(t, int64(1), s.Snapshot().Rollbacks)
}
