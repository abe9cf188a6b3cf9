package existence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/orneryd/graphsession/pkg/element"
)

func ids(vals ...int64) []element.ID {
	out := make([]element.ID, len(vals))
	for i, v := range vals {
		out[i] = element.Persistent(v)
	}
	return out
}

func TestTracker_UnknownUntilLoaded(t *testing.T) {
	tr := NewTracker()
	tr.LocalCreation(element.Persistent(1))

	got, ok := tr.Selector()
	assert.False(t, ok, "an incomplete tracker must not claim an exhaustive answer")
	assert.Empty(t, got)
	assert.False(t, tr.Complete())
}

func TestTracker_SelectorAfterCompleteLoad(t *testing.T) {
	tr := NewTracker()
	tr.CompleteLoad(ids(3, 1, 2))

	got, ok := tr.Selector()
	require.True(t, ok)
	assert.Equal(t, ids(1, 2, 3), got)
}

func TestTracker_CreateThenRemoveIsInvisible(t *testing.T) {
	tr := NewTracker()
	tr.CompleteLoad(ids(1, 2))
	before, _ := tr.Selector()

	tmp := element.NewTransientID()
	tr.LocalCreation(tmp)
	withTmp, _ := tr.Selector()
	assert.Contains(t, withTmp, tmp)

	tr.LocalRemoval(tmp)
	after, ok := tr.Selector()
	require.True(t, ok)
	assert.Equal(t, before, after)
	added, removed := tr.Pending()
	assert.Zero(t, added)
	assert.Zero(t, removed)
}

func TestTracker_RemoveThenRecreateRetracts(t *testing.T) {
	tr := NewTracker()
	tr.CompleteLoad(ids(1, 2))
	tr.LocalRemoval(element.Persistent(1))
	got, _ := tr.Selector()
	assert.Equal(t, ids(2), got)

	tr.LocalCreation(element.Persistent(1))
	got, _ = tr.Selector()
	assert.Equal(t, ids(1, 2), got)
}

func TestTracker_CommitAndRollback(t *testing.T) {
	tr := NewTracker()
	tr.CompleteLoad(ids(1, 2))

	tr.LocalCreation(element.Persistent(3))
	tr.LocalRemoval(element.Persistent(1))
	tr.Rollback()
	got, _ := tr.Selector()
	assert.Equal(t, ids(1, 2), got)

	tr.LocalCreation(element.Persistent(3))
	tr.LocalRemoval(element.Persistent(1))
	tr.Commit()
	got, _ = tr.Selector()
	assert.Equal(t, ids(2, 3), got)
	tr.Rollback()
	got, _ = tr.Selector()
	assert.Equal(t, ids(2, 3), got, "rollback after commit changes nothing")
}

func TestTracker_CompleteLoadKeepsPendingAdditionsInDiff(t *testing.T) {
	tr := NewTracker()
	tr.LocalCreation(element.Persistent(9))
	tr.CompleteLoad(ids(1, 9))

	got, _ := tr.Selector()
	assert.Equal(t, ids(1, 9), got)

	tr.Rollback()
	got, _ = tr.Selector()
	assert.Equal(t, ids(1), got)
}

func TestOverlay_ReadsThroughAndPromotes(t *testing.T) {
	root := NewTracker()
	root.CompleteLoad(ids(1, 2))

	s1 := root.Overlay()
	s2 := root.Overlay()

	s1.LocalCreation(element.Persistent(3))
	s1.LocalRemoval(element.Persistent(1))

	got, ok := s1.Selector()
	require.True(t, ok)
	assert.Equal(t, ids(2, 3), got)
	got, _ = s2.Selector()
	assert.Equal(t, ids(1, 2), got, "diff is private to the session")

	s1.Commit()

	got, _ = root.Selector()
	assert.Equal(t, ids(2, 3), got)
	got, _ = s2.Selector()
	assert.Equal(t, ids(2, 3), got)
}

func TestOverlay_PropagatesCompleteness(t *testing.T) {
	root := NewTracker()
	s := root.Overlay()

	_, ok := s.Selector()
	require.False(t, ok)

	s.CompleteLoad(ids(5, 6))
	got, ok := s.Selector()
	require.True(t, ok)
	assert.Equal(t, ids(5, 6), got)
	assert.False(t, root.Complete(), "not shared before commit")

	s.Commit()
	assert.True(t, root.Complete())
	got, _ = root.Selector()
	assert.Equal(t, ids(5, 6), got)
	assert.True(t, s.Complete(), "overlay reads the promoted baseline")
}

func TestOverlay_Rename(t *testing.T) {
	root := NewTracker()
	root.CompleteLoad(nil)
	s := root.Overlay()
	tmp := element.NewTransientID()
	s.LocalCreation(tmp)

	s.Rename(tmp, element.Persistent(11))
	s.Commit()

	got, _ := root.Selector()
	assert.Equal(t, ids(11), got)
}

func TestOverlay_ConcurrentCommits(t *testing.T) {
	root := NewTracker()
	root.CompleteLoad(nil)

	var eg errgroup.Group
	for i := 0; i < 100; i++ {
		eg.Go(func() error {
			s := root.Overlay()
			s.LocalCreation(element.Persistent(int64(i)))
			_, _ = s.Selector()
			s.Commit()
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	got, ok := root.Selector()
	require.True(t, ok)
	assert.Len(t, got, 100)
}

func TestRegistry_LabelsAndOverlay(t *testing.T) {
	root := NewRegistry()
	root.Tracker(AllClass).CompleteLoad(ids(1))
	root.Tracker("Person").CompleteLoad(ids(1))

	s := root.Overlay()
	tmp := element.NewTransientID()
	s.Created(tmp, []string{"Person", "Admin"})

	got, ok := s.Tracker("Person").Selector()
	require.True(t, ok)
	assert.Equal(t, []element.ID{element.Persistent(1), tmp}, got)
	_, ok = s.Tracker("Admin").Selector()
	assert.False(t, ok, "Admin was never loaded")

	s.Relabeled(tmp, []string{"Person", "Admin"}, []string{"Admin", "Robot"})
	got, _ = s.Tracker("Person").Selector()
	assert.Equal(t, ids(1), got)

	s.Rename(tmp, element.Persistent(2))
	s.Commit()
	got, _ = root.Tracker(AllClass).Selector()
	assert.Equal(t, ids(1, 2), got)
	assert.Equal(t, []string{"", "Admin", "Person", "Robot"}, root.Classes())
}

func TestOverlay_StaleSnapshotMergesIntoParent(t *testing.T) {
	root := NewTracker()
	a := root.Overlay()
	a.CompleteLoad(ids(1, 2))

	b := root.Overlay()
	b.LocalCreation(element.Persistent(3))
	b.Commit()
	assert.False(t, root.Complete())

	a.Commit()
	got, ok := root.Selector()
	require.True(t, ok)
	assert.Equal(t, ids(1, 2, 3), got, "ids committed by other sessions survive the snapshot")
}

func TestOverlay_StaleSnapshotCannotResurrectRemovals(t *testing.T) {
	root := NewTracker()
	a := root.Overlay()
	a.CompleteLoad(ids(1, 2))

	b := root.Overlay()
	b.LocalRemoval(element.Persistent(2))
	b.Commit()

	a.Commit()
	got, ok := root.Selector()
	require.True(t, ok)
	assert.Equal(t, ids(1), got)
}

func TestOverlay_CompleteParentWinsOverSnapshot(t *testing.T) {
	root := NewTracker()
	a := root.Overlay()
	a.CompleteLoad(ids(1))

	c := root.Overlay()
	c.CompleteLoad(ids(1))
	c.Commit()

	b := root.Overlay()
	b.LocalCreation(element.Persistent(2))
	b.Commit()

	got, ok := a.Selector()
	require.True(t, ok)
	assert.Equal(t, ids(1, 2), got, "the overlay reads the current parent")

	a.Commit()
	got, _ = root.Selector()
	assert.Equal(t, ids(1, 2), got)
}
