package projectstore_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-wind-001/CodeRecoder/apierr"
	"github.com/snow-wind-001/CodeRecoder/projectstore"
)

func snap(saveNumber int, kind projectstore.Kind, changed ...string) projectstore.ProjectSnapshot {
	return projectstore.ProjectSnapshot{SaveNumber: saveNumber, Kind: kind, ChangedFiles: changed}
}

func allNonEmpty(projectstore.ProjectSnapshot) bool { return true }

func saveNumbers(chain []projectstore.ProjectSnapshot) []int {
	numbers := make([]int, len(chain))
	for i, s := range chain {
		numbers[i] = s.SaveNumber
	}

	return numbers
}

func assertChain(t *testing.T, want []int, chain []projectstore.ProjectSnapshot) {
	t.Helper()

	if diff := cmp.Diff(want, saveNumbers(chain)); diff != "" {
		t.Fatalf("resolved chain mismatch (-want +got):\n%s", diff)
	}
}

func TestPlan_TargetIsFull(t *testing.T) {
	snapshots := []projectstore.ProjectSnapshot{
		snap(1, projectstore.Full, "*"),
		snap(2, projectstore.Incremental, "a.txt"),
	}

	chain, err := projectstore.Plan(snapshots, 1, allNonEmpty)
	require.NoError(t, err)
	require.Len(t, chain, 1)
	assert.Equal(t, 1, chain[0].SaveNumber)
}

func TestPlan_ChainsThroughIncrementals(t *testing.T) {
	// full_save_interval = 3: saves 1(full) 2(inc) 3(inc) 4(full) 5(inc) 6(inc) 7(full)
	snapshots := []projectstore.ProjectSnapshot{
		snap(1, projectstore.Full, "*"),
		snap(2, projectstore.Incremental, "a.txt"),
		snap(3, projectstore.Incremental, "b.txt"),
		snap(4, projectstore.Full, "*"),
		snap(5, projectstore.Incremental, "c.txt"),
		snap(6, projectstore.Incremental, "d.txt"),
		snap(7, projectstore.Full, "*"),
	}

	chain, err := projectstore.Plan(snapshots, 6, allNonEmpty)
	require.NoError(t, err)

	assertChain(t, []int{4, 5, 6}, chain)
}

func TestPlan_SkipsEmptyIncrementalInChain(t *testing.T) {
	snapshots := []projectstore.ProjectSnapshot{
		snap(1, projectstore.Full, "*"),
		snap(2, projectstore.Incremental, "a.txt"),
		snap(3, projectstore.Incremental, "b.txt"),
	}

	nonEmpty := func(s projectstore.ProjectSnapshot) bool { return s.SaveNumber != 2 }

	chain, err := projectstore.Plan(snapshots, 3, nonEmpty)
	require.NoError(t, err)

	assertChain(t, []int{1, 3}, chain)
}

func TestPlan_DegradedRecoverySkipsCorruptFullInPrefix(t *testing.T) {
	// scenario 3: snapshot 5 corrupted (full), restoring 6 should replan
	// around it using an earlier full.
	snapshots := []projectstore.ProjectSnapshot{
		snap(1, projectstore.Full, "*"),
		snap(2, projectstore.Incremental, "a.txt"),
		snap(3, projectstore.Incremental, "b.txt"),
		snap(4, projectstore.Incremental, "c.txt"),
		snap(5, projectstore.Full, "*"),
		snap(6, projectstore.Incremental, "d.txt"),
	}

	nonEmpty := func(s projectstore.ProjectSnapshot) bool { return s.SaveNumber != 5 }

	chain, err := projectstore.Plan(snapshots, 6, nonEmpty)
	require.NoError(t, err)

	assertChain(t, []int{1, 2, 3, 4, 6}, chain)
}

func TestPlan_TargetFullButCorrupt(t *testing.T) {
	snapshots := []projectstore.ProjectSnapshot{snap(1, projectstore.Full, "*")}

	_, err := projectstore.Plan(snapshots, 1, func(projectstore.ProjectSnapshot) bool { return false })
	require.Error(t, err)
	assert.Equal(t, apierr.Corrupt, apierr.KindOf(err))
}

func TestPlan_NoUsableFullIsNoBaseline(t *testing.T) {
	snapshots := []projectstore.ProjectSnapshot{
		snap(1, projectstore.Full, "*"),
		snap(2, projectstore.Incremental, "a.txt"),
	}

	nonEmpty := func(s projectstore.ProjectSnapshot) bool { return s.SaveNumber != 1 }

	_, err := projectstore.Plan(snapshots, 2, nonEmpty)
	require.Error(t, err)
	assert.Equal(t, apierr.NoBaseline, apierr.KindOf(err))
}

func TestPlan_UnknownTargetIsNotFound(t *testing.T) {
	snapshots := []projectstore.ProjectSnapshot{snap(1, projectstore.Full, "*")}

	_, err := projectstore.Plan(snapshots, 99, allNonEmpty)
	require.Error(t, err)
	assert.Equal(t, apierr.NotFound, apierr.KindOf(err))
}
