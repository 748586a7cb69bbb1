package statebox_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reactorflow/engine/statebox"
)

type taskState struct {
	Done  bool     `json:"done"`
	Tasks []string `json:"tasks"`
}

func TestSnapshotIsIsolatedFromMutation(t *testing.T) {
	box, err := statebox.New(taskState{Tasks: []string{"a"}})
	require.NoError(t, err)

	snap := box.Snapshot()
	snap.Tasks[0] = "mutated"
	snap.Done = true

	fresh := box.Snapshot()
	require.Equal(t, "a", fresh.Tasks[0])
	require.False(t, fresh.Done)
}

func TestUpdateInstallsNewValue(t *testing.T) {
	box, err := statebox.New(taskState{})
	require.NoError(t, err)

	err = box.Update(func(draft *taskState) error {
		draft.Done = true
		draft.Tasks = append(draft.Tasks, "T1")
		return nil
	})
	require.NoError(t, err)

	snap := box.Snapshot()
	require.True(t, snap.Done)
	require.Equal(t, []string{"T1"}, snap.Tasks)
}

func TestUpdateRollsBackOnError(t *testing.T) {
	box, err := statebox.New(taskState{Tasks: []string{"keep"}})
	require.NoError(t, err)

	sentinel := errors.New("boom")
	err = box.Update(func(draft *taskState) error {
		draft.Tasks = append(draft.Tasks, "discarded")
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	snap := box.Snapshot()
	require.Equal(t, []string{"keep"}, snap.Tasks)
}
