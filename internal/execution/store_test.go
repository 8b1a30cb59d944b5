package execution

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_PutGetIsolation(t *testing.T) {
	s, err := NewMemStore()
	require.NoError(t, err)

	rec := &Record{ID: "a", ScenarioID: "phishing_campaign", Status: StatusRunning, Created: 1}
	require.NoError(t, s.Put(rec))

	rec.Status = StatusFailed // must not leak into the store
	got, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)

	got.Progress = 50
	again, err := s.Get("a")
	require.NoError(t, err)
	assert.Zero(t, again.Progress)
}

func TestMemStore_GetMissing(t *testing.T) {
	s, err := NewMemStore()
	require.NoError(t, err)

	_, err = s.Get("nope")
	assert.True(t, errors.Is(err, ErrExecutionNotFound))
}

func TestMemStore_ListByScenario(t *testing.T) {
	s, err := NewMemStore()
	require.NoError(t, err)

	for _, r := range []*Record{
		{ID: "3", ScenarioID: "custom_1", Created: 3},
		{ID: "1", ScenarioID: "custom_1", Created: 1},
		{ID: "2", ScenarioID: "custom_12", Created: 2},
		{ID: "4", ScenarioID: "insider_threat", Created: 4},
	} {
		require.NoError(t, s.Put(r))
	}

	recs, err := s.List("custom_1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "1", recs[0].ID)
	assert.Equal(t, "3", recs[1].ID)

	all, err := s.List("")
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, r := range all {
		assert.Equal(t, int64(i+1), r.Created)
	}

	none, err := s.List("ransomware_attack")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemStore_PutReplaces(t *testing.T) {
	s, err := NewMemStore()
	require.NoError(t, err)

	require.NoError(t, s.Put(&Record{ID: "a", ScenarioID: "x", Status: StatusRunning, Created: 1}))
	require.NoError(t, s.Put(&Record{ID: "a", ScenarioID: "x", Status: StatusCompleted, Created: 1}))

	recs, err := s.List("x")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, StatusCompleted, recs[0].Status)
}
