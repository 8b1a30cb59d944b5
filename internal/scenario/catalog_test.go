package scenario

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sortie/internal/core"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()

	ids := c.IDs()
	assert.Contains(t, ids, "phishing_campaign")
	assert.Contains(t, ids, "ransomware_attack")
	assert.Contains(t, ids, "insider_threat")
	assert.Contains(t, ids, "enterprise_attack_10min")

	tpl, err := c.Get("phishing_campaign")
	require.NoError(t, err)
	assert.Len(t, tpl.Phases, 3)
	assert.Equal(t, 30*time.Minute, tpl.TotalDuration())
}

func TestCatalog_GetReturnsCopy(t *testing.T) {
	c := DefaultCatalog()

	tpl, err := c.Get("insider_threat")
	require.NoError(t, err)
	tpl.Phases[0].Sources[0] = "tampered"
	tpl.Phases = nil

	again, err := c.Get("insider_threat")
	require.NoError(t, err)
	assert.Equal(t, "microsoft_365_collaboration", again.Phases[0].Sources[0])
}

func TestCatalog_GetUnknown(t *testing.T) {
	_, err := DefaultCatalog().Get("nope")
	assert.ErrorIs(t, err, ErrScenarioNotFound)
}

func TestCatalog_AddRejectsDuplicatesAndInvalid(t *testing.T) {
	c := DefaultCatalog()

	err := c.Add(Builtins()[0])
	assert.ErrorIs(t, err, ErrDuplicateScenario)

	err = c.Add(Template{ID: "empty"})
	assert.ErrorIs(t, err, ErrEmptyTemplate)
}

func TestCatalog_ListSearch(t *testing.T) {
	c := DefaultCatalog()

	all := c.List("")
	assert.Len(t, all, len(Builtins()))
	assert.Equal(t, "phishing_campaign", all[0].ID)
	assert.Equal(t, 3, all[0].PhaseCount)

	found := c.List("RANSOM")
	require.Len(t, found, 1)
	assert.Equal(t, "ransomware_attack", found[0].ID)
	assert.Equal(t, 75*time.Minute, found[0].EstimatedDuration)
	assert.Equal(t, []string{"crowdstrike_falcon", "microsoft_windows_eventlog", "veeam_backup", "mimecast"}, found[0].Sources)

	assert.Empty(t, c.List("does-not-exist"))
}

func TestCatalog_CreateCustom(t *testing.T) {
	clock := core.NewFakeClock(time.Unix(1700000000, 0))
	c, err := NewCatalog(clock)
	require.NoError(t, err)

	def := map[string]any{
		"name":        "Token theft",
		"description": "stolen session replay",
		"phases": []any{
			map[string]any{"name": "Phish", "generators": []any{"proofpoint"}, "duration": 5},
			map[string]any{"name": "Replay", "sources": []string{"okta_authentication", "netskope"}, "duration": "90s"},
		},
	}

	id, err := c.CreateCustom(def)
	require.NoError(t, err)
	assert.Equal(t, "custom_1700000000", id)

	id2, err := c.CreateCustom(def)
	require.NoError(t, err)
	assert.Equal(t, "custom_1700000000_2", id2)

	tpl, err := c.Get(id)
	require.NoError(t, err)
	assert.True(t, tpl.Custom)
	assert.Equal(t, []string{"proofpoint"}, tpl.Phases[0].Sources)
	assert.Equal(t, 5*time.Minute, tpl.Phases[0].Duration)
	assert.Equal(t, 90*time.Second, tpl.Phases[1].Duration)
}

func TestDecodeCustom_Invalid(t *testing.T) {
	tests := []struct {
		name string
		def  map[string]any
	}{
		{"missing name", map[string]any{"phases": []any{map[string]any{"name": "p"}}}},
		{"no phases", map[string]any{"name": "x"}},
		{"unknown key", map[string]any{"name": "x", "colour": "red"}},
		{"bad duration", map[string]any{"name": "x", "phases": []any{map[string]any{"name": "p", "duration": "soon"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCustom(tt.def)
			assert.Error(t, err)
		})
	}
}
