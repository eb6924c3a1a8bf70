package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusNamesRoundTrip(t *testing.T) {
	seen := map[string]bool{}
	for _, s := range AllStatuses {
		name := s.String()
		require.False(t, seen[name], "duplicate status name %s", name)
		seen[name] = true
		parsed, err := ParseStatus(name)
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := ParseStatus("archived")
	assert.Error(t, err)
}

func TestTerminalStatuses(t *testing.T) {
	terminal := map[Status]bool{StatusCompleted: true, StatusCancelled: true, StatusResolved: true}
	for _, s := range AllStatuses {
		assert.Equal(t, terminal[s], s.IsTerminal(), s.String())
	}
	assert.Panics(t, func() { Status(42).IsTerminal() })
}

func TestStatusJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		S Status `json:"s"`
	}{StatusInProgress})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"in_progress"}`, string(b))

	_, err = json.Marshal(Status(0))
	assert.Error(t, err)
}

func TestParseResolution(t *testing.T) {
	r, err := ParseResolution(0)
	require.NoError(t, err)
	assert.Equal(t, ResolutionClient, r)
	r, err = ParseResolution(1)
	require.NoError(t, err)
	assert.Equal(t, ResolutionFreelancer, r)
	for _, code := range []int{-1, 2, 255} {
		_, err := ParseResolution(code)
		assert.Error(t, err, "code %d", code)
	}
}

func TestParseAmount(t *testing.T) {
	a, err := ParseAmount("1000")
	require.NoError(t, err)
	assert.Equal(t, "1000", a.String())
	assert.Equal(t, 1, a.Sign())

	max, err := ParseAmount(MaxAmount.String())
	require.NoError(t, err)
	assert.Equal(t, 0, max.Big().Cmp(MaxAmount))

	for _, bad := range []string{"", "-1", "1.5", "0x10", "115792089237316195423570985008687907853269984665640564039457584007913129639936"} {
		_, err := ParseAmount(bad)
		assert.Error(t, err, bad)
	}

	var zero Amount
	assert.True(t, zero.IsZero())
	assert.Equal(t, "0", zero.String())
}

func TestAmountIsolation(t *testing.T) {
	a := NewAmount(7)
	b := a.Big()
	b.SetInt64(99)
	assert.Equal(t, "7", a.String())
}
