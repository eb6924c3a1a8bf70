package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeadline(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := parseDeadline("72h", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(72*time.Hour), got)

	got, err = parseDeadline("2026-02-01T10:00:00+02:00", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC), got)

	_, err = parseDeadline("next week", now)
	assert.Error(t, err)
}

func TestParseTicketID(t *testing.T) {
	id, err := parseTicketID("42")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)

	for _, bad := range []string{"0", "-1", "abc", ""} {
		_, err := parseTicketID(bad)
		assert.Error(t, err, bad)
	}
}
