package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-engine/internal/models"
)

func TestGroupRows(t *testing.T) {
	base := time.Date(2026, 3, 9, 23, 58, 0, 0, time.UTC)
	msgs := []models.Message{
		{ID: "1", UserID: "alice", CreatedAt: base},
		{ID: "2", UserID: "alice", CreatedAt: base.Add(30 * time.Second)},
		{ID: "3", UserID: "alice", CreatedAt: base.Add(100 * time.Second)},
		{ID: "4", UserID: "bob", CreatedAt: base.Add(130 * time.Second)},
		{ID: "5", UserID: "bob", CreatedAt: base.Add(170 * time.Second)},
		{ID: "6", UserID: "bob", CreatedAt: base.Add(175 * time.Second), SystemFlag: true},
	}

	rows := GroupRows(msgs, time.Minute, time.UTC)
	require.Len(t, rows, 6)

	assert.False(t, rows[0].Grouped)
	assert.Nil(t, rows[0].DateSeparator)
	assert.True(t, rows[1].Grouped)
	assert.False(t, rows[2].Grouped, "70s gap breaks the group")

	require.NotNil(t, rows[3].DateSeparator, "crossed midnight")
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), *rows[3].DateSeparator)
	assert.False(t, rows[3].Grouped)

	assert.True(t, rows[4].Grouped)
	assert.False(t, rows[5].Grouped, "system messages are never grouped")
}

func TestGroupRowsUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	a := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	b := a.Add(30 * time.Second)
	c := time.Date(2026, 3, 10, 5, 30, 0, 0, time.UTC)

	rows := GroupRows([]models.Message{
		{ID: "1", UserID: "u", CreatedAt: a},
		{ID: "2", UserID: "u", CreatedAt: b},
		{ID: "3", UserID: "u", CreatedAt: c},
	}, time.Minute, loc)

	assert.True(t, rows[1].Grouped)
	require.NotNil(t, rows[2].DateSeparator)
	assert.Equal(t, 10, rows[2].DateSeparator.Day())
}

func TestGroupRowsEmpty(t *testing.T) {
	assert.Empty(t, GroupRows(nil, time.Minute, nil))
}
