package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chronicle/internal/payload"
)

func TestParseEntityType(t *testing.T) {
	tests := []struct {
		input    string
		expected EntityType
	}{
		{"player", Player},
		{"Player", Player},
		{"GLOBAL_EVENTS", GlobalEvents},
		{"offseason-setup", OffseasonSetup},
		{"12", Standings},
		{"availableChampionBets", AvailableChampionBets},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseEntityType(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	_, err := ParseEntityType("nope")
	assert.Error(t, err)
	_, err = ParseEntityType("0")
	assert.Error(t, err)
	_, err = ParseEntityType("999")
	assert.Error(t, err)
}

func TestEntityTypes_AllValidAndNamed(t *testing.T) {
	types := EntityTypes()
	assert.Len(t, types, 42)
	for _, et := range types {
		assert.True(t, et.Valid())
		parsed, err := ParseEntityType(et.String())
		require.NoError(t, err)
		assert.Equal(t, et, parsed)
	}
	assert.Equal(t, "77", EntityType(77).String())
}

func TestEntityType_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Type EntityType `json:"type"`
	}{Team})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"team"}`, string(data))

	var out struct {
		Type EntityType `json:"type"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"type":"sim"}`), &out))
	assert.Equal(t, Sim, out.Type)
}

func TestExtractEntityID(t *testing.T) {
	id := uuid.MustParse("1f0a8b7c-5d6e-4f30-8a9b-0c1d2e3f4a5b")

	got, ok := ExtractEntityID(Player, payload.Object{"id": payload.String(id.String())})
	require.True(t, ok)
	assert.Equal(t, id, got)

	got, ok = ExtractEntityID(Player, payload.Object{"_id": payload.String(id.String())})
	require.True(t, ok)
	assert.Equal(t, id, got)

	// "id" that is not a UUID falls through to "_id"
	got, ok = ExtractEntityID(Player, payload.Object{"id": payload.Int(4), "_id": payload.String(id.String())})
	require.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = ExtractEntityID(Sim, payload.Object{"day": payload.Int(3)})
	assert.False(t, ok)
	_, ok = ExtractEntityID(Sim, payload.Array{})
	assert.False(t, ok)
}

func TestVersion_Contains(t *testing.T) {
	t1 := time.Date(2020, 8, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	closed := Version{ValidFrom: t1, ValidTo: &t2}
	assert.True(t, closed.Contains(t1))
	assert.True(t, closed.Contains(t2.Add(-time.Nanosecond)))
	assert.False(t, closed.Contains(t2))
	assert.False(t, closed.Contains(t1.Add(-time.Nanosecond)))

	open := Version{ValidFrom: t1}
	assert.True(t, open.IsOpen())
	assert.True(t, open.Contains(t1.AddDate(10, 0, 0)))
}
