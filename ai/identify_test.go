package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIdentifyPayload_CleanJSON(t *testing.T) {
	text := `{"items": [
		{"name": "milk", "count": 1, "expiration_date": "2026-09-05"},
		{"name": "egg", "count": 12, "expiration_date": "2026-09-12"}
	]}`

	result := ParseIdentifyPayload(text)
	require.False(t, result.Malformed)
	require.Len(t, result.Items, 2)
	assert.Equal(t, IdentifiedItem{Name: "milk", Count: 1, ExpirationDate: "2026-09-05"}, result.Items[0])
	assert.Equal(t, IdentifiedItem{Name: "egg", Count: 12, ExpirationDate: "2026-09-12"}, result.Items[1])
}

func TestParseIdentifyPayload_CountAsString(t *testing.T) {
	text := `{"items": [{"name": "egg", "count": "12", "expiration_date": "2026-09-12"}]}`

	result := ParseIdentifyPayload(text)
	require.False(t, result.Malformed)
	require.Len(t, result.Items, 1)
	assert.Equal(t, 12, result.Items[0].Count)
}

func TestParseIdentifyPayload_MissingCountDefaultsToOne(t *testing.T) {
	text := `{"items": [{"name": "butter", "expiration_date": "2026-09-20"}]}`

	result := ParseIdentifyPayload(text)
	require.False(t, result.Malformed)
	require.Len(t, result.Items, 1)
	assert.Equal(t, 1, result.Items[0].Count)
}

func TestParseIdentifyPayload_RepairableJSON(t *testing.T) {
	// Trailing comma, a classic model mistake.
	text := `{"items": [{"name": "milk", "count": 1, "expiration_date": "2026-09-05"},]}`

	result := ParseIdentifyPayload(text)
	require.False(t, result.Malformed)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "milk", result.Items[0].Name)
}

func TestParseIdentifyPayload_ProseWrappedJSON(t *testing.T) {
	text := "Here is what I found:\n```json\n" +
		`{"items": [{"name": "cheese", "count": 2, "expiration_date": "2026-09-30"}]}` +
		"\n```\nLet me know if you need more."

	result := ParseIdentifyPayload(text)
	require.False(t, result.Malformed)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "cheese", result.Items[0].Name)
}

func TestParseIdentifyPayload_Garbage(t *testing.T) {
	result := ParseIdentifyPayload("I cannot see any food in this image, sorry!")

	assert.True(t, result.Malformed)
	assert.Empty(t, result.Items)
	assert.NotEmpty(t, result.Raw)
}

func TestParseIdentifyPayload_SkipsNamelessItems(t *testing.T) {
	text := `{"items": [
		{"name": "", "count": 1, "expiration_date": "2026-09-05"},
		{"name": "milk", "count": 1, "expiration_date": "2026-09-05"}
	]}`

	result := ParseIdentifyPayload(text)
	require.False(t, result.Malformed)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "milk", result.Items[0].Name)
}

func TestParseShelfLifePayload(t *testing.T) {
	assert.Equal(t, 10, parseShelfLifePayload(`{"days": 10}`))
	assert.Equal(t, 5, parseShelfLifePayload("It keeps for about 5 days."))
	assert.Equal(t, DefaultShelfLifeDays, parseShelfLifePayload("no idea"))
	assert.Equal(t, DefaultShelfLifeDays, parseShelfLifePayload(`{"days": 0}`))
}
