package result_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetrow/internal/records"
	"sheetrow/internal/result"
)

func TestSelectedOnly(t *testing.T) {
	recs := []records.Record{
		records.Of("selected", true, "name", "A", "equivalence_class_id", "c1", "equivalence_class_name", "Apple"),
		records.Of("selected", false, "name", "B", "equivalence_class_id", "c1", "equivalence_class_name", "Apple"),
	}

	out := result.SelectedOnly(recs)
	require.Len(t, out, 1)
	assert.Equal(t, []string{"name"}, out[0].Keys())
	name, _ := out[0].Get("name")
	assert.Equal(t, "A", name)
}

func TestSelectedOnly_StringFlagsAndMissing(t *testing.T) {
	recs := []records.Record{
		records.Of("name", "A", "selected", "TRUE"),
		records.Of("name", "B"),
		records.Of("name", "C", "selected", "no"),
		records.Of("name", "D", "selected", 1.0),
	}

	out := result.SelectedOnly(recs)
	require.Len(t, out, 1)
	name, _ := out[0].Get("name")
	assert.Equal(t, "A", name)
}

func TestPromoteReason(t *testing.T) {
	var recs []records.Record
	require.NoError(t, json.Unmarshal([]byte(`[
		{"name":"a","passes":true,"research":{"reason":"meets criteria","sources":["x"]}},
		{"name":"b","passes":false,"research":"{\"reason\":\"too small\"}"},
		{"name":"c","passes":false,"research":{"notes":"no reason field"}},
		{"name":"d","passes":true}
	]`), &recs))

	out := result.PromoteReason(recs)
	require.Len(t, out, 4)

	assert.Equal(t, []string{"name", "passes", "reason"}, out[0].Keys())
	reason, _ := out[0].Get("reason")
	assert.Equal(t, "meets criteria", reason)

	reason, _ = out[1].Get("reason")
	assert.Equal(t, "too small", reason)

	assert.Equal(t, []string{"name", "passes"}, out[2].Keys())
	assert.Equal(t, []string{"name", "passes"}, out[3].Keys())
}

func TestPromoteReason_NestedRecord(t *testing.T) {
	recs := []records.Record{
		records.Of("name", "a", "research", records.Of("reason", "nested record")),
	}

	out := result.PromoteReason(recs)
	reason, ok := out[0].Get("reason")
	require.True(t, ok)
	assert.Equal(t, "nested record", reason)
	_, ok = out[0].Get("research")
	assert.False(t, ok)
}
