package sanitize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean_PlainValues(t *testing.T) {
	assert.Equal(t, "hello", Clean("hello"))
	assert.Equal(t, int64(42), Clean(42))
	assert.Equal(t, 3.5, Clean(3.5))
	assert.Equal(t, true, Clean(true))
	assert.Nil(t, Clean(nil))
}

func TestClean_TimeBecomesRFC3339(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	assert.Equal(t, "2025-03-14T09:26:53Z", Clean(ts))
}

func TestClean_BytesBecomeBase64(t *testing.T) {
	assert.Equal(t, "aGVsbG8=", Clean([]byte("hello")))
}

func TestClean_DropsFunctionsAndChannels(t *testing.T) {
	in := map[string]any{
		"callback": func() {},
		"events":   make(chan int),
		"name":     "keep me",
	}
	out, ok := Clean(in).(map[string]any)
	require.True(t, ok)
	assert.Nil(t, out["callback"])
	assert.Nil(t, out["events"])
	assert.Equal(t, "keep me", out["name"])
}

func TestClean_StringifiesMapKeys(t *testing.T) {
	in := map[int]string{1: "one", 2: "two"}
	out, ok := Clean(in).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "one", out["1"])
	assert.Equal(t, "two", out["2"])
}

func TestClean_StructUsesJSONTags(t *testing.T) {
	type form struct {
		FullName string `json:"full_name"`
		Hidden   string `json:"-"`
		Plain    int
	}
	out, ok := Clean(form{FullName: "Ada", Hidden: "x", Plain: 7}).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Ada", out["full_name"])
	assert.NotContains(t, out, "Hidden")
	assert.Equal(t, int64(7), out["Plain"])
}

func TestClean_BreaksCycles(t *testing.T) {
	a := map[string]any{"name": "a"}
	b := map[string]any{"parent": a}
	a["child"] = b

	out, ok := Clean(a).(map[string]any)
	require.True(t, ok)
	child, ok := out["child"].(map[string]any)
	require.True(t, ok)
	assert.Nil(t, child["parent"])

	// The result must serialize without recursion.
	_, err := json.Marshal(out)
	require.NoError(t, err)
}

func TestClean_SharedValueIsNotACycle(t *testing.T) {
	shared := map[string]any{"city": "NYC"}
	in := map[string]any{"home": shared, "work": shared}

	out, ok := Clean(in).(map[string]any)
	require.True(t, ok)
	home, ok := out["home"].(map[string]any)
	require.True(t, ok)
	work, ok := out["work"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "NYC", home["city"])
	assert.Equal(t, "NYC", work["city"])
}

func TestClean_Idempotent(t *testing.T) {
	in := map[string]any{
		"when":  time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		"bytes": []byte{1, 2, 3},
		"list":  []any{1, "two", nil},
	}
	once := Clean(in)
	twice := Clean(once)
	assert.Equal(t, once, twice)
}
