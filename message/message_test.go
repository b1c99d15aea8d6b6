package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureID(t *testing.T) {
	m := New("hello", "t")
	id := EnsureID(m)
	require.NotEmpty(t, id)
	assert.Equal(t, id, m.ID())
	assert.Equal(t, id, EnsureID(m), "existing id is kept")

	m[KeyID] = ""
	assert.NotEqual(t, "", EnsureID(m))

	assert.Equal(t, "", EnsureID(nil))
}

func TestNewMessage(t *testing.T) {
	m := New(42.0, "")
	assert.Equal(t, 42.0, m.Payload())
	_, hasTopic := m[KeyTopic]
	assert.False(t, hasTopic)

	m = New("x", "news")
	assert.Equal(t, "news", m.Topic())
}

func TestFromMap(t *testing.T) {
	m, ok := FromMap(map[string]any{"payload": 1})
	assert.True(t, ok)
	assert.Equal(t, 1, m.Payload())

	_, ok = FromMap("nope")
	assert.False(t, ok)

	var nilMap map[string]any
	_, ok = FromMap(nilMap)
	assert.False(t, ok)
}

type counter struct{ n int }

func (c *counter) Clone() any { return &counter{n: c.n} }

func TestClone_Independent(t *testing.T) {
	fn := func() int { return 7 }
	ch := make(chan int)
	original := Msg{
		KeyID:     "abc",
		"payload": map[string]any{"list": []any{1.0, map[string]any{"deep": "x"}}},
		"bytes":   []byte("raw"),
		"strs":    []string{"a", "b"},
		"nested":  map[string][]int{"k": {1, 2}},
		"fn":      fn,
		"ch":      ch,
		"counter": &counter{n: 1},
	}

	cp := Clone(original)

	cp["payload"].(map[string]any)["list"].([]any)[1].(map[string]any)["deep"] = "changed"
	cp["bytes"].([]byte)[0] = 'R'
	cp["strs"].([]string)[0] = "z"
	cp["nested"].(map[string][]int)["k"][0] = 99
	cp["counter"].(*counter).n = 5

	deep, _ := GetProperty(original, "payload.list.1.deep")
	assert.Equal(t, "x", deep)
	assert.Equal(t, []byte("raw"), original["bytes"])
	assert.Equal(t, []string{"a", "b"}, original["strs"])
	assert.Equal(t, 1, original["nested"].(map[string][]int)["k"][0])
	assert.Equal(t, 1, original["counter"].(*counter).n)

	// Non-data values survive by reference
	assert.Equal(t, 7, cp["fn"].(func() int)())
	assert.Equal(t, ch, cp["ch"])
	assert.Equal(t, "abc", cp.ID())

	assert.Nil(t, Clone(nil))
}

type reading struct {
	Sensor string
	Labels map[string]string
	Values []float64
	Extra  any
	note   *string
}

func TestClone_StructFields(t *testing.T) {
	note := "kept"
	original := Msg{"payload": reading{
		Sensor: "t1",
		Labels: map[string]string{"room": "lab"},
		Values: []float64{1, 2},
		Extra:  map[string]any{"unit": "C"},
		note:   &note,
	}}

	cp := Clone(original)
	got := cp["payload"].(reading)
	got.Labels["room"] = "hall"
	got.Values[0] = 99
	got.Extra.(map[string]any)["unit"] = "F"

	src := original["payload"].(reading)
	assert.Equal(t, "lab", src.Labels["room"])
	assert.Equal(t, 1.0, src.Values[0])
	assert.Equal(t, "C", src.Extra.(map[string]any)["unit"])
	assert.Equal(t, "t1", got.Sensor)
	assert.Same(t, src.note, got.note, "unexported fields are shared")
}

func TestPropertyPaths(t *testing.T) {
	m := Msg{"payload": map[string]any{"user": map[string]any{"name": "ada"}}, "arr": []any{"a", "b"}}

	v, ok := GetProperty(m, "payload.user.name")
	assert.True(t, ok)
	assert.Equal(t, "ada", v)

	v, ok = GetProperty(m, "arr.1")
	assert.True(t, ok)
	assert.Equal(t, "b", v)

	_, ok = GetProperty(m, "arr.9")
	assert.False(t, ok)
	_, ok = GetProperty(m, "payload.missing.deeper")
	assert.False(t, ok)

	self, ok := GetProperty(m, "")
	assert.True(t, ok)
	assert.Equal(t, m, self)

	SetProperty(m, "payload.user.age", 36.0)
	v, _ = GetProperty(m, "payload.user.age")
	assert.Equal(t, 36.0, v)

	// Creates intermediates and replaces scalars in the way
	SetProperty(m, "meta.tags.first", "x")
	SetProperty(m, "arr.inner", "y")
	v, _ = GetProperty(m, "meta.tags.first")
	assert.Equal(t, "x", v)
	v, _ = GetProperty(m, "arr.inner")
	assert.Equal(t, "y", v)

	SetProperty(m, "", "ignored")
	_, ok = m[""]
	assert.False(t, ok)

	DeleteProperty(m, "payload.user.name")
	_, ok = GetProperty(m, "payload.user.name")
	assert.False(t, ok)

	assert.NotPanics(t, func() {
		DeleteProperty(m, "nope.nothing.here")
		DeleteProperty(m, "")
		DeleteProperty(nil, "a")
	})
}

func TestErrorRecord(t *testing.T) {
	origin := Msg{KeyID: "m1", "payload": "boom", KeyError: "old", "topic": "t"}

	rec := ErrorRecord(origin, ErrorInfo{
		Message: "failed",
		Source:  Source{ID: "n1", Type: "transform", Name: "upper"},
		Stack:   "trace",
	})

	assert.Equal(t, "", rec.ID())
	assert.Equal(t, "boom", rec.Payload())
	assert.Equal(t, "t", rec.Topic())

	v, _ := GetProperty(rec, "error.message")
	assert.Equal(t, "failed", v)
	v, _ = GetProperty(rec, "error.source.id")
	assert.Equal(t, "n1", v)
	v, _ = GetProperty(rec, "error.stack")
	assert.Equal(t, "trace", v)

	assert.Equal(t, "m1", origin.ID(), "origin untouched")
	assert.Equal(t, "old", origin[KeyError])

	empty := ErrorRecord(nil, ErrorInfo{Message: "x"})
	_, hasStack := empty[KeyError].(map[string]any)["stack"]
	assert.False(t, hasStack)
}
