package value

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, v Value) Value {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	var out Value
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestRoundTripScalars(t *testing.T) {
	for _, v := range []Value{
		Null(),
		Bool(true),
		Bool(false),
		Int(0),
		Int(-42),
		Int(9007199254740993), // beyond float64's exact integer range
		Float(3.25),
		Float(-0.001),
		String(""),
		String("héllo\nworld"),
		Tombstone(),
	} {
		got := roundTrip(t, v)
		assert.True(t, v.Equal(got), "round trip changed %s", v)
		assert.Equal(t, v.Kind(), got.Kind())
	}
}

func TestRoundTripNested(t *testing.T) {
	v := Mapping(map[string]Value{
		"name":   String("Alice"),
		"age":    Int(30),
		"scores": Sequence(Int(1), Float(2.5), Null(), String("three")),
		"address": Mapping(map[string]Value{
			"city": String("Lakeview"),
			"tags": Sequence(Sequence(Bool(true)), Mapping(nil)),
		}),
	})
	got := roundTrip(t, v)
	assert.True(t, v.Equal(got))
}

func TestIntFloatDistinct(t *testing.T) {
	i := roundTrip(t, Int(1))
	f := roundTrip(t, Float(1))
	assert.Equal(t, KindInt, i.Kind())
	assert.Equal(t, KindFloat, f.Kind())
	assert.False(t, i.Equal(f))
}

func TestTombstoneIsNotNull(t *testing.T) {
	assert.False(t, Tombstone().Equal(Null()))
	assert.True(t, Tombstone().IsTombstone())
	assert.False(t, Null().IsTombstone())
}

func TestUnmarshalRejectsUnknownTag(t *testing.T) {
	var v Value
	err := json.Unmarshal([]byte(`{"t":"datetime","v":"2024-01-01"}`), &v)
	assert.Error(t, err)
}

func TestFromJSON(t *testing.T) {
	v, err := FromJSON([]byte(`{"name":"Item 1","price":42,"ratio":0.5,"tags":[null,true]}`))
	require.NoError(t, err)
	require.Equal(t, KindMapping, v.Kind())
	m := v.AsMapping()
	assert.True(t, m["name"].Equal(String("Item 1")))
	assert.True(t, m["price"].Equal(Int(42)))
	assert.True(t, m["ratio"].Equal(Float(0.5)))
	assert.True(t, m["tags"].Equal(Sequence(Null(), Bool(true))))
}
