package jsonvalue

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestObjectPreservesInsertionOrder(t *testing.T) {
	o := NewObject()
	o.Set("z", Int(1))
	o.Set("a", Int(2))
	o.Set("m", Int(3))

	require.Equal(t, []string{"z", "a", "m"}, o.Keys())

	out, err := FromObject(o).MarshalJSON()
	require.NoError(t, err)
	require.JSONEq(t, `{"z":1,"a":2,"m":3}`, string(out))
	require.Equal(t, `{"z":1,"a":2,"m":3}`, string(out)) // exact key order, not just equivalence
}

func TestObjectOverwritePreservesPosition(t *testing.T) {
	o := NewObject()
	o.Set("a", Int(1))
	o.Set("b", Int(2))
	o.Set("a", Int(99))

	require.Equal(t, []string{"a", "b"}, o.Keys())
	v, ok := o.Get("a")
	require.True(t, ok)
	i, _ := v.Int()
	require.Equal(t, int64(99), i)
}

func TestObjectDelete(t *testing.T) {
	o := NewObject()
	o.Set("a", Int(1))
	o.Set("b", Int(2))
	o.Set("c", Int(3))
	o.Delete("b")
	require.Equal(t, []string{"a", "c"}, o.Keys())
	_, ok := o.Get("b")
	require.False(t, ok)
}

func TestUnmarshalPreservesObjectOrder(t *testing.T) {
	var v Value
	require.NoError(t, json.Unmarshal([]byte(`{"z":1,"a":2,"m":{"x":1,"y":2}}`), &v))
	o, ok := v.Object()
	require.True(t, ok)
	require.Equal(t, []string{"z", "a", "m"}, o.Keys())

	nested, ok := o.Get("m")
	require.True(t, ok)
	nestedObj, ok := nested.Object()
	require.True(t, ok)
	require.Equal(t, []string{"x", "y"}, nestedObj.Keys())
}

func TestIntegralFloatFormatsWithoutDecimal(t *testing.T) {
	b, err := Float(5.0).MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, "5", string(b))

	b, err = Float(5.5).MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, "5.5", string(b))
}

// TestWireRoundTrip is the property from the universal invariant that wire
// round trips preserve both value and object key order.
func TestWireRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("marshal/unmarshal round trip preserves key order", prop.ForAll(
		func(keys []string) bool {
			o := NewObject()
			for i, k := range keys {
				o.Set(k, Int(int64(i)))
			}
			data, err := FromObject(o).MarshalJSON()
			if err != nil {
				return false
			}
			var got Value
			if err := json.Unmarshal(data, &got); err != nil {
				return false
			}
			gotObj, ok := got.Object()
			if !ok {
				return false
			}
			gotKeys := gotObj.Keys()
			if len(gotKeys) != o.Len() {
				return false
			}
			for i, k := range o.Keys() {
				if gotKeys[i] != k {
					return false
				}
			}
			return true
		},
		genDistinctKeys(),
	))

	properties.TestingRun(t)
}

// genDistinctKeys produces slices of distinct short keys derived from random
// integers, ensuring Object.Set's overwrite path doesn't fold generated keys
// together.
func genDistinctKeys() gopter.Gen {
	return gen.SliceOf(gen.IntRange(0, 10000)).Map(func(ns []int) []string {
		seen := make(map[string]bool)
		var out []string
		for _, n := range ns {
			k := "k" + strconv.Itoa(n)
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
		return out
	})
}
