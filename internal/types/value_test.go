package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValueRoundTrip(t *testing.T) {
	doc := `{
		"summary": "ok",
		"trl": 6,
		"metrics": {"efficiency": {"value": 24.5, "unit": "%"}},
		"items": [{"name": "cells", "amount": 12}, {"name": "bop", "amount": 8}],
		"flagged": false,
		"notes": null
	}`

	v, err := ParseValue([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, KindObject, v.Kind)
	trl, ok := v.Field("trl").AsFloat()
	require.True(t, ok)
	assert.Equal(t, 6.0, trl)

	eff, ok := v.Field("metrics").Field("efficiency").Field("value").AsFloat()
	require.True(t, ok)
	assert.Equal(t, 24.5, eff)

	name, ok := v.Field("items").Index(1).Field("name").AsString()
	require.True(t, ok)
	assert.Equal(t, "bop", name)

	assert.True(t, v.Field("notes").IsNull())
	assert.True(t, v.Field("absent").IsNull())
	assert.Nil(t, v.Field("items").Index(5))

	data, err := json.Marshal(v)
	require.NoError(t, err)
	reparsed, err := ParseValue(data)
	require.NoError(t, err)
	back, _ := reparsed.Field("metrics").Field("efficiency").Field("value").AsFloat()
	assert.Equal(t, 24.5, back)
}

func TestParseValueRejectsMalformed(t *testing.T) {
	_, err := ParseValue([]byte(`{nope`))
	assert.Error(t, err)
}

func TestAsFloatCoercions(t *testing.T) {
	tests := []struct {
		name string
		in   *Value
		want float64
		ok   bool
	}{
		{"number", NumberValue(42), 42, true},
		{"plain numeric string", StringValue("42"), 42, true},
		{"currency string", StringValue("$1,200"), 1200, true},
		{"unit suffix", StringValue("42 MW"), 42, true},
		{"percent suffix", StringValue("85%"), 85, true},
		{"bool true", BoolValue(true), 1, true},
		{"non-numeric string", StringValue("approximately ten"), 0, false},
		{"object", ObjectValue(nil), 0, false},
		{"null", Null(), 0, false},
		{"nil receiver", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.in.AsFloat()
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestAsString(t *testing.T) {
	s, ok := StringValue("buy").AsString()
	require.True(t, ok)
	assert.Equal(t, "buy", s)

	s, ok = NumberValue(7.5).AsString()
	require.True(t, ok)
	assert.Equal(t, "7.5", s)

	_, ok = ArrayValue().AsString()
	assert.False(t, ok)
}

func TestFieldAndIndexOnWrongKinds(t *testing.T) {
	assert.Nil(t, StringValue("x").Field("key"))
	assert.Nil(t, ObjectValue(map[string]*Value{}).Index(0))
	assert.Nil(t, ArrayValue(NumberValue(1)).Index(-1))
}

func TestItems(t *testing.T) {
	assert.Len(t, ArrayValue(NumberValue(1), NumberValue(2)).Items(), 2)

	// Missing keys and non-arrays range as empty, not panic.
	var absent *Value
	assert.Nil(t, absent.Items())
	assert.Nil(t, ObjectValue(nil).Field("missing").Items())
	assert.Nil(t, StringValue("x").Items())
}

func TestStageOutputComplete(t *testing.T) {
	var none *StageOutput
	assert.False(t, none.Complete())

	assert.False(t, (&StageOutput{Status: StageStatusComplete}).Complete())
	assert.False(t, (&StageOutput{Status: StageStatusError, Content: NumberValue(1)}).Complete())
	assert.True(t, (&StageOutput{Status: StageStatusComplete, Content: NumberValue(1)}).Complete())
}

func TestOutputViewReads(t *testing.T) {
	outputs := map[string]*StageOutput{
		"technology": {
			StageID: "technology",
			Status:  StageStatusComplete,
			Content: ObjectValue(map[string]*Value{"summary": StringValue("ok")}),
		},
	}
	view := NewOutputView(outputs)

	assert.NotNil(t, view.Get("technology"))
	assert.Nil(t, view.Get("market"))
	summary, ok := view.Content("technology").Field("summary").AsString()
	require.True(t, ok)
	assert.Equal(t, "ok", summary)
	assert.True(t, view.Content("market").IsNull())
}
