package plan

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStepPlan_MixedSteps(t *testing.T) {
	raw := json.RawMessage(`[
		[{"action":"click","target":"Create"},{"action":"click","target":"New Post"}],
		{"action":"type","target":"caption","value":"hello","description":"Write caption"},
		{"kind":"wait","value":3}
	]`)

	p, err := DecodeStepPlan(raw)
	require.NoError(t, err)
	require.Len(t, p, 3)

	assert.Len(t, p[0], 2)
	assert.Equal(t, Action{Kind: KindClick, Target: "New Post"}, p[0][1])
	assert.Equal(t, KindFill, p[1][0].Kind)
	assert.Equal(t, "hello", p[1][0].Value)
	assert.Equal(t, "Write caption", p[1][0].Description)
	assert.Equal(t, "3", p[2][0].Value)
}

func TestDecodeStepPlan_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"object at top level", `{"action":"click"}`},
		{"empty alternatives", `[[]]`},
		{"unknown kind", `[{"action":"teleport","target":"moon"}]`},
		{"scalar step", `["click"]`},
		{"object value", `[{"action":"fill","target":"x","value":{"a":1}}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeStepPlan(json.RawMessage(tt.raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrShape)
		})
	}
}

func TestDecodeAlternativeSet(t *testing.T) {
	set, err := DecodeAlternativeSet(json.RawMessage(`[{"action":"click","selector":"#share"}]`))
	require.NoError(t, err)
	require.Len(t, set, 1)
	assert.Equal(t, "#share", set[0].Target)

	_, err = DecodeAlternativeSet(json.RawMessage(`[]`))
	assert.ErrorIs(t, err, ErrShape)
}

func TestDecodeVerification(t *testing.T) {
	t.Run("achieved", func(t *testing.T) {
		v, err := DecodeVerification(json.RawMessage(`{"achieved":true,"reason":"post shared"}`))
		require.NoError(t, err)
		assert.True(t, v.Achieved)
		assert.Equal(t, "post shared", v.Reason)
		assert.Empty(t, v.Continuation)
	})

	t.Run("continuation key", func(t *testing.T) {
		v, err := DecodeVerification(json.RawMessage(`{"achieved":false,"continuation":[{"action":"click","target":"Next"},{"action":"click","target":"Done"}]}`))
		require.NoError(t, err)
		assert.False(t, v.Achieved)
		assert.Len(t, v.Continuation, 2)
	})

	t.Run("missing achieved", func(t *testing.T) {
		_, err := DecodeVerification(json.RawMessage(`{"reason":"?"}`))
		assert.ErrorIs(t, err, ErrShape)
	})

	t.Run("string achieved", func(t *testing.T) {
		_, err := DecodeVerification(json.RawMessage(`{"achieved":"yes"}`))
		assert.ErrorIs(t, err, ErrShape)
	})
}

func TestAction_ExpandAndAnswer(t *testing.T) {
	a := Action{Kind: KindFill, Target: "toppings", Value: "{{pizza_preferences}}"}
	got := a.Expand(map[string]string{"pizza_preferences": "mushroom"})
	assert.Equal(t, "mushroom", got.Value)
	assert.Equal(t, "{{pizza_preferences}}", a.Value)

	ask := Action{Kind: KindAskUser, Value: "size", Description: "What size?"}
	answered := ask.WithAnswer("large")
	assert.True(t, answered.Answered)
	assert.Equal(t, "large", answered.Value)
	assert.False(t, ask.Answered)
}

func TestAction_ExpandLeavesPlaceholdersInAnswers(t *testing.T) {
	a := Action{Kind: KindFill, Target: "{{origin}}", Value: "{{origin}} to {{destination}}"}
	answers := map[string]string{"origin": "{{destination}}", "destination": "Paris"}
	for i := 0; i < 20; i++ {
		got := a.Expand(answers)
		assert.Equal(t, "{{destination}} to Paris", got.Value)
		assert.Equal(t, "{{destination}}", got.Target)
	}
}

func TestRecord_Tail(t *testing.T) {
	var r Record
	for _, target := range []string{"a", "b", "c"} {
		r.Append(Entry{Action: Action{Kind: KindClick, Target: target}, Outcome: Succeeded})
	}
	tail := r.Tail(2)
	require.Len(t, tail, 2)
	assert.Equal(t, "b", tail[0].Action.Target)
	assert.Equal(t, "c", tail[1].Action.Target)
	assert.Len(t, r.Tail(10), 3)
	assert.False(t, tail[0].Time.IsZero())
}
