package event

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		want string
		kind Kind
	}{
		{want: "ScopeStarted", kind: ScopeStarted},
		{want: "PhaseChanged", kind: PhaseChanged},
		{want: "Progress", kind: Progress},
		{want: "Notice", kind: Notice},
		{want: "FileFailed", kind: FileFailed},
		{want: "ScopeCompleted", kind: ScopeCompleted},
		{want: "ScopeFailed", kind: ScopeFailed},
		{want: "Complete", kind: Complete},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.String())
		})
	}
}

func TestKindStringUnknown(t *testing.T) {
	assert.Equal(t, "Unknown", Kind(999).String())
	assert.Equal(t, "Unknown", Kind(0).String())
}

func TestMessageTick(t *testing.T) {
	assert.True(t, Message{Kind: Progress, Iteration: 1, Total: 3}.IsTick())
	assert.False(t, Message{Kind: Notice, Text: "copying"}.IsTick())
	assert.False(t, Message{Kind: ScopeFailed, Err: errors.New("boom")}.IsTick())
	assert.True(t, Message{Err: errors.New("boom")}.Failed())
}

func TestEmitterStampsSlotAndScope(t *testing.T) {
	ch := make(chan Message, 4)
	em := NewEmitter(ch, 3).ForScope("42")

	before := time.Now()
	em.Notice("gathering")
	em.Tick(1, 2)

	first := <-ch
	assert.Equal(t, Notice, first.Kind)
	assert.Equal(t, 3, first.Slot)
	assert.Equal(t, "42", first.Scope)
	assert.Equal(t, "gathering", first.Text)
	assert.False(t, first.Timestamp.Before(before))

	second := <-ch
	assert.Equal(t, Progress, second.Kind)
	assert.Equal(t, 1, second.Iteration)
	assert.Equal(t, 2, second.Total)
}

func TestEmitterDropsTicksWhenFull(t *testing.T) {
	ch := make(chan Message, 1)
	em := NewEmitter(ch, 0)

	em.Tick(1, 10)
	em.Tick(2, 10) // dropped, must not block

	require.Len(t, ch, 1)
	assert.Equal(t, 1, (<-ch).Iteration)
}

func TestZeroEmitterDiscards(t *testing.T) {
	var em Emitter
	assert.NotPanics(t, func() {
		em.Notice("nothing listens")
		em.Emit(Message{Kind: Complete})
	})
}
