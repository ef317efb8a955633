package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/arcmgr/internal/engine"
	"github.com/bamsammich/arcmgr/internal/event"
)

// quitEarly stands in for a full-screen presenter the user quits after the
// first message.
type quitEarly struct{}

func (quitEarly) Run(msgs <-chan event.Message) error {
	<-msgs
	return nil
}

func (quitEarly) Summary() string { return "" }

func TestRunForegroundQuitCancels(t *testing.T) {
	events := make(chan event.Message, 4)
	start := func(ctx context.Context) *engine.RunResult {
		// More messages than the channel holds: the run only finishes if the
		// caller keeps draining after the presenter quits.
		for i := range 64 {
			events <- event.Message{Kind: event.Notice, Iteration: i}
		}
		select {
		case <-ctx.Done():
			return &engine.RunResult{Err: ctx.Err()}
		case <-time.After(5 * time.Second):
			return &engine.RunResult{Err: errors.New("run was not cancelled")}
		}
	}

	drained := 0
	res := runForeground(context.Background(), quitEarly{}, events, start, func(event.Message) { drained++ })
	require.NotNil(t, res)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, 63, drained)
}
