package saver_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/shutter/pkg/shutter/queue"
	"github.com/jamesainslie/shutter/pkg/shutter/request"
	"github.com/jamesainslie/shutter/pkg/shutter/saver"
)

func TestPauseGate_ZeroValueRunning(t *testing.T) {
	var g saver.PauseGate
	assert.False(t, g.Paused())
}

func TestPauseGate_SetAndWatch(t *testing.T) {
	g := saver.NewPauseGate(true)
	assert.True(t, g.Paused())

	ch := g.Watch()
	g.Set(true)
	select {
	case <-ch:
		t.Fatal("setting the same state is not a change")
	default:
	}

	g.Set(false)
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("watch channel should close on change")
	}
	assert.False(t, g.Paused())
}

func TestWorker_SavesWhilePaused(t *testing.T) {
	gate := saver.NewPauseGate(true)
	q := queue.New(queue.Config{Capacity: 7})
	rec := &recorder{}
	w := saver.New(q, rec, saver.Options{Gate: gate})
	assert.Same(t, gate, w.Gate())

	ctx := context.Background()
	require.NoError(t, w.Start(ctx))
	require.NoError(t, q.Enqueue(ctx, request.NewRaw(&request.RawImage{Data: make([]byte, 64), Width: 8, Height: 8}, request.Params{})))
	require.NoError(t, q.WaitIdle(ctx))

	assert.Len(t, rec.order(), 1, "saving continues in the background")
	require.NoError(t, w.Stop(ctx))
}
