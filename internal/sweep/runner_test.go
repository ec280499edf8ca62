package sweep

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunnerRunsImmediatelyAndRepeats(t *testing.T) {
	var n atomic.Int32
	r := NewRunner(Task{
		Name:  "counter",
		Every: 10 * time.Millisecond,
		Run:   func() error { n.Add(1); return nil },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	assert.Eventually(t, func() bool { return n.Load() >= 3 },
		time.Second, 5*time.Millisecond)
}

func TestRunnerSurvivesErrors(t *testing.T) {
	var n atomic.Int32
	r := NewRunner(Task{
		Name:  "flaky",
		Every: 10 * time.Millisecond,
		Run: func() error {
			n.Add(1)
			return errors.New("transient")
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	// ошибки не останавливают цикл
	assert.Eventually(t, func() bool { return n.Load() >= 3 },
		time.Second, 5*time.Millisecond)
}

func TestRunnerSurvivesPanic(t *testing.T) {
	var n atomic.Int32
	r := NewRunner(Task{
		Name:  "panicky",
		Every: 10 * time.Millisecond,
		Run: func() error {
			n.Add(1)
			panic("boom")
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	assert.Eventually(t, func() bool { return n.Load() >= 2 },
		time.Second, 5*time.Millisecond)
}

func TestRunnerStopsOnCancel(t *testing.T) {
	var n atomic.Int32
	r := NewRunner(Task{
		Name:  "stoppable",
		Every: 5 * time.Millisecond,
		Run:   func() error { n.Add(1); return nil },
	})

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	assert.Eventually(t, func() bool { return n.Load() >= 2 },
		time.Second, time.Millisecond)

	cancel()
	time.Sleep(20 * time.Millisecond)
	after := n.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, n.Load())
}

func TestRunnerIndependentTasks(t *testing.T) {
	var a, b atomic.Int32
	r := NewRunner(
		Task{Name: "broken", Every: 5 * time.Millisecond, Run: func() error {
			a.Add(1)
			return errors.New("always fails")
		}},
		Task{Name: "healthy", Every: 5 * time.Millisecond, Run: func() error {
			b.Add(1)
			return nil
		}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	assert.Eventually(t, func() bool { return a.Load() >= 2 && b.Load() >= 2 },
		time.Second, time.Millisecond)
}
