package backend

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/vizierdb/vizier/src/internal/log"
	"github.com/vizierdb/vizier/src/internal/processor"
	"github.com/vizierdb/vizier/src/internal/require"
	"github.com/vizierdb/vizier/src/internal/viztrail"
)

// testRegistry has a "test" package: "echo" prints its "text" argument, "block" waits until its
// context is done, "fail" returns an error.
func testRegistry(running *int32) *processor.Registry {
	r := processor.NewRegistry()
	r.Register("test", processor.Func(func(ctx context.Context, commandID string, args viztrail.Record, tc *processor.TaskContext) (processor.Result, error) {
		switch commandID {
		case "echo":
			text, err := args.String("text")
			if err != nil {
				return nil, err
			}
			tc.Print(text)
			return tc.Success(), nil
		case "block":
			atomic.AddInt32(running, 1)
			defer atomic.AddInt32(running, -1)
			<-ctx.Done()
			return nil, context.Cause(ctx)
		}
		return tc.Failure(context.DeadlineExceeded), nil
	}))
	return r
}

func task(t *testing.T, id, commandID string) Task {
	return Task{
		ID:      id,
		Command: viztrail.NewCommand("test", commandID, viztrail.Record{"text": viztrail.String(id)}),
		Context: processor.NewTestContext(t, nil),
	}
}

func collect() (Controller, <-chan TaskCompletion) {
	ch := make(chan TaskCompletion, 16)
	return ControllerFunc(func(c TaskCompletion) { ch <- c }), ch
}

func next(t *testing.T, ch <-chan TaskCompletion) TaskCompletion {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for a task completion")
	}
	return TaskCompletion{}
}

func TestWhitelist(t *testing.T) {
	w := Whitelist{"vizual": {"*"}, "markdown": {"code"}, "script": {"load*"}}
	testData := []struct {
		pkg, cmd string
		allowed  bool
	}{
		{"vizual", "updateCell", true},
		{"markdown", "code", true},
		{"markdown", "other", false},
		{"script", "loadFile", true},
		{"script", "starlark", false},
		{"query", "filter", false},
	}
	for _, test := range testData {
		require.Equal(t, test.allowed, w.Allows(viztrail.NewCommand(test.pkg, test.cmd, nil)), "%s.%s", test.pkg, test.cmd)
	}
}

func TestSynchronous(t *testing.T) {
	ctx := log.Test(t)
	var running int32
	b := NewSynchronous(testRegistry(&running), Whitelist{"test": {"echo"}})
	require.True(t, b.CanExecute(viztrail.NewCommand("test", "echo", nil)))
	require.False(t, b.CanExecute(viztrail.NewCommand("test", "block", nil)))
	res := b.Execute(ctx, task(t, "a", "echo"))
	s, ok := res.(*processor.Success)
	require.True(t, ok)
	require.Equal(t, "a", s.Outputs.Stdout[0].Value)

	ctl, ch := collect()
	require.NoError(t, b.ExecuteAsync(ctx, task(t, "b", "fail"), ctl))
	c := next(t, ch)
	require.Equal(t, "b", c.TaskID)
	_, ok = c.Result.(*processor.Failure)
	require.True(t, ok)
	require.False(t, b.CancelTask("b"))
}

func TestPoolBoundsConcurrency(t *testing.T) {
	ctx := log.Test(t)
	var running int32
	p := NewPool(ctx, testRegistry(&running), 2, nil)
	ctl, ch := collect()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, p.ExecuteAsync(ctx, task(t, id, "block"), ctl))
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&running) == 2 }, 10*time.Second, 10*time.Millisecond)
	require.Equal(t, 3.0, testutil.ToFloat64(tasksInFlightMetric))
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(2), atomic.LoadInt32(&running))

	require.True(t, p.CancelTask("a"))
	c := next(t, ch)
	require.Equal(t, "a", c.TaskID)
	require.True(t, c.Canceled)
	require.Nil(t, c.Result)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&running) == 2 }, 10*time.Second, 10*time.Millisecond)
	require.False(t, p.CancelTask("a"))

	require.NoError(t, p.Close())
	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		c := next(t, ch)
		require.True(t, c.Canceled)
		got[c.TaskID] = true
	}
	require.Equal(t, map[string]bool{"b": true, "c": true}, got)
	require.Eventually(t, func() bool { return testutil.ToFloat64(tasksInFlightMetric) == 0 }, 10*time.Second, 10*time.Millisecond)
	require.ErrorIs(t, p.ExecuteAsync(ctx, task(t, "d", "echo"), ctl), ErrClosed)
}

func TestPoolCompletes(t *testing.T) {
	ctx := log.Test(t)
	var running int32
	p := NewPool(ctx, testRegistry(&running), 1, nil)
	defer p.Close() //nolint:errcheck
	ctl, ch := collect()
	require.NoError(t, p.ExecuteAsync(ctx, task(t, "a", "echo"), ctl))
	c := next(t, ch)
	s, ok := c.Result.(*processor.Success)
	require.True(t, ok, "unexpected result %#v", c.Result)
	require.Equal(t, "a", s.Outputs.Stdout[0].Value)
	require.False(t, c.Canceled)
}

func TestPoolOutlivesCallerContext(t *testing.T) {
	var running int32
	p := NewPool(log.Test(t), testRegistry(&running), 1, nil)
	defer p.Close() //nolint:errcheck
	ctx, cancel := context.WithCancel(log.Test(t))
	ctl, ch := collect()
	require.NoError(t, p.ExecuteAsync(ctx, task(t, "a", "block"), ctl))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&running) == 1 }, 10*time.Second, 10*time.Millisecond)
	cancel()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(1), atomic.LoadInt32(&running))
	require.True(t, p.CancelTask("a"))
	require.True(t, next(t, ch).Canceled)
}

func TestComposite(t *testing.T) {
	ctx := log.Test(t)
	var running int32
	reg := testRegistry(&running)
	pool := NewPool(ctx, reg, 1, nil)
	c := NewComposite(NewSynchronous(reg, Whitelist{"test": {"echo"}}), pool)
	require.True(t, c.CanExecute(viztrail.NewCommand("test", "echo", nil)))
	require.False(t, c.CanExecute(viztrail.NewCommand("test", "block", nil)))
	ctl, ch := collect()
	require.NoError(t, c.ExecuteAsync(ctx, task(t, "a", "block"), ctl))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&running) == 1 }, 10*time.Second, 10*time.Millisecond)
	require.True(t, c.CancelTask("a"))
	require.True(t, next(t, ch).Canceled)
	require.NoError(t, c.Close())
}
