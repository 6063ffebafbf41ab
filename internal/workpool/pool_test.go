package workpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/ucdpipe/internal/ctxlog"
)

func TestPool_RespectsLimit(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())

	for _, limit := range []int{1, 2, 4} {
		t.Run(fmt.Sprintf("limit=%d", limit), func(t *testing.T) {
			p := New(ctx, limit, nil)
			for i := 0; i < 12; i++ {
				p.Submit(fmt.Sprintf("task-%d", i), func(context.Context) error {
					time.Sleep(5 * time.Millisecond)
					return nil
				})
			}
			p.Drain()

			peak, completed := p.Stats()
			assert.LessOrEqual(t, peak, limit)
			assert.Equal(t, 12, completed)
		})
	}
}

func TestPool_ErrorsAndPanicsAreIsolated(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())

	var mu sync.Mutex
	failures := map[string]error{}
	p := New(ctx, 2, func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		failures[name] = err
	})

	var ran sync.WaitGroup
	ran.Add(3)
	p.Submit("fails", func(context.Context) error { defer ran.Done(); return errors.New("parse error") })
	p.Submit("panics", func(context.Context) error { defer ran.Done(); panic("bad record") })
	p.Submit("succeeds", func(context.Context) error { defer ran.Done(); return nil })
	p.Drain()
	ran.Wait()

	require.Len(t, failures, 2)
	assert.EqualError(t, failures["fails"], "parse error")
	var pe *PanicError
	require.ErrorAs(t, failures["panics"], &pe)
	assert.Equal(t, "bad record", pe.Value)

	_, completed := p.Stats()
	assert.Equal(t, 3, completed)
}

func TestPool_DrainThenReuse(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	p := New(ctx, 0, nil)
	assert.Equal(t, 1, p.Limit(), "limits below one are raised to one")

	var order []int
	for round := 0; round < 2; round++ {
		for i := 0; i < 3; i++ {
			v := round*10 + i
			p.Submit("t", func(context.Context) error { order = append(order, v); return nil })
		}
		p.Drain()
	}
	assert.Equal(t, []int{0, 1, 2, 10, 11, 12}, order, "a limit of one runs tasks in submission order")
}
