package result

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/ucdpipe/internal/model"
	"github.com/vk/ucdpipe/internal/provenance"
)

func TestRunError(t *testing.T) {
	cause := errors.New("boom")
	file := model.NewFileIdentity("15.0.0", "auxiliary/WordBreakTest.txt")
	err := &RunError{
		Scope:   ScopeRoute,
		Message: "resolve failed",
		Cause:   cause,
		File:    &file,
		RouteID: "word-break",
		Version: "15.0.0",
	}

	assert.Equal(t, "[route] version=15.0.0 route=word-break file=auxiliary/WordBreakTest.txt: resolve failed", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestAggregator(t *testing.T) {
	agg := NewAggregator("run-1", provenance.New())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			agg.AddOutput(Output{RouteID: "r", Value: i})
			if i%5 == 0 {
				agg.AddError(&RunError{Scope: ScopeFile, Message: "x"})
			}
			agg.Count(func(s *Summary) { s.RouteTasks++ })
		}(i)
	}
	wg.Wait()

	res := agg.Result(time.Second)
	require.Len(t, res.Outputs, 20)
	assert.Len(t, res.ErrorsOfScope(ScopeFile), 4)
	assert.Empty(t, res.ErrorsOfScope(ScopeRoute))
	assert.Len(t, res.OutputsOfRoute("r"), 20)
	assert.Equal(t, Summary{
		RunID: "run-1", RouteTasks: 20, TotalOutputs: 20, ErrorCount: 4, Duration: time.Second,
	}, res.Summary)
	assert.NotNil(t, res.Provenance)
}
