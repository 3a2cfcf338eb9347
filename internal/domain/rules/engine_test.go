package rules

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterContext struct {
	value     int
	corrected bool
}

func TestRegisterRejectsInvalidRules(t *testing.T) {
	e := NewEngine[*counterContext]()

	assert.Error(t, e.Register(Rule[*counterContext]{Name: ""}))
	assert.Error(t, e.Register(Rule[*counterContext]{Name: "no-predicate"}))

	require.NoError(t, e.Register(Rule[*counterContext]{
		Name:      "ok",
		Predicate: func(ctx context.Context, c *counterContext) bool { return true },
	}))
	assert.Error(t, e.Register(Rule[*counterContext]{
		Name:      "ok",
		Predicate: func(ctx context.Context, c *counterContext) bool { return true },
	}), "duplicate names are rejected")
	assert.Equal(t, 1, e.Len())
}

func TestExecuteRunsInPriorityOrder(t *testing.T) {
	e := NewEngine[*counterContext]()
	var order []string

	for _, r := range []Rule[*counterContext]{
		{Name: "low", Priority: 1, Predicate: func(ctx context.Context, c *counterContext) bool {
			order = append(order, "low")
			return true
		}},
		{Name: "high", Priority: 10, Predicate: func(ctx context.Context, c *counterContext) bool {
			order = append(order, "high")
			return true
		}},
		{Name: "mid", Priority: 5, Predicate: func(ctx context.Context, c *counterContext) bool {
			order = append(order, "mid")
			return true
		}},
	} {
		require.NoError(t, e.Register(r))
	}

	outcome := e.Execute(context.Background(), &counterContext{}, Sequential)
	assert.True(t, outcome.Passed())
	assert.Equal(t, []string{"high", "mid", "low"}, order)
}

func TestExecuteAppliesActionOnFailure(t *testing.T) {
	e := NewEngine[*counterContext]()
	e.MustRegister(Rule[*counterContext]{
		Name:      "value_positive",
		Predicate: func(ctx context.Context, c *counterContext) bool { return c.value > 0 },
		Action: func(ctx context.Context, c *counterContext) error {
			c.value = 1
			c.corrected = true
			return nil
		},
	})

	c := &counterContext{value: 0}
	outcome := e.Execute(context.Background(), c, Sequential)

	assert.False(t, outcome.Passed())
	assert.Equal(t, []string{"value_positive"}, outcome.Failed())
	assert.Equal(t, 1, outcome.AppliedCount)
	assert.True(t, c.corrected)
}

func TestExecuteStopsOnFailure(t *testing.T) {
	e := NewEngine[*counterContext]()
	var reached bool

	e.MustRegister(Rule[*counterContext]{
		Name:          "gate",
		Priority:      10,
		StopOnFailure: true,
		Predicate:     func(ctx context.Context, c *counterContext) bool { return false },
	})
	e.MustRegister(Rule[*counterContext]{
		Name:     "after",
		Priority: 1,
		Predicate: func(ctx context.Context, c *counterContext) bool {
			reached = true
			return true
		},
	})

	outcome := e.Execute(context.Background(), &counterContext{}, Sequential)
	assert.False(t, reached, "rules after a stop-on-failure gate never run")
	assert.Len(t, outcome.Results, 1)
}

func TestDryRunNeverInvokesActions(t *testing.T) {
	e := NewEngine[*counterContext]()
	e.MustRegister(Rule[*counterContext]{
		Name:      "value_positive",
		Predicate: func(ctx context.Context, c *counterContext) bool { return c.value > 0 },
		Action: func(ctx context.Context, c *counterContext) error {
			c.corrected = true
			return nil
		},
	})

	c := &counterContext{value: 0}
	outcome := e.DryRun(context.Background(), c)

	assert.False(t, outcome.Passed())
	assert.False(t, c.corrected)
	assert.Zero(t, outcome.AppliedCount)
}

func TestExecuteCollectsActionErrors(t *testing.T) {
	e := NewEngine[*counterContext]()
	e.MustRegister(Rule[*counterContext]{
		Name:      "broken_action",
		Predicate: func(ctx context.Context, c *counterContext) bool { return false },
		Action: func(ctx context.Context, c *counterContext) error {
			return errors.New("cannot repair")
		},
	})

	outcome := e.Execute(context.Background(), &counterContext{}, Sequential)
	require.Len(t, outcome.Errors, 1)
	assert.Zero(t, outcome.AppliedCount)
}

func TestParallelExecutesAllRules(t *testing.T) {
	e := NewEngine[*counterContext]()
	e.MustRegister(Rule[*counterContext]{
		Name:      "a",
		Predicate: func(ctx context.Context, c *counterContext) bool { return true },
	})
	e.MustRegister(Rule[*counterContext]{
		Name:      "b",
		Predicate: func(ctx context.Context, c *counterContext) bool { return false },
	})

	outcome := e.Execute(context.Background(), &counterContext{}, Parallel)
	assert.Len(t, outcome.Results, 2)
	assert.Equal(t, []string{"b"}, outcome.Failed())
}
