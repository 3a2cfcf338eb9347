// Package rules provides a generic, reusable executor of named rules over a
// typed context. Rules are a closed, strongly-typed set registered at
// startup; execution never discovers types at call time. The engine backs the
// consistency gate's structural checks and any adaptation logic that would
// otherwise live in scattered conditionals.
package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Mode selects how registered rules are executed.
type Mode int

const (
	// Sequential executes rules in priority order, honoring StopOnFailure.
	Sequential Mode = iota
	// Parallel executes all rules concurrently. StopOnFailure has no effect
	// because rules do not observe each other's results.
	Parallel
)

// Rule is one named check-and-act unit over a context of type C. Predicate
// decides whether the rule passes; Action, if set, runs when the predicate
// fails and may repair the context. Rules must be side-effect free in
// dry-run execution, so all mutation belongs in Action.
type Rule[C any] struct {
	Name          string
	Priority      int
	StopOnFailure bool
	Predicate     func(ctx context.Context, c C) bool
	Action        func(ctx context.Context, c C) error
}

// Result records a single rule evaluation.
type Result struct {
	Rule          string `json:"rule"`
	Passed        bool   `json:"passed"`
	ActionApplied bool   `json:"actionApplied"`
	Err           error  `json:"-"`
}

// Outcome aggregates one execution pass.
type Outcome struct {
	Results      []Result
	AppliedCount int
	Errors       []error
}

// Failed returns the names of rules whose predicates failed.
func (o Outcome) Failed() []string {
	var names []string
	for _, r := range o.Results {
		if !r.Passed {
			names = append(names, r.Rule)
		}
	}
	return names
}

// Passed reports whether every rule predicate passed.
func (o Outcome) Passed() bool {
	for _, r := range o.Results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// Engine holds the registered rule set for a context type. Registration
// happens at startup; execution is safe for concurrent use.
type Engine[C any] struct {
	mu    sync.RWMutex
	rules []Rule[C]
	names map[string]bool
}

// NewEngine creates an empty rule engine.
func NewEngine[C any]() *Engine[C] {
	return &Engine[C]{names: make(map[string]bool)}
}

// Register validates and adds a rule. Names must be unique and predicates
// non-nil; violations are registration-time errors, never call-time
// surprises.
func (e *Engine[C]) Register(r Rule[C]) error {
	if r.Name == "" {
		return fmt.Errorf("rule registration: empty name")
	}
	if r.Predicate == nil {
		return fmt.Errorf("rule registration: %q has no predicate", r.Name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.names[r.Name] {
		return fmt.Errorf("rule registration: duplicate name %q", r.Name)
	}
	e.names[r.Name] = true
	e.rules = append(e.rules, r)
	sort.SliceStable(e.rules, func(i, j int) bool {
		return e.rules[i].Priority > e.rules[j].Priority
	})
	return nil
}

// MustRegister registers a rule and panics on error. Intended for the fixed
// startup rule set, where a bad registration is a programming error.
func (e *Engine[C]) MustRegister(r Rule[C]) {
	if err := e.Register(r); err != nil {
		panic(err)
	}
}

// Len returns the number of registered rules.
func (e *Engine[C]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// Execute runs all rules against c. Failing predicates trigger the rule's
// Action (when present); sequential execution stops early at a failing rule
// marked StopOnFailure.
func (e *Engine[C]) Execute(ctx context.Context, c C, mode Mode) Outcome {
	return e.run(ctx, c, mode, false)
}

// DryRun evaluates predicates only, never invoking actions. Used for testing
// rule sets and for validation passes that must not mutate their input.
func (e *Engine[C]) DryRun(ctx context.Context, c C) Outcome {
	return e.run(ctx, c, Sequential, true)
}

func (e *Engine[C]) run(ctx context.Context, c C, mode Mode, dry bool) Outcome {
	e.mu.RLock()
	rules := make([]Rule[C], len(e.rules))
	copy(rules, e.rules)
	e.mu.RUnlock()

	if mode == Parallel && !dry {
		return e.runParallel(ctx, c, rules)
	}

	var out Outcome
	for _, r := range rules {
		res := Result{Rule: r.Name, Passed: r.Predicate(ctx, c)}
		if !res.Passed && !dry && r.Action != nil {
			if err := r.Action(ctx, c); err != nil {
				res.Err = err
				out.Errors = append(out.Errors, fmt.Errorf("rule %s: %w", r.Name, err))
			} else {
				res.ActionApplied = true
				out.AppliedCount++
			}
		}
		out.Results = append(out.Results, res)
		if !res.Passed && r.StopOnFailure {
			break
		}
	}
	return out
}

func (e *Engine[C]) runParallel(ctx context.Context, c C, rules []Rule[C]) Outcome {
	results := make([]Result, len(rules))
	var wg sync.WaitGroup
	for i, r := range rules {
		wg.Add(1)
		go func(i int, r Rule[C]) {
			defer wg.Done()
			res := Result{Rule: r.Name, Passed: r.Predicate(ctx, c)}
			if !res.Passed && r.Action != nil {
				if err := r.Action(ctx, c); err != nil {
					res.Err = err
				} else {
					res.ActionApplied = true
				}
			}
			results[i] = res
		}(i, r)
	}
	wg.Wait()

	out := Outcome{Results: results}
	for _, res := range results {
		if res.ActionApplied {
			out.AppliedCount++
		}
		if res.Err != nil {
			out.Errors = append(out.Errors, fmt.Errorf("rule %s: %w", res.Rule, res.Err))
		}
	}
	return out
}
