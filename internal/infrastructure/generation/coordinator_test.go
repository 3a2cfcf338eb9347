package generation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/lessonforge-go/internal/domain/entities/content"
	"github.com/AtRiskMedia/lessonforge-go/internal/domain/entities/session"
	domainerrors "github.com/AtRiskMedia/lessonforge-go/internal/domain/errors"
)

var testFixed = session.FixedAttributes{Persona: "explorer", SkillFocus: "numeracy"}

func testRequest(skillID string) content.Request {
	return content.Request{
		LearnerID:     "learner-1",
		SessionID:     "sess-1",
		Subject:       "math",
		SkillID:       skillID,
		ContainerType: "practice",
		ContentTypes:  []string{"counting"},
	}
}

func bundleFor(req content.Request, fixed session.FixedAttributes) *content.Bundle {
	return &content.Bundle{
		ID:            "bundle-" + req.SkillID,
		Subject:       req.Subject,
		SkillID:       req.SkillID,
		ContainerType: req.ContainerType,
		Persona:       fixed.Persona,
		SkillFocus:    fixed.SkillFocus,
		Items: []content.Item{
			{Type: content.ItemTypeCounting, Prompt: "Count", AssetRef: "apples.png", Difficulty: 40},
		},
		GeneratedAt:   time.Now().UTC(),
		SchemaVersion: content.SchemaVersion,
	}
}

func TestCoordinatorCoalescesConcurrentRequests(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int64
	release := make(chan struct{})
	backend := BackendFunc(func(ctx context.Context, req content.Request, fixed session.FixedAttributes) (*content.Bundle, error) {
		atomic.AddInt64(&calls, 1)
		<-release
		return bundleFor(req, fixed), nil
	})

	c := NewCoordinator(Config{Workers: 2, MaxAttempts: 1}, backend, nil, nil, nil, nil)
	c.Start(ctx)

	const waiters = 50
	handles := make([]*Handle, waiters)
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := c.Submit(ctx, testRequest("counting-1"), testFixed, PriorityInteractive)
			require.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()

	close(release)
	for _, h := range handles {
		select {
		case <-h.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("handle did not resolve")
		}
		bundle, err := h.Result()
		require.NoError(t, err)
		assert.Equal(t, "bundle-counting-1", bundle.ID)
	}

	assert.Equal(t, int64(1), atomic.LoadInt64(&calls),
		"all concurrent requests for one key share a single generation")
}

func TestCoordinatorCoalescesOntoInFlightTask(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int64
	started := make(chan struct{})
	release := make(chan struct{})
	backend := BackendFunc(func(ctx context.Context, req content.Request, fixed session.FixedAttributes) (*content.Bundle, error) {
		atomic.AddInt64(&calls, 1)
		close(started)
		<-release
		return bundleFor(req, fixed), nil
	})

	c := NewCoordinator(Config{Workers: 1, MaxAttempts: 1}, backend, nil, nil, nil, nil)
	c.Start(ctx)

	first, err := c.Submit(ctx, testRequest("counting-1"), testFixed, PriorityWarming)
	require.NoError(t, err)
	<-started

	// The task is already dequeued and generating; late interactive arrivals
	// must still coalesce onto it rather than spawn a second generation.
	const late = 20
	handles := make([]*Handle, late)
	var wg sync.WaitGroup
	for i := 0; i < late; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := c.Submit(ctx, testRequest("counting-1"), testFixed, PriorityInteractive)
			require.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()

	close(release)
	for _, h := range append(handles, first) {
		select {
		case <-h.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("handle did not resolve")
		}
		bundle, err := h.Result()
		require.NoError(t, err)
		assert.Equal(t, "bundle-counting-1", bundle.ID)
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestCoordinatorPriorityOrdering(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var order []string
	first := true

	backend := BackendFunc(func(ctx context.Context, req content.Request, fixed session.FixedAttributes) (*content.Bundle, error) {
		mu.Lock()
		blocking := first
		first = false
		if !blocking {
			order = append(order, req.SkillID)
		}
		mu.Unlock()
		if blocking {
			close(started)
			<-release
		}
		return bundleFor(req, fixed), nil
	})

	c := NewCoordinator(Config{Workers: 1, MaxAttempts: 1}, backend, nil, nil, nil, nil)
	c.Start(ctx)

	// Occupy the single worker so subsequent submits queue up.
	blocker, err := c.Submit(ctx, testRequest("blocker"), testFixed, PriorityInteractive)
	require.NoError(t, err)
	<-started

	warming, err := c.Submit(ctx, testRequest("warm-skill"), testFixed, PriorityWarming)
	require.NoError(t, err)
	predictive, err := c.Submit(ctx, testRequest("predict-skill"), testFixed, PriorityPredictive)
	require.NoError(t, err)
	interactive, err := c.Submit(ctx, testRequest("urgent-skill"), testFixed, PriorityInteractive)
	require.NoError(t, err)

	close(release)
	for _, h := range []*Handle{blocker, warming, predictive, interactive} {
		select {
		case <-h.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("handle did not resolve")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"urgent-skill", "predict-skill", "warm-skill"}, order,
		"interactive dequeues before predictive before warming")
}

func TestCoordinatorCoalescedSubmitPromotesPriority(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var order []string
	first := true

	backend := BackendFunc(func(ctx context.Context, req content.Request, fixed session.FixedAttributes) (*content.Bundle, error) {
		mu.Lock()
		blocking := first
		first = false
		if !blocking {
			order = append(order, req.SkillID)
		}
		mu.Unlock()
		if blocking {
			close(started)
			<-release
		}
		return bundleFor(req, fixed), nil
	})

	c := NewCoordinator(Config{Workers: 1, MaxAttempts: 1}, backend, nil, nil, nil, nil)
	c.Start(ctx)

	blocker, err := c.Submit(ctx, testRequest("blocker"), testFixed, PriorityInteractive)
	require.NoError(t, err)
	<-started

	other, err := c.Submit(ctx, testRequest("other"), testFixed, PriorityPredictive)
	require.NoError(t, err)
	queued, err := c.Submit(ctx, testRequest("wanted"), testFixed, PriorityWarming)
	require.NoError(t, err)

	// An interactive learner arrives for the same content the warming
	// task queued: the shared task jumps the queue.
	promoted, err := c.Submit(ctx, testRequest("wanted"), testFixed, PriorityInteractive)
	require.NoError(t, err)

	close(release)
	for _, h := range []*Handle{blocker, other, queued, promoted} {
		select {
		case <-h.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("handle did not resolve")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"wanted", "other"}, order)
}

func TestCoordinatorRetriesThenFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int64
	backend := BackendFunc(func(ctx context.Context, req content.Request, fixed session.FixedAttributes) (*content.Bundle, error) {
		atomic.AddInt64(&calls, 1)
		return nil, errors.New("backend unavailable")
	})

	c := NewCoordinator(Config{
		Workers:     1,
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		BackoffMax:  2 * time.Millisecond,
	}, backend, nil, nil, nil, nil)
	c.Start(ctx)

	h, err := c.Submit(ctx, testRequest("counting-1"), testFixed, PriorityInteractive)
	require.NoError(t, err)

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("handle did not resolve")
	}

	_, err = h.Result()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrGenerationFailed))
	assert.Equal(t, int64(3), atomic.LoadInt64(&calls))
	assert.Equal(t, 0, c.PendingCount(), "failed task is removed from pending")
}

type rejectOnceValidator struct {
	mu       sync.Mutex
	rejected bool
}

func (v *rejectOnceValidator) Check(ctx context.Context, b *content.Bundle, fixed session.FixedAttributes) (*content.Bundle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.rejected {
		v.rejected = true
		return nil, domainerrors.ConsistencyViolation([]string{"persona_matches_session"})
	}
	return b, nil
}

func TestCoordinatorRegeneratesOnceAfterRejection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int64
	backend := BackendFunc(func(ctx context.Context, req content.Request, fixed session.FixedAttributes) (*content.Bundle, error) {
		atomic.AddInt64(&calls, 1)
		return bundleFor(req, fixed), nil
	})

	c := NewCoordinator(Config{Workers: 1, MaxAttempts: 1}, backend, &rejectOnceValidator{}, nil, nil, nil)
	c.Start(ctx)

	h, err := c.Submit(ctx, testRequest("counting-1"), testFixed, PriorityInteractive)
	require.NoError(t, err)

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("handle did not resolve")
	}

	bundle, err := h.Result()
	require.NoError(t, err)
	assert.NotNil(t, bundle)
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls),
		"one rejection earns exactly one regeneration")
}

type alwaysRejectValidator struct{}

func (alwaysRejectValidator) Check(ctx context.Context, b *content.Bundle, fixed session.FixedAttributes) (*content.Bundle, error) {
	return nil, domainerrors.ConsistencyViolation([]string{"counting_items_have_asset"})
}

func TestCoordinatorNeverResolvesInconsistentBundle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := BackendFunc(func(ctx context.Context, req content.Request, fixed session.FixedAttributes) (*content.Bundle, error) {
		return bundleFor(req, fixed), nil
	})

	c := NewCoordinator(Config{Workers: 1, MaxAttempts: 1}, backend, alwaysRejectValidator{}, nil, nil, nil)
	c.Start(ctx)

	h, err := c.Submit(ctx, testRequest("counting-1"), testFixed, PriorityInteractive)
	require.NoError(t, err)

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("handle did not resolve")
	}

	bundle, err := h.Result()
	assert.Nil(t, bundle)
	assert.True(t, errors.Is(err, domainerrors.ErrConsistencyViolation))
}
