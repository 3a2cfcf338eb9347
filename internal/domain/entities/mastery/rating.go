// Package mastery provides the per-learner, per-skill mastery model. Ratings
// are updated Elo-style from answer outcomes and feed adaptive difficulty
// recommendations back into content requests.
package mastery

import (
	"math"
	"time"
)

// Recommendation is the adaptive difficulty signal derived from recent
// outcomes.
type Recommendation string

const (
	RecommendMaintain           Recommendation = "maintain"
	RecommendIncreaseDifficulty Recommendation = "increase_difficulty"
	RecommendOfferSupport       Recommendation = "offer_support"
)

// OutcomeEvent is a single reported answer outcome. EventID must be unique
// per outcome; replays of an already-applied id are a no-op.
type OutcomeEvent struct {
	EventID        string    `json:"eventId"`
	LearnerID      string    `json:"learnerId"`
	SkillID        string    `json:"skillId"`
	Correct        bool      `json:"correct"`
	ItemDifficulty float64   `json:"itemDifficulty"`
	LatencyMs      int       `json:"latencyMs"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// Outcome is the windowed record kept per applied event.
type Outcome struct {
	EventID   string `json:"eventId"`
	Correct   bool   `json:"correct"`
	LatencyMs int    `json:"latencyMs"`
}

// Params are the tunable constants of the update rule. Defaults follow the
// 0-100 rating scale.
type Params struct {
	K          float64 // learning rate, default 16
	Scale      float64 // logistic spread, default 20
	LowerBound float64 // default 0
	UpperBound float64 // default 100
	Initial    float64 // starting rating, default 50

	WindowSize       int // sliding outcome window, default 5
	StreakCorrect    int // consecutive correct for increase_difficulty, default 3
	StreakIncorrect  int // consecutive incorrect (with rising latency) for offer_support, default 2
	AppliedRetention int // applied event ids retained for replay protection, default 256
}

// DefaultParams returns the default tuning for the mastery model.
func DefaultParams() Params {
	return Params{
		K:                16,
		Scale:            20,
		LowerBound:       0,
		UpperBound:       100,
		Initial:          50,
		WindowSize:       5,
		StreakCorrect:    3,
		StreakIncorrect:  2,
		AppliedRetention: 256,
	}
}

// Rating is the mutable mastery state for one (learner, skill) pair. It is
// owned by the mastery service, which synchronizes all mutation.
type Rating struct {
	LearnerID   string    `json:"learnerId"`
	SkillID     string    `json:"skillId"`
	Rating      float64   `json:"rating"`
	Window      []Outcome `json:"recentOutcomes"`
	LastEventID string    `json:"lastEventId"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// AppliedIDs records applied event ids, oldest first, for idempotent
	// replay protection.
	AppliedIDs []string `json:"appliedEventIds"`
}

// NewRating creates a rating at the initial value.
func NewRating(learnerID, skillID string, p Params) *Rating {
	return &Rating{
		LearnerID: learnerID,
		SkillID:   skillID,
		Rating:    p.Initial,
		Window:    []Outcome{},
		UpdatedAt: time.Now().UTC(),
	}
}

// Applied reports whether the event id has already been applied.
func (r *Rating) Applied(eventID string) bool {
	for _, id := range r.AppliedIDs {
		if id == eventID {
			return true
		}
	}
	return false
}

// Apply updates the rating from one outcome event. Callers must have checked
// Applied first; Apply records the id so a later replay is detected.
func (r *Rating) Apply(ev OutcomeEvent, p Params) {
	outcome := 0.0
	if ev.Correct {
		outcome = 1.0
	}
	expected := logistic(ev.ItemDifficulty-r.Rating, p.Scale)
	r.Rating = clamp(r.Rating+p.K*(outcome-expected), p.LowerBound, p.UpperBound)

	r.Window = append(r.Window, Outcome{EventID: ev.EventID, Correct: ev.Correct, LatencyMs: ev.LatencyMs})
	if len(r.Window) > p.WindowSize {
		r.Window = r.Window[len(r.Window)-p.WindowSize:]
	}

	r.AppliedIDs = append(r.AppliedIDs, ev.EventID)
	if len(r.AppliedIDs) > p.AppliedRetention {
		r.AppliedIDs = r.AppliedIDs[len(r.AppliedIDs)-p.AppliedRetention:]
	}

	r.LastEventID = ev.EventID
	r.UpdatedAt = time.Now().UTC()
}

// Recommend derives the adaptive difficulty recommendation from the current
// window: a correct streak asks for harder content, an incorrect streak with
// rising response latency asks for support, everything else maintains.
func (r *Rating) Recommend(p Params) Recommendation {
	n := len(r.Window)

	if n >= p.StreakCorrect {
		streak := true
		for _, o := range r.Window[n-p.StreakCorrect:] {
			if !o.Correct {
				streak = false
				break
			}
		}
		if streak {
			return RecommendIncreaseDifficulty
		}
	}

	if n >= p.StreakIncorrect {
		tail := r.Window[n-p.StreakIncorrect:]
		struggling := true
		for i, o := range tail {
			if o.Correct {
				struggling = false
				break
			}
			if i > 0 && o.LatencyMs <= tail[i-1].LatencyMs {
				struggling = false
				break
			}
		}
		if struggling {
			return RecommendOfferSupport
		}
	}

	return RecommendMaintain
}

// Snapshot is the read-only view of a rating handed to callers.
type Snapshot struct {
	LearnerID      string         `json:"learnerId"`
	SkillID        string         `json:"skillId"`
	Rating         float64        `json:"rating"`
	Recommendation Recommendation `json:"recommendation"`
	WindowSize     int            `json:"windowSize"`
	LastEventID    string         `json:"lastEventId"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// Snapshot captures the current state of the rating.
func (r *Rating) Snapshot(p Params) Snapshot {
	return Snapshot{
		LearnerID:      r.LearnerID,
		SkillID:        r.SkillID,
		Rating:         r.Rating,
		Recommendation: r.Recommend(p),
		WindowSize:     len(r.Window),
		LastEventID:    r.LastEventID,
		UpdatedAt:      r.UpdatedAt,
	}
}

func logistic(diff, scale float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, diff/scale))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
