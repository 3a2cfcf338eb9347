package services

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AtRiskMedia/lessonforge-go/internal/domain/entities/content"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/generation"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/metrics"
)

// PredictedNext is one likely next step after completing a container.
type PredictedNext struct {
	SkillID       string   `yaml:"skillId"`
	ContainerType string   `yaml:"containerType"`
	ContentTypes  []string `yaml:"contentTypes"`
	Confidence    float64  `yaml:"confidence"`
}

// TransitionRule maps a completed container to its predicted successors.
type TransitionRule struct {
	From string          `yaml:"from"`
	To   []PredictedNext `yaml:"to"`
}

// PreloadRules is the transition model loaded at startup.
type PreloadRules struct {
	Transitions []TransitionRule `yaml:"transitions"`
}

// LoadPreloadRules reads the transition model from a YAML file.
func LoadPreloadRules(path string) (*PreloadRules, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("preload rules: read %s: %w", path, err)
	}
	var rules PreloadRules
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("preload rules: parse %s: %w", path, err)
	}
	return &rules, nil
}

// PreloadService predicts likely next content from observed progression and
// submits predictive generation tasks so the cache is warm before the
// learner arrives. Preloads are fire-and-forget: they never block or fail
// the triggering request.
type PreloadService struct {
	byFrom     map[string][]PredictedNext
	confidence float64
	fanoutCap  int

	coordinator *generation.Coordinator
	sessions    *SessionService
	logger      *logging.ChanneledLogger
	metrics     *metrics.Metrics

	statsMu  sync.Mutex
	observed map[string]int
}

// NewPreloadService creates the preloader over a loaded transition model.
func NewPreloadService(rules *PreloadRules, confidence float64, fanoutCap int, coordinator *generation.Coordinator, sessions *SessionService, logger *logging.ChanneledLogger, m *metrics.Metrics) *PreloadService {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	byFrom := make(map[string][]PredictedNext)
	if rules != nil {
		for _, tr := range rules.Transitions {
			next := append([]PredictedNext(nil), tr.To...)
			sort.SliceStable(next, func(i, j int) bool {
				return next[i].Confidence > next[j].Confidence
			})
			byFrom[tr.From] = next
		}
	}
	return &PreloadService{
		byFrom:      byFrom,
		confidence:  confidence,
		fanoutCap:   fanoutCap,
		coordinator: coordinator,
		sessions:    sessions,
		logger:      logger,
		metrics:     m,
		observed:    make(map[string]int),
	}
}

// OnTransition reacts to a completed container: it records the transition
// and submits predictive generation for the confident successors, capped at
// the configured fanout. Runs asynchronously.
func (p *PreloadService) OnTransition(sessionID, subject, fromContainer string) {
	p.metrics.TransitionObserved.Inc()
	p.statsMu.Lock()
	p.observed[fromContainer]++
	p.statsMu.Unlock()

	go p.preload(sessionID, subject, fromContainer)
}

func (p *PreloadService) preload(sessionID, subject, fromContainer string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	predictions, ok := p.byFrom[fromContainer]
	if !ok {
		return
	}

	sc, err := p.sessions.GetSession(ctx, sessionID)
	if err != nil {
		p.logger.Preload().Debug("Preload skipped, session unavailable",
			"sessionId", sessionID, "error", err.Error())
		return
	}

	submitted := 0
	for _, next := range predictions {
		if submitted >= p.fanoutCap {
			break
		}
		if next.Confidence < p.confidence {
			continue
		}
		contentTypes := next.ContentTypes
		if len(contentTypes) == 0 {
			contentTypes = []string{content.ItemTypeNarrative}
		}
		req := content.Request{
			LearnerID:     sc.LearnerID,
			SessionID:     sc.SessionID,
			Subject:       subject,
			SkillID:       next.SkillID,
			ContainerType: next.ContainerType,
			ContentTypes:  contentTypes,
		}
		if _, err := p.coordinator.Submit(ctx, req, sc.Fixed, generation.PriorityPredictive); err != nil {
			p.logger.Preload().Warn("Predictive submit failed",
				"sessionId", sessionID, "skillId", next.SkillID, "error", err.Error())
			continue
		}
		p.metrics.PreloadSubmitted.Inc()
		submitted++
	}

	if submitted > 0 {
		p.logger.Preload().Info("Predictive preloads submitted",
			"sessionId", sessionID, "from", fromContainer, "submitted", submitted)
	}
}

// TransitionStats returns a copy of observed transition counts by source
// container.
func (p *PreloadService) TransitionStats() map[string]int {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	out := make(map[string]int, len(p.observed))
	for k, v := range p.observed {
		out[k] = v
	}
	return out
}
