package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mkravets/deep-researcher/internal/core/domain"
	"github.com/mkravets/deep-researcher/internal/core/ports"
)

type actionKind string

const (
	actionRetrieve actionKind = "retrieve"
	actionAnswer   actionKind = "answer"
)

// plannerAction is the tagged variant the planner model must emit. Dispatch
// is on the decoded Action value, never on free-text pattern matching.
type plannerAction struct {
	Action actionKind `json:"action"`
	Query  string     `json:"query,omitempty"`
	Answer string     `json:"answer,omitempty"`
}

type ResearchLimits struct {
	MaxIterations int
	StepTimeout   time.Duration
}

// ResearchUseCase is the multi-step reasoning loop: the planner decides per
// iteration whether to call retrieval again or answer from the observations
// collected so far.
type ResearchUseCase struct {
	querySvc  ports.QueryService
	generator ports.AnswerGenerator
	limits    ResearchLimits
	observer  ports.RetrievalObserver
}

const (
	researchRunAnswered  = "answered"
	researchRunExhausted = "exhausted"
)

func NewResearchUseCase(querySvc ports.QueryService, generator ports.AnswerGenerator, limits ResearchLimits) *ResearchUseCase {
	if limits.MaxIterations <= 0 {
		limits.MaxIterations = 10
	}
	if limits.StepTimeout <= 0 {
		limits.StepTimeout = 30 * time.Second
	}
	return &ResearchUseCase{
		querySvc:  querySvc,
		generator: generator,
		limits:    limits,
	}
}

func (uc *ResearchUseCase) WithObserver(observer ports.RetrievalObserver) *ResearchUseCase {
	uc.observer = observer
	return uc
}

func (uc *ResearchUseCase) recordRun(status string, iterations int) {
	if uc.observer != nil {
		uc.observer.ObserveResearchRun(status, iterations)
	}
}

func (uc *ResearchUseCase) Research(ctx context.Context, question string) (*domain.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "research", fmt.Errorf("empty question"))
	}

	var (
		observations []string
		sources      []domain.ScoredNode
		seen         = map[string]struct{}{}
	)

	for iteration := 1; iteration <= uc.limits.MaxIterations; iteration++ {
		action, err := uc.plan(ctx, question, observations)
		if err != nil {
			return nil, fmt.Errorf("plan iteration %d: %w", iteration, err)
		}

		switch action.Action {
		case actionAnswer:
			text := strings.TrimSpace(action.Answer)
			if text == "" {
				break // empty answer from the planner; re-plan on the next iteration
			}
			uc.recordRun(researchRunAnswered, iteration)
			return &domain.Answer{Text: text, Sources: ensureSources(sources)}, nil

		case actionRetrieve:
			query := strings.TrimSpace(action.Query)
			if query == "" {
				query = question
			}
			answer, err := uc.retrieve(ctx, query)
			if err != nil {
				return nil, err
			}
			observations = append(observations, answer.Text)
			for _, source := range answer.Sources {
				if _, dup := seen[source.Node.ID]; dup {
					continue
				}
				seen[source.Node.ID] = struct{}{}
				sources = append(sources, source)
			}

		default:
			return nil, domain.WrapError(domain.ErrInvalidInput, "research",
				fmt.Errorf("planner returned unknown action %q", action.Action))
		}
	}

	// Iteration budget exhausted: answer from whatever was observed.
	final, err := uc.generator.GenerateAnswer(ctx, question, sources)
	if err != nil {
		return nil, fmt.Errorf("final synthesis: %w", err)
	}
	uc.recordRun(researchRunExhausted, uc.limits.MaxIterations)
	return &domain.Answer{Text: final, Sources: ensureSources(sources)}, nil
}

func ensureSources(sources []domain.ScoredNode) []domain.ScoredNode {
	if sources == nil {
		return []domain.ScoredNode{}
	}
	return sources
}

func (uc *ResearchUseCase) retrieve(ctx context.Context, query string) (*domain.Answer, error) {
	stepCtx, cancel := context.WithTimeout(ctx, uc.limits.StepTimeout)
	defer cancel()
	return uc.querySvc.Answer(stepCtx, query)
}

func (uc *ResearchUseCase) plan(ctx context.Context, question string, observations []string) (plannerAction, error) {
	stepCtx, cancel := context.WithTimeout(ctx, uc.limits.StepTimeout)
	defer cancel()

	raw, err := uc.generator.GenerateJSONFromPrompt(stepCtx, buildPlannerPrompt(question, observations))
	if err != nil {
		return plannerAction{}, err
	}

	var action plannerAction
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &action); err != nil {
		return plannerAction{}, fmt.Errorf("parse planner action: %w", err)
	}
	return action, nil
}

func buildPlannerPrompt(question string, observations []string) string {
	var b strings.Builder
	b.WriteString(`You are a research planner working over a local document index.
Return a strict JSON object, no markdown, with one of:
{"action":"retrieve","query":"<search query>"} to look up more evidence, or
{"action":"answer","answer":"<final answer>"} when the evidence suffices.

Question:
`)
	b.WriteString(question)
	b.WriteString("\n\nEvidence collected so far:\n")
	if len(observations) == 0 {
		b.WriteString("(none)\n")
	}
	for i, obs := range observations {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, obs)
	}
	return b.String()
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
