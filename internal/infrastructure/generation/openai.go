package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	openai "github.com/sashabaranov/go-openai"

	"github.com/AtRiskMedia/lessonforge-go/internal/domain/entities/content"
	"github.com/AtRiskMedia/lessonforge-go/internal/domain/entities/session"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/logging"
)

// OpenAIBackend generates bundles through an OpenAI-compatible chat
// completion endpoint. Any server speaking the same API works via BaseURL.
type OpenAIBackend struct {
	client *openai.Client
	model  string
	logger *logging.ChanneledLogger
}

// NewOpenAIBackend creates a backend against the given endpoint and model.
func NewOpenAIBackend(apiKey, baseURL, model string, logger *logging.ChanneledLogger) *OpenAIBackend {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIBackend{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger,
	}
}

const systemPrompt = `You generate personalized learning content for young learners.
Respond with a single JSON object: {"items": [{"type": "...", "prompt": "...", "assetRef": "...", "options": [...], "answer": "...", "difficulty": 0.0}]}.
Rules:
- "counting" items must include an assetRef naming the visual asset to count.
- "binary-choice" items must include exactly two options.
- Every item must match the requested persona and skill focus exactly.`

type generatedPayload struct {
	Items []content.Item `json:"items"`
}

// Generate calls the chat completion endpoint and assembles a bundle from
// the JSON response.
func (b *OpenAIBackend) Generate(ctx context.Context, req content.Request, fixed session.FixedAttributes) (*content.Bundle, error) {
	start := time.Now()

	userPrompt := fmt.Sprintf(
		"Subject: %s\nSkill: %s\nContainer: %s\nContent types: %s\nPersona: %s\nSkill focus: %s",
		req.Subject, req.SkillID, req.ContainerType,
		strings.Join(req.ContentTypes, ", "), fixed.Persona, fixed.SkillFocus)

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: b.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("generation backend: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("generation backend: empty response")
	}

	var payload generatedPayload
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &payload); err != nil {
		return nil, fmt.Errorf("generation backend: decode response: %w", err)
	}
	if len(payload.Items) == 0 {
		return nil, fmt.Errorf("generation backend: response carried no items")
	}

	bundle := &content.Bundle{
		ID:            ulid.Make().String(),
		Subject:       req.Subject,
		SkillID:       req.SkillID,
		ContainerType: req.ContainerType,
		Persona:       fixed.Persona,
		SkillFocus:    fixed.SkillFocus,
		Items:         payload.Items,
		GeneratedAt:   time.Now().UTC(),
		SchemaVersion: content.SchemaVersion,
	}

	b.logger.Generation().Debug("Backend produced bundle",
		"bundleId", bundle.ID, "items", len(bundle.Items),
		"model", b.model, "duration", time.Since(start))
	return bundle, nil
}
