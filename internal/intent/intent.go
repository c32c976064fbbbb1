// Package intent classifies whether a caller wants to book an appointment
// now. The model-backed classifier uses OpenAI; without an API key, or when
// the model call fails, a deterministic keyword classifier answers instead.
package intent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Result is one classification answer.
type Result struct {
	WantsBooking bool    `json:"wants_booking"`
	Confidence   float64 `json:"confidence"`
	// Method records which classifier answered: "model" or "keyword".
	Method string `json:"method"`
}

// Classifier answers whether an utterance expresses booking intent.
type Classifier interface {
	Classify(ctx context.Context, utterance string) Result
}

const systemPrompt = `You judge whether a phone caller to a home-services business wants to book an appointment now. Answer with exactly one word: YES or NO.`

// bookingKeywords trip the deterministic fallback classifier.
var bookingKeywords = []string{
	"book", "booking", "appointment", "schedule", "scheduling",
	"come out", "come by", "send someone", "set up a time", "set something up",
	"estimate", "quote", "service call", "get someone out",
}

// KeywordClassifier is the deterministic fallback. It looks for booking
// vocabulary and never consults a network service.
type KeywordClassifier struct{}

func (KeywordClassifier) Classify(_ context.Context, utterance string) Result {
	norm := strings.ToLower(utterance)
	for _, kw := range bookingKeywords {
		if strings.Contains(norm, kw) {
			return Result{WantsBooking: true, Confidence: 0.7, Method: "keyword"}
		}
	}
	return Result{WantsBooking: false, Confidence: 0.5, Method: "keyword"}
}

// ModelClassifier asks an OpenAI model, falling back to keywords when the
// call fails or the answer is not parseable.
type ModelClassifier struct {
	client   openai.Client
	model    string
	fallback KeywordClassifier
}

// NewModelClassifier creates a model-backed classifier with the given API key.
func NewModelClassifier(apiKey string) *ModelClassifier {
	return &ModelClassifier{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  openai.ChatModelGPT4oMini,
	}
}

func (c *ModelClassifier) Classify(ctx context.Context, utterance string) Result {
	if strings.TrimSpace(utterance) == "" {
		return Result{WantsBooking: false, Confidence: 1, Method: "keyword"}
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(utterance),
		},
	})
	if err != nil {
		slog.Warn("ModelClassifier.Classify: model call failed, using keyword fallback", "error", err)
		return c.fallback.Classify(ctx, utterance)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("ModelClassifier.Classify: empty response, using keyword fallback")
		return c.fallback.Classify(ctx, utterance)
	}

	answer := strings.ToUpper(strings.TrimSpace(resp.Choices[0].Message.Content))
	switch {
	case strings.HasPrefix(answer, "YES"):
		return Result{WantsBooking: true, Confidence: 0.9, Method: "model"}
	case strings.HasPrefix(answer, "NO"):
		return Result{WantsBooking: false, Confidence: 0.9, Method: "model"}
	default:
		slog.Warn("ModelClassifier.Classify: unparseable answer, using keyword fallback", "answer", answer)
		return c.fallback.Classify(ctx, utterance)
	}
}

// New returns the model classifier when an API key is configured, otherwise
// the keyword classifier.
func New(apiKey string) Classifier {
	if apiKey == "" {
		slog.Info("intent.New: no API key configured, using keyword classifier")
		return KeywordClassifier{}
	}
	return NewModelClassifier(apiKey)
}
