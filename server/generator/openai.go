// Package generator implements engine.ResponseGenerator on top of an
// OpenAI-compatible chat completion API.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	"github.com/nobadaofficial/noba-da3/internal/profile"
	"github.com/nobadaofficial/noba-da3/server/engine"
	"github.com/nobadaofficial/noba-da3/store"
)

// Config holds the generator provider configuration.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxRetries int
	Timeout    time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "https://api.openai.com/v1",
		APIKey:     "",
		Model:      "gpt-4o-mini",
		MaxRetries: 3,
		Timeout:    30 * time.Second,
	}
}

// ConfigFromProfile derives the provider configuration from the server profile.
func ConfigFromProfile(p *profile.Profile) *Config {
	cfg := DefaultConfig()
	if p.GenBaseURL != "" {
		cfg.BaseURL = p.GenBaseURL
	}
	cfg.APIKey = p.GenAPIKey
	if p.GenModel != "" {
		cfg.Model = p.GenModel
	}
	if p.GenTimeout > 0 {
		cfg.Timeout = p.GenTimeout
	}
	return cfg
}

// Provider turns conversation context into in-character replies via a chat
// completion API. It implements engine.ResponseGenerator.
type Provider struct {
	client *openai.Client
	config *Config
}

// NewProvider creates a new generator provider.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required, set NOBADA_GEN_API_KEY environment variable")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Provider{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}, nil
}

// Generate produces the character's next reply. The model is asked for a
// strict JSON object; the response is parsed leniently because models wrap
// JSON in code fences more often than not.
func (p *Provider) Generate(ctx context.Context, req *engine.GenerateRequest) (*engine.Reply, error) {
	messages := p.buildMessages(req)

	var content string
	err := p.doWithRetry(ctx, func() error {
		resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    p.config.Model,
			Messages: messages,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return errors.New("empty chat completion response")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "chat completion failed")
	}

	reply, err := parseReply(content)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse generator response")
	}
	return reply, nil
}

func (p *Provider) buildMessages(req *engine.GenerateRequest) []openai.ChatCompletionMessage {
	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: buildSystemPrompt(req),
		},
	}
	for _, msg := range req.Transcript {
		role := openai.ChatMessageRoleUser
		if msg.Role == store.MessageRoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserMessage,
	})
	return messages
}

func buildSystemPrompt(req *engine.GenerateRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a character in an interactive story.\n", req.Character.Name)
	if req.Character.Personality.SpeakingStyle != "" {
		fmt.Fprintf(&b, "Speaking style: %s\n", req.Character.Personality.SpeakingStyle)
	}
	if len(req.Character.Personality.Traits) > 0 {
		fmt.Fprintf(&b, "Personality traits: %s\n", strings.Join(req.Character.Personality.Traits, ", "))
	}
	if len(req.Character.Personality.Interests) > 0 {
		fmt.Fprintf(&b, "Interests: %s\n", strings.Join(req.Character.Personality.Interests, ", "))
	}
	if req.Episode.BaseStory != "" {
		fmt.Fprintf(&b, "\nStory setting: %s\n", req.Episode.BaseStory)
	}
	fmt.Fprintf(&b, "\nRelationship with the user: %s (score %d/100).\n", req.Tier, req.RelationshipScore)
	fmt.Fprintf(&b, "Your current mood: happiness %d, interest %d, trust %d (each 0-100).\n",
		req.EmotionalState.Happiness, req.EmotionalState.Interest, req.EmotionalState.Trust)
	b.WriteString(`
Respond with a single JSON object, nothing else:
{
  "text": "your in-character reply",
  "emotion": {"happiness": 0, "interest": 0, "trust": 0},
  "scoreDelta": 0
}
"emotion" holds deltas between -10 and 10 describing how this exchange
shifts your mood. "scoreDelta" is an integer between -5 and 5 describing
how the exchange changes your feelings toward the user. Stay in character.`)
	return b.String()
}

// parseReply decodes the model output into an engine.Reply. Code fences and
// surrounding prose are tolerated; a payload without usable text is not.
func parseReply(content string) (*engine.Reply, error) {
	raw := extractJSON(content)

	var reply engine.Reply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		// Some models ignore the format instruction entirely. Treat the whole
		// output as the reply text with neutral deltas.
		text := strings.TrimSpace(content)
		if text == "" {
			return nil, errors.Wrap(err, "unparseable empty response")
		}
		return &engine.Reply{Text: text}, nil
	}
	if strings.TrimSpace(reply.Text) == "" {
		return nil, errors.New("generator response has no text")
	}
	return &reply, nil
}

func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if fenced := strings.TrimPrefix(content, "```json"); fenced != content {
		content = strings.TrimSuffix(strings.TrimSpace(fenced), "```")
	} else if fenced := strings.TrimPrefix(content, "```"); fenced != content {
		content = strings.TrimSuffix(strings.TrimSpace(fenced), "```")
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}

// doWithRetry executes a function with exponential backoff retry.
func (p *Provider) doWithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < p.config.MaxRetries; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			if attempt < p.config.MaxRetries-1 {
				waitTime := time.Duration(math.Pow(2, float64(attempt))) * time.Second
				slog.Debug("generator request failed, retrying",
					"attempt", attempt+1,
					"wait_time", waitTime,
					"error", err)
				select {
				case <-time.After(waitTime):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
	return lastErr
}

var _ engine.ResponseGenerator = (*Provider)(nil)
