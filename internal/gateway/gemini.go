package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"cypher-server/internal/model"
)

// Request is one outbound generation attempt: the full ordered history of a
// session with attachments riding only on the final user turn, plus the
// persona-selected sampling parameters.
type Request struct {
	Model          string
	SystemPrompt   string
	Temperature    float32
	ThinkingBudget int32
	History        []model.ChatMessage
}

// Generator is the AI backend boundary. One attempt per call, no retries.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// emptyReplyFallback stands in when the model returns no text at all.
const emptyReplyFallback = "[no output]"

// Gemini implements Generator over the Google GenAI API.
type Gemini struct {
	client *genai.Client
}

// NewGemini builds the gateway. An empty apiKey is not an error: Generate
// then fails fast with ErrNotConfigured so callers surface a
// configuration-classified message.
func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	if strings.TrimSpace(apiKey) == "" {
		return &Gemini{}, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{client: client}, nil
}

func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	if g.client == nil {
		return "", ErrNotConfigured
	}

	contents := buildContents(req.History)
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](req.Temperature),
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}
	if req.ThinkingBudget > 0 {
		cfg.ThinkingConfig = &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr[int32](req.ThinkingBudget),
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if text == "" {
		return emptyReplyFallback, nil
	}
	return text, nil
}

func buildContents(history []model.ChatMessage) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for i, msg := range history {
		role := string(genai.RoleUser)
		if msg.Role == model.RoleAssistant {
			role = string(genai.RoleModel)
		}

		text := msg.Content
		if text == "" {
			text = "..."
		}
		parts := []*genai.Part{{Text: text}}

		// Attachments are only honoured on the newest user turn.
		if i == len(history)-1 && msg.Role == model.RoleUser {
			for _, att := range msg.Attachments {
				data, err := decodeAttachment(att.Data)
				if err != nil {
					continue
				}
				parts = append(parts, &genai.Part{InlineData: &genai.Blob{
					MIMEType: att.MIMEType,
					Data:     data,
				}})
			}
		}

		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents
}

// decodeAttachment accepts both bare base64 and data-URI payloads.
func decodeAttachment(raw string) ([]byte, error) {
	if idx := strings.IndexByte(raw, ','); idx >= 0 {
		raw = raw[idx+1:]
	}
	return base64.StdEncoding.DecodeString(raw)
}
