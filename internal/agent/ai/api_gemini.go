package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/hewlab/hew/internal/agent/session"
)

// GeminiProvider implements the Google Gemini API using the official SDK
type GeminiProvider struct {
	apiKey  string
	model   string
	streams canceller

	clientOnce sync.Once
	client     *genai.Client
	clientErr  error
}

// NewGeminiProvider creates a new Gemini provider.
// Model should come from models.yaml config, not be hardcoded.
func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	return &GeminiProvider{
		apiKey: apiKey,
		model:  model,
	}
}

// ID returns the provider identifier
func (p *GeminiProvider) ID() string {
	return "gemini"
}

// ListModels returns the catalog models for this provider
func (p *GeminiProvider) ListModels(ctx context.Context) ([]ModelDescriptor, error) {
	return catalogModels(p.ID()), nil
}

// Cancel aborts all in-flight streams
func (p *GeminiProvider) Cancel() {
	p.streams.cancelAll()
}

// getClient lazily creates the SDK client. Client creation needs a
// context, so it cannot happen in the constructor.
func (p *GeminiProvider) getClient(ctx context.Context) (*genai.Client, error) {
	p.clientOnce.Do(func() {
		p.client, p.clientErr = genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	})
	return p.client, p.clientErr
}

// Stream sends a request and returns streaming events
func (p *GeminiProvider) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamEvent, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	modelID := p.model
	if req.Model != "" {
		modelID = req.Model
	}

	model := client.GenerativeModel(modelID)

	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.Temperature > 0 {
		model.SetTemperature(float32(req.Temperature))
	}
	if len(req.Tools) > 0 {
		model.Tools = p.buildTools(req.Tools)
	}

	contents := p.buildContents(req.Messages)
	if len(contents) == 0 {
		return nil, fmt.Errorf("no messages to send")
	}

	logDebug("[Gemini] sending request: model=%s messages=%d tools=%d",
		modelID, len(contents), len(req.Tools))

	ctx, release := p.streams.track(ctx)

	// GenerateContentStream takes the last message as the prompt and
	// prior messages as history via a chat session.
	cs := model.StartChat()
	cs.History = contents[:len(contents)-1]
	last := contents[len(contents)-1]

	iter := cs.SendMessageStream(ctx, last.Parts...)

	events := make(chan StreamEvent, 100)
	go func() {
		defer close(events)
		defer release()
		p.handleStream(iter, events)
	}()

	return events, nil
}

// buildContents converts session messages to Gemini content turns.
// Gemini uses "user" and "model" roles; tool results travel as
// function responses inside a user turn.
func (p *GeminiProvider) buildContents(msgs []session.Message) []*genai.Content {
	// Track tool call names by ID so function responses can name the
	// function they answer.
	toolNames := make(map[string]string)
	for _, msg := range msgs {
		if msg.Role == "assistant" && len(msg.ToolCalls) > 0 {
			var calls []session.ToolCall
			if err := json.Unmarshal(msg.ToolCalls, &calls); err == nil {
				for _, c := range calls {
					toolNames[c.ID] = c.Name
				}
			}
		}
	}

	var contents []*genai.Content

	for _, msg := range msgs {
		switch msg.Role {
		case "user":
			if msg.Content == "" {
				continue
			}
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.Text(msg.Content)},
			})

		case "assistant":
			var parts []genai.Part
			if msg.Content != "" {
				parts = append(parts, genai.Text(msg.Content))
			}
			if len(msg.ToolCalls) > 0 {
				var calls []session.ToolCall
				if err := json.Unmarshal(msg.ToolCalls, &calls); err == nil {
					for _, c := range calls {
						var args map[string]any
						if err := json.Unmarshal(c.Input, &args); err != nil {
							args = map[string]any{}
						}
						parts = append(parts, genai.FunctionCall{
							Name: c.Name,
							Args: args,
						})
					}
				}
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{
					Role:  "model",
					Parts: parts,
				})
			}

		case "tool":
			if len(msg.ToolResults) > 0 {
				var results []session.ToolResult
				if err := json.Unmarshal(msg.ToolResults, &results); err == nil {
					var parts []genai.Part
					for _, r := range results {
						name := toolNames[r.ToolCallID]
						if name == "" {
							continue
						}
						parts = append(parts, genai.FunctionResponse{
							Name: name,
							Response: map[string]any{
								"content":  r.Content,
								"is_error": r.IsError,
							},
						})
					}
					if len(parts) > 0 {
						contents = append(contents, &genai.Content{
							Role:  "user",
							Parts: parts,
						})
					}
				}
			}

		case "system":
			// Handled via SystemInstruction
			continue
		}
	}

	return contents
}

// buildTools converts tool definitions to Gemini function declarations
func (p *GeminiProvider) buildTools(tools []ToolDefinition) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))

	for _, tool := range tools {
		var schemaRaw map[string]any
		if err := json.Unmarshal([]byte(tool.InputSchema), &schemaRaw); err != nil {
			logDebug("[Gemini] failed to parse tool schema for %s: %v", tool.Name, err)
			continue
		}

		decl := &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
		}

		if props, ok := schemaRaw["properties"].(map[string]any); ok && len(props) > 0 {
			schema := &genai.Schema{
				Type:       genai.TypeObject,
				Properties: make(map[string]*genai.Schema, len(props)),
			}
			for name, propRaw := range props {
				if propObj, ok := propRaw.(map[string]any); ok {
					schema.Properties[name] = convertGeminiSchema(propObj)
				}
			}
			if required, ok := schemaRaw["required"].([]any); ok {
				for _, r := range required {
					if s, ok := r.(string); ok {
						schema.Required = append(schema.Required, s)
					}
				}
			}
			decl.Parameters = schema
		}

		decls = append(decls, decl)
	}

	if len(decls) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// convertGeminiSchema converts one JSON schema property
func convertGeminiSchema(prop map[string]any) *genai.Schema {
	out := &genai.Schema{}

	if t, ok := prop["type"].(string); ok {
		switch t {
		case "string":
			out.Type = genai.TypeString
		case "number":
			out.Type = genai.TypeNumber
		case "integer":
			out.Type = genai.TypeInteger
		case "boolean":
			out.Type = genai.TypeBoolean
		case "array":
			out.Type = genai.TypeArray
		case "object":
			out.Type = genai.TypeObject
		}
	}
	if desc, ok := prop["description"].(string); ok {
		out.Description = desc
	}
	if enum, ok := prop["enum"].([]any); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				out.Enum = append(out.Enum, s)
			}
		}
	}
	if items, ok := prop["items"].(map[string]any); ok {
		out.Items = convertGeminiSchema(items)
	}
	if props, ok := prop["properties"].(map[string]any); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if obj, ok := raw.(map[string]any); ok {
				out.Properties[name] = convertGeminiSchema(obj)
			}
		}
	}
	return out
}

// handleStream processes the streaming response
func (p *GeminiProvider) handleStream(iter *genai.GenerateContentResponseIterator, events chan<- StreamEvent) {
	toolCallCounter := 0

	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			logDebug("[Gemini] stream error: %v", err)
			events <- StreamEvent{
				Type:  EventTypeError,
				Error: NewProviderError(p.ID(), err),
			}
			return
		}

		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				switch v := part.(type) {
				case genai.Text:
					if v != "" {
						events <- StreamEvent{
							Type: EventTypeText,
							Text: string(v),
						}
					}
				case genai.FunctionCall:
					toolCallCounter++
					argsJSON, _ := json.Marshal(v.Args)
					events <- StreamEvent{
						Type: EventTypeToolCall,
						ToolCall: &ToolCall{
							ID:    fmt.Sprintf("gemini-call-%d", toolCallCounter),
							Name:  v.Name,
							Input: argsJSON,
						},
					}
				}
			}
		}
	}

	events <- StreamEvent{Type: EventTypeDone}
}
