package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// Google implements Client for Gemini models with function declarations.
type Google struct {
	client *genai.Client
	model  string
}

func NewGoogle(ctx context.Context, cfg ProviderConfig) (*Google, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("google API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create google client: %w", err)
	}
	return &Google{client: client, model: cfg.Model}, nil
}

func (c *Google) Name() string {
	return "google"
}

func (c *Google) Chat(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: toGoogleFunctions(req.Tools)}}
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, toGoogleContents(req.Messages), config)
	if err != nil {
		return Response{}, wrapGoogleError(err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return Response{}, &APIError{Provider: c.Name(), Err: fmt.Errorf("no candidates returned")}
	}

	out := Response{Provider: c.Name(), Model: model}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	if resp.Candidates[0].Content == nil {
		return out, nil
	}
	for i, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			out.Content += part.Text
		}
		if part.FunctionCall == nil {
			continue
		}
		args, err := json.Marshal(part.FunctionCall.Args)
		if err != nil {
			return Response{}, fmt.Errorf("encode function call args: %w", err)
		}
		id := part.FunctionCall.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        id,
			Name:      part.FunctionCall.Name,
			Arguments: string(args),
		})
	}
	return out, nil
}

func toGoogleContents(messages []Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(messages))
	var pending []*genai.Part
	flush := func() {
		if len(pending) == 0 {
			return
		}
		out = append(out, genai.NewContentFromParts(pending, genai.RoleUser))
		pending = nil
	}

	for _, m := range messages {
		if m.Role == RoleTool {
			pending = append(pending, genai.NewPartFromFunctionResponse(m.Name, map[string]any{"output": m.Content}))
			continue
		}
		flush()
		switch m.Role {
		case RoleAssistant:
			parts := make([]*genai.Part, 0, len(m.ToolCalls)+1)
			if m.Content != "" {
				parts = append(parts, genai.NewPartFromText(m.Content))
			}
			for _, call := range m.ToolCalls {
				args := map[string]any{}
				if call.Arguments != "" {
					_ = json.Unmarshal([]byte(call.Arguments), &args)
				}
				parts = append(parts, genai.NewPartFromFunctionCall(call.Name, args))
			}
			if len(parts) == 0 {
				continue
			}
			out = append(out, genai.NewContentFromParts(parts, genai.RoleModel))
		default:
			out = append(out, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	flush()
	return out
}

func toGoogleFunctions(specs []ToolSpec) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		properties := make(map[string]*genai.Schema, len(spec.Parameters))
		for _, p := range spec.Parameters {
			properties[p.Name] = &genai.Schema{
				Type:        googleType(p.Type),
				Description: p.Description,
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: properties,
				Required:   spec.requiredNames(),
			},
		})
	}
	return decls
}

func googleType(jsonType string) genai.Type {
	switch jsonType {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

func wrapGoogleError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{Provider: "google", Status: apiErr.Code, Err: err}
	}
	return &APIError{Provider: "google", Err: err}
}
