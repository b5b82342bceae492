package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIProvider implements Provider using the OpenAI Chat Completions API.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	effort string // reasoning effort: "low", "medium", "high", "xhigh", or ""
}

// parseModelEffort extracts effort suffix from model name.
// "gpt-5.2-high" -> ("gpt-5.2", "high")
// "gpt-5.2-xhigh" -> ("gpt-5.2", "xhigh")
// "gpt-5.2" -> ("gpt-5.2", "")
func parseModelEffort(model string) (string, string) {
	// Check suffixes in order from longest to shortest to avoid "-high" matching "-xhigh"
	suffixes := []string{"xhigh", "medium", "high", "low"}
	for _, effort := range suffixes {
		suffix := "-" + effort
		if strings.HasSuffix(model, suffix) {
			return strings.TrimSuffix(model, suffix), effort
		}
	}
	return model, ""
}

// NewOpenAIProvider creates a new OpenAI provider. An explicit apiKey takes
// precedence over the OPENAI_API_KEY environment variable.
func NewOpenAIProvider(apiKey, model string) (*OpenAIProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai: no API key (set providers.openai.api_key or OPENAI_API_KEY)")
	}
	actualModel, effort := parseModelEffort(model)
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIProvider{
		client: &client,
		model:  actualModel,
		effort: effort,
	}, nil
}

func (p *OpenAIProvider) Name() string {
	if p.effort != "" {
		return fmt.Sprintf("OpenAI (%s, effort=%s)", p.model, p.effort)
	}
	return fmt.Sprintf("OpenAI (%s)", p.model)
}

func (p *OpenAIProvider) Capabilities() Capabilities {
	return Capabilities{ToolCalls: true}
}

func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		reqModel, reqEffort := parseModelEffort(req.Model)
		model := chooseModel(reqModel, p.model)
		effort := p.effort
		if effort == "" && reqEffort != "" {
			effort = reqEffort
		}

		params := openai.ChatCompletionNewParams{
			Model:    shared.ChatModel(model),
			Messages: buildOpenAIMessages(req.Messages),
			StreamOptions: openai.ChatCompletionStreamOptionsParam{
				IncludeUsage: openai.Bool(true),
			},
		}
		if len(req.Tools) > 0 {
			params.Tools = buildOpenAITools(req.Tools)
			if choice, ok := buildOpenAIToolChoice(req.ToolChoice); ok {
				params.ToolChoice = choice
			}
			params.ParallelToolCalls = openai.Bool(req.ParallelToolCalls)
		}
		if req.MaxOutputTokens > 0 {
			params.MaxCompletionTokens = openai.Int(int64(req.MaxOutputTokens))
		}
		if req.Temperature > 0 {
			params.Temperature = openai.Float(float64(req.Temperature))
		}
		if req.TopP > 0 {
			params.TopP = openai.Float(float64(req.TopP))
		}
		if effort != "" {
			params.ReasoningEffort = shared.ReasoningEffort(effort)
		}

		if req.Debug {
			fmt.Fprintln(os.Stderr, "=== DEBUG: OpenAI Stream Request ===")
			fmt.Fprintf(os.Stderr, "Provider: %s\n", p.Name())
			fmt.Fprintf(os.Stderr, "Messages: %d\n", len(params.Messages))
			fmt.Fprintf(os.Stderr, "Tools: %d\n", len(params.Tools))
			fmt.Fprintln(os.Stderr, "===================================")
		}

		accumulator := newToolCallAccumulator(events)
		tracker := newContentTracker(events)
		started := make(map[int64]bool)
		var indices []int64

		stream := p.client.Chat.Completions.NewStreaming(ctx, params)
		for stream.Next() {
			chunk := stream.Current()
			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					tracker.MarkContent()
					events <- Event{Type: EventTextDelta, Text: choice.Delta.Content}
				}
				for _, tc := range choice.Delta.ToolCalls {
					if !started[tc.Index] {
						started[tc.Index] = true
						indices = append(indices, tc.Index)
						accumulator.Start(tc.Index, ToolCall{
							ID:   tc.ID,
							Name: tc.Function.Name,
						})
					}
					accumulator.Append(tc.Index, tc.Function.Arguments)
				}
			}
			if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
				tracker.SetUsage(&Usage{
					InputTokens:  int(chunk.Usage.PromptTokens),
					OutputTokens: int(chunk.Usage.CompletionTokens),
				})
			}
		}
		if err := stream.Err(); err != nil {
			return fmt.Errorf("openai streaming error: %w", err)
		}

		// Tool call blocks have no per-block stop marker in the chat
		// protocol; everything is complete once the stream ends.
		for _, index := range indices {
			if toolCall, ok := accumulator.Finish(index); ok {
				tracker.MarkContent()
				events <- Event{Type: EventToolCall, Tool: &toolCall}
			}
		}

		return tracker.Finish()
	}), nil
}

func buildOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			if text := collectTextParts(msg.Parts); text != "" {
				out = append(out, openai.SystemMessage(text))
			}
		case RoleUser:
			if text := collectTextParts(msg.Parts); text != "" {
				out = append(out, openai.UserMessage(text))
			}
		case RoleAssistant:
			if param, ok := buildOpenAIAssistantMessage(msg.Parts); ok {
				out = append(out, param)
			}
		case RoleTool:
			for _, part := range msg.Parts {
				if part.Type == PartToolResult && part.ToolResult != nil {
					out = append(out, openai.ToolMessage(part.ToolResult.Content, part.ToolResult.ID))
				}
			}
		}
	}
	return out
}

func buildOpenAIAssistantMessage(parts []Part) (openai.ChatCompletionMessageParamUnion, bool) {
	assistant := openai.ChatCompletionAssistantMessageParam{}
	if text := collectTextParts(parts); text != "" {
		assistant.Content.OfString = openai.String(text)
	}
	for _, part := range parts {
		if part.Type != PartToolCall || part.ToolCall == nil {
			continue
		}
		assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID: part.ToolCall.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      part.ToolCall.Name,
				Arguments: string(part.ToolCall.Arguments),
			},
		})
	}
	if !assistant.Content.OfString.Valid() && len(assistant.ToolCalls) == 0 {
		return openai.ChatCompletionMessageParamUnion{}, false
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}, true
}

func buildOpenAITools(specs []ToolSpec) []openai.ChatCompletionToolParam {
	tools := make([]openai.ChatCompletionToolParam, 0, len(specs))
	for _, spec := range specs {
		fn := shared.FunctionDefinitionParam{
			Name:       spec.Name,
			Parameters: shared.FunctionParameters(normalizeSchemaForOpenAI(spec.Schema)),
			Strict:     openai.Bool(true),
		}
		if spec.Description != "" {
			fn.Description = openai.String(spec.Description)
		}
		tools = append(tools, openai.ChatCompletionToolParam{Function: fn})
	}
	return tools
}

func buildOpenAIToolChoice(choice ToolChoice) (openai.ChatCompletionToolChoiceOptionUnionParam, bool) {
	switch choice.Mode {
	case ToolChoiceNone:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("none")}, true
	case ToolChoiceRequired:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("required")}, true
	case ToolChoiceName:
		return openai.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: choice.Name},
			},
		}, true
	case ToolChoiceAuto:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("auto")}, true
	}
	return openai.ChatCompletionToolChoiceOptionUnionParam{}, false
}

// normalizeSchemaForOpenAI ensures schema meets OpenAI's strict requirements:
// - 'required' must include every key in properties
// - 'additionalProperties' must be false
// - unsupported 'format' values must be removed
func normalizeSchemaForOpenAI(schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return schema
	}
	copied, _ := copyJSONValue(schema).(map[string]interface{})
	return normalizeSchemaRecursive(copied)
}

// normalizeSchemaRecursive applies OpenAI normalization recursively
func normalizeSchemaRecursive(schema map[string]interface{}) map[string]interface{} {
	// Remove unsupported format values (OpenAI only supports a limited set)
	if format, ok := schema["format"].(string); ok {
		// OpenAI supported formats: date-time, date, time, email
		// Remove uri, uri-reference, hostname, ipv4, ipv6, uuid, etc.
		switch format {
		case "date-time", "date", "time", "email":
			// Keep these
		default:
			delete(schema, "format")
		}
	}

	// Handle properties
	if props, ok := schema["properties"].(map[string]interface{}); ok && len(props) > 0 {
		// Recursively normalize each property
		for key, val := range props {
			if propSchema, ok := val.(map[string]interface{}); ok {
				props[key] = normalizeSchemaRecursive(propSchema)
			}
		}

		// Build required array with all property keys
		required := make([]string, 0, len(props))
		for key := range props {
			required = append(required, key)
		}
		schema["required"] = required
	}

	// Handle array items
	if items, ok := schema["items"].(map[string]interface{}); ok {
		schema["items"] = normalizeSchemaRecursive(items)
	}

	// Handle anyOf, oneOf, allOf
	for _, key := range []string{"anyOf", "oneOf", "allOf"} {
		if arr, ok := schema[key].([]interface{}); ok {
			for i, item := range arr {
				if itemSchema, ok := item.(map[string]interface{}); ok {
					arr[i] = normalizeSchemaRecursive(itemSchema)
				}
			}
		}
	}

	// OpenAI requires additionalProperties to be false for objects.
	// Exception: if additionalProperties is already a schema map (e.g. {"type":"string"}),
	// preserve it — that's a valid free-form map type (like the env parameter).
	if schema["type"] == "object" || schema["properties"] != nil {
		if _, isSchemaMap := schema["additionalProperties"].(map[string]interface{}); !isSchemaMap {
			schema["additionalProperties"] = false
		}
	}

	return schema
}
