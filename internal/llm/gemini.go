package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider implements Provider using the Google Gemini API.
type GeminiProvider struct {
	apiKey         string
	model          string
	thinkingLevel  genai.ThinkingLevel // for Gemini 3: MINIMAL, LOW, HIGH
	thinkingBudget *int32              // for Gemini 2.5: 0, 8192, etc.
}

// geminiThinkingConfig holds thinking configuration for a Gemini model
type geminiThinkingConfig struct {
	level  genai.ThinkingLevel // for Gemini 3
	budget *int32              // for Gemini 2.5 (nil = no config)
}

// parseGeminiModelThinking extracts the base model name and determines thinking config.
// Gemini 3 models use thinkingLevel (MINIMAL/LOW/HIGH).
// Gemini 2.5 models use thinkingBudget (0 = disabled).
func parseGeminiModelThinking(model string) (string, geminiThinkingConfig) {
	hasThinkingSuffix := strings.HasSuffix(model, "-thinking")
	baseModel := strings.TrimSuffix(model, "-thinking")

	switch {
	// Gemini 3 Flash - supports MINIMAL, LOW, MEDIUM, HIGH
	case strings.HasPrefix(baseModel, "gemini-3-flash"):
		if hasThinkingSuffix {
			return baseModel, geminiThinkingConfig{level: genai.ThinkingLevelHigh}
		}
		return baseModel, geminiThinkingConfig{level: genai.ThinkingLevelMinimal}

	// Gemini 3 Pro - only supports LOW and HIGH (not MINIMAL)
	case strings.HasPrefix(baseModel, "gemini-3-pro"):
		if hasThinkingSuffix {
			return baseModel, geminiThinkingConfig{level: genai.ThinkingLevelHigh}
		}
		return baseModel, geminiThinkingConfig{level: genai.ThinkingLevelLow}

	// Gemini 2.5 models - disable thinking with thinkingBudget=0
	case strings.HasPrefix(baseModel, "gemini-2.5"):
		zero := int32(0)
		return baseModel, geminiThinkingConfig{budget: &zero}

	// Unknown model - no thinking config
	default:
		return model, geminiThinkingConfig{}
	}
}

// NewGeminiProvider creates a new Gemini provider. An explicit apiKey takes
// precedence over the GEMINI_API_KEY environment variable.
func NewGeminiProvider(apiKey, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: no API key (set providers.gemini.api_key or GEMINI_API_KEY)")
	}
	if model == "" {
		model = "gemini-3-flash-preview"
	}
	baseModel, thinkingCfg := parseGeminiModelThinking(model)
	return &GeminiProvider{
		apiKey:         apiKey,
		model:          baseModel,
		thinkingLevel:  thinkingCfg.level,
		thinkingBudget: thinkingCfg.budget,
	}, nil
}

func (p *GeminiProvider) Name() string {
	if p.thinkingLevel != "" {
		return fmt.Sprintf("Gemini (%s, thinking=%s)", p.model, strings.ToLower(string(p.thinkingLevel)))
	}
	if p.thinkingBudget != nil {
		return fmt.Sprintf("Gemini (%s, thinkingBudget=%d)", p.model, *p.thinkingBudget)
	}
	return fmt.Sprintf("Gemini (%s)", p.model)
}

func (p *GeminiProvider) Capabilities() Capabilities {
	return Capabilities{ToolCalls: true}
}

func (p *GeminiProvider) newClient(ctx context.Context) (*genai.Client, error) {
	return genai.NewClient(ctx, &genai.ClientConfig{APIKey: p.apiKey})
}

func (p *GeminiProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		client, err := p.newClient(ctx)
		if err != nil {
			return fmt.Errorf("failed to create gemini client: %w", err)
		}

		system, contents := buildGeminiContents(req.Messages)
		if len(contents) == 0 {
			return fmt.Errorf("no user content provided")
		}

		config := &genai.GenerateContentConfig{}
		if system != "" {
			config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
		}
		if req.MaxOutputTokens > 0 {
			config.MaxOutputTokens = int32(req.MaxOutputTokens)
		}
		if req.Temperature > 0 {
			v := float32(req.Temperature)
			config.Temperature = &v
		}
		if req.TopP > 0 {
			v := float32(req.TopP)
			config.TopP = &v
		}

		// Thinking config conflicts with function calling on current models
		if len(req.Tools) == 0 {
			if p.thinkingLevel != "" {
				config.ThinkingConfig = &genai.ThinkingConfig{
					ThinkingLevel: p.thinkingLevel,
				}
			} else if p.thinkingBudget != nil {
				config.ThinkingConfig = &genai.ThinkingConfig{
					ThinkingBudget: p.thinkingBudget,
				}
			}
		}

		if len(req.Tools) > 0 {
			config.Tools = buildGeminiTools(req.Tools)
			config.ToolConfig = buildGeminiToolConfig(req.ToolChoice)
		}

		if req.Debug {
			fmt.Fprintln(os.Stderr, "=== DEBUG: Gemini Stream Request ===")
			fmt.Fprintf(os.Stderr, "Provider: %s\n", p.Name())
			fmt.Fprintf(os.Stderr, "System: %s\n", truncate(system, 200))
			fmt.Fprintf(os.Stderr, "Input Items: %d\n", len(contents))
			fmt.Fprintf(os.Stderr, "Tools: %d\n", len(req.Tools))
			fmt.Fprintln(os.Stderr, "====================================")
		}

		if len(req.Tools) > 0 {
			return p.generateWithTools(ctx, client, chooseModel(req.Model, p.model), contents, config, events)
		}

		tracker := newContentTracker(events)
		var lastResp *genai.GenerateContentResponse
		for resp, err := range client.Models.GenerateContentStream(ctx, chooseModel(req.Model, p.model), contents, config) {
			if err != nil {
				return fmt.Errorf("gemini streaming error: %w", err)
			}
			lastResp = resp
			if text := resp.Text(); text != "" {
				tracker.MarkContent()
				events <- Event{Type: EventTextDelta, Text: text}
			}
		}
		tracker.SetUsage(geminiUsage(lastResp))
		return tracker.Finish()
	}), nil
}

// generateWithTools uses the non-streaming endpoint: the Gemini API delivers
// function calls as complete parts, not argument deltas, so there is nothing
// to accumulate. Calls still pass through the accumulator so consumers see
// the same start/call event pairs as with other providers.
func (p *GeminiProvider) generateWithTools(ctx context.Context, client *genai.Client, model string, contents []*genai.Content, config *genai.GenerateContentConfig, events chan<- Event) error {
	resp, err := client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return fmt.Errorf("gemini API error: %w", err)
	}

	accumulator := newToolCallAccumulator(events)
	tracker := newContentTracker(events)

	// Gemini 3 returns a thought signature that must be passed back with
	// tool results on the next turn.
	var lastThoughtSig []byte
	var index int64
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Thought && len(part.ThoughtSignature) > 0 {
				lastThoughtSig = part.ThoughtSignature
			}
			// Thought parts are internal; skip their text
			if part.Text != "" && !part.Thought {
				tracker.MarkContent()
				events <- Event{Type: EventTextDelta, Text: part.Text}
			}
			if part.FunctionCall != nil {
				argsJSON, _ := jsonMarshal(part.FunctionCall.Args)
				thoughtSig := part.ThoughtSignature
				if thoughtSig == nil {
					thoughtSig = lastThoughtSig
				}
				accumulator.Start(index, ToolCall{
					ID:         part.FunctionCall.ID,
					Name:       part.FunctionCall.Name,
					Arguments:  argsJSON,
					ThoughtSig: thoughtSig,
				})
				if toolCall, ok := accumulator.Finish(index); ok {
					tracker.MarkContent()
					events <- Event{Type: EventToolCall, Tool: &toolCall}
				}
				index++
			}
		}
	}
	tracker.SetUsage(geminiUsage(resp))
	return tracker.Finish()
}

func geminiUsage(resp *genai.GenerateContentResponse) *Usage {
	if resp == nil || resp.UsageMetadata == nil || resp.UsageMetadata.TotalTokenCount == 0 {
		return nil
	}
	return &Usage{
		InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
		OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
	}
}

func buildGeminiTools(specs []ToolSpec) []*genai.Tool {
	if len(specs) == 0 {
		return nil
	}
	tools := make([]*genai.Tool, 0, len(specs))
	for _, spec := range specs {
		// Normalize schema for Gemini's requirements (similar to OpenAI normalization)
		schema := normalizeSchemaForGemini(spec.Schema)
		tools = append(tools, &genai.Tool{
			FunctionDeclarations: []*genai.FunctionDeclaration{
				{
					Name:        spec.Name,
					Description: spec.Description,
					Parameters:  schemaToGenai(schema),
				},
			},
		})
	}
	return tools
}

func jsonMarshal(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	return json.RawMessage(b), err
}

func buildGeminiContents(messages []Message) (string, []*genai.Content) {
	var systemParts []string
	contents := make([]*genai.Content, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			if text := collectTextParts(msg.Parts); text != "" {
				systemParts = append(systemParts, text)
			}
		case RoleUser:
			content := buildGeminiContent(genai.RoleUser, msg.Parts)
			if content != nil {
				contents = append(contents, content)
			}
		case RoleAssistant:
			content := buildGeminiContent(genai.RoleModel, msg.Parts)
			if content != nil {
				contents = append(contents, content)
			}
		case RoleTool:
			content := buildGeminiToolResultContent(msg.Parts)
			if content != nil {
				contents = append(contents, content)
			}
		}
	}

	return strings.Join(systemParts, "\n\n"), contents
}

func buildGeminiContent(role string, parts []Part) *genai.Content {
	content := &genai.Content{Role: role}
	for _, part := range parts {
		switch part.Type {
		case PartText:
			if part.Text != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: part.Text})
			}
		case PartToolCall:
			if part.ToolCall == nil {
				continue
			}
			args := toolArgsToMap(part.ToolCall.Arguments)
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   part.ToolCall.ID,
					Name: part.ToolCall.Name,
					Args: args,
				},
				ThoughtSignature: part.ToolCall.ThoughtSig, // Required for Gemini 3 thinking models
			})
		}
	}
	if len(content.Parts) == 0 {
		return nil
	}
	return content
}

func buildGeminiToolResultContent(parts []Part) *genai.Content {
	content := &genai.Content{Role: genai.RoleUser}
	for _, part := range parts {
		switch part.Type {
		case PartText:
			if part.Text != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: part.Text})
			}
		case PartToolResult:
			if part.ToolResult == nil {
				continue
			}
			// Include ThoughtSignature if present (required for Gemini 3 thinking models)
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:       part.ToolResult.ID,
					Name:     part.ToolResult.Name,
					Response: map[string]any{"output": part.ToolResult.Content},
				},
				ThoughtSignature: part.ToolResult.ThoughtSig,
			})
		}
	}
	if len(content.Parts) == 0 {
		return nil
	}
	return content
}

func toolArgsToMap(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err == nil {
		return args
	}
	return map[string]any{"_raw": string(raw)}
}

func buildGeminiToolConfig(choice ToolChoice) *genai.ToolConfig {
	mode := genai.FunctionCallingConfigModeAuto
	var allowed []string

	switch choice.Mode {
	case ToolChoiceNone:
		mode = genai.FunctionCallingConfigModeNone
	case ToolChoiceRequired:
		mode = genai.FunctionCallingConfigModeAny
	case ToolChoiceName:
		if strings.TrimSpace(choice.Name) != "" {
			mode = genai.FunctionCallingConfigModeAny
			allowed = []string{choice.Name}
		}
	case ToolChoiceAuto:
		mode = genai.FunctionCallingConfigModeAuto
	}

	return &genai.ToolConfig{
		FunctionCallingConfig: &genai.FunctionCallingConfig{
			Mode:                 mode,
			AllowedFunctionNames: allowed,
		},
	}
}
