package llm

import (
	"encoding/json"
	"sort"
	"testing"
)

func TestBuildOpenAIToolsWireShape(t *testing.T) {
	specs := []ToolSpec{{
		Name:        "read_file",
		Description: "Read a file",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"file_path": map[string]interface{}{"type": "string"},
			},
		},
	}}

	tools := buildOpenAITools(specs)
	if len(tools) != 1 {
		t.Fatalf("tools = %d, want 1", len(tools))
	}

	data, err := json.Marshal(tools[0])
	if err != nil {
		t.Fatal(err)
	}
	var wire struct {
		Type     string `json:"type"`
		Function struct {
			Name   string `json:"name"`
			Strict bool   `json:"strict"`
		} `json:"function"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatal(err)
	}
	if wire.Type != "function" {
		t.Errorf("type = %q, want function", wire.Type)
	}
	if wire.Function.Name != "read_file" {
		t.Errorf("function.name = %q", wire.Function.Name)
	}
	if !wire.Function.Strict {
		t.Error("strict mode not requested")
	}
}

func TestBuildOpenAIToolChoice(t *testing.T) {
	if _, ok := buildOpenAIToolChoice(ToolChoice{}); ok {
		t.Error("unset tool choice should be omitted")
	}

	choice, ok := buildOpenAIToolChoice(ToolChoice{Mode: ToolChoiceNone})
	if !ok || choice.OfAuto.Value != "none" {
		t.Errorf("none choice = %+v", choice)
	}

	choice, ok = buildOpenAIToolChoice(ToolChoice{Mode: ToolChoiceName, Name: "write_file"})
	if !ok {
		t.Fatal("named choice dropped")
	}
	named := choice.OfChatCompletionNamedToolChoice
	if named == nil || named.Function.Name != "write_file" {
		t.Errorf("named choice = %+v", choice)
	}
}

func TestBuildOpenAIAssistantMessageCarriesToolCalls(t *testing.T) {
	parts := []Part{
		{Type: PartText, Text: "running it"},
		{Type: PartToolCall, ToolCall: &ToolCall{
			ID:        "call-9",
			Name:      "run_command",
			Arguments: json.RawMessage(`{"command":"ls"}`),
		}},
	}

	param, ok := buildOpenAIAssistantMessage(parts)
	if !ok {
		t.Fatal("assistant message dropped")
	}
	assistant := param.OfAssistant
	if assistant == nil {
		t.Fatal("not an assistant message")
	}
	if len(assistant.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(assistant.ToolCalls))
	}
	call := assistant.ToolCalls[0]
	if call.ID != "call-9" || call.Function.Name != "run_command" {
		t.Errorf("tool call = %+v", call)
	}
	if call.Function.Arguments != `{"command":"ls"}` {
		t.Errorf("arguments = %q", call.Function.Arguments)
	}

	// A part list with neither text nor tool calls produces no message.
	if _, ok := buildOpenAIAssistantMessage(nil); ok {
		t.Error("empty assistant message not dropped")
	}
}

func TestNormalizeSchemaForOpenAI(t *testing.T) {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url":  map[string]interface{}{"type": "string", "format": "uri"},
			"when": map[string]interface{}{"type": "string", "format": "date-time"},
			"nested": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id": map[string]interface{}{"type": "string"},
				},
			},
		},
		"required": []string{"url"},
	}

	out := normalizeSchemaForOpenAI(schema)

	// All properties become required.
	required, ok := out["required"].([]string)
	if !ok {
		t.Fatalf("required = %T", out["required"])
	}
	sort.Strings(required)
	want := []string{"nested", "url", "when"}
	if len(required) != len(want) {
		t.Fatalf("required = %v", required)
	}
	for i := range want {
		if required[i] != want[i] {
			t.Fatalf("required = %v, want %v", required, want)
		}
	}

	if out["additionalProperties"] != false {
		t.Error("additionalProperties not forced to false")
	}

	props := out["properties"].(map[string]interface{})
	if _, ok := props["url"].(map[string]interface{})["format"]; ok {
		t.Error("unsupported format 'uri' not stripped")
	}
	if props["when"].(map[string]interface{})["format"] != "date-time" {
		t.Error("supported format 'date-time' stripped")
	}

	nested := props["nested"].(map[string]interface{})
	if nested["additionalProperties"] != false {
		t.Error("nested object missing additionalProperties:false")
	}

	// Original schema must be untouched.
	orig := schema["properties"].(map[string]interface{})["url"].(map[string]interface{})
	if orig["format"] != "uri" {
		t.Error("normalization mutated the input schema")
	}
	if _, ok := schema["additionalProperties"]; ok {
		t.Error("normalization mutated the input schema")
	}
}

func TestNormalizeSchemaPreservesMapValuedAdditionalProperties(t *testing.T) {
	schema := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": map[string]interface{}{"type": "string"},
	}
	out := normalizeSchemaForOpenAI(schema)
	if _, ok := out["additionalProperties"].(map[string]interface{}); !ok {
		t.Errorf("free-form map schema overwritten: %v", out["additionalProperties"])
	}
}

func TestParseModelEffort(t *testing.T) {
	cases := []struct {
		in     string
		model  string
		effort string
	}{
		{"gpt-5.2", "gpt-5.2", ""},
		{"gpt-5.2-high", "gpt-5.2", "high"},
		{"o4-mini-low", "o4-mini", "low"},
		{"gpt-5.2-xhigh", "gpt-5.2", "xhigh"},
	}
	for _, tc := range cases {
		model, effort := parseModelEffort(tc.in)
		if model != tc.model || effort != tc.effort {
			t.Errorf("parseModelEffort(%q) = (%q, %q), want (%q, %q)", tc.in, model, effort, tc.model, tc.effort)
		}
	}
}
