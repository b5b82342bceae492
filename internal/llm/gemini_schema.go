package llm

import "google.golang.org/genai"

// geminiUnsupportedKeywords lists JSON Schema keywords the Gemini function
// declaration endpoint rejects. Anything here is stripped before conversion.
var geminiUnsupportedKeywords = []string{
	"$schema", "format", "title", "default", "examples", "const",
	"minimum", "maximum", "exclusiveMinimum", "exclusiveMaximum",
	"minLength", "maxLength", "minItems", "maxItems", "uniqueItems",
	"pattern", "additionalProperties",
}

// normalizeSchemaForGemini strips unsupported keywords and marks every
// property required, the same shape the OpenAI normalization produces. The
// input schema is never mutated.
func normalizeSchemaForGemini(schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return nil
	}
	copied, _ := copyJSONValue(schema).(map[string]interface{})
	return scrubGeminiSchema(copied)
}

// copyJSONValue deep-copies a decoded JSON value so normalization can edit
// maps in place without touching the registered tool spec.
func copyJSONValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = copyJSONValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = copyJSONValue(item)
		}
		return out
	default:
		return v
	}
}

func scrubGeminiSchema(schema map[string]interface{}) map[string]interface{} {
	for _, keyword := range geminiUnsupportedKeywords {
		delete(schema, keyword)
	}

	if props, ok := schema["properties"].(map[string]interface{}); ok && len(props) > 0 {
		required := make([]string, 0, len(props))
		for name, val := range props {
			if sub, ok := val.(map[string]interface{}); ok {
				props[name] = scrubGeminiSchema(sub)
			}
			required = append(required, name)
		}
		// Gemini wants every property listed as required.
		schema["required"] = required
	}

	if items, ok := schema["items"].(map[string]interface{}); ok {
		schema["items"] = scrubGeminiSchema(items)
	}

	for _, keyword := range []string{"anyOf", "oneOf", "allOf"} {
		arr, ok := schema[keyword].([]interface{})
		if !ok {
			continue
		}
		for i, item := range arr {
			if sub, ok := item.(map[string]interface{}); ok {
				arr[i] = scrubGeminiSchema(sub)
			}
		}
	}

	return schema
}

var genaiTypeNames = map[string]genai.Type{
	"string":  genai.TypeString,
	"integer": genai.TypeInteger,
	"number":  genai.TypeNumber,
	"boolean": genai.TypeBoolean,
	"array":   genai.TypeArray,
	"object":  genai.TypeObject,
}

// schemaToGenai converts a decoded JSON schema into the SDK's typed form.
// Unknown or missing types fall back to string, which the API tolerates.
func schemaToGenai(schema map[string]interface{}) *genai.Schema {
	if schema == nil {
		return &genai.Schema{Type: genai.TypeString}
	}

	out := &genai.Schema{
		Type:     genai.TypeString,
		Required: schemaRequired(schema),
	}
	if name, ok := schema["type"].(string); ok {
		if t, ok := genaiTypeNames[name]; ok {
			out.Type = t
		}
	}
	if desc, ok := schema["description"].(string); ok {
		out.Description = desc
	}

	if props, ok := schema["properties"].(map[string]interface{}); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if sub, ok := prop.(map[string]interface{}); ok {
				out.Properties[name] = schemaToGenai(sub)
			}
		}
	}
	if items, ok := schema["items"].(map[string]interface{}); ok {
		out.Items = schemaToGenai(items)
	}

	return out
}
