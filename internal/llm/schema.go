package llm

// schemaRequired extracts the "required" array from a tool's raw JSON schema
// as a []string, tolerating both []string and []interface{} encodings.
func schemaRequired(schema map[string]interface{}) []string {
	if schema == nil {
		return nil
	}
	switch v := schema["required"].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// normalizeSchemaForOpenAI rewrites a tool's JSON schema to satisfy the
// OpenAI Responses API's strict mode: every object needs an explicit
// "additionalProperties" (defaulting to false when not already set) and
// every property must be listed in "required". A map already used to
// describe free-form additionalProperties (itself a schema, not a bare
// bool) is left untouched so it keeps describing the shape of map values
// rather than being clobbered into a disallow-extras flag.
func normalizeSchemaForOpenAI(schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return nil
	}
	return normalizeSchemaNode(schema).(map[string]interface{})
}

func normalizeSchemaNode(node interface{}) interface{} {
	switch v := node.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = val
		}
		normalizeObjectSchema(out)
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = normalizeSchemaNode(item)
		}
		return out
	default:
		return node
	}
}

func normalizeObjectSchema(schema map[string]interface{}) {
	if props, ok := schema["properties"].(map[string]interface{}); ok {
		normalized := make(map[string]interface{}, len(props))
		required := make([]string, 0, len(props))
		for name, propSchema := range props {
			normalized[name] = normalizeSchemaNode(propSchema)
			required = append(required, name)
		}
		schema["properties"] = normalized
		schema["required"] = required
	}

	if schema["type"] == "object" {
		if ap, ok := schema["additionalProperties"]; ok {
			// A map value describes the shape of extra properties (a
			// free-form map) and must be preserved, not overwritten.
			if apMap, isMap := ap.(map[string]interface{}); isMap {
				schema["additionalProperties"] = normalizeSchemaNode(apMap)
			}
		} else {
			schema["additionalProperties"] = false
		}
	}

	if items, ok := schema["items"]; ok {
		schema["items"] = normalizeSchemaNode(items)
	}
}

// normalizeFreeFormMapProperties rewrites any "object" schema node that uses
// a schema-valued additionalProperties (a free-form string/value map) into
// an array of {key, value} objects. OpenAI's strict-mode tool schemas can't
// express arbitrary extra properties, so free-form maps have to be encoded
// as an explicit list of entries instead.
func normalizeFreeFormMapProperties(schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return nil
	}
	return normalizeFreeFormMapNode(schema).(map[string]interface{})
}

func normalizeFreeFormMapNode(node interface{}) interface{} {
	v, ok := node.(map[string]interface{})
	if !ok {
		return node
	}

	out := make(map[string]interface{}, len(v))
	for k, val := range v {
		out[k] = val
	}

	if ap, ok := out["additionalProperties"].(map[string]interface{}); ok && out["type"] == "object" {
		converted := map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"key":   map[string]interface{}{"type": "string"},
					"value": normalizeFreeFormMapNode(ap),
				},
				"required":             []string{"key", "value"},
				"additionalProperties": false,
			},
		}
		for _, metaKey := range []string{"description", "title", "default"} {
			if mv, ok := out[metaKey]; ok {
				converted[metaKey] = mv
			}
		}
		return converted
	}

	if props, ok := out["properties"].(map[string]interface{}); ok {
		normalized := make(map[string]interface{}, len(props))
		for name, propSchema := range props {
			normalized[name] = normalizeFreeFormMapNode(propSchema)
		}
		out["properties"] = normalized
	}
	if items, ok := out["items"]; ok {
		out["items"] = normalizeFreeFormMapNode(items)
	}
	if anyOf, ok := out["anyOf"].([]interface{}); ok {
		normalized := make([]interface{}, len(anyOf))
		for i, branch := range anyOf {
			normalized[i] = normalizeFreeFormMapNode(branch)
		}
		out["anyOf"] = normalized
	}
	return out
}

// truncate shortens s to at most n runes, appending "..." when cut.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
