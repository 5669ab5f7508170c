package workflow

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaRegistry compiles and caches JSON schemas by content hash so a
// node whose schema doesn't change between executions isn't
// recompiled every run.
type SchemaRegistry struct {
	mu      sync.Mutex
	schemas map[string]*jsonschema.Schema
}

// NewSchemaRegistry returns an empty registry.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{schemas: make(map[string]*jsonschema.Schema)}
}

func (r *SchemaRegistry) compile(raw json.RawMessage) (*jsonschema.Schema, error) {
	sum := sha256.Sum256(raw)
	key := hex.EncodeToString(sum[:])

	r.mu.Lock()
	defer r.mu.Unlock()
	if schema, ok := r.schemas[key]; ok {
		return schema, nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(key, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("workflow: add schema resource: %w", err)
	}
	schema, err := compiler.Compile(key)
	if err != nil {
		return nil, fmt.Errorf("workflow: compile schema: %w", err)
	}
	r.schemas[key] = schema
	return schema, nil
}

// CoercionLog records a coercion applied to a value before validation.
// ValidateAndCoerce returns these to its caller; the node handlers in
// this package discard them and do not attach them to the node result.
type CoercionLog struct {
	Path string `json:"path"`
	Rule string `json:"rule"`
}

// ValidateAndCoerce validates raw against schemaRaw, applying the
// bounded coercion set before giving up: numeric-key
// object → sorted array, JSON string → parsed value, primitive↔primitive,
// single value → single-element array, case-insensitive property
// renaming. Returns the (possibly coerced) value, the coercions applied,
// or a validation error naming expected vs received types.
func (r *SchemaRegistry) ValidateAndCoerce(nodeID string, raw json.RawMessage, schemaRaw json.RawMessage) (json.RawMessage, []CoercionLog, error) {
	schema, err := r.compile(schemaRaw)
	if err != nil {
		return nil, nil, err
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, nil, &ErrValidationFailed{NodeID: nodeID, Expected: "valid JSON", Received: "unparseable", Detail: err.Error()}
	}

	var schemaDoc map[string]any
	_ = json.Unmarshal(schemaRaw, &schemaDoc)

	if err := schema.Validate(value); err == nil {
		return raw, nil, nil
	}

	coerced, logs := coerce(value, schemaDoc, "")
	coercedRaw, marshalErr := json.Marshal(coerced)
	if marshalErr == nil {
		if err := schema.Validate(coerced); err == nil {
			return coercedRaw, logs, nil
		}
	}

	expected, _ := schemaDoc["type"].(string)
	return nil, logs, &ErrValidationFailed{
		NodeID:   nodeID,
		Expected: expected,
		Received: jsonTypeName(value),
		Detail:   "validation failed after coercion attempts",
	}
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// coerce applies the bounded coercion set against value for the
// schema's declared type at path, returning the coerced value plus a
// log of what it changed. Coercion is best-effort: if nothing applies,
// value is returned unchanged.
func coerce(value any, schemaDoc map[string]any, path string) (any, []CoercionLog) {
	wantType, _ := schemaDoc["type"].(string)
	var logs []CoercionLog

	if s, ok := value.(string); ok && (wantType == "object" || wantType == "array") {
		var parsed any
		if err := json.Unmarshal([]byte(s), &parsed); err == nil {
			logs = append(logs, CoercionLog{Path: path, Rule: "string-json-parse"})
			value = parsed
		}
	}

	if obj, ok := value.(map[string]any); ok && wantType == "array" {
		if arr, ok := numericKeyedObjectToArray(obj); ok {
			logs = append(logs, CoercionLog{Path: path, Rule: "numeric-keyed-object-to-array"})
			value = arr
		}
	}

	if wantType == "array" {
		if arr, ok := value.([]any); ok {
			itemSchema, _ := schemaDoc["items"].(map[string]any)
			for i, item := range arr {
				coercedItem, itemLogs := coerce(item, itemSchema, fmt.Sprintf("%s[%d]", path, i))
				arr[i] = coercedItem
				logs = append(logs, itemLogs...)
			}
			value = arr
		} else if value != nil {
			logs = append(logs, CoercionLog{Path: path, Rule: "single-value-to-array"})
			value = []any{value}
		}
	}

	if wantType == "object" {
		if obj, ok := value.(map[string]any); ok {
			props, _ := schemaDoc["properties"].(map[string]any)
			if props != nil {
				obj, logs = renamePropertiesCaseInsensitive(obj, props, path, logs)
				for name, propSchema := range props {
					sub, exists := obj[name]
					if !exists {
						continue
					}
					subSchema, _ := propSchema.(map[string]any)
					coercedSub, subLogs := coerce(sub, subSchema, path+"."+name)
					obj[name] = coercedSub
					logs = append(logs, subLogs...)
				}
			}
			value = obj
		}
	}

	if wantType == "string" || wantType == "number" || wantType == "integer" || wantType == "boolean" {
		if coerced, ok := coercePrimitive(value, wantType); ok {
			logs = append(logs, CoercionLog{Path: path, Rule: "primitive-coercion"})
			value = coerced
		}
	}

	return value, logs
}

func numericKeyedObjectToArray(obj map[string]any) ([]any, bool) {
	if len(obj) == 0 {
		return nil, false
	}
	keys := make([]int, 0, len(obj))
	for k := range obj {
		idx, err := strconv.Atoi(k)
		if err != nil {
			return nil, false
		}
		keys = append(keys, idx)
	}
	sort.Ints(keys)
	arr := make([]any, len(keys))
	for i, k := range keys {
		arr[i] = obj[strconv.Itoa(k)]
	}
	return arr, true
}

func renamePropertiesCaseInsensitive(obj map[string]any, props map[string]any, path string, logs []CoercionLog) (map[string]any, []CoercionLog) {
	lowerToSchemaName := make(map[string]string, len(props))
	for name := range props {
		lowerToSchemaName[lowerFold(name)] = name
	}
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		if _, exact := props[k]; exact {
			out[k] = v
			continue
		}
		if canonical, ok := lowerToSchemaName[lowerFold(k)]; ok && canonical != k {
			out[canonical] = v
			logs = append(logs, CoercionLog{Path: path + "." + k, Rule: "case-insensitive-rename:" + k + "->" + canonical})
			continue
		}
		out[k] = v
	}
	return out, logs
}

func lowerFold(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func coercePrimitive(value any, wantType string) (any, bool) {
	switch wantType {
	case "string":
		switch v := value.(type) {
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), true
		case bool:
			return strconv.FormatBool(v), true
		}
	case "number", "integer":
		if s, ok := value.(string); ok {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f, true
			}
		}
		if b, ok := value.(bool); ok {
			if b {
				return float64(1), true
			}
			return float64(0), true
		}
	case "boolean":
		if s, ok := value.(string); ok {
			if b, err := strconv.ParseBool(s); err == nil {
				return b, true
			}
		}
		if f, ok := value.(float64); ok {
			return f != 0, true
		}
	}
	return nil, false
}
