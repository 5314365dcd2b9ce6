package tools

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidArguments flags arguments that do not satisfy a tool's input schema
var ErrInvalidArguments = errors.New("invalid tool arguments")

// NormalizeSchema returns a usable object schema for a tool definition.
// Some LLM providers require object schemas to explicitly declare an
// empty properties map, even when the schema accepts no arguments.
func NormalizeSchema(schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return defaultObjectSchema()
	}
	if schemaType, ok := schema["type"].(string); ok && schemaType == "object" {
		if props, hasProps := schema["properties"]; !hasProps || props == nil {
			schema["properties"] = map[string]interface{}{}
		}
	}
	return schema
}

func defaultObjectSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

// ValidateArguments checks required properties and primitive types
// against the schema. It returns ErrInvalidArguments with a readable
// reason, the caller turns that into a synthesized tool error so the
// model can correct itself.
func ValidateArguments(schema map[string]interface{}, args map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	if required, ok := schema["required"].([]interface{}); ok {
		for _, r := range required {
			name, ok := r.(string)
			if !ok {
				continue
			}
			if _, present := args[name]; !present {
				return errors.Wrapf(ErrInvalidArguments, "missing required argument %q", name)
			}
		}
	}

	props, _ := schema["properties"].(map[string]interface{})
	for key, val := range args {
		rawPropSchema, ok := props[key]
		if !ok {
			continue
		}
		propSchema, ok := rawPropSchema.(map[string]interface{})
		if !ok {
			continue
		}
		if err := validateValue(key, propSchema, val); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(name string, schema map[string]interface{}, val interface{}) error {
	types := schemaTypes(schema)
	if len(types) == 0 || val == nil {
		return nil
	}

	for _, t := range types {
		if matchesType(t, val) {
			return nil
		}
	}
	return errors.Wrapf(ErrInvalidArguments, "argument %q must be of type %s, got %T",
		name, strings.Join(types, " or "), val)
}

func matchesType(schemaType string, val interface{}) bool {
	switch schemaType {
	case "string":
		_, ok := val.(string)
		return ok
	case "number":
		switch val.(type) {
		case float64, float32, int, int64, json.Number:
			return true
		}
		return false
	case "integer":
		switch v := val.(type) {
		case int, int64:
			return true
		case float64:
			return float64(int64(v)) == v
		case json.Number:
			_, err := v.Int64()
			return err == nil
		}
		return false
	case "boolean":
		_, ok := val.(bool)
		return ok
	case "object":
		_, ok := val.(map[string]interface{})
		return ok
	case "array":
		_, ok := val.([]interface{})
		return ok
	case "null":
		return val == nil
	}
	return true
}

// CoerceArguments attempts to coerce primitive argument types to match the JSON Schema.
// Only a pragmatic subset is implemented (number, integer, boolean, nested objects and arrays)
func CoerceArguments(schema map[string]interface{}, args map[string]interface{}) map[string]interface{} {
	if args == nil || schema == nil {
		return args
	}

	// Expect object schema with properties
	props, _ := schema["properties"].(map[string]interface{})
	if props == nil {
		return args
	}

	coerced := make(map[string]interface{}, len(args))
	for key, val := range args {
		if rawPropSchema, ok := props[key]; ok {
			if propSchema, ok := rawPropSchema.(map[string]interface{}); ok {
				if newVal, changed := coerceValue(propSchema, val); changed {
					coerced[key] = newVal
					continue
				}
			}
		}
		// Default: keep value as-is
		coerced[key] = val
	}
	return coerced
}

// coerceValue coerces a value based on the provided (sub)schema
func coerceValue(schema map[string]interface{}, val interface{}) (interface{}, bool) {
	types := schemaTypes(schema)

	// If object, recurse into properties
	if containsType(types, "object") {
		if obj, ok := val.(map[string]interface{}); ok {
			return CoerceArguments(schema, obj), true
		}
		// Try to parse from JSON string if provided
		if str, ok := val.(string); ok {
			var parsed map[string]interface{}
			if json.Unmarshal([]byte(str), &parsed) == nil {
				return CoerceArguments(schema, parsed), true
			}
		}
		return val, false
	}

	// Arrays: attempt to coerce items
	if containsType(types, "array") {
		itemsSchema, _ := schema["items"].(map[string]interface{})
		if itemsSchema == nil {
			return val, false
		}
		arr, ok := val.([]interface{})
		if !ok {
			// Attempt to parse JSON array from string
			if str, isStr := val.(string); isStr {
				var parsed []interface{}
				if json.Unmarshal([]byte(str), &parsed) == nil {
					arr = parsed
				} else {
					return val, false
				}
			} else {
				return val, false
			}
		}
		changed := false
		for i, item := range arr {
			if nv, ch := coerceValue(itemsSchema, item); ch {
				arr[i] = nv
				changed = true
			}
		}
		return arr, changed
	}

	// Numbers
	if containsType(types, "number") {
		if v, ok := val.(string); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, true
			}
		}
		return val, false
	}

	// Integers
	if containsType(types, "integer") {
		switch v := val.(type) {
		case string:
			if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				return i, true
			}
		case float64:
			// If model returned 3.0 for integer, coerce down
			if float64(int64(v)) == v {
				return int64(v), true
			}
		}
		return val, false
	}

	// Booleans
	if containsType(types, "boolean") {
		if v, ok := val.(string); ok {
			s := strings.TrimSpace(strings.ToLower(v))
			if s == "true" {
				return true, true
			}
			if s == "false" {
				return false, true
			}
		}
		return val, false
	}

	return val, false
}

// schemaTypes extracts the type which could be string or array (union)
func schemaTypes(schema map[string]interface{}) []string {
	var types []string
	switch t := schema["type"].(type) {
	case string:
		types = []string{t}
	case []interface{}:
		for _, v := range t {
			if s, ok := v.(string); ok {
				types = append(types, s)
			}
		}
	}
	return types
}

func containsType(types []string, t string) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

// ObjectSchema is a small helper for plugins declaring their tools
func ObjectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		req := make([]interface{}, len(required))
		for i, r := range required {
			req[i] = r
		}
		schema["required"] = req
	}
	return schema
}

// Property builds one property entry for ObjectSchema
func Property(propType, description string) map[string]interface{} {
	p := map[string]interface{}{"type": propType}
	if description != "" {
		p["description"] = description
	}
	return p
}

// EnumProperty builds a string property restricted to the given values
func EnumProperty(description string, values ...string) map[string]interface{} {
	enum := make([]interface{}, len(values))
	for i, v := range values {
		enum[i] = v
	}
	p := map[string]interface{}{"type": "string", "enum": enum}
	if description != "" {
		p["description"] = description
	}
	return p
}
