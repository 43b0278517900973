package result

import (
	"encoding/json"
	"fmt"
)

// Kind names an expected JSON value kind for schema checks.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
	KindObject Kind = "object"
	KindArray  Kind = "array"
	KindAny    Kind = "any"
)

// Schema describes the required top-level shape of a payload. When Element
// is set the payload must be an array and every element is checked against
// Element instead.
type Schema struct {
	Required map[string]Kind
	Element  *Schema
}

// ObjectSchema builds a schema requiring the given keys on a payload object.
func ObjectSchema(required map[string]Kind) *Schema {
	return &Schema{Required: required}
}

// ArraySchema builds a schema requiring an array whose elements carry the
// given keys.
func ArraySchema(required map[string]Kind) *Schema {
	return &Schema{Element: ObjectSchema(required)}
}

// Validate checks data against the schema. It reports the first violation.
func (s *Schema) Validate(data json.RawMessage) error {
	if s == nil {
		return nil
	}
	if len(data) == 0 {
		return fmt.Errorf("empty payload")
	}

	if s.Element != nil {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("expected array: %v", err)
		}
		for i, item := range items {
			if err := s.Element.Validate(item); err != nil {
				return fmt.Errorf("element %d: %v", i, err)
			}
		}
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("expected object: %v", err)
	}
	for key, kind := range s.Required {
		raw, ok := obj[key]
		if !ok {
			return fmt.Errorf("missing required key %q", key)
		}
		if err := checkKind(key, kind, raw); err != nil {
			return err
		}
	}
	return nil
}

func checkKind(key string, kind Kind, raw json.RawMessage) error {
	if kind == KindAny || string(raw) == "null" {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("key %q: %v", key, err)
	}
	switch kind {
	case KindString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("key %q: expected string, got %T", key, v)
		}
	case KindNumber:
		if _, ok := v.(float64); !ok {
			return fmt.Errorf("key %q: expected number, got %T", key, v)
		}
	case KindBool:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("key %q: expected bool, got %T", key, v)
		}
	case KindObject:
		if _, ok := v.(map[string]interface{}); !ok {
			return fmt.Errorf("key %q: expected object, got %T", key, v)
		}
	case KindArray:
		if _, ok := v.([]interface{}); !ok {
			return fmt.Errorf("key %q: expected array, got %T", key, v)
		}
	default:
		return fmt.Errorf("key %q: unknown kind %q", key, kind)
	}
	return nil
}
