package util

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// ValidationError reports the first argument that does not match a tool's
// parameter schema. Field is a dotted path for nested objects ("address.city").
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// CreateSchema derives a JSON schema for the arguments struct v.
//
// Field names follow `json` tags; fields tagged "-" and unexported fields are
// skipped. Non-pointer fields without omitempty are required. The optional
// `description` tag is copied into the schema and `enum:"a,b"` restricts
// string values. Nested structs, slices and maps produce nested schemas.
//
//	type args struct {
//	  City  string `json:"city" description:"City name"`
//	  Units string `json:"units,omitempty" enum:"metric,imperial"`
//	}
func CreateSchema(v any) map[string]any {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if t == nil || t.Kind() != reflect.Struct {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}

	return structSchema(t, map[reflect.Type]bool{})
}

func structSchema(t reflect.Type, seen map[reflect.Type]bool) map[string]any {
	schema := map[string]any{"type": "object"}
	properties := map[string]any{}

	if seen[t] {
		// recursive type; stop at an untyped object
		schema["properties"] = properties
		return schema
	}
	seen[t] = true
	defer delete(seen, t)

	var required []string

	for field := range fieldsOf(t) {
		name, optional, ok := jsonField(field)
		if !ok {
			continue
		}

		prop := typeSchema(field.Type, seen)
		if d := field.Tag.Get("description"); d != "" {
			prop["description"] = d
		}
		if e := field.Tag.Get("enum"); e != "" {
			prop["enum"] = strings.Split(e, ",")
		}

		properties[name] = prop

		if !optional && field.Type.Kind() != reflect.Pointer {
			required = append(required, name)
		}
	}

	schema["properties"] = properties
	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}

func fieldsOf(t reflect.Type) func(yield func(reflect.StructField) bool) {
	return func(yield func(reflect.StructField) bool) {
		for i := range t.NumField() {
			if f := t.Field(i); f.IsExported() && !yield(f) {
				return
			}
		}
	}
}

// jsonField returns the JSON name of f and whether it is optional. ok is
// false for fields excluded from JSON.
func jsonField(f reflect.StructField) (name string, optional, ok bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false, false
	}

	name, opts, _ := strings.Cut(tag, ",")
	if name == "" {
		name = f.Name
	}

	return name, slices.Contains(strings.Split(opts, ","), "omitempty"), true
}

func typeSchema(t reflect.Type, seen map[reflect.Type]bool) map[string]any {
	switch t.Kind() {
	case reflect.Pointer:
		return typeSchema(t.Elem(), seen)
	case reflect.String:
		return map[string]any{"type": "string"}
	case reflect.Bool:
		return map[string]any{"type": "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer"}
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}
	case reflect.Slice, reflect.Array:
		return map[string]any{"type": "array", "items": typeSchema(t.Elem(), seen)}
	case reflect.Map:
		return map[string]any{"type": "object"}
	case reflect.Struct:
		return structSchema(t, seen)
	default:
		return map[string]any{"type": "string"}
	}
}

// ValidateParameters checks params against schema: required fields, value
// types, enums, nested objects and array items. Properties not declared in
// the schema are accepted. Both []string (CreateSchema) and []any (decoded
// JSON) are accepted for "required" and "enum".
func ValidateParameters(params map[string]any, schema map[string]any) error {
	return validateObject("", params, schema)
}

func validateObject(path string, obj map[string]any, schema map[string]any) error {
	for _, name := range stringList(schema["required"]) {
		if _, ok := obj[name]; !ok {
			return &ValidationError{Field: join(path, name), Message: "required field is missing"}
		}
	}

	properties, _ := schema["properties"].(map[string]any)

	// sorted for a deterministic first error
	names := make([]string, 0, len(obj))
	for name := range obj {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		prop, ok := properties[name].(map[string]any)
		if !ok {
			continue
		}
		if err := validateValue(join(path, name), obj[name], prop); err != nil {
			return err
		}
	}

	return nil
}

func validateValue(path string, value any, schema map[string]any) error {
	if value == nil {
		return nil
	}

	expected, _ := schema["type"].(string)
	if !matchesType(value, expected) {
		return &ValidationError{Field: path, Value: value, Message: fmt.Sprintf("expected type %s, got %T", expected, value)}
	}

	if enum := stringList(schema["enum"]); len(enum) > 0 {
		if s, ok := value.(string); ok && !slices.Contains(enum, s) {
			return &ValidationError{Field: path, Value: value, Message: fmt.Sprintf("must be one of %v", enum)}
		}
	}

	switch expected {
	case "object":
		if nested, ok := value.(map[string]any); ok {
			return validateObject(path, nested, schema)
		}
	case "array":
		items, ok := schema["items"].(map[string]any)
		if !ok {
			return nil
		}
		rv := reflect.ValueOf(value)
		for i := range rv.Len() {
			if err := validateValue(fmt.Sprintf("%s[%d]", path, i), rv.Index(i).Interface(), items); err != nil {
				return err
			}
		}
	}

	return nil
}

func matchesType(value any, expected string) bool {
	switch expected {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64: // decoded JSON numbers
			return v == float64(int64(v))
		case float32:
			return v == float32(int64(v))
		}
		return false
	case "number":
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			return true
		}
		return false
	case "array":
		k := reflect.TypeOf(value).Kind()
		return k == reflect.Slice || k == reflect.Array
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
