package fields

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// Result is the outcome of validating a whole field set. All problems are
// collected; validation never stops at the first error.
type Result struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors,omitempty"`
}

var styleKeys = []string{"fontFamily", "fontWeight", "fontStyle", "textDecoration", "color"}

// ValidateField checks one raw JSON field value.
//
// An absent or null value is valid and means the field is omitted. Otherwise
// the value must be an object with numeric x, y, width and height and
// string style attributes from their allowed domains.
func ValidateField(name Name, raw json.RawMessage) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] != '{' {
		return fmt.Errorf("%s: field must be an object", name)
	}

	var props map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &props); err != nil {
		return fmt.Errorf("%s: field must be an object", name)
	}

	var f Field
	coords := []struct {
		key string
		dst *float64
	}{{"x", &f.X}, {"y", &f.Y}, {"width", &f.Width}, {"height", &f.Height}}

	for _, c := range coords {
		v, ok := props[c.key]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return fmt.Errorf("%s: %s is required and must be a number", name, c.key)
		}
		if err := json.Unmarshal(v, c.dst); err != nil {
			return fmt.Errorf("%s: %s must be a number", name, c.key)
		}
	}

	for _, key := range styleKeys {
		v, ok := props[key]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return fmt.Errorf("%s: %s must be a string", name, key)
		}
		switch key {
		case "fontFamily":
			f.FontFamily = s
		case "fontWeight":
			f.FontWeight = s
		case "fontStyle":
			f.FontStyle = s
		case "textDecoration":
			f.TextDecoration = s
		case "color":
			f.Color = s
		}
	}

	return f.Validate(name)
}

// ValidateSet checks a raw JSON object mapping field names to fields.
func ValidateSet(raw json.RawMessage) Result {
	_, res := Parse(raw)
	return res
}

// Parse validates raw and, when it is valid, decodes it into a Set.
//
// Null entries are omitted from the returned Set. Nothing is silently dropped
// otherwise: a set with any invalid entry is rejected as a whole, so what
// validates is exactly what gets stored.
func Parse(raw json.RawMessage) (Set, Result) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || trimmed[0] != '{' {
		return nil, Result{Errors: []string{"fields must be an object with at least one valid field"}}
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, Result{Errors: []string{"fields must be an object with at least one valid field"}}
	}
	if len(entries) == 0 {
		return nil, Result{Errors: []string{"At least one valid field is required"}}
	}

	var errs, unknown []string
	set := Set{}
	for key, v := range entries {
		name := Name(key)
		if !name.Valid() {
			unknown = append(unknown, key)
			continue
		}
		if err := ValidateField(name, v); err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			continue
		}
		var f Field
		if err := json.Unmarshal(v, &f); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		set[name] = f
	}

	if len(unknown) > 0 {
		errs = append(errs, "Invalid field names: "+joinNames(unknown))
	}
	if len(errs) == 0 && len(set) == 0 {
		errs = append(errs, "At least one valid field is required")
	}
	if len(errs) > 0 {
		slices.Sort(errs)
		return nil, Result{Errors: errs}
	}
	return set, Result{IsValid: true}
}

// ValidateTyped checks an already decoded Set.
func ValidateTyped(s Set) Result {
	if len(s) == 0 {
		return Result{Errors: []string{"At least one valid field is required"}}
	}
	var errs []string
	for _, n := range Names {
		f, ok := s[n]
		if !ok {
			continue
		}
		if err := f.Validate(n); err != nil {
			errs = append(errs, err.Error())
		}
	}
	var unknown []string
	for n := range s {
		if !n.Valid() {
			unknown = append(unknown, string(n))
		}
	}
	if len(unknown) > 0 {
		errs = append(errs, "Invalid field names: "+joinNames(unknown))
	}
	if len(errs) > 0 {
		return Result{Errors: errs}
	}
	return Result{IsValid: true}
}
