package stash

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"github.com/zoobzio/sentinel"
)

func init() {
	sentinel.Tag("schema")
}

// schemaPatterns resolves named patterns used in schema tags.
var schemaPatterns = map[string]string{
	"iso8601": ISO8601UTCPattern,
}

// Validator checks input representations against the KeyValuePair schema.
// The schema is derived from the struct's schema tags and rejects any
// attribute the struct does not declare.
type Validator struct {
	schema   *gojsonschema.Schema
	document map[string]any
	defaults map[string]any
}

// NewValidator compiles the KeyValuePair schema.
func NewValidator() (*Validator, error) {
	doc, defaults, err := buildSchema(sentinel.Scan[KeyValuePair]())
	if err != nil {
		return nil, err
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &Validator{schema: schema, document: doc, defaults: defaults}, nil
}

// buildSchema turns schema tags into a JSON Schema document plus the
// declared defaults.
func buildSchema(meta sentinel.Metadata) (map[string]any, map[string]any, error) {
	properties := make(map[string]any)
	defaults := make(map[string]any)
	required := make([]string, 0, 1)

	for _, field := range meta.Fields {
		tag, ok := field.Tags["schema"]
		if !ok {
			continue
		}

		parts := strings.Split(tag, ",")
		if len(parts) < 2 {
			return nil, nil, fmt.Errorf("invalid schema tag %q for field %s", tag, field.Name)
		}
		name, typ := parts[0], parts[1]
		prop := map[string]any{"type": typ}

		for _, opt := range parts[2:] {
			key, val, _ := strings.Cut(opt, "=")
			switch key {
			case "required":
				required = append(required, name)
			case "default":
				def, err := parseDefault(typ, val)
				if err != nil {
					return nil, nil, fmt.Errorf("invalid default %q for field %s: %w", val, field.Name, err)
				}
				prop["default"] = def
				defaults[name] = def
			case "pattern":
				pattern, ok := schemaPatterns[val]
				if !ok {
					return nil, nil, fmt.Errorf("unknown pattern %q for field %s", val, field.Name)
				}
				prop["pattern"] = pattern
			case "minimum", "maximum":
				n, err := strconv.ParseInt(val, 10, 64)
				if err != nil {
					return nil, nil, fmt.Errorf("invalid %s %q for field %s: %w", key, val, field.Name, err)
				}
				prop[key] = n
			default:
				return nil, nil, fmt.Errorf("unknown schema option %q for field %s", key, field.Name)
			}
		}

		properties[name] = prop
	}

	if len(properties) == 0 {
		return nil, nil, fmt.Errorf("type %s declares no schema attributes", meta.TypeName)
	}

	doc := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
	return doc, defaults, nil
}

func parseDefault(typ, val string) (any, error) {
	switch typ {
	case "boolean":
		return strconv.ParseBool(val)
	case "integer":
		return strconv.ParseInt(val, 10, 64)
	case "string":
		return val, nil
	default:
		return nil, fmt.Errorf("defaults not supported for type %s", typ)
	}
}

// Attributes returns the permitted attribute names, sorted.
func (v *Validator) Attributes() []string {
	props, _ := v.document["properties"].(map[string]any)
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks doc against the schema.
// Violations are returned as a *ValidationError.
func (v *Validator) Validate(ctx context.Context, doc map[string]any) error {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		verr := newValidationError("(root)", err.Error())
		emitValidationFailed(ctx, 1, verr)
		return verr
	}

	if result.Valid() {
		return nil
	}

	fieldErrs := make([]FieldError, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		fieldErrs = append(fieldErrs, FieldError{
			Field:   resultField(re),
			Message: re.Description(),
		})
	}
	sort.SliceStable(fieldErrs, func(i, j int) bool {
		return fieldErrs[i].Field < fieldErrs[j].Field
	})

	verr := &ValidationError{Errors: fieldErrs}
	emitValidationFailed(ctx, len(fieldErrs), verr)
	return verr
}

// resultField names the attribute a schema error refers to.
func resultField(re gojsonschema.ResultError) string {
	if prop, ok := re.Details()["property"].(string); ok && prop != "" {
		return prop
	}
	return strings.TrimPrefix(re.Field(), "(root).")
}

// ApplyDefaults fills absent attributes that declare a default.
func (v *Validator) ApplyDefaults(doc map[string]any) {
	for name, def := range v.defaults {
		if _, ok := doc[name]; !ok {
			doc[name] = def
		}
	}
}
