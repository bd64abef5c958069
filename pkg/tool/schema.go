package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// Property types used by the schema builders.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

// Property builds the schema of one named argument.
type Property struct {
	schema jsonschema.Schema
}

func String(description string) Property {
	return Property{schema: jsonschema.Schema{Type: TypeString, Description: description}}
}

func Integer(description string) Property {
	return Property{schema: jsonschema.Schema{Type: TypeInteger, Description: description}}
}

func Number(description string) Property {
	return Property{schema: jsonschema.Schema{Type: TypeNumber, Description: description}}
}

func Boolean(description string) Property {
	return Property{schema: jsonschema.Schema{Type: TypeBoolean, Description: description}}
}

func Array(items Property, description string) Property {
	return Property{schema: jsonschema.Schema{Type: TypeArray, Description: description, Items: items.Schema()}}
}

// OneOf restricts a string property to the given values.
func (p Property) OneOf(values ...string) Property {
	p.schema.Enum = make([]any, len(values))
	for i, v := range values {
		p.schema.Enum[i] = v
	}
	return p
}

// Between sets inclusive numeric bounds.
func (p Property) Between(min, max float64) Property {
	p.schema.Minimum = &min
	p.schema.Maximum = &max
	return p
}

// AtLeast sets an inclusive lower bound.
func (p Property) AtLeast(min float64) Property {
	p.schema.Minimum = &min
	return p
}

// WithDefault sets the value used when the argument is absent. It panics if
// v cannot be encoded, which only happens for programming errors.
func (p Property) WithDefault(v any) Property {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("tool: default %v: %v", v, err))
	}
	p.schema.Default = data
	return p
}

// Schema returns a fresh copy of the property schema.
func (p Property) Schema() *jsonschema.Schema {
	s := p.schema
	if s.Items != nil {
		items := *s.Items
		s.Items = &items
	}
	if s.Enum != nil {
		s.Enum = append([]any(nil), s.Enum...)
	}
	return &s
}

// Object builds the input schema of a tool from named properties.
func Object(props map[string]Property, required ...string) *jsonschema.Schema {
	properties := make(map[string]*jsonschema.Schema, len(props))
	for name, p := range props {
		properties[name] = p.Schema()
	}
	return &jsonschema.Schema{Type: TypeObject, Properties: properties, Required: required}
}

// Empty is the schema of a tool that takes no arguments.
func Empty() *jsonschema.Schema {
	return &jsonschema.Schema{Type: TypeObject, Properties: map[string]*jsonschema.Schema{}}
}

// SchemaDocument renders s as the inputSchema object of tools/list. The
// properties member is always present, even when empty.
func SchemaDocument(s *jsonschema.Schema) map[string]any {
	doc := map[string]any{}
	if s != nil {
		if data, err := json.Marshal(s); err == nil {
			_ = json.Unmarshal(data, &doc)
		}
	}
	if _, ok := doc["type"]; !ok {
		doc["type"] = TypeObject
	}
	if _, ok := doc["properties"]; !ok {
		doc["properties"] = map[string]any{}
	}
	return doc
}

// inputSchema is a resolved tool input schema. Each property is resolved on
// its own as well so failures can be reported per field.
type inputSchema struct {
	root     *jsonschema.Resolved
	required []string
	names    []string
	props    map[string]*jsonschema.Resolved
	items    map[string]*jsonschema.Resolved
}

func compileSchema(s *jsonschema.Schema) (*inputSchema, error) {
	root, err := s.Resolve(nil)
	if err != nil {
		return nil, err
	}
	in := &inputSchema{
		root:     root,
		required: s.Required,
		props:    make(map[string]*jsonschema.Resolved, len(s.Properties)),
		items:    make(map[string]*jsonschema.Resolved),
	}
	for name, prop := range s.Properties {
		resolved, err := prop.Resolve(nil)
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", name, err)
		}
		in.props[name] = resolved
		in.names = append(in.names, name)
		if prop.Items != nil {
			items, err := prop.Items.Resolve(nil)
			if err != nil {
				return nil, fmt.Errorf("property %s items: %w", name, err)
			}
			in.items[name] = items
		}
	}
	sort.Strings(in.names)
	return in, nil
}

// validate decodes raw arguments and checks them against the schema. Absent
// or null arguments are treated as an empty object. On success the returned
// Args has defaults filled in.
func (in *inputSchema) validate(raw json.RawMessage) (Args, []Issue) {
	values := map[string]any{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		var decoded any
		if err := json.Unmarshal(trimmed, &decoded); err != nil {
			return Args{}, []Issue{{Message: fmt.Sprintf("arguments are not valid JSON: %v", err)}}
		}
		obj, ok := decoded.(map[string]any)
		if !ok {
			return Args{}, []Issue{{Message: "arguments must be a JSON object"}}
		}
		values = obj
	}

	var issues []Issue
	for _, name := range in.required {
		if v, ok := values[name]; !ok || v == nil {
			issues = append(issues, Issue{Field: name, Message: "is required"})
		}
	}
	for _, name := range in.names {
		v, ok := values[name]
		if !ok {
			continue
		}
		if v == nil {
			delete(values, name)
			continue
		}
		issues = append(issues, in.checkProperty(name, v)...)
	}
	if len(issues) == 0 {
		if err := in.root.Validate(values); err != nil {
			issues = append(issues, Issue{Message: issueMessage(err)})
		}
	}
	if len(issues) > 0 {
		return Args{}, issues
	}

	if err := in.root.ApplyDefaults(&values); err != nil {
		return Args{}, []Issue{{Message: issueMessage(err)}}
	}
	return Args{values: values}, nil
}

func (in *inputSchema) checkProperty(name string, v any) []Issue {
	err := in.props[name].Validate(v)
	if err == nil {
		return nil
	}
	if list, ok := v.([]any); ok && in.items[name] != nil {
		var issues []Issue
		for i, item := range list {
			if itemErr := in.items[name].Validate(item); itemErr != nil {
				issues = append(issues, Issue{Field: name + "[" + strconv.Itoa(i) + "]", Message: issueMessage(itemErr)})
			}
		}
		if len(issues) > 0 {
			return issues
		}
	}
	return []Issue{{Field: name, Message: issueMessage(err)}}
}

// issueMessage drops the "validating <location>: " prefix the validator puts
// in front of every failure.
func issueMessage(err error) string {
	msg := err.Error()
	if strings.HasPrefix(msg, "validating ") {
		if _, rest, ok := strings.Cut(msg, ": "); ok {
			return rest
		}
	}
	return msg
}
