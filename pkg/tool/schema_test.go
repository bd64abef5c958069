package tool

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
)

func mustCompile(t *testing.T, s *jsonschema.Schema) *inputSchema {
	t.Helper()
	in, err := compileSchema(s)
	if err != nil {
		t.Fatalf("compile schema: %v", err)
	}
	return in
}

func TestSchemaDocumentEmpty(t *testing.T) {
	data, err := json.Marshal(SchemaDocument(Empty()))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"properties":{},"type":"object"}` {
		t.Fatalf("unexpected schema json %s", data)
	}
}

func TestSchemaDocumentCarriesConstraints(t *testing.T) {
	doc := SchemaDocument(Object(map[string]Property{
		"perPage": Integer("page size").Between(1, 200).WithDefault(30),
	}, "perPage"))
	props, _ := doc["properties"].(map[string]any)
	perPage, _ := props["perPage"].(map[string]any)
	if perPage["type"] != "integer" || perPage["maximum"] != float64(200) || perPage["default"] != float64(30) {
		t.Fatalf("unexpected property document %v", perPage)
	}
	if req, _ := doc["required"].([]any); len(req) != 1 || req[0] != "perPage" {
		t.Fatalf("unexpected required %v", doc["required"])
	}
}

func TestSchemaValidateTypesAndDefaults(t *testing.T) {
	in := mustCompile(t, Object(map[string]Property{
		"id":         Integer("id"),
		"perPage":    Integer("page size").Between(1, 200).WithDefault(30),
		"resolution": String("resolution").OneOf("low", "medium", "high"),
		"types":      Array(String("stream").OneOf("time", "distance"), "types").WithDefault([]string{"time"}),
		"starred":    Boolean("flag"),
	}, "id"))

	args, issues := in.validate(json.RawMessage(`{"id": 12345678901, "starred": true, "extra": "kept"}`))
	if len(issues) != 0 {
		t.Fatalf("unexpected issues %v", issues)
	}
	if args.Int64("id") != 12345678901 {
		t.Fatalf("expected id preserved, got %d", args.Int64("id"))
	}
	if args.Int("perPage") != 30 {
		t.Fatalf("expected default perPage 30, got %d", args.Int("perPage"))
	}
	if got := args.Strings("types"); len(got) != 1 || got[0] != "time" {
		t.Fatalf("expected default types, got %v", got)
	}
	if !args.Bool("starred") || args.String("extra") != "kept" {
		t.Fatalf("unexpected args %#v", args.Map())
	}
	if args.Has("resolution") {
		t.Fatalf("expected absent property without default to stay absent")
	}
}

func TestSchemaValidateReportsEveryIssue(t *testing.T) {
	in := mustCompile(t, Object(map[string]Property{
		"id":         Integer("id"),
		"perPage":    Integer("page size").Between(1, 200),
		"resolution": String("resolution").OneOf("low", "high"),
		"types":      Array(String("stream").OneOf("time"), "types"),
	}, "id"))

	_, issues := in.validate(json.RawMessage(`{"perPage": 500, "resolution": "ultra", "types": ["time", "bogus"]}`))
	fields := make([]string, 0, len(issues))
	for _, issue := range issues {
		fields = append(fields, issue.Field)
		if issue.Message == "" {
			t.Fatalf("expected a message for %s", issue.Field)
		}
	}
	got := strings.Join(fields, ",")
	if got != "id,perPage,resolution,types[1]" {
		t.Fatalf("unexpected issue fields %q (%v)", got, issues)
	}
}

func TestSchemaValidateIntegerRules(t *testing.T) {
	in := mustCompile(t, Object(map[string]Property{"n": Integer("n")}))
	if _, issues := in.validate(json.RawMessage(`{"n": 4.0}`)); len(issues) != 0 {
		t.Fatalf("expected integral float accepted, got %v", issues)
	}
	if _, issues := in.validate(json.RawMessage(`{"n": 4.5}`)); len(issues) != 1 || issues[0].Field != "n" {
		t.Fatalf("expected fractional rejected, got %v", issues)
	}
	if _, issues := in.validate(json.RawMessage(`{"n": "4"}`)); len(issues) != 1 {
		t.Fatalf("expected string rejected, got %v", issues)
	}
}

func TestSchemaValidateNullArguments(t *testing.T) {
	in := mustCompile(t, Empty())
	if _, issues := in.validate(json.RawMessage(`null`)); len(issues) != 0 {
		t.Fatalf("expected null accepted for empty schema, got %v", issues)
	}
	if _, issues := in.validate(nil); len(issues) != 0 {
		t.Fatalf("expected nil accepted for empty schema, got %v", issues)
	}
	if _, issues := in.validate(json.RawMessage(`[1]`)); len(issues) != 1 {
		t.Fatalf("expected non-object rejected, got %v", issues)
	}
}

func TestRegisterRejectsUnresolvableSchema(t *testing.T) {
	reg := NewRegistry()
	bad := &jsonschema.Schema{
		Type:       TypeObject,
		Properties: map[string]*jsonschema.Schema{"day": {Type: TypeString, Pattern: "("}},
	}
	err := reg.Register(Descriptor{Name: "bad", InputSchema: bad, Execute: noop})
	if !errors.Is(err, ErrInvalidDescriptor) {
		t.Fatalf("expected unresolvable schema to be rejected, got %v", err)
	}
}
