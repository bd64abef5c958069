// Package shape projects Strava JSON responses into the compact documents
// returned to tool callers. Projections are jq programs compiled once.
package shape

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
)

// Projection is a compiled jq program.
type Projection struct {
	name  string
	query string
	code  *gojq.Code
}

func Compile(name, query string) (*Projection, error) {
	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("parse projection %s: %w", name, err)
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, fmt.Errorf("compile projection %s: %w", name, err)
	}
	return &Projection{name: name, query: query, code: code}, nil
}

// MustCompile is Compile for package-level projections. It panics on error.
func MustCompile(name, query string) *Projection {
	p, err := Compile(name, query)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Projection) Name() string {
	return p.name
}

// Apply runs the program over input. A single output is returned as is,
// several outputs are collected into a slice, no output yields nil.
func (p *Projection) Apply(ctx context.Context, input any) (any, error) {
	generic, err := Normalize(input)
	if err != nil {
		return nil, err
	}

	var results []any
	iter := p.code.RunWithContext(ctx, generic)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, fmt.Errorf("projection %s: %w", p.name, err)
		}
		results = append(results, v)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// ApplyJSON decodes raw and applies the projection.
func (p *Projection) ApplyJSON(ctx context.Context, raw []byte) (any, error) {
	var input any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, fmt.Errorf("projection %s: invalid JSON: %w", p.name, err)
	}
	return p.Apply(ctx, input)
}

// Normalize converts v into the plain JSON value types jq operates on.
func Normalize(v any) (any, error) {
	switch v.(type) {
	case nil, bool, string, float64, int, map[string]any, []any:
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalize %T: %w", v, err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("normalize %T: %w", v, err)
	}
	return out, nil
}
