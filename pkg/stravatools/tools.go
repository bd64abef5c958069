// Package stravatools defines the Strava operations exposed as MCP tools.
// Each tool is a tool.Descriptor built against the API interface, so tests
// can run them without the network.
package stravatools

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/sameehj/strava-mcp/pkg/shape"
	"github.com/sameehj/strava-mcp/pkg/strava"
	"github.com/sameehj/strava-mcp/pkg/tool"
)

// API is the part of *strava.Client the tools use.
type API interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
	Put(ctx context.Context, path string, form url.Values, out any) error
	Download(ctx context.Context, path string) ([]byte, error)
}

var _ API = (*strava.Client)(nil)

// Options configures tool behaviour that is not part of the Strava API.
type Options struct {
	// ExportDir receives exported route files. Export tools fail when empty.
	ExportDir string
	Logger    *slog.Logger
}

type toolset struct {
	api  API
	opts Options
}

// Descriptors returns every tool in catalogue order.
func Descriptors(api API, opts Options) []tool.Descriptor {
	ts := &toolset{api: api, opts: opts}
	return []tool.Descriptor{
		ts.athleteProfile(),
		ts.athleteStats(),
		ts.activityDetails(),
		ts.recentActivities(),
		ts.athleteClubs(),
		ts.starredSegments(),
		ts.segment(),
		ts.exploreSegments(),
		ts.starSegment(),
		ts.segmentEffort(),
		ts.segmentEfforts(),
		ts.athleteRoutes(),
		ts.route(),
		ts.exportRoute("gpx"),
		ts.exportRoute("tcx"),
		ts.activityStreams(),
		ts.activityLaps(),
		ts.athleteZones(),
		ts.allActivities(),
	}
}

// Register adds every tool to reg.
func Register(reg *tool.Registry, api API, opts Options) error {
	return reg.RegisterAll(Descriptors(api, opts)...)
}

// fetch GETs path and applies the projection to the decoded body.
func (ts *toolset) fetch(ctx context.Context, path string, query url.Values, projection *shape.Projection) (any, error) {
	var raw any
	if err := ts.api.Get(ctx, path, query, &raw); err != nil {
		return nil, err
	}
	return projection.Apply(ctx, raw)
}

// athleteID resolves the authenticated athlete for athlete-scoped endpoints.
func (ts *toolset) athleteID(ctx context.Context) (int64, error) {
	var athlete strava.Athlete
	if err := ts.api.Get(ctx, "/athlete", nil, &athlete); err != nil {
		return 0, fmt.Errorf("resolve athlete: %w", err)
	}
	if athlete.ID == 0 {
		return 0, fmt.Errorf("resolve athlete: response missing id")
	}
	return athlete.ID, nil
}

func (ts *toolset) logDebug(msg string, args ...any) {
	if ts.opts.Logger != nil {
		ts.opts.Logger.Debug(msg, args...)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func pageQuery(page, perPage int) url.Values {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if perPage > 0 {
		q.Set("per_page", strconv.Itoa(perPage))
	}
	return q
}

func asList(v any) []any {
	switch list := v.(type) {
	case []any:
		return list
	case nil:
		return nil
	default:
		return []any{list}
	}
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func str(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// num reads a number from a projection output. gojq yields int for integer
// arithmetic and float64 for decoded JSON.
func num(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
