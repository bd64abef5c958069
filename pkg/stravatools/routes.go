package stravatools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sameehj/strava-mcp/pkg/format"
	"github.com/sameehj/strava-mcp/pkg/tool"
)

// ErrExportDirUnset is returned by the export tools when no export
// directory is configured.
var ErrExportDirUnset = errors.New("route export directory not configured: set ROUTE_EXPORT_PATH")

var routeIDPattern = regexp.MustCompile(`^[0-9]+$`)

func (ts *toolset) athleteRoutes() tool.Descriptor {
	return tool.Descriptor{
		Name:        "list-athlete-routes",
		Description: "Lists the routes created by the authenticated athlete, with pagination.",
		InputSchema: tool.Object(map[string]tool.Property{
			"page":    tool.Integer("Page number, starting at 1.").AtLeast(1).WithDefault(1),
			"perPage": tool.Integer("Routes per page (max 200).").Between(1, maxPerPage).WithDefault(defaultRecentPerPage),
		}),
		Execute: func(ctx context.Context, args tool.Args) (*tool.Result, error) {
			id, err := ts.athleteID(ctx)
			if err != nil {
				return nil, err
			}
			page := args.Int("page")
			out, err := ts.fetch(ctx, "/athletes/"+itoa(id)+"/routes", pageQuery(page, args.Int("perPage")), routeListProjection)
			if err != nil {
				return nil, err
			}
			routes := asList(out)
			data := map[string]any{"routes": routes, "page": page}
			if len(routes) == 0 {
				data["routes"] = []any{}
				return tool.TextWithData(fmt.Sprintf("No routes found on page %d.", page), data), nil
			}
			var b strings.Builder
			fmt.Fprintf(&b, "Routes (page %d, %d shown):\n", page, len(routes))
			for _, item := range routes {
				b.WriteString(routeLine(asMap(item)))
				b.WriteString("\n")
			}
			return tool.TextWithData(strings.TrimRight(b.String(), "\n"), data), nil
		},
	}
}

func (ts *toolset) route() tool.Descriptor {
	return tool.Descriptor{
		Name:        "get-route",
		Description: "Fetches detailed information about a specific route using its ID.",
		InputSchema: tool.Object(map[string]tool.Property{
			"routeId": tool.String("The unique identifier of the route."),
		}, "routeId"),
		Execute: func(ctx context.Context, args tool.Args) (*tool.Result, error) {
			id, err := routeID(args)
			if err != nil {
				return nil, err
			}
			out, err := ts.fetch(ctx, "/routes/"+id, nil, routeProjection)
			if err != nil {
				return nil, err
			}
			r := asMap(out)
			var b strings.Builder
			fmt.Fprintf(&b, "Route: %s (ID: %s)\n", str(r, "name"), str(r, "id"))
			if desc := str(r, "description"); desc != "" {
				fmt.Fprintf(&b, "Description: %s\n", desc)
			}
			writeMetric(&b, "Distance", r, "distance", format.Distance)
			writeMetric(&b, "Elevation gain", r, "elevation_gain", format.Elevation)
			writeMetric(&b, "Estimated moving time", r, "estimated_moving_time", format.Duration)
			writeMetric(&b, "Segments", r, "segment_count", count)
			if r["private"] == true {
				b.WriteString("Visibility: private\n")
			}
			return tool.TextWithData(strings.TrimRight(b.String(), "\n"), out), nil
		},
	}
}

// exportRoute builds export-route-gpx or export-route-tcx. The file Strava
// returns is written unchanged to <ExportDir>/<routeId>.<kind>.
func (ts *toolset) exportRoute(kind string) tool.Descriptor {
	upper := strings.ToUpper(kind)
	return tool.Descriptor{
		Name:        "export-route-" + kind,
		Description: "Exports a route as a " + upper + " file into the configured export directory (ROUTE_EXPORT_PATH).",
		InputSchema: tool.Object(map[string]tool.Property{
			"routeId": tool.String("The unique identifier of the route to export."),
		}, "routeId"),
		Execute: func(ctx context.Context, args tool.Args) (*tool.Result, error) {
			id, err := routeID(args)
			if err != nil {
				return nil, err
			}
			dir, err := ts.exportDir()
			if err != nil {
				return nil, err
			}
			data, err := ts.api.Download(ctx, "/routes/"+id+"/export_"+kind)
			if err != nil {
				return nil, err
			}
			path := filepath.Join(dir, id+"."+kind)
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return nil, fmt.Errorf("write %s export: %w", upper, err)
			}
			ts.logDebug("route_exported", "route", id, "format", kind, "path", path, "bytes", len(data))
			text := fmt.Sprintf("Route %s exported as %s to %s (%d bytes).", id, upper, path, len(data))
			return tool.TextWithData(text, map[string]any{
				"route_id": id,
				"format":   kind,
				"path":     path,
				"bytes":    len(data),
			}), nil
		},
	}
}

// exportDir returns the export directory, creating it when missing, and
// fails when it is unset or not a writable directory.
func (ts *toolset) exportDir() (string, error) {
	dir := strings.TrimSpace(ts.opts.ExportDir)
	if dir == "" {
		return "", ErrExportDirUnset
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory %s: %w", dir, err)
	}
	probe, err := os.CreateTemp(dir, ".write-check-*")
	if err != nil {
		return "", fmt.Errorf("export directory %s is not writable: %w", dir, err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return dir, nil
}

func routeID(args tool.Args) (string, error) {
	id := strings.TrimSpace(args.String("routeId"))
	if !routeIDPattern.MatchString(id) {
		return "", tool.ArgumentError("routeId", "must be a numeric route id")
	}
	return id, nil
}

func routeLine(r map[string]any) string {
	distance, _ := num(r, "distance")
	elevation, _ := num(r, "elevation_gain")
	line := fmt.Sprintf("- %s (ID: %s): %s, %s climbing", str(r, "name"), str(r, "id"), format.Distance(distance), format.Elevation(elevation))
	if moving, ok := num(r, "estimated_moving_time"); ok && moving > 0 {
		line += ", est. " + format.Duration(moving)
	}
	return line
}
