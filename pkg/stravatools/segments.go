package stravatools

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/sameehj/strava-mcp/pkg/format"
	"github.com/sameehj/strava-mcp/pkg/tool"
)

func (ts *toolset) starredSegments() tool.Descriptor {
	return tool.Descriptor{
		Name:        "list-starred-segments",
		Description: "Lists the segments starred by the authenticated athlete.",
		InputSchema: tool.Empty(),
		Execute: func(ctx context.Context, args tool.Args) (*tool.Result, error) {
			out, err := ts.fetch(ctx, "/segments/starred", nil, segmentListProjection)
			if err != nil {
				return nil, err
			}
			segments := asList(out)
			if len(segments) == 0 {
				return tool.TextWithData("You have no starred segments.", map[string]any{"segments": []any{}}), nil
			}
			var b strings.Builder
			fmt.Fprintf(&b, "You have %d starred segment(s):\n", len(segments))
			for _, item := range segments {
				b.WriteString(segmentLine(asMap(item)))
				b.WriteString("\n")
			}
			return tool.TextWithData(strings.TrimRight(b.String(), "\n"), map[string]any{"segments": segments}), nil
		},
	}
}

func (ts *toolset) segment() tool.Descriptor {
	return tool.Descriptor{
		Name:        "get-segment",
		Description: "Fetches detailed information about a specific segment using its ID.",
		InputSchema: tool.Object(map[string]tool.Property{
			"segmentId": tool.Integer("The unique identifier of the segment to fetch.").AtLeast(1),
		}, "segmentId"),
		Execute: func(ctx context.Context, args tool.Args) (*tool.Result, error) {
			id := args.Int64("segmentId")
			out, err := ts.fetch(ctx, "/segments/"+itoa(id), nil, segmentProjection)
			if err != nil {
				return nil, err
			}
			s := asMap(out)
			var b strings.Builder
			fmt.Fprintf(&b, "Segment: %s (ID: %s)\n", str(s, "name"), str(s, "id"))
			fmt.Fprintf(&b, "Activity type: %s\n", orDash(str(s, "activity_type")))
			if loc := joinNonEmpty(", ", str(s, "city"), str(s, "state"), str(s, "country")); loc != "" {
				fmt.Fprintf(&b, "Location: %s\n", loc)
			}
			writeMetric(&b, "Distance", s, "distance", format.Distance)
			writeMetric(&b, "Average grade", s, "average_grade", percent)
			writeMetric(&b, "Max grade", s, "maximum_grade", percent)
			writeMetric(&b, "Elevation gain", s, "total_elevation_gain", format.Elevation)
			writeMetric(&b, "Climb category", s, "climb_category", func(v float64) string { return strconv.Itoa(int(v)) })
			writeMetric(&b, "Efforts", s, "effort_count", count)
			writeMetric(&b, "Athletes", s, "athlete_count", count)
			writeMetric(&b, "Stars", s, "star_count", count)
			writeMetric(&b, "Your PR", s, "pr_elapsed_time", format.Duration)
			if s["starred"] == true {
				b.WriteString("Starred: yes\n")
			}
			return tool.TextWithData(strings.TrimRight(b.String(), "\n"), out), nil
		},
	}
}

func (ts *toolset) exploreSegments() tool.Descriptor {
	return tool.Descriptor{
		Name:        "explore-segments",
		Description: "Searches for popular segments within a geographical area given as south-west and north-east corners.",
		InputSchema: tool.Object(map[string]tool.Property{
			"bounds":       tool.String("Comma separated south-west latitude, south-west longitude, north-east latitude, north-east longitude."),
			"activityType": tool.String("Filter by activity type.").OneOf("running", "riding"),
			"minCat":       tool.Integer("Minimum climb category (0-5, riding only).").Between(0, 5),
			"maxCat":       tool.Integer("Maximum climb category (0-5, riding only).").Between(0, 5),
		}, "bounds"),
		Execute: func(ctx context.Context, args tool.Args) (*tool.Result, error) {
			bounds, err := parseBounds(args.String("bounds"))
			if err != nil {
				return nil, err
			}
			q := url.Values{"bounds": {bounds}}
			if t := args.String("activityType"); t != "" {
				q.Set("activity_type", t)
			}
			if args.Has("minCat") {
				q.Set("min_cat", strconv.Itoa(args.Int("minCat")))
			}
			if args.Has("maxCat") {
				q.Set("max_cat", strconv.Itoa(args.Int("maxCat")))
			}
			if args.Has("minCat") && args.Has("maxCat") && args.Int("minCat") > args.Int("maxCat") {
				return nil, tool.ArgumentError("maxCat", "must be >= minCat")
			}

			out, err := ts.fetch(ctx, "/segments/explore", q, exploreProjection)
			if err != nil {
				return nil, err
			}
			segments := asList(out)
			if len(segments) == 0 {
				return tool.TextWithData("No segments found in the given area.", map[string]any{"segments": []any{}}), nil
			}
			var b strings.Builder
			fmt.Fprintf(&b, "Found %d segment(s):\n", len(segments))
			for _, item := range segments {
				s := asMap(item)
				distance, _ := num(s, "distance")
				grade, _ := num(s, "avg_grade")
				fmt.Fprintf(&b, "- %s (ID: %s): %s, %s avg grade", str(s, "name"), str(s, "id"), format.Distance(distance), percent(grade))
				if cat := str(s, "climb_category_desc"); cat != "" && cat != "NC" {
					fmt.Fprintf(&b, ", category %s", cat)
				}
				b.WriteString("\n")
			}
			return tool.TextWithData(strings.TrimRight(b.String(), "\n"), map[string]any{"segments": segments}), nil
		},
	}
}

// parseBounds checks four comma separated coordinates and returns them
// normalised.
func parseBounds(raw string) (string, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return "", tool.ArgumentError("bounds", "expected sw_lat,sw_lng,ne_lat,ne_lng")
	}
	coords := make([]float64, 4)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return "", tool.ArgumentError("bounds", fmt.Sprintf("coordinate %d is not a number", i+1))
		}
		coords[i] = f
	}
	for _, lat := range []float64{coords[0], coords[2]} {
		if lat < -90 || lat > 90 {
			return "", tool.ArgumentError("bounds", "latitude must be within -90..90")
		}
	}
	for _, lng := range []float64{coords[1], coords[3]} {
		if lng < -180 || lng > 180 {
			return "", tool.ArgumentError("bounds", "longitude must be within -180..180")
		}
	}
	if coords[0] > coords[2] || coords[1] > coords[3] {
		return "", tool.ArgumentError("bounds", "south-west corner must be below and left of north-east corner")
	}
	out := make([]string, 4)
	for i, f := range coords {
		out[i] = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strings.Join(out, ","), nil
}

func (ts *toolset) starSegment() tool.Descriptor {
	return tool.Descriptor{
		Name:        "star-segment",
		Description: "Stars or unstars a segment for the authenticated athlete.",
		InputSchema: tool.Object(map[string]tool.Property{
			"segmentId": tool.Integer("The unique identifier of the segment.").AtLeast(1),
			"starred":   tool.Boolean("true to star the segment, false to unstar it."),
		}, "segmentId", "starred"),
		Execute: func(ctx context.Context, args tool.Args) (*tool.Result, error) {
			id := args.Int64("segmentId")
			starred := args.Bool("starred")
			var raw any
			if err := ts.api.Put(ctx, "/segments/"+itoa(id)+"/starred", url.Values{"starred": {strconv.FormatBool(starred)}}, &raw); err != nil {
				return nil, err
			}
			out, err := starProjection.Apply(ctx, raw)
			if err != nil {
				return nil, err
			}
			s := asMap(out)
			name := str(s, "name")
			if name == "" {
				name = "Segment " + itoa(id)
			}
			verb := "unstarred"
			if starred {
				verb = "starred"
			}
			return tool.TextWithData(fmt.Sprintf("Successfully %s %s (ID: %d).", verb, name, id), out), nil
		},
	}
}

func (ts *toolset) segmentEffort() tool.Descriptor {
	return tool.Descriptor{
		Name:        "get-segment-effort",
		Description: "Fetches detailed information about a specific segment effort using its ID.",
		InputSchema: tool.Object(map[string]tool.Property{
			"effortId": tool.Integer("The unique identifier of the segment effort.").AtLeast(1),
		}, "effortId"),
		Execute: func(ctx context.Context, args tool.Args) (*tool.Result, error) {
			out, err := ts.fetch(ctx, "/segment_efforts/"+itoa(args.Int64("effortId")), nil, effortProjection)
			if err != nil {
				return nil, err
			}
			e := asMap(out)
			var b strings.Builder
			fmt.Fprintf(&b, "Segment effort: %s (ID: %s)\n", str(e, "name"), str(e, "id"))
			fmt.Fprintf(&b, "Segment: %s (ID: %s)\n", orDash(str(e, "segment_name")), orDash(str(e, "segment_id")))
			fmt.Fprintf(&b, "Activity ID: %s\n", orDash(str(e, "activity_id")))
			fmt.Fprintf(&b, "Date: %s\n", orDash(str(e, "start_date_local")))
			writeMetric(&b, "Elapsed time", e, "elapsed_time", format.Duration)
			writeMetric(&b, "Moving time", e, "moving_time", format.Duration)
			writeMetric(&b, "Distance", e, "distance", format.Distance)
			writeMetric(&b, "Average heart rate", e, "average_heartrate", bpm)
			writeMetric(&b, "Average power", e, "average_watts", watts)
			writeMetric(&b, "PR rank", e, "pr_rank", count)
			writeMetric(&b, "KOM rank", e, "kom_rank", count)
			return tool.TextWithData(strings.TrimRight(b.String(), "\n"), out), nil
		},
	}
}

func (ts *toolset) segmentEfforts() tool.Descriptor {
	return tool.Descriptor{
		Name:        "list-segment-efforts",
		Description: "Lists the authenticated athlete's efforts on a segment, optionally within a local date range (ISO 8601).",
		InputSchema: tool.Object(map[string]tool.Property{
			"segmentId":      tool.Integer("The segment whose efforts should be listed.").AtLeast(1),
			"startDateLocal": tool.String("Only efforts starting after this local time (ISO 8601)."),
			"endDateLocal":   tool.String("Only efforts starting before this local time (ISO 8601)."),
			"perPage":        tool.Integer("Number of efforts to return (max 200).").Between(1, maxPerPage).WithDefault(defaultRecentPerPage),
		}, "segmentId"),
		Execute: func(ctx context.Context, args tool.Args) (*tool.Result, error) {
			id := args.Int64("segmentId")
			q := pageQuery(0, args.Int("perPage"))
			q.Set("segment_id", itoa(id))
			if s := args.String("startDateLocal"); s != "" {
				q.Set("start_date_local", s)
			}
			if s := args.String("endDateLocal"); s != "" {
				q.Set("end_date_local", s)
			}
			out, err := ts.fetch(ctx, "/segment_efforts", q, effortListProjection)
			if err != nil {
				return nil, err
			}
			efforts := asList(out)
			if len(efforts) == 0 {
				return tool.TextWithData(fmt.Sprintf("No efforts found on segment %d.", id), map[string]any{"efforts": []any{}}), nil
			}
			var b strings.Builder
			fmt.Fprintf(&b, "%d effort(s) on segment %d:\n", len(efforts), id)
			for _, item := range efforts {
				e := asMap(item)
				elapsed, _ := num(e, "elapsed_time")
				fmt.Fprintf(&b, "- %s (ID: %s): %s", orDash(str(e, "start_date_local")), str(e, "id"), format.Duration(elapsed))
				if rank, ok := num(e, "pr_rank"); ok {
					fmt.Fprintf(&b, ", PR rank %.0f", rank)
				}
				b.WriteString("\n")
			}
			return tool.TextWithData(strings.TrimRight(b.String(), "\n"), map[string]any{"efforts": efforts}), nil
		},
	}
}

func segmentLine(s map[string]any) string {
	distance, _ := num(s, "distance")
	grade, _ := num(s, "average_grade")
	line := fmt.Sprintf("- %s (ID: %s) %s: %s, %s avg grade",
		str(s, "name"), str(s, "id"), orDash(str(s, "activity_type")), format.Distance(distance), percent(grade))
	if loc := joinNonEmpty(", ", str(s, "city"), str(s, "country")); loc != "" {
		line += ", " + loc
	}
	return line
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

func count(v float64) string {
	return strconv.FormatInt(int64(v), 10)
}
