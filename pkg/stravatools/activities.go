package stravatools

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sameehj/strava-mcp/pkg/format"
	"github.com/sameehj/strava-mcp/pkg/strava"
	"github.com/sameehj/strava-mcp/pkg/tool"
)

const (
	defaultRecentPerPage = 30
	maxPerPage           = 200

	defaultMaxActivities = 500
	defaultMaxAPICalls   = 10

	defaultPointsPerPage = 100
	allPoints            = -1

	listingLimit = 20
	dateLayout   = "2006-01-02"
)

var streamTypes = []string{
	"time", "distance", "latlng", "altitude", "velocity_smooth",
	"heartrate", "cadence", "watts", "temp", "moving", "grade_smooth",
}

var defaultStreamTypes = []string{
	"time", "distance", "latlng", "altitude", "heartrate", "cadence", "watts", "velocity_smooth",
}

func (ts *toolset) activityDetails() tool.Descriptor {
	return tool.Descriptor{
		Name:        "get-activity-details",
		Description: "Fetches detailed information about a specific activity using its ID.",
		InputSchema: tool.Object(map[string]tool.Property{
			"activityId": tool.Integer("The unique identifier of the activity to fetch.").AtLeast(1),
		}, "activityId"),
		Execute: func(ctx context.Context, args tool.Args) (*tool.Result, error) {
			id := args.Int64("activityId")
			out, err := ts.fetch(ctx, "/activities/"+itoa(id), url.Values{"include_all_efforts": {"false"}}, activityProjection)
			if err != nil {
				return nil, err
			}
			a := asMap(out)
			var b strings.Builder
			fmt.Fprintf(&b, "Activity: %s (ID: %s)\n", str(a, "name"), str(a, "id"))
			fmt.Fprintf(&b, "Type: %s\n", orDash(str(a, "sport_type")))
			fmt.Fprintf(&b, "Date: %s\n", format.Date(str(a, "start_date")))
			writeMetric(&b, "Distance", a, "distance", format.Distance)
			writeMetric(&b, "Moving time", a, "moving_time", format.Duration)
			writeMetric(&b, "Elapsed time", a, "elapsed_time", format.Duration)
			writeMetric(&b, "Elevation gain", a, "total_elevation_gain", format.Elevation)
			writeMetric(&b, "Average speed", a, "average_speed", format.Speed)
			writeMetric(&b, "Max speed", a, "max_speed", format.Speed)
			writeMetric(&b, "Average heart rate", a, "average_heartrate", bpm)
			writeMetric(&b, "Max heart rate", a, "max_heartrate", bpm)
			writeMetric(&b, "Average power", a, "average_watts", watts)
			writeMetric(&b, "Calories", a, "calories", func(v float64) string { return fmt.Sprintf("%.0f kcal", v) })
			if desc := str(a, "description"); desc != "" {
				fmt.Fprintf(&b, "Description: %s\n", desc)
			}
			return tool.TextWithData(strings.TrimRight(b.String(), "\n"), out), nil
		},
	}
}

func (ts *toolset) recentActivities() tool.Descriptor {
	return tool.Descriptor{
		Name:        "get-recent-activities",
		Description: "Fetches the most recent activities for the authenticated athlete.",
		InputSchema: tool.Object(map[string]tool.Property{
			"perPage": tool.Integer("Number of activities to retrieve (default 30, max 200).").
				Between(1, maxPerPage).WithDefault(defaultRecentPerPage),
		}),
		Execute: func(ctx context.Context, args tool.Args) (*tool.Result, error) {
			out, err := ts.fetch(ctx, "/athlete/activities", pageQuery(0, args.Int("perPage")), activityListProjection)
			if err != nil {
				return nil, err
			}
			activities := asList(out)
			if len(activities) == 0 {
				return tool.TextWithData("No recent activities found.", map[string]any{"activities": []any{}}), nil
			}
			var b strings.Builder
			fmt.Fprintf(&b, "Your %d most recent activities:\n", len(activities))
			for _, item := range activities {
				b.WriteString(activityLine(asMap(item)))
				b.WriteString("\n")
			}
			return tool.TextWithData(strings.TrimRight(b.String(), "\n"), map[string]any{"activities": activities}), nil
		},
	}
}

func (ts *toolset) activityLaps() tool.Descriptor {
	return tool.Descriptor{
		Name:        "get-activity-laps",
		Description: "Retrieves the laps recorded for a specific activity, with timing, distance, speed and heart rate per lap.",
		InputSchema: tool.Object(map[string]tool.Property{
			"id": tool.Integer("The identifier of the activity to fetch laps for.").AtLeast(1),
		}, "id"),
		Execute: func(ctx context.Context, args tool.Args) (*tool.Result, error) {
			id := args.Int64("id")
			out, err := ts.fetch(ctx, "/activities/"+itoa(id)+"/laps", nil, lapListProjection)
			if err != nil {
				return nil, err
			}
			laps := asList(out)
			if len(laps) == 0 {
				return tool.TextWithData(fmt.Sprintf("No laps found for activity %d.", id), map[string]any{"laps": []any{}}), nil
			}
			var b strings.Builder
			fmt.Fprintf(&b, "Activity %d: %d lap(s)\n", id, len(laps))
			for i, item := range laps {
				l := asMap(item)
				name := str(l, "name")
				if name == "" {
					name = "Lap " + strconv.Itoa(i+1)
				}
				elapsed, _ := num(l, "elapsed_time")
				distance, _ := num(l, "distance")
				speed, _ := num(l, "average_speed")
				fmt.Fprintf(&b, "- %s: %s in %s, avg %s", name, format.Distance(distance), format.Duration(elapsed), format.Speed(speed))
				if hr, ok := num(l, "average_heartrate"); ok {
					fmt.Fprintf(&b, ", avg HR %s", bpm(hr))
				}
				b.WriteString("\n")
			}
			return tool.TextWithData(strings.TrimRight(b.String(), "\n"), map[string]any{"laps": laps}), nil
		},
	}
}

func (ts *toolset) activityStreams() tool.Descriptor {
	types := tool.Array(tool.String("Stream type.").OneOf(streamTypes...), "Stream types to fetch.").
		WithDefault(defaultStreamTypes)
	pointsPerPage := tool.Integer("Points per page, or -1 for every point.").
		AtLeast(allPoints).WithDefault(defaultPointsPerPage)

	return tool.Descriptor{
		Name:        "get-activity-streams",
		Description: "Retrieves time-series data streams (time, distance, GPS, altitude, heart rate, cadence, power, speed) for an activity, paginated by points.",
		InputSchema: tool.Object(map[string]tool.Property{
			"id":              tool.Integer("The Strava activity identifier.").AtLeast(1),
			"types":           types,
			"resolution":      tool.String("Sampling resolution.").OneOf("low", "medium", "high"),
			"series_type":     tool.String("Base series used to index the streams.").OneOf("time", "distance").WithDefault("distance"),
			"page":            tool.Integer("Page of points to return, starting at 1.").AtLeast(1).WithDefault(1),
			"points_per_page": pointsPerPage,
		}, "id"),
		Execute: ts.executeStreams,
	}
}

func (ts *toolset) executeStreams(ctx context.Context, args tool.Args) (*tool.Result, error) {
	id := args.Int64("id")
	perPage := args.Int("points_per_page")
	if perPage == 0 {
		return nil, tool.ArgumentError("points_per_page", "must be -1 or a positive number")
	}
	types := args.Strings("types")
	if len(types) == 0 {
		types = defaultStreamTypes
	}

	q := url.Values{
		"keys":        {strings.Join(types, ",")},
		"key_by_type": {"true"},
		"series_type": {args.String("series_type")},
	}
	if res := args.String("resolution"); res != "" {
		q.Set("resolution", res)
	}
	var raw any
	if err := ts.api.Get(ctx, "/activities/"+itoa(id)+"/streams", q, &raw); err != nil {
		return nil, err
	}

	streams := streamData(raw)
	if len(streams) == 0 {
		return tool.TextWithData(fmt.Sprintf("No streams available for activity %d.", id),
			map[string]any{"activity_id": id, "streams": map[string]any{}}), nil
	}

	total := 0
	for _, data := range streams {
		total = max(total, len(data))
	}
	page := args.Int("page")
	totalPages := 1
	start, end := 0, total
	if perPage != allPoints {
		totalPages = max(1, (total+perPage-1)/perPage)
		if page > totalPages {
			return nil, tool.ArgumentError("page", fmt.Sprintf("must be <= %d for %d points", totalPages, total))
		}
		start = (page - 1) * perPage
		end = min(total, start+perPage)
	} else {
		page = 1
	}

	paged := make(map[string]any, len(streams))
	stats := make(map[string]any)
	for _, name := range orderedStreamNames(streams, types) {
		data := streams[name]
		paged[name] = data[min(start, len(data)):min(end, len(data))]
		if s, ok := numericStats(data); ok {
			stats[name] = s
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Activity %d streams: %d points", id, total)
	if perPage == allPoints {
		b.WriteString(" (all points)\n")
	} else {
		fmt.Fprintf(&b, " (page %d of %d, %d per page)\n", page, totalPages, perPage)
	}
	for _, name := range orderedStreamNames(streams, types) {
		if s, ok := stats[name].(streamStats); ok {
			fmt.Fprintf(&b, "- %s: min %s, max %s, avg %s\n", name, trimFloat(s.Min), trimFloat(s.Max), trimFloat(s.Avg))
			continue
		}
		fmt.Fprintf(&b, "- %s: %d points\n", name, len(streams[name]))
	}

	data := map[string]any{
		"activity_id":     id,
		"total_points":    total,
		"page":            page,
		"total_pages":     totalPages,
		"points_per_page": perPage,
		"streams":         paged,
		"stats":           stats,
	}
	return tool.TextWithData(strings.TrimRight(b.String(), "\n"), data), nil
}

// streamData accepts both the keyed object and the array form of the
// streams endpoint.
func streamData(raw any) map[string][]any {
	out := make(map[string][]any)
	switch v := raw.(type) {
	case map[string]any:
		for name, entry := range v {
			if data, ok := asMap(entry)["data"].([]any); ok {
				out[name] = data
			}
		}
	case []any:
		for _, entry := range v {
			m := asMap(entry)
			name := str(m, "type")
			if data, ok := m["data"].([]any); ok && name != "" {
				out[name] = data
			}
		}
	}
	return out
}

func orderedStreamNames(streams map[string][]any, requested []string) []string {
	names := make([]string, 0, len(streams))
	seen := make(map[string]bool, len(streams))
	for _, name := range append(append([]string(nil), requested...), streamTypes...) {
		if _, ok := streams[name]; ok && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

type streamStats struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

func numericStats(data []any) (streamStats, bool) {
	var (
		s     streamStats
		sum   float64
		count int
	)
	for _, v := range data {
		f, ok := v.(float64)
		if !ok {
			continue
		}
		if count == 0 || f < s.Min {
			s.Min = f
		}
		if count == 0 || f > s.Max {
			s.Max = f
		}
		sum += f
		count++
	}
	if count == 0 {
		return streamStats{}, false
	}
	s.Avg = math.Round(sum/float64(count)*100) / 100
	return s, true
}

func (ts *toolset) allActivities() tool.Descriptor {
	return tool.Descriptor{
		Name:        "get-all-activities",
		Description: "Fetches the athlete's activity history with automatic pagination, optional date range (YYYY-MM-DD) and activity type filters, bounded by maxActivities and maxApiCalls.",
		InputSchema: tool.Object(map[string]tool.Property{
			"startDate":     tool.String("Only activities on or after this date (YYYY-MM-DD)."),
			"endDate":       tool.String("Only activities on or before this date (YYYY-MM-DD)."),
			"activityTypes": tool.Array(tool.String("Sport type, e.g. Run or Ride."), "Activity types to keep; all types when empty."),
			"maxActivities": tool.Integer("Maximum activities to return.").AtLeast(1).WithDefault(defaultMaxActivities),
			"maxApiCalls":   tool.Integer("Maximum Strava API calls to spend.").AtLeast(1).WithDefault(defaultMaxAPICalls),
			"perPage":       tool.Integer("Activities per API call (max 200).").Between(1, maxPerPage).WithDefault(maxPerPage),
		}),
		Execute: ts.executeAllActivities,
	}
}

func (ts *toolset) executeAllActivities(ctx context.Context, args tool.Args) (*tool.Result, error) {
	query := url.Values{}
	var start, end time.Time
	if s := args.String("startDate"); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return nil, tool.ArgumentError("startDate", "expected YYYY-MM-DD")
		}
		start = t
		query.Set("after", strconv.FormatInt(t.Unix()-1, 10))
	}
	if s := args.String("endDate"); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return nil, tool.ArgumentError("endDate", "expected YYYY-MM-DD")
		}
		end = t
		query.Set("before", strconv.FormatInt(t.AddDate(0, 0, 1).Unix(), 10))
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return nil, tool.ArgumentError("endDate", "must not be before startDate")
	}

	wanted := make(map[string]bool)
	for _, t := range args.Strings("activityTypes") {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			wanted[t] = true
		}
	}
	maxActivities := args.Int("maxActivities")
	maxCalls := args.Int("maxApiCalls")
	perPage := args.Int("perPage")

	var (
		matched []strava.SummaryActivity
		calls   int
		scanned int
		stopped string
	)
	for page := 1; ; page++ {
		if calls >= maxCalls {
			stopped = "maxApiCalls"
			break
		}
		q := pageQuery(page, perPage)
		for k, v := range query {
			q[k] = v
		}
		var batch []strava.SummaryActivity
		if err := ts.api.Get(ctx, "/athlete/activities", q, &batch); err != nil {
			return nil, fmt.Errorf("fetch activities page %d: %w", page, err)
		}
		calls++
		ts.logDebug("activities_page_fetched", "page", page, "count", len(batch))
		scanned += len(batch)

		for _, a := range batch {
			if len(wanted) > 0 && !wanted[strings.ToLower(a.SportType)] && !wanted[strings.ToLower(a.Type)] {
				continue
			}
			matched = append(matched, a)
			if len(matched) >= maxActivities {
				break
			}
		}
		if len(matched) >= maxActivities {
			stopped = "maxActivities"
			break
		}
		if len(batch) < perPage {
			break
		}
	}

	projected, err := activityListProjection.Apply(ctx, matched)
	if err != nil {
		return nil, err
	}
	activities := asList(projected)
	if activities == nil {
		activities = []any{}
	}

	var totalDistance, totalMoving float64
	for _, a := range matched {
		totalDistance += a.Distance
		totalMoving += float64(a.MovingTime)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d activities (scanned %d using %d API call(s))", len(matched), scanned, calls)
	if stopped != "" {
		fmt.Fprintf(&b, ", stopped at %s limit", stopped)
	}
	b.WriteString("\n")
	if filters := describeFilters(args); filters != "" {
		fmt.Fprintf(&b, "Filters: %s\n", filters)
	}
	if len(matched) > 0 {
		fmt.Fprintf(&b, "Total: %s, %s moving\n", format.Distance(totalDistance), format.Duration(totalMoving))
	}
	for i, item := range activities {
		if i == listingLimit {
			fmt.Fprintf(&b, "... and %d more\n", len(activities)-listingLimit)
			break
		}
		b.WriteString(activityLine(asMap(item)))
		b.WriteString("\n")
	}

	data := map[string]any{
		"activities":        activities,
		"count":             len(matched),
		"scanned":           scanned,
		"api_calls":         calls,
		"stopped_by":        stopped,
		"total_distance":    totalDistance,
		"total_moving_time": totalMoving,
	}
	return tool.TextWithData(strings.TrimRight(b.String(), "\n"), data), nil
}

func describeFilters(args tool.Args) string {
	var parts []string
	if s := args.String("startDate"); s != "" {
		parts = append(parts, "from "+s)
	}
	if s := args.String("endDate"); s != "" {
		parts = append(parts, "until "+s)
	}
	if types := args.Strings("activityTypes"); len(types) > 0 {
		parts = append(parts, "types "+strings.Join(types, "/"))
	}
	return strings.Join(parts, ", ")
}

func activityLine(a map[string]any) string {
	distance, _ := num(a, "distance")
	moving, _ := num(a, "moving_time")
	line := fmt.Sprintf("- %s (ID: %s) %s on %s: %s in %s",
		str(a, "name"), str(a, "id"), orDash(str(a, "sport_type")), format.Date(str(a, "start_date")),
		format.Distance(distance), format.Duration(moving))
	if elev, ok := num(a, "total_elevation_gain"); ok && elev > 0 {
		line += ", " + format.Elevation(elev) + " climbed"
	}
	return line
}

func writeMetric(b *strings.Builder, label string, m map[string]any, key string, render func(float64) string) {
	if v, ok := num(m, key); ok {
		fmt.Fprintf(b, "%s: %s\n", label, render(v))
	}
}

func bpm(v float64) string {
	return fmt.Sprintf("%.0f bpm", v)
}

func watts(v float64) string {
	return fmt.Sprintf("%.0f W", v)
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
