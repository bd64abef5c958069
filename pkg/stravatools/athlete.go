package stravatools

import (
	"context"
	"fmt"
	"strings"

	"github.com/sameehj/strava-mcp/pkg/format"
	"github.com/sameehj/strava-mcp/pkg/tool"
)

func (ts *toolset) athleteProfile() tool.Descriptor {
	return tool.Descriptor{
		Name:        "get-athlete-profile",
		Description: "Fetches the profile information for the authenticated Strava athlete, including name, location, weight and FTP.",
		InputSchema: tool.Empty(),
		Execute: func(ctx context.Context, args tool.Args) (*tool.Result, error) {
			out, err := ts.fetch(ctx, "/athlete", nil, athleteProjection)
			if err != nil {
				return nil, err
			}
			p := asMap(out)
			var b strings.Builder
			fmt.Fprintf(&b, "Profile for %s (ID: %s)\n", orDash(str(p, "name")), str(p, "id"))
			if user := str(p, "username"); user != "" {
				fmt.Fprintf(&b, "Username: %s\n", user)
			}
			if loc := joinNonEmpty(", ", str(p, "city"), str(p, "state"), str(p, "country")); loc != "" {
				fmt.Fprintf(&b, "Location: %s\n", loc)
			}
			if w, ok := num(p, "weight"); ok && w > 0 {
				fmt.Fprintf(&b, "Weight: %.1f kg\n", w)
			}
			if ftp, ok := num(p, "ftp"); ok && ftp > 0 {
				fmt.Fprintf(&b, "FTP: %.0f W\n", ftp)
			}
			if pref := str(p, "measurement_preference"); pref != "" {
				fmt.Fprintf(&b, "Units: %s\n", pref)
			}
			if p["premium"] == true || p["summit"] == true {
				b.WriteString("Subscription: Strava premium\n")
			}
			return tool.TextWithData(strings.TrimRight(b.String(), "\n"), out), nil
		},
	}
}

func (ts *toolset) athleteStats() tool.Descriptor {
	return tool.Descriptor{
		Name:        "get-athlete-stats",
		Description: "Fetches activity statistics (recent, year-to-date and all-time totals for rides, runs and swims) for the authenticated athlete.",
		InputSchema: tool.Empty(),
		Execute: func(ctx context.Context, args tool.Args) (*tool.Result, error) {
			id, err := ts.athleteID(ctx)
			if err != nil {
				return nil, err
			}
			out, err := ts.fetch(ctx, "/athletes/"+itoa(id)+"/stats", nil, statsProjection)
			if err != nil {
				return nil, err
			}
			stats := asMap(out)

			var b strings.Builder
			fmt.Fprintf(&b, "Activity statistics for athlete %d\n", id)
			for _, sport := range []string{"ride", "run", "swim"} {
				fmt.Fprintf(&b, "\n%s:\n", strings.ToUpper(sport[:1])+sport[1:])
				for _, period := range []struct{ key, label string }{
					{"recent", "Last 4 weeks"},
					{"ytd", "Year to date"},
					{"all", "All time"},
				} {
					totals := asMap(stats[period.key+"_"+sport+"_totals"])
					fmt.Fprintf(&b, "  %s: %s\n", period.label, totalsLine(totals))
				}
			}
			if d, ok := num(stats, "biggest_ride_distance"); ok && d > 0 {
				fmt.Fprintf(&b, "\nLongest ride: %s\n", format.Distance(d))
			}
			if e, ok := num(stats, "biggest_climb_elevation_gain"); ok && e > 0 {
				fmt.Fprintf(&b, "Biggest climb: %s\n", format.Elevation(e))
			}
			return tool.TextWithData(strings.TrimRight(b.String(), "\n"), out), nil
		},
	}
}

func totalsLine(totals map[string]any) string {
	count, _ := num(totals, "count")
	if count == 0 {
		return "no activities"
	}
	distance, _ := num(totals, "distance")
	moving, _ := num(totals, "moving_time")
	elevation, _ := num(totals, "elevation_gain")
	return fmt.Sprintf("%.0f activities, %s, %s moving, %s climbed",
		count, format.Distance(distance), format.Duration(moving), format.Elevation(elevation))
}

func (ts *toolset) athleteClubs() tool.Descriptor {
	return tool.Descriptor{
		Name:        "list-athlete-clubs",
		Description: "Lists the clubs the authenticated athlete is a member of.",
		InputSchema: tool.Empty(),
		Execute: func(ctx context.Context, args tool.Args) (*tool.Result, error) {
			out, err := ts.fetch(ctx, "/athlete/clubs", nil, clubListProjection)
			if err != nil {
				return nil, err
			}
			clubs := asList(out)
			if len(clubs) == 0 {
				return tool.TextWithData("You are not a member of any clubs.", map[string]any{"clubs": []any{}}), nil
			}
			var b strings.Builder
			fmt.Fprintf(&b, "You are a member of %d club(s):\n", len(clubs))
			for _, item := range clubs {
				c := asMap(item)
				fmt.Fprintf(&b, "- %s (ID: %s)", str(c, "name"), str(c, "id"))
				if members, ok := num(c, "member_count"); ok {
					fmt.Fprintf(&b, ", %.0f members", members)
				}
				if loc := joinNonEmpty(", ", str(c, "city"), str(c, "country")); loc != "" {
					fmt.Fprintf(&b, ", %s", loc)
				}
				b.WriteString("\n")
			}
			return tool.TextWithData(strings.TrimRight(b.String(), "\n"), map[string]any{"clubs": clubs}), nil
		},
	}
}

func (ts *toolset) athleteZones() tool.Descriptor {
	return tool.Descriptor{
		Name:        "get-athlete-zones",
		Description: "Retrieves the authenticated athlete's configured heart rate and power zones.",
		InputSchema: tool.Empty(),
		Execute: func(ctx context.Context, args tool.Args) (*tool.Result, error) {
			out, err := ts.fetch(ctx, "/athlete/zones", nil, zonesProjection)
			if err != nil {
				return nil, err
			}
			zones := asMap(out)

			var b strings.Builder
			b.WriteString("Athlete zones\n")
			writeZones(&b, "Heart rate", "bpm", asMap(zones["heart_rate"]))
			writeZones(&b, "Power", "W", asMap(zones["power"]))
			return tool.TextWithData(strings.TrimRight(b.String(), "\n"), out), nil
		},
	}
}

func writeZones(b *strings.Builder, label, unit string, group map[string]any) {
	list := asList(group["zones"])
	if len(list) == 0 {
		fmt.Fprintf(b, "\n%s: not configured\n", label)
		return
	}
	fmt.Fprintf(b, "\n%s:\n", label)
	for i, item := range list {
		z := asMap(item)
		lo, _ := num(z, "min")
		hi, ok := num(z, "max")
		if !ok || hi < 0 {
			fmt.Fprintf(b, "  Zone %d: %.0f+ %s\n", i+1, lo, unit)
			continue
		}
		fmt.Fprintf(b, "  Zone %d: %.0f-%.0f %s\n", i+1, lo, hi, unit)
	}
}

func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
