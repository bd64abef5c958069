package stravatools

import "github.com/sameehj/strava-mcp/pkg/shape"

const activitySummaryFields = `{
  id,
  name,
  sport_type: (.sport_type // .type),
  start_date,
  start_date_local,
  distance,
  moving_time,
  elapsed_time,
  total_elevation_gain,
  average_speed,
  max_speed,
  average_heartrate,
  max_heartrate,
  average_watts,
  kudos_count
}`

const segmentFields = `{
  id,
  name,
  activity_type,
  distance,
  average_grade,
  maximum_grade,
  elevation_high,
  elevation_low,
  climb_category,
  city,
  state,
  country,
  private,
  starred
}`

const effortFields = `{
  id,
  name,
  activity_id: .activity.id,
  segment_id: .segment.id,
  segment_name: .segment.name,
  elapsed_time,
  moving_time,
  start_date_local,
  distance,
  average_heartrate,
  max_heartrate,
  average_watts,
  pr_rank,
  kom_rank
}`

const routeFields = `{
  id: (.id_str // (.id | tostring)),
  name,
  description,
  distance,
  elevation_gain,
  type,
  sub_type,
  private,
  starred,
  estimated_moving_time,
  created_at
}`

var (
	athleteProjection = shape.MustCompile("athlete", `{
  id,
  username,
  name: ([.firstname, .lastname] | map(select(. != null and . != "")) | join(" ")),
  city,
  state,
  country,
  sex,
  premium,
  summit,
  weight,
  ftp,
  measurement_preference,
  created_at
}`)

	statsProjection = shape.MustCompile("athlete-stats", `{
  biggest_ride_distance,
  biggest_climb_elevation_gain,
  recent_ride_totals, ytd_ride_totals, all_ride_totals,
  recent_run_totals, ytd_run_totals, all_run_totals,
  recent_swim_totals, ytd_swim_totals, all_swim_totals
}`)

	activityProjection = shape.MustCompile("activity", activitySummaryFields+` + {
  description,
  calories,
  device_name,
  gear_id,
  elev_high,
  elev_low,
  achievement_count,
  pr_count,
  lap_count: ((.laps // []) | length)
}`)

	activityListProjection = shape.MustCompile("activities", `(. // []) | map(`+activitySummaryFields+`)`)

	clubListProjection = shape.MustCompile("clubs", `(. // []) | map({
  id,
  name,
  sport_type,
  city,
  state,
  country,
  member_count,
  private,
  url
})`)

	segmentListProjection = shape.MustCompile("segments", `(. // []) | map(`+segmentFields+`)`)

	segmentProjection = shape.MustCompile("segment", segmentFields+` + {
  total_elevation_gain,
  effort_count,
  athlete_count,
  star_count,
  pr_elapsed_time: .athlete_segment_stats.pr_elapsed_time,
  pr_date: .athlete_segment_stats.pr_date,
  athlete_effort_count: .athlete_segment_stats.effort_count
}`)

	exploreProjection = shape.MustCompile("explore-segments", `(.segments // []) | map({
  id,
  name,
  climb_category,
  climb_category_desc,
  avg_grade,
  distance,
  elev_difference,
  starred
})`)

	starProjection = shape.MustCompile("star-segment", `{id, name, starred}`)

	effortProjection     = shape.MustCompile("segment-effort", effortFields)
	effortListProjection = shape.MustCompile("segment-efforts", `(. // []) | map(`+effortFields+`)`)

	routeListProjection = shape.MustCompile("routes", `(. // []) | map(`+routeFields+`)`)
	routeProjection     = shape.MustCompile("route", routeFields+` + {
  segment_count: ((.segments // []) | length)
}`)

	lapListProjection = shape.MustCompile("laps", `(. // []) | map({
  lap_index,
  name,
  elapsed_time,
  moving_time,
  distance,
  average_speed,
  max_speed,
  total_elevation_gain,
  average_heartrate,
  max_heartrate,
  average_cadence,
  average_watts
})`)

	zonesProjection = shape.MustCompile("zones", `{
  heart_rate: (if .heart_rate then {custom_zones: .heart_rate.custom_zones, zones: (.heart_rate.zones // [])} else null end),
  power: (if .power then {zones: (.power.zones // [])} else null end)
}`)
)
