package stravatools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sameehj/strava-mcp/pkg/strava"
	"github.com/sameehj/strava-mcp/pkg/tool"
)

type apiCall struct {
	method string
	path   string
	values url.Values
}

type fakeAPI struct {
	mu        sync.Mutex
	calls     []apiCall
	responses map[string]string
	get       func(path string, query url.Values) (string, error)
	download  map[string][]byte
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{responses: map[string]string{}, download: map[string][]byte{}}
}

func (f *fakeAPI) record(method, path string, values url.Values) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, apiCall{method: method, path: path, values: values})
}

func (f *fakeAPI) Get(ctx context.Context, path string, query url.Values, out any) error {
	f.record("GET", path, query)
	body, ok := f.responses[path]
	if f.get != nil {
		var err error
		body, err = f.get(path, query)
		if err != nil {
			return err
		}
		ok = true
	}
	if !ok {
		return &strava.APIError{Status: 404, Message: "Record Not Found"}
	}
	return json.Unmarshal([]byte(body), out)
}

func (f *fakeAPI) Put(ctx context.Context, path string, form url.Values, out any) error {
	f.record("PUT", path, form)
	body, ok := f.responses["PUT "+path]
	if !ok {
		return &strava.APIError{Status: 404, Message: "Record Not Found"}
	}
	return json.Unmarshal([]byte(body), out)
}

func (f *fakeAPI) Download(ctx context.Context, path string) ([]byte, error) {
	f.record("GET", path, nil)
	data, ok := f.download[path]
	if !ok {
		return nil, &strava.APIError{Status: 404, Message: "Record Not Found"}
	}
	return data, nil
}

func (f *fakeAPI) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.path
	}
	return out
}

func (f *fakeAPI) last() apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func newDispatcher(t *testing.T, api API, opts Options) *tool.Dispatcher {
	t.Helper()
	reg := tool.NewRegistry()
	if err := Register(reg, api, opts); err != nil {
		t.Fatalf("register: %v", err)
	}
	return tool.NewDispatcher(reg)
}

func dispatch(t *testing.T, d *tool.Dispatcher, name, args string) *tool.Result {
	t.Helper()
	res, err := d.Dispatch(context.Background(), name, json.RawMessage(args))
	if err != nil {
		t.Fatalf("dispatch %s: %v", name, err)
	}
	return res
}

func structured(t *testing.T, res *tool.Result) map[string]any {
	t.Helper()
	m, ok := res.StructuredContent.(map[string]any)
	if !ok {
		t.Fatalf("expected structured content object, got %T", res.StructuredContent)
	}
	return m
}

func TestCatalogue(t *testing.T) {
	want := []string{
		"get-athlete-profile", "get-athlete-stats", "get-activity-details", "get-recent-activities",
		"list-athlete-clubs", "list-starred-segments", "get-segment", "explore-segments", "star-segment",
		"get-segment-effort", "list-segment-efforts", "list-athlete-routes", "get-route",
		"export-route-gpx", "export-route-tcx", "get-activity-streams", "get-activity-laps",
		"get-athlete-zones", "get-all-activities",
	}
	reg := tool.NewRegistry()
	if err := Register(reg, newFakeAPI(), Options{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	names := reg.Names()
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected catalogue:\n got %v\nwant %v", names, want)
	}
	for _, d := range reg.List() {
		if d.Description == "" {
			t.Fatalf("%s has no description", d.Name)
		}
		if _, err := json.Marshal(d.InputSchema); err != nil {
			t.Fatalf("%s schema does not encode: %v", d.Name, err)
		}
	}
}

func TestAthleteProfile(t *testing.T) {
	api := newFakeAPI()
	api.responses["/athlete"] = `{"id":42,"firstname":"Ada","lastname":"Lovelace","city":"London","country":"UK","weight":61.5,"ftp":250}`
	res := dispatch(t, newDispatcher(t, api, Options{}), "get-athlete-profile", `{}`)

	data := structured(t, res)
	if data["name"] != "Ada Lovelace" || data["id"] != float64(42) {
		t.Fatalf("unexpected profile %v", data)
	}
	text := res.Content[0].Text
	for _, want := range []string{"Ada Lovelace (ID: 42)", "Location: London, UK", "Weight: 61.5 kg", "FTP: 250 W"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in %q", want, text)
		}
	}
}

func TestAthleteStatsResolvesAthleteFirst(t *testing.T) {
	api := newFakeAPI()
	api.responses["/athlete"] = `{"id":42}`
	api.responses["/athletes/42/stats"] = `{"biggest_ride_distance":120000,"recent_run_totals":{"count":3,"distance":21000,"moving_time":6300,"elevation_gain":150}}`
	res := dispatch(t, newDispatcher(t, api, Options{}), "get-athlete-stats", `{}`)

	if got := strings.Join(api.paths(), " "); got != "/athlete /athletes/42/stats" {
		t.Fatalf("unexpected call order %s", got)
	}
	text := res.Content[0].Text
	if !strings.Contains(text, "3 activities, 21.00 km, 01:45:00 moving") {
		t.Fatalf("expected run totals in %q", text)
	}
	if !strings.Contains(text, "Longest ride: 120.00 km") {
		t.Fatalf("expected longest ride in %q", text)
	}
}

func TestRecentActivitiesAppliesDefaultPerPage(t *testing.T) {
	api := newFakeAPI()
	api.responses["/athlete/activities"] = `[{"id":1,"name":"Morning Run","sport_type":"Run","distance":5000,"moving_time":1500,"start_date":"2024-05-01T07:30:00Z"}]`
	res := dispatch(t, newDispatcher(t, api, Options{}), "get-recent-activities", `{}`)

	if got := api.last().values.Get("per_page"); got != "30" {
		t.Fatalf("expected per_page=30, got %q", got)
	}
	if !strings.Contains(res.Content[0].Text, "Morning Run (ID: 1) Run on 2024-05-01 07:30: 5.00 km in 25:00") {
		t.Fatalf("unexpected listing %q", res.Content[0].Text)
	}
	items, _ := structured(t, res)["activities"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected one activity, got %v", items)
	}
}

func TestRecentActivitiesRejectsOutOfRangePerPage(t *testing.T) {
	api := newFakeAPI()
	_, err := newDispatcher(t, api, Options{}).Dispatch(context.Background(), "get-recent-activities", json.RawMessage(`{"perPage":500}`))
	if !errors.Is(err, tool.ErrInvalidArguments) {
		t.Fatalf("expected invalid arguments, got %v", err)
	}
	if len(api.paths()) != 0 {
		t.Fatalf("expected no api calls, got %v", api.paths())
	}
}

func activityPage(start, n int, sport string) string {
	items := make([]string, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, fmt.Sprintf(`{"id":%d,"name":"a%d","sport_type":%q,"type":%q,"distance":1000,"moving_time":300,"start_date":"2024-01-01T00:00:00Z"}`, start+i, start+i, sport, sport))
	}
	return "[" + strings.Join(items, ",") + "]"
}

func TestAllActivitiesWalksPagesAndFilters(t *testing.T) {
	api := newFakeAPI()
	api.get = func(path string, q url.Values) (string, error) {
		switch q.Get("page") {
		case "1":
			return activityPage(1, 2, "Run"), nil
		case "2":
			return activityPage(3, 2, "Ride"), nil
		case "3":
			return activityPage(5, 1, "Run"), nil
		}
		return "[]", nil
	}
	res := dispatch(t, newDispatcher(t, api, Options{}), "get-all-activities",
		`{"perPage":2,"activityTypes":["run"],"startDate":"2024-01-01","endDate":"2024-01-31"}`)

	data := structured(t, res)
	if data["count"] != 3 || data["api_calls"] != 3 || data["scanned"] != 5 {
		t.Fatalf("unexpected paging summary %v", data)
	}
	q := api.last().values
	if q.Get("after") == "" || q.Get("before") == "" || q.Get("per_page") != "2" {
		t.Fatalf("expected date window and per_page in query, got %v", q)
	}
	if !strings.Contains(res.Content[0].Text, "Filters: from 2024-01-01, until 2024-01-31, types run") {
		t.Fatalf("unexpected text %q", res.Content[0].Text)
	}
}

func TestAllActivitiesStopsAtLimits(t *testing.T) {
	api := newFakeAPI()
	api.get = func(path string, q url.Values) (string, error) {
		return activityPage(1, 2, "Run"), nil
	}
	d := newDispatcher(t, api, Options{})

	res := dispatch(t, d, "get-all-activities", `{"perPage":2,"maxApiCalls":2}`)
	if data := structured(t, res); data["api_calls"] != 2 || data["stopped_by"] != "maxApiCalls" {
		t.Fatalf("expected api call limit, got %v", data)
	}

	res = dispatch(t, d, "get-all-activities", `{"perPage":2,"maxActivities":3}`)
	if data := structured(t, res); data["count"] != 3 || data["stopped_by"] != "maxActivities" {
		t.Fatalf("expected activity limit, got %v", data)
	}
}

func TestAllActivitiesRejectsBadDates(t *testing.T) {
	d := newDispatcher(t, newFakeAPI(), Options{})
	for _, args := range []string{
		`{"startDate":"01/02/2024"}`,
		`{"startDate":"2024-02-01","endDate":"2024-01-01"}`,
	} {
		_, err := d.Dispatch(context.Background(), "get-all-activities", json.RawMessage(args))
		if !errors.Is(err, tool.ErrInvalidArguments) {
			t.Fatalf("%s: expected invalid arguments, got %v", args, err)
		}
	}
}

func TestActivityStreamsPaginatesPoints(t *testing.T) {
	api := newFakeAPI()
	api.responses["/activities/9/streams"] = `{
		"time":{"data":[0,1,2,3,4]},
		"heartrate":{"data":[100,110,120,130,140]},
		"latlng":{"data":[[1,2],[1,2],[1,2],[1,2],[1,2]]}
	}`
	d := newDispatcher(t, api, Options{})

	res := dispatch(t, d, "get-activity-streams", `{"id":9,"types":["time","heartrate","latlng"],"points_per_page":2,"page":3}`)
	data := structured(t, res)
	if data["total_points"] != 5 || data["total_pages"] != 3 {
		t.Fatalf("unexpected paging %v", data)
	}
	streams := data["streams"].(map[string]any)
	if hr := streams["heartrate"].([]any); len(hr) != 1 || hr[0] != float64(140) {
		t.Fatalf("expected last heart rate point, got %v", hr)
	}
	if !strings.Contains(res.Content[0].Text, "heartrate: min 100, max 140, avg 120") {
		t.Fatalf("expected stats in %q", res.Content[0].Text)
	}
	q := api.last().values
	if q.Get("keys") != "time,heartrate,latlng" || q.Get("key_by_type") != "true" || q.Get("series_type") != "distance" {
		t.Fatalf("unexpected stream query %v", q)
	}

	res = dispatch(t, d, "get-activity-streams", `{"id":9,"points_per_page":-1}`)
	if data := structured(t, res); data["total_pages"] != 1 {
		t.Fatalf("expected single page for all points, got %v", data)
	}

	_, err := d.Dispatch(context.Background(), "get-activity-streams", json.RawMessage(`{"id":9,"points_per_page":2,"page":4}`))
	if !errors.Is(err, tool.ErrInvalidArguments) {
		t.Fatalf("expected page out of range to be invalid, got %v", err)
	}
}

func TestExportRouteWritesFile(t *testing.T) {
	api := newFakeAPI()
	api.download["/routes/123/export_gpx"] = []byte("<gpx/>")
	api.download["/routes/123/export_tcx"] = []byte("<tcx/>")
	dir := filepath.Join(t.TempDir(), "exports")
	d := newDispatcher(t, api, Options{ExportDir: dir})

	for kind, body := range map[string]string{"gpx": "<gpx/>", "tcx": "<tcx/>"} {
		res := dispatch(t, d, "export-route-"+kind, `{"routeId":"123"}`)
		path := filepath.Join(dir, "123."+kind)
		data, err := os.ReadFile(path)
		if err != nil || string(data) != body {
			t.Fatalf("expected %s written, got %q err=%v", path, data, err)
		}
		if structured(t, res)["path"] != path {
			t.Fatalf("expected path in result, got %v", res.StructuredContent)
		}
	}
}

func TestExportRouteRequiresDirectory(t *testing.T) {
	api := newFakeAPI()
	api.download["/routes/123/export_gpx"] = []byte("<gpx/>")
	d := newDispatcher(t, api, Options{})

	_, err := d.Dispatch(context.Background(), "export-route-gpx", json.RawMessage(`{"routeId":"123"}`))
	if !errors.Is(err, tool.ErrExecution) || !errors.Is(err, ErrExportDirUnset) {
		t.Fatalf("expected export dir error, got %v", err)
	}
	if len(api.paths()) != 0 {
		t.Fatalf("expected no download without a directory, got %v", api.paths())
	}

	_, err = d.Dispatch(context.Background(), "export-route-gpx", json.RawMessage(`{"routeId":"../../etc"}`))
	if !errors.Is(err, tool.ErrInvalidArguments) {
		t.Fatalf("expected route id rejected, got %v", err)
	}
}

func TestStarSegmentSendsForm(t *testing.T) {
	api := newFakeAPI()
	api.responses["PUT /segments/77/starred"] = `{"id":77,"name":"Hill","starred":false}`
	res := dispatch(t, newDispatcher(t, api, Options{}), "star-segment", `{"segmentId":77,"starred":false}`)

	call := api.last()
	if call.method != "PUT" || call.values.Get("starred") != "false" {
		t.Fatalf("unexpected call %+v", call)
	}
	if res.Content[0].Text != "Successfully unstarred Hill (ID: 77)." {
		t.Fatalf("unexpected text %q", res.Content[0].Text)
	}
}

func TestExploreSegmentsValidatesBounds(t *testing.T) {
	api := newFakeAPI()
	api.responses["/segments/explore"] = `{"segments":[{"id":5,"name":"Climb","distance":2500,"avg_grade":6.2,"climb_category_desc":"3"}]}`
	d := newDispatcher(t, api, Options{})

	res := dispatch(t, d, "explore-segments", `{"bounds":"37.7, -122.5, 37.8, -122.4","activityType":"riding","minCat":1}`)
	q := api.last().values
	if q.Get("bounds") != "37.7,-122.5,37.8,-122.4" || q.Get("activity_type") != "riding" || q.Get("min_cat") != "1" {
		t.Fatalf("unexpected query %v", q)
	}
	if !strings.Contains(res.Content[0].Text, "Climb (ID: 5): 2.50 km, 6.2% avg grade, category 3") {
		t.Fatalf("unexpected text %q", res.Content[0].Text)
	}

	for _, bounds := range []string{"1,2,3", "a,b,c,d", "95,0,96,1", "10,10,0,0"} {
		_, err := d.Dispatch(context.Background(), "explore-segments", json.RawMessage(`{"bounds":"`+bounds+`"}`))
		if !errors.Is(err, tool.ErrInvalidArguments) {
			t.Fatalf("bounds %q: expected invalid arguments, got %v", bounds, err)
		}
	}
}

func TestUpstreamErrorBecomesExecutionError(t *testing.T) {
	d := newDispatcher(t, newFakeAPI(), Options{})
	_, err := d.Dispatch(context.Background(), "get-activity-details", json.RawMessage(`{"activityId":404}`))
	if !errors.Is(err, tool.ErrExecution) {
		t.Fatalf("expected execution error, got %v", err)
	}
	if strava.StatusOf(err) != 404 || !strings.Contains(err.Error(), "Record Not Found") {
		t.Fatalf("expected strava 404 in chain, got %v", err)
	}
}

func TestActivityLapsAndZones(t *testing.T) {
	api := newFakeAPI()
	api.responses["/activities/3/laps"] = `[{"lap_index":1,"name":"Lap 1","elapsed_time":330,"distance":1000,"average_speed":3.03,"average_heartrate":151}]`
	api.responses["/athlete/zones"] = `{"heart_rate":{"custom_zones":false,"zones":[{"min":0,"max":120},{"min":120,"max":-1}]}}`
	d := newDispatcher(t, api, Options{})

	res := dispatch(t, d, "get-activity-laps", `{"id":3}`)
	if !strings.Contains(res.Content[0].Text, "- Lap 1: 1.00 km in 05:30, avg 10.9 km/h, avg HR 151 bpm") {
		t.Fatalf("unexpected laps text %q", res.Content[0].Text)
	}

	res = dispatch(t, d, "get-athlete-zones", `{}`)
	text := res.Content[0].Text
	if !strings.Contains(text, "Zone 1: 0-120 bpm") || !strings.Contains(text, "Zone 2: 120+ bpm") || !strings.Contains(text, "Power: not configured") {
		t.Fatalf("unexpected zones text %q", text)
	}
}

func TestAllActivitiesNoMatches(t *testing.T) {
	api := newFakeAPI()
	api.responses["/athlete/activities"] = `[]`
	res := dispatch(t, newDispatcher(t, api, Options{}), "get-all-activities", `{"activityTypes":["Swim"]}`)
	data := structured(t, res)
	if data["count"] != 0 {
		t.Fatalf("expected zero count, got %v", data["count"])
	}
	if list, ok := data["activities"].([]any); !ok || len(list) != 0 {
		t.Fatalf("expected empty activity list, got %#v", data["activities"])
	}
	if !strings.HasPrefix(res.Content[0].Text, "Found 0 activities") {
		t.Fatalf("unexpected text %q", res.Content[0].Text)
	}
}
