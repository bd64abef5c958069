package strava

import "time"

// Athlete is the subset of the detailed athlete used to address
// athlete-scoped endpoints.
type Athlete struct {
	ID                    int64   `json:"id"`
	Username              string  `json:"username"`
	Firstname             string  `json:"firstname"`
	Lastname              string  `json:"lastname"`
	City                  string  `json:"city"`
	State                 string  `json:"state"`
	Country               string  `json:"country"`
	Sex                   string  `json:"sex"`
	Premium               bool    `json:"premium"`
	Summit                bool    `json:"summit"`
	Weight                float64 `json:"weight"`
	FTP                   int     `json:"ftp"`
	MeasurementPreference string  `json:"measurement_preference"`
	CreatedAt             string  `json:"created_at"`
}

// SummaryActivity carries the fields used for filtering and summaries.
type SummaryActivity struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Type               string    `json:"type"`
	SportType          string    `json:"sport_type"`
	StartDate          time.Time `json:"start_date"`
	StartDateLocal     string    `json:"start_date_local"`
	Distance           float64   `json:"distance"`
	MovingTime         int       `json:"moving_time"`
	ElapsedTime        int       `json:"elapsed_time"`
	TotalElevationGain float64   `json:"total_elevation_gain"`
	AverageSpeed       float64   `json:"average_speed"`
	MaxSpeed           float64   `json:"max_speed"`
	AverageHeartrate   float64   `json:"average_heartrate,omitempty"`
	MaxHeartrate       float64   `json:"max_heartrate,omitempty"`
	AverageWatts       float64   `json:"average_watts,omitempty"`
	KudosCount         int       `json:"kudos_count"`
}

// tokenResponse is the body of a successful refresh_token grant.
type tokenResponse struct {
	TokenType    string `json:"token_type"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	ExpiresIn    int64  `json:"expires_in"`
}
