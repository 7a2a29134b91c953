package client

import (
	"encoding/json"
	"time"
)

// Price is a single priced record for a commodity.
type Price struct {
	Code      string    `json:"code"`
	Price     float64   `json:"price"`
	Formatted string    `json:"formatted"`
	Currency  string    `json:"currency"`
	Type      string    `json:"type,omitempty"`
	Unit      string    `json:"unit,omitempty"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Commodity describes a tradable commodity supported by the API.
type Commodity struct {
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Currency    string  `json:"currency"`
	Category    string  `json:"category"`
	Description string  `json:"description,omitempty"`
	Unit        string  `json:"unit,omitempty"`
	UnitSymbol  string  `json:"unit_symbol,omitempty"`
	Multiplier  float64 `json:"multiplier,omitempty"`
}

// CommodityCategory groups commodities by market segment.
type CommodityCategory struct {
	Name        string      `json:"name"`
	Count       int         `json:"count"`
	Commodities []Commodity `json:"commodities"`
}

// DieselPrice is a state average diesel price.
type DieselPrice struct {
	State       string    `json:"state"`
	Price       float64   `json:"price"`
	Currency    string    `json:"currency"`
	Unit        string    `json:"unit"`
	Granularity string    `json:"granularity,omitempty"`
	Source      string    `json:"source,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DieselStation is a retail station returned by a nearby search.
type DieselStation struct {
	Name            string  `json:"name"`
	Address         string  `json:"address"`
	Lat             float64 `json:"lat"`
	Lng             float64 `json:"lng"`
	DieselPrice     float64 `json:"diesel_price"`
	Formatted       string  `json:"formatted"`
	Currency        string  `json:"currency"`
	Unit            string  `json:"unit"`
	DistanceMiles   float64 `json:"distance_miles,omitempty"`
	DiffFromAverage float64 `json:"diff_from_average,omitempty"`
}

// DieselStationsResult is the response of a nearby station search.
type DieselStationsResult struct {
	RegionalAverage *DieselPrice      `json:"regional_average,omitempty"`
	Stations        []DieselStation   `json:"stations"`
	SearchArea      *DieselSearchArea `json:"search_area,omitempty"`
}

// DieselSearchArea echoes the search parameters.
type DieselSearchArea struct {
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	RadiusMiles float64 `json:"radius_miles"`
}

// Alert operators accepted by the API.
const (
	OperatorGreaterThan        = "greater_than"
	OperatorLessThan           = "less_than"
	OperatorEquals             = "equals"
	OperatorGreaterThanOrEqual = "greater_than_or_equal"
	OperatorLessThanOrEqual    = "less_than_or_equal"
)

// Alert is a price alert that calls a webhook when its condition holds.
type Alert struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	CommodityCode     string          `json:"commodity_code"`
	ConditionOperator string          `json:"condition_operator"`
	ConditionValue    float64         `json:"condition_value"`
	WebhookURL        string          `json:"webhook_url,omitempty"`
	Enabled           bool            `json:"enabled"`
	CooldownMinutes   int             `json:"cooldown_minutes"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
	TriggerCount      int             `json:"trigger_count"`
	LastTriggeredAt   *time.Time      `json:"last_triggered_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// AlertParams is the body of create and update calls. Nil fields are
// omitted, which makes the same type usable for partial updates.
type AlertParams struct {
	Name              *string         `json:"name,omitempty"`
	CommodityCode     *string         `json:"commodity_code,omitempty"`
	ConditionOperator *string         `json:"condition_operator,omitempty"`
	ConditionValue    *float64        `json:"condition_value,omitempty"`
	WebhookURL        *string         `json:"webhook_url,omitempty"`
	Enabled           *bool           `json:"enabled,omitempty"`
	CooldownMinutes   *int            `json:"cooldown_minutes,omitempty"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
}

// WebhookTestResult reports the outcome of a test webhook delivery.
type WebhookTestResult struct {
	Success        bool    `json:"success"`
	StatusCode     int     `json:"status_code"`
	ResponseTimeMS float64 `json:"response_time_ms"`
	Response       string  `json:"response,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// HistoricalOptions filters a historical price query. Zero values are omitted.
type HistoricalOptions struct {
	Period    string // past_day, past_week, past_month, past_year
	Code      string
	StartDate string // YYYY-MM-DD
	EndDate   string // YYYY-MM-DD
	Interval  string // raw, hourly, daily, weekly, monthly
	PerPage   int
	Page      int
}

// String returns a pointer to s, for building AlertParams.
func String(s string) *string { return &s }

// Float64 returns a pointer to f.
func Float64(f float64) *float64 { return &f }

// Int returns a pointer to i.
func Int(i int) *int { return &i }

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }
