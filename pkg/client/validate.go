package client

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Validation limits for the resource services.
const (
	MaxPerPage           = 1000
	MaxAlertNameLength   = 100
	MaxAlertValue        = 1_000_000
	MaxCooldownMinutes   = 1440
	MaxStationRadius     = 50.0
	DefaultStationRadius = 10.0
)

var (
	commodityCodePattern = regexp.MustCompile(`^[A-Z0-9_]+$`)
	statePattern         = regexp.MustCompile(`^[A-Z]{2}$`)

	validPeriods   = []string{"past_day", "past_week", "past_month", "past_year"}
	validIntervals = []string{"raw", "hourly", "daily", "weekly", "monthly"}
	validOperators = []string{
		OperatorGreaterThan, OperatorLessThan, OperatorEquals,
		OperatorGreaterThanOrEqual, OperatorLessThanOrEqual,
	}
)

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func oneOf(value string, allowed []string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

// normalizeCode upper-cases and checks a commodity code.
func normalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", invalidArgument("commodity code is required")
	}
	if !commodityCodePattern.MatchString(code) {
		return "", invalidArgument("commodity code %q must contain only letters, digits and underscores", code)
	}
	return code, nil
}

func validateDate(field, value string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, invalidArgument("%s %q must be formatted YYYY-MM-DD", field, value)
	}
	return t, nil
}

func validateHistorical(opts HistoricalOptions) (HistoricalOptions, error) {
	if opts.Period != "" && !oneOf(opts.Period, validPeriods) {
		return opts, invalidArgument("period %q must be one of %s", opts.Period, strings.Join(validPeriods, ", "))
	}
	if opts.Code != "" {
		code, err := normalizeCode(opts.Code)
		if err != nil {
			return opts, err
		}
		opts.Code = code
	}

	var start, end time.Time
	var err error
	if opts.StartDate != "" {
		if start, err = validateDate("start_date", opts.StartDate); err != nil {
			return opts, err
		}
	}
	if opts.EndDate != "" {
		if end, err = validateDate("end_date", opts.EndDate); err != nil {
			return opts, err
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return opts, invalidArgument("end_date %s is before start_date %s", opts.EndDate, opts.StartDate)
	}

	if opts.Interval != "" && !oneOf(opts.Interval, validIntervals) {
		return opts, invalidArgument("interval %q must be one of %s", opts.Interval, strings.Join(validIntervals, ", "))
	}
	if opts.PerPage < 0 || opts.PerPage > MaxPerPage {
		return opts, invalidArgument("per_page must be between 1 and %d (got %d)", MaxPerPage, opts.PerPage)
	}
	if opts.Page < 0 {
		return opts, invalidArgument("page must be >= 1 (got %d)", opts.Page)
	}
	return opts, nil
}

func normalizeState(state string) (string, error) {
	state = strings.ToUpper(strings.TrimSpace(state))
	if !statePattern.MatchString(state) {
		return "", invalidArgument("state %q must be a two-letter code", state)
	}
	return state, nil
}

func validateCoordinates(lat, lng, radius float64) (float64, error) {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsNaN(radius) {
		return 0, invalidArgument("coordinates and radius must be numbers (got %v, %v, %v)", lat, lng, radius)
	}
	if lat < -90 || lat > 90 {
		return 0, invalidArgument("latitude must be between -90 and 90 (got %v)", lat)
	}
	if lng < -180 || lng > 180 {
		return 0, invalidArgument("longitude must be between -180 and 180 (got %v)", lng)
	}
	if radius == 0 {
		radius = DefaultStationRadius
	}
	if radius < 0 || radius > MaxStationRadius {
		return 0, invalidArgument("radius must be between 0 and %v miles (got %v)", MaxStationRadius, radius)
	}
	return radius, nil
}

func validateAlertID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", invalidArgument("alert id is required")
	}
	return id, nil
}

// validateAlertParams checks the fields present in p. With create set, the
// fields a new alert needs are required.
func validateAlertParams(p AlertParams, create bool) (AlertParams, error) {
	if create {
		switch {
		case p.Name == nil:
			return p, invalidArgument("alert name is required")
		case p.CommodityCode == nil:
			return p, invalidArgument("alert commodity code is required")
		case p.ConditionOperator == nil:
			return p, invalidArgument("alert condition operator is required")
		case p.ConditionValue == nil:
			return p, invalidArgument("alert condition value is required")
		}
	}

	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if n := utf8.RuneCountInString(name); n == 0 || n > MaxAlertNameLength {
			return p, invalidArgument("alert name must be 1-%d characters", MaxAlertNameLength)
		}
		p.Name = &name
	}
	if p.CommodityCode != nil {
		code, err := normalizeCode(*p.CommodityCode)
		if err != nil {
			return p, err
		}
		p.CommodityCode = &code
	}
	if p.ConditionOperator != nil && !oneOf(*p.ConditionOperator, validOperators) {
		return p, invalidArgument("condition operator %q must be one of %s", *p.ConditionOperator, strings.Join(validOperators, ", "))
	}
	if p.ConditionValue != nil {
		if v := *p.ConditionValue; !(v > 0 && v <= MaxAlertValue) {
			return p, invalidArgument("condition value must be greater than 0 and at most %d (got %v)", MaxAlertValue, v)
		}
	}
	if p.WebhookURL != nil {
		if err := validateWebhookURL(*p.WebhookURL); err != nil {
			return p, err
		}
	}
	if p.CooldownMinutes != nil {
		if m := *p.CooldownMinutes; m < 0 || m > MaxCooldownMinutes {
			return p, invalidArgument("cooldown must be between 0 and %d minutes (got %d)", MaxCooldownMinutes, m)
		}
	}
	return p, nil
}

func validateWebhookURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return invalidArgument("webhook url %q is not a valid URL", raw)
	}
	if u.Scheme != "https" {
		return invalidArgument("webhook url must use https")
	}
	return nil
}
