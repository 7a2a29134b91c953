package client

import (
	"context"
	"net/http"
)

// DieselService queries retail diesel prices.
type DieselService struct {
	client *Client
}

// StateAverage returns the average diesel price for a US state.
func (s *DieselService) StateAverage(ctx context.Context, state string) (*DieselPrice, error) {
	state, err := normalizeState(state)
	if err != nil {
		return nil, err
	}

	r := newRequest(http.MethodGet, "/v1/diesel-prices", "/v1/diesel-prices").param("state", state)
	payload, err := s.client.execute(ctx, r)
	if err != nil {
		return nil, err
	}

	// the average carries a scalar price, so it arrives as a one-element list
	if payload.Shape == ShapeData {
		var price DieselPrice
		if err := payload.DecodeData(&price); err != nil {
			return nil, err
		}
		return &price, nil
	}

	var prices []DieselPrice
	if err := payload.DecodeItems(&prices); err != nil {
		return nil, err
	}
	if len(prices) == 0 {
		return nil, invalidResponseError("no diesel price for state "+state, nil)
	}
	return &prices[0], nil
}

// Stations returns stations within radius miles of lat/lng. A zero radius
// uses DefaultStationRadius.
func (s *DieselService) Stations(ctx context.Context, lat, lng, radius float64) (*DieselStationsResult, error) {
	radius, err := validateCoordinates(lat, lng, radius)
	if err != nil {
		return nil, err
	}

	r := newRequest(http.MethodPost, "/v1/diesel-prices/stations", "/v1/diesel-prices/stations")
	body := struct {
		Lat    float64 `json:"lat"`
		Lng    float64 `json:"lng"`
		Radius float64 `json:"radius"`
	}{lat, lng, radius}
	if err := r.jsonBody(body); err != nil {
		return nil, err
	}

	payload, err := s.client.execute(ctx, r)
	if err != nil {
		return nil, err
	}

	var result DieselStationsResult
	if err := payload.DecodeData(&result); err != nil {
		return nil, err
	}
	return &result, nil
}
