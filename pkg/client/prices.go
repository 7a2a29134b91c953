package client

import (
	"context"
	"net/http"
	"strconv"
)

// PriceService queries latest and historical commodity prices.
type PriceService struct {
	client *Client
}

// Latest returns the most recent price for code, or for every commodity
// when code is empty.
func (s *PriceService) Latest(ctx context.Context, code string) ([]Price, error) {
	if code != "" {
		var err error
		if code, err = normalizeCode(code); err != nil {
			return nil, err
		}
	}

	r := newRequest(http.MethodGet, "/v1/prices/latest", "/v1/prices/latest").
		param("by_code", code)

	payload, err := s.client.execute(ctx, r)
	if err != nil {
		return nil, err
	}

	var prices []Price
	if err := payload.DecodeItems(&prices); err != nil {
		return nil, err
	}
	return prices, nil
}

// Historical returns past prices filtered by opts. Pagination parameters
// are passed through as given.
func (s *PriceService) Historical(ctx context.Context, opts HistoricalOptions) ([]Price, error) {
	opts, err := validateHistorical(opts)
	if err != nil {
		return nil, err
	}

	r := newRequest(http.MethodGet, "/v1/prices/past_year", "/v1/prices/past_year").
		param("period", opts.Period).
		param("by_code", opts.Code).
		param("start_date", opts.StartDate).
		param("end_date", opts.EndDate).
		param("interval", opts.Interval)
	if opts.PerPage > 0 {
		r.param("per_page", strconv.Itoa(opts.PerPage))
	}
	if opts.Page > 0 {
		r.param("page", strconv.Itoa(opts.Page))
	}

	payload, err := s.client.execute(ctx, r)
	if err != nil {
		return nil, err
	}

	var prices []Price
	if err := payload.DecodeItems(&prices); err != nil {
		return nil, err
	}
	return prices, nil
}
