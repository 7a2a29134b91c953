package client

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
)

// CommodityService lists the commodities and categories the API covers.
type CommodityService struct {
	client *Client
}

// List returns every supported commodity.
func (s *CommodityService) List(ctx context.Context) ([]Commodity, error) {
	payload, err := s.client.execute(ctx, newRequest(http.MethodGet, "/v1/commodities", "/v1/commodities"))
	if err != nil {
		return nil, err
	}

	var commodities []Commodity
	if bytes.HasPrefix(bytes.TrimSpace(payload.Data), []byte("[")) {
		err = payload.DecodeData(&commodities)
	} else {
		err = payload.DecodeField("commodities", &commodities)
	}
	if err != nil {
		return nil, err
	}
	return commodities, nil
}

// Categories returns commodity categories keyed by category identifier.
func (s *CommodityService) Categories(ctx context.Context) (map[string]CommodityCategory, error) {
	payload, err := s.client.execute(ctx, newRequest(http.MethodGet, "/v1/commodities/categories", "/v1/commodities/categories"))
	if err != nil {
		return nil, err
	}

	categories := make(map[string]CommodityCategory)
	if err := payload.DecodeData(&categories); err != nil {
		return nil, err
	}
	return categories, nil
}

// Get returns a single commodity by code.
func (s *CommodityService) Get(ctx context.Context, code string) (*Commodity, error) {
	code, err := normalizeCode(code)
	if err != nil {
		return nil, err
	}

	r := newRequest(http.MethodGet, "/v1/commodities/{code}", "/v1/commodities/"+url.PathEscape(code))
	payload, err := s.client.execute(ctx, r)
	if err != nil {
		return nil, err
	}

	var commodity Commodity
	if err := payload.DecodeData(&commodity); err != nil {
		return nil, err
	}
	return &commodity, nil
}
