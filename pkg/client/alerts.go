package client

import (
	"context"
	"net/http"
	"net/url"
)

// AlertService manages price alerts and their webhooks.
type AlertService struct {
	client *Client
}

type alertBody struct {
	PriceAlert AlertParams `json:"price_alert"`
}

// List returns all alerts of the account.
func (s *AlertService) List(ctx context.Context) ([]Alert, error) {
	payload, err := s.client.execute(ctx, newRequest(http.MethodGet, "/v1/alerts", "/v1/alerts"))
	if err != nil {
		return nil, err
	}

	var alerts []Alert
	if err := payload.DecodeField("alerts", &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// Get returns a single alert.
func (s *AlertService) Get(ctx context.Context, id string) (*Alert, error) {
	id, err := validateAlertID(id)
	if err != nil {
		return nil, err
	}
	return s.alert(ctx, newRequest(http.MethodGet, "/v1/alerts/{id}", alertPath(id)))
}

// Create creates an alert. Name, commodity code, operator and value are required.
func (s *AlertService) Create(ctx context.Context, params AlertParams) (*Alert, error) {
	params, err := validateAlertParams(params, true)
	if err != nil {
		return nil, err
	}

	r := newRequest(http.MethodPost, "/v1/alerts", "/v1/alerts")
	if err := r.jsonBody(alertBody{PriceAlert: params}); err != nil {
		return nil, err
	}
	return s.alert(ctx, r)
}

// Update changes the fields set in params and leaves the rest untouched.
func (s *AlertService) Update(ctx context.Context, id string, params AlertParams) (*Alert, error) {
	id, err := validateAlertID(id)
	if err != nil {
		return nil, err
	}
	if params, err = validateAlertParams(params, false); err != nil {
		return nil, err
	}

	r := newRequest(http.MethodPatch, "/v1/alerts/{id}", alertPath(id))
	if err := r.jsonBody(alertBody{PriceAlert: params}); err != nil {
		return nil, err
	}
	return s.alert(ctx, r)
}

// Delete removes an alert.
func (s *AlertService) Delete(ctx context.Context, id string) error {
	id, err := validateAlertID(id)
	if err != nil {
		return err
	}
	_, err = s.client.execute(ctx, newRequest(http.MethodDelete, "/v1/alerts/{id}", alertPath(id)))
	return err
}

// TestWebhook asks the API to deliver a sample payload to webhookURL.
func (s *AlertService) TestWebhook(ctx context.Context, webhookURL string) (*WebhookTestResult, error) {
	if err := validateWebhookURL(webhookURL); err != nil {
		return nil, err
	}

	r := newRequest(http.MethodPost, "/v1/alerts/test_webhook", "/v1/alerts/test_webhook")
	body := struct {
		WebhookURL string `json:"webhook_url"`
	}{webhookURL}
	if err := r.jsonBody(body); err != nil {
		return nil, err
	}

	payload, err := s.client.execute(ctx, r)
	if err != nil {
		return nil, err
	}

	var result WebhookTestResult
	if err := payload.DecodeData(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *AlertService) alert(ctx context.Context, r *request) (*Alert, error) {
	payload, err := s.client.execute(ctx, r)
	if err != nil {
		return nil, err
	}

	var alert Alert
	if err := payload.DecodeField("alert", &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

func alertPath(id string) string {
	return "/v1/alerts/" + url.PathEscape(id)
}
