package client

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Shape identifies which branch of the success envelope a Payload came from.
type Shape string

const (
	// ShapeCollection is data.prices: a list of priced records.
	ShapeCollection Shape = "collection"

	// ShapeSingle is a data object carrying a scalar price, wrapped as a
	// one-element list.
	ShapeSingle Shape = "single"

	// ShapeData is any other data object, returned unchanged.
	ShapeData Shape = "data"
)

// envelope is the wrapper the API puts around every successful payload.
type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

// Payload is the normalized success result of one request.
type Payload struct {
	Shape Shape

	// Items holds the records for ShapeCollection and ShapeSingle.
	Items []json.RawMessage

	// Data is the raw data object for every shape. Nil for empty responses.
	Data json.RawMessage
}

// DecodeItems unmarshals Items into out, which must be a pointer to a slice.
func (p *Payload) DecodeItems(out any) error {
	if p.Shape == ShapeData {
		return invalidResponseError(fmt.Sprintf("expected a price list, got %s payload", p.Shape), nil)
	}
	raw, err := json.Marshal(p.Items)
	if err != nil {
		return invalidResponseError("encode items", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return invalidResponseError("decode items", err)
	}
	return nil
}

// DecodeData unmarshals the raw data object into out.
func (p *Payload) DecodeData(out any) error {
	if len(p.Data) == 0 {
		return invalidResponseError("empty response data", nil)
	}
	if err := json.Unmarshal(p.Data, out); err != nil {
		return invalidResponseError("decode data", err)
	}
	return nil
}

// DecodeField unmarshals one top-level field of the data object, for
// resource envelopes such as {"alert": {...}} or {"alerts": [...]}.
func (p *Payload) DecodeField(name string, out any) error {
	var fields map[string]json.RawMessage
	if err := p.DecodeData(&fields); err != nil {
		return err
	}
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return invalidResponseError(fmt.Sprintf("response data has no %q field", name), nil)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return invalidResponseError(fmt.Sprintf("decode %q", name), err)
	}
	return nil
}

// normalize interprets a 2xx body. An empty body yields an empty ShapeData
// payload; a body without a data member is a malformed response.
func normalize(body []byte) (*Payload, *Error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return &Payload{Shape: ShapeData}, nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, invalidResponseError("response is not a JSON envelope", err)
	}
	if len(env.Data) == 0 || isNull(env.Data) {
		return nil, invalidResponseError("response envelope has no data", nil)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(env.Data, &fields); err != nil {
		// arrays and scalars pass through untouched
		return &Payload{Shape: ShapeData, Data: env.Data}, nil
	}

	if raw, ok := fields["prices"]; ok && !isNull(raw) {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, invalidResponseError("data.prices is not a list", err)
		}
		return &Payload{Shape: ShapeCollection, Items: items, Data: env.Data}, nil
	}

	if raw, ok := fields["price"]; ok && !isNull(raw) {
		return &Payload{Shape: ShapeSingle, Items: []json.RawMessage{env.Data}, Data: env.Data}, nil
	}

	return &Payload{Shape: ShapeData, Data: env.Data}, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
