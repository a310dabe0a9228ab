package domain

import "encoding/json"

// ChangePayload carries the JSON image of a record on one side of a Change.
// The zero value is undefined, which is distinct from a defined empty image
// (for example the Before side of a created record).
type ChangePayload struct {
	defined bool
	raw     json.RawMessage
}

// NewChangePayload wraps raw JSON. The bytes are copied.
func NewChangePayload(raw json.RawMessage) ChangePayload {
	payload := ChangePayload{defined: true}
	if raw != nil {
		payload.raw = append(json.RawMessage(nil), raw...)
	}
	return payload
}

// NewChangePayloadFromValue marshals value into a defined payload.
func NewChangePayloadFromValue[T any](value T) (ChangePayload, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return ChangePayload{}, err
	}
	return ChangePayload{defined: true, raw: raw}, nil
}

// Defined reports whether the payload has been set.
func (p ChangePayload) Defined() bool {
	return p.defined
}

// IsEmpty reports whether the payload carries no image.
func (p ChangePayload) IsEmpty() bool {
	return !p.defined || len(p.raw) == 0
}

// Raw returns a copy of the JSON image, nil when empty.
func (p ChangePayload) Raw() json.RawMessage {
	if p.IsEmpty() {
		return nil
	}
	return append(json.RawMessage(nil), p.raw...)
}

// Decode unmarshals the image into out. Empty payloads leave out untouched.
func (p ChangePayload) Decode(out any) error {
	if p.IsEmpty() {
		return nil
	}
	return json.Unmarshal(p.raw, out)
}

// MarshalJSON renders the image, or null when undefined.
func (p ChangePayload) MarshalJSON() ([]byte, error) {
	if p.IsEmpty() {
		return []byte("null"), nil
	}
	return p.Raw(), nil
}

// UnmarshalJSON stores the image, treating null as an undefined payload.
func (p *ChangePayload) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = ChangePayload{}
		return nil
	}
	*p = NewChangePayload(data)
	return nil
}
