package model

import "encoding/json"

// SuccessResponse is the envelope for successful management and gateway
// responses.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse is the uniform envelope for every gateway-originated failure.
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

// ErrorDetail carries a stable machine-readable code, a human message and
// optional extra fields that are flattened into the error object.
type ErrorDetail struct {
	Code    string
	Message string
	Fields  map[string]any
}

// MarshalJSON flattens Fields next to code and message so clients see
// {"code":"...","message":"...","retry_after":30}.
func (d ErrorDetail) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Fields)+2)
	for k, v := range d.Fields {
		out[k] = v
	}
	out["code"] = d.Code
	out["message"] = d.Message
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON; unknown keys land in Fields.
func (d *ErrorDetail) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	d.Code, _ = raw["code"].(string)
	d.Message, _ = raw["message"].(string)
	delete(raw, "code")
	delete(raw, "message")
	if len(raw) > 0 {
		d.Fields = raw
	}
	return nil
}
