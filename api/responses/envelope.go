package responses

// Success bodies are {"data": ...}; failures are {"error": {...}}.
type successBody struct {
	Data any `json:"data"`
}

// ErrorPayload is the client-visible part of a failure. Details only appear
// for codes whose metadata allows them, such as STATE_CONFLICT {from, to}.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorBody struct {
	Error ErrorPayload `json:"error"`
}
