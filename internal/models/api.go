package models

type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}

// WSMessage is the envelope for everything pushed over a group socket.
type WSMessage struct {
	Type    string      `json:"type"` // "message" | "presence"
	Payload interface{} `json:"payload"`
}
