package server

import "github.com/mohammad-safakhou/supportbot/models"

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// ChatResponse carries the validated answer.
type ChatResponse struct {
	Reply      string `json:"reply"`
	TokensUsed int    `json:"tokensUsed"`
}

// MessagesResponse lists a session's history, oldest first.
type MessagesResponse struct {
	Messages []models.Message `json:"messages"`
}

// SessionsResponse lists sessions, most recently updated first.
type SessionsResponse struct {
	Sessions []models.Session `json:"sessions"`
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status string `json:"status"`
}

const (
	msgInvalidBody     = "Invalid request body."
	msgMissingFields   = "Missing sessionId or message."
	msgDatabaseError   = "Database error."
	msgLLMFailed       = "LLM processing failed."
	msgLimiterDown     = "Rate limiter unavailable."
	invalidKeyTemplate = "Invalid %s API key."
)
