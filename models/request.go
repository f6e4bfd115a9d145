package models

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Question string `json:"question" binding:"required"`
}
