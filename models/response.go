package models

// UploadResponse is returned by POST /upload on success.
type UploadResponse struct {
	Message  string   `json:"message"`
	Preview  string   `json:"preview"`
	Warnings []string `json:"warnings,omitempty"`
}

// ChatResponse is returned by POST /chat on success.
type ChatResponse struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
