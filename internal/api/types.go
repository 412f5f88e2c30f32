package api

import "github.com/satriahrh/suara/domain/entities"

// IngestRequest represents the request payload for knowledge ingestion
type IngestRequest struct {
	Documents []entities.Document `json:"documents"`
}

// IngestResponse reports the size of the knowledge base after ingestion
type IngestResponse struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
}

// QueryRequest represents the request payload for a knowledge query
type QueryRequest struct {
	Question string `json:"question"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
