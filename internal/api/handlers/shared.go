package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Route parameter names.
const (
	ownerParam   = "uuid"
	sessionParam = "sessionId"
)

// parseJSON decodes the request body into T, rejecting unknown fields and trailing data.
func parseJSON[T any](r *http.Request) (T, error) {
	var v T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("failed to decode request body: %w", err)
	}
	if dec.More() {
		return v, errors.New("request body must contain a single JSON object")
	}
	return v, nil
}

func ownerID(r *http.Request) string {
	return chi.URLParam(r, ownerParam)
}

func sessionID(r *http.Request) string {
	return chi.URLParam(r, sessionParam)
}
