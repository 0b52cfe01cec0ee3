package errorhandler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/enterprise-access/access-api/internal/middleware"
	"github.com/enterprise-access/access-api/internal/pkg/logger"
	"github.com/enterprise-access/access-api/internal/pkg/response"
)

// HandleError logs the error and sends the enveloped error response.
func HandleError(ctx context.Context, w http.ResponseWriter, status int, code, message string, err error) {
	event := logger.FromContext(ctx).Error().
		Str("request_id", middleware.GetRequestID(ctx)).
		Str("error_code", code).
		Str("error_message", message).
		Int("status_code", status)

	if err != nil {
		event.Err(err)
	}

	event.Msg("Request error")

	response.Error(w, status, code, message)
}

// HandleUnprocessable logs and sends a flat 422 detail body.
func HandleUnprocessable(ctx context.Context, w http.ResponseWriter, body map[string]interface{}, err error) {
	logger.FromContext(ctx).Warn().
		Str("request_id", middleware.GetRequestID(ctx)).
		Interface("detail", body).
		Err(err).
		Msg("Unprocessable request")

	response.Unprocessable(w, body)
}

// LogValidationError logs validation errors with details
func LogValidationError(ctx context.Context, fieldErrors map[string]string) {
	errJSON, _ := json.Marshal(fieldErrors)
	logger.FromContext(ctx).Warn().
		Str("request_id", middleware.GetRequestID(ctx)).
		RawJSON("validation_errors", errJSON).
		Msg("Validation error")
}

// LogExternalServiceError logs errors from external service calls
func LogExternalServiceError(ctx context.Context, service string, endpoint string, statusCode int, err error, body string) {
	logger.FromContext(ctx).Error().
		Str("request_id", middleware.GetRequestID(ctx)).
		Str("external_service", service).
		Str("endpoint", endpoint).
		Int("status_code", statusCode).
		Err(err).
		Str("response_body", truncateString(body, 1000)).
		Msg("External service error")
}

func truncateString(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen] + "...<truncated>"
	}
	return s
}
