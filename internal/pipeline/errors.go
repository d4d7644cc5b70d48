package pipeline

import (
	"errors"

	"github.com/mathlens/mathlens/internal/completion"
	"github.com/mathlens/mathlens/internal/render"
)

// Error codes returned to API clients and stored with failed generations.
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeConfigurationError = "CONFIGURATION_ERROR"
	CodeServiceError       = "SERVICE_ERROR"
	CodeRenderingFailed    = "RENDERING_FAILED"
	CodeInternalError      = "INTERNAL_ERROR"
)

// ErrEmptyQuestion is returned for a blank question.
var ErrEmptyQuestion = errors.New("question is required")

// ErrorCode classifies err.
func ErrorCode(err error) string {
	var (
		configErr  *completion.ConfigurationError
		serviceErr *completion.ServiceError
		renderErr  *render.RenderingFailure
	)
	switch {
	case errors.Is(err, ErrEmptyQuestion):
		return CodeInvalidRequest
	case errors.As(err, &configErr):
		return CodeConfigurationError
	case errors.As(err, &serviceErr):
		return CodeServiceError
	case errors.As(err, &renderErr):
		return CodeRenderingFailed
	default:
		return CodeInternalError
	}
}
