package api

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/mathlens/mathlens/internal/completion"
	"github.com/mathlens/mathlens/internal/pipeline"
	"github.com/mathlens/mathlens/internal/render"
)

const (
	maxGenerateBody = 1 << 20
	maxStderrDetail = 4096
)

func generateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxGenerateBody)

		req, err := decodeGenerateRequest(r)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		req.Question = strings.TrimSpace(req.Question)
		if err := validateStruct(req); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		res, err := cfg.Generator.Generate(r.Context(), pipeline.Request{
			Question:       req.Question,
			PromptTemplate: req.Template(),
		})
		if err != nil {
			writeGenerateError(cfg, w, r, err)
			return
		}

		WriteJSON(w, http.StatusOK, ResultToResponse(res))
	}
}

// decodeGenerateRequest reads a JSON body or form fields.
func decodeGenerateRequest(r *http.Request) (GenerateRequest, error) {
	var req GenerateRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, errors.New("invalid request body")
		}
		return req, nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxGenerateBody); err != nil {
			return req, errors.New("invalid form body")
		}
	default:
		if err := r.ParseForm(); err != nil {
			return req, errors.New("invalid form body")
		}
	}

	req.Question = r.PostFormValue("question")
	req.Prompt = r.PostFormValue("prompt")
	req.PromptTemplate = r.PostFormValue("prompt_template")
	return req, nil
}

func writeGenerateError(cfg ServerConfig, w http.ResponseWriter, r *http.Request, err error) {
	requestID, _ := r.Context().Value(RequestIDKey).(string)

	switch code := pipeline.ErrorCode(err); code {
	case pipeline.CodeInvalidRequest:
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")

	case pipeline.CodeConfigurationError:
		var ce *completion.ConfigurationError
		errors.As(err, &ce)
		WriteError(w, http.StatusServiceUnavailable, ce.Error(), code)

	case pipeline.CodeServiceError:
		var se *completion.ServiceError
		errors.As(err, &se)
		WriteError(w, http.StatusInternalServerError, se.Error(), code)

	case pipeline.CodeRenderingFailed:
		var rf *render.RenderingFailure
		errors.As(err, &rf)
		details := strings.TrimSpace(rf.StderrTail)
		if details == "" {
			details = rf.Error()
		}
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:        "video rendering failed",
			Code:         code,
			Details:      tail(details, maxStderrDetail),
			ExpectedPath: rf.Path,
		})

	default:
		cfg.Logger.Error("generation failed", "error", err, "request_id", requestID)
		WriteError(w, http.StatusInternalServerError, "internal server error", code)
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
