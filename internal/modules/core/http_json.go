package core

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

type errorResponse struct {
	Error string `json:"error"`
}

func WriteOK(w http.ResponseWriter, r *http.Request, body interface{}) {
	WriteResponse(w, r, http.StatusOK, body)
}

func WriteCommandError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode := StatusCode(err)

	// Store failures are logged by the pipeline, the client gets no internals.
	if statusCode >= http.StatusInternalServerError {
		WriteResponse(w, r, statusCode, errorResponse{Error: http.StatusText(statusCode)})
		return
	}

	WriteResponse(w, r, statusCode, err)
}

func WriteResponse(
	w http.ResponseWriter,
	r *http.Request,
	statusCode int,
	body interface{},
) {
	if body != nil {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(statusCode)
	writeBodyIfPresent(r.Context(), w, body)
}

func writeBodyIfPresent(ctx context.Context, w http.ResponseWriter, body interface{}) {
	if body == nil {
		return
	}

	// error marshals into an empty object.
	if err, ok := body.(error); ok {
		body = errorResponse{Error: err.Error()}
	}

	responseBytes, err := json.Marshal(body)
	if err != nil {
		LogError(ctx, "failed to serialize response", zap.Error(err))
		return
	}

	if _, err := w.Write(responseBytes); err != nil {
		LogError(ctx, "failed to write response", zap.Error(err))
	}
}
