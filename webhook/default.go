package webhook

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"zcommit/internal"
	"zcommit/pkg/zcommit"
)

// GenericHandler serves /default?class=&instance=&zsig=&message= and sends one zephyr.
type GenericHandler struct {
	pipeline *Pipeline
	maxBody  int64
	logger   zerolog.Logger
}

// NewGenericHandler creates the generic endpoint handler.
func NewGenericHandler(pipeline *Pipeline, maxBody int64, logger zerolog.Logger) *GenericHandler {
	return &GenericHandler{pipeline: pipeline, maxBody: maxBody, logger: logger}
}

func (h *GenericHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	internal.IncRequest("default", r.Method)
	reqID := requestID(r)
	logger := internal.WithRequestID(h.logger, reqID)
	logger.Info().Str("method", r.Method).Str("query", r.URL.RawQuery).Msg("default request")

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeText(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	query := r.URL.Query()
	if r.Method == http.MethodPost {
		if h.maxBody > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
		}
		// Form fields are accepted alongside the query string.
		if err := r.ParseForm(); err != nil {
			h.reject(w, logger, formError(err))
			return
		}
		query = r.Form
	}

	req, err := zcommit.ParseGenericQuery(query)
	if err != nil {
		h.reject(w, logger, err)
		return
	}
	if r.Method == http.MethodGet {
		writeText(w, http.StatusOK, req.Describe())
		return
	}

	d := delivery{
		source:    "default",
		requestID: reqID,
		options:   "class=" + req.Class + " instance=" + req.Instance,
		class:     req.Class,
		logger:    logger,
	}
	report := h.pipeline.deliver(r.Context(), d, []zcommit.CommitResult{{Notification: req.Notification()}})
	if report.AllFailed() {
		cause := report.Results[0].Err
		var commitErr *zcommit.CommitError
		if errors.As(cause, &commitErr) {
			cause = commitErr.Err
		}
		writeText(w, http.StatusBadGateway, "No notifications were sent.\n  "+cause.Error())
		return
	}
	writeText(w, http.StatusOK, zcommit.Acknowledgement)
}

func (h *GenericHandler) reject(w http.ResponseWriter, logger zerolog.Logger, err error) {
	status, msg, reason := errorReply(err)
	internal.IncRejected(reason)
	logger.Warn().Err(err).Int("status", status).Msg("default request rejected")
	writeText(w, status, msg)
}
