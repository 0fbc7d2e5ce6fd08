package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/webhooks/v6/github"
	ghapi "github.com/google/go-github/v57/github"
	"github.com/rs/zerolog"

	"zcommit/internal"
	"zcommit/pkg/zcommit"
)

// GitHubHandler serves /github/<key>/<value>/... and turns push deliveries into
// one zephyr per commit.
type GitHubHandler struct {
	prefix     string
	translator zcommit.Translator
	pipeline   *Pipeline
	hook       *github.Webhook
	secret     string
	maxBody    int64
	logger     zerolog.Logger
}

// NewGitHubHandler creates a handler for paths below prefix. When secret is set,
// POST bodies must carry a valid X-Hub-Signature-256 (or legacy X-Hub-Signature).
func NewGitHubHandler(prefix string, translator zcommit.Translator, pipeline *Pipeline, secret string, maxBody int64, logger zerolog.Logger) (*GitHubHandler, error) {
	h := &GitHubHandler{
		prefix:     strings.TrimRight(prefix, "/"),
		translator: translator,
		pipeline:   pipeline,
		secret:     secret,
		maxBody:    maxBody,
		logger:     logger,
	}
	if secret != "" {
		hook, err := github.New(github.Options.Secret(secret))
		if err != nil {
			return nil, err
		}
		h.hook = hook
	}
	return h, nil
}

func (h *GitHubHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	internal.IncRequest("github", r.Method)
	reqID := requestID(r)
	logger := internal.WithRequestID(h.logger, reqID)
	segments := pathSegments(r, h.prefix)
	logger.Info().
		Str("method", r.Method).
		Strs("segments", segments).
		Str("query", r.URL.RawQuery).
		Msg("github request")

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeText(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	opts, err := zcommit.ParseOptions(segments)
	if err != nil {
		h.reject(w, logger, segments, err)
		return
	}
	if r.Method == http.MethodGet {
		writeText(w, http.StatusOK, zcommit.DescribePush(opts))
		return
	}

	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	if h.hook != nil {
		status, msg, ok := h.verify(r, logger)
		if !ok {
			internal.IncRejected("signature")
			writeText(w, status, msg)
			return
		}
	}

	switch event := ghapi.WebHookType(r); event {
	case "", "push":
	case "ping":
		writeText(w, http.StatusOK, "pong")
		return
	default:
		logger.Info().Str("event", event).Msg("ignoring non-push event")
		writeText(w, http.StatusAccepted, "Ignoring "+event+" event.")
		return
	}

	payload, err := readPayload(r)
	if err != nil {
		h.reject(w, logger, segments, err)
		return
	}
	event, results, err := h.translator.TranslatePush(opts, payload)
	if err != nil {
		h.reject(w, logger, segments, err)
		return
	}

	d := delivery{
		source:    "github",
		requestID: reqID,
		ref:       event.Ref,
		options:   opts.String(),
		class:     opts.Class,
		logger:    logger,
	}
	if event.Repository != nil {
		d.repository = event.Repository.FullName
		if d.repository == "" {
			d.repository = event.Repository.Name
		}
	}
	report := h.pipeline.deliver(r.Context(), d, results)
	logger.Info().
		Int("commits", len(report.Results)).
		Int("sent", report.Sent()).
		Msg("push handled")

	status := http.StatusOK
	if report.AllFailed() {
		status = http.StatusBadGateway
	}
	writeText(w, status, report.Summary())
}

func (h *GitHubHandler) reject(w http.ResponseWriter, logger zerolog.Logger, segments []string, err error) {
	status, msg, reason := errorReply(err)
	internal.IncRejected(reason)
	logger.Warn().Err(err).Strs("segments", segments).Int("status", status).Msg("github request rejected")
	writeText(w, status, msg)
}

// verify checks the delivery signature. The body is restored for the payload reader.
func (h *GitHubHandler) verify(r *http.Request, logger zerolog.Logger) (int, string, bool) {
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		status, msg, _ := errorReply(err)
		return status, msg, false
	}
	defer func() {
		r.Body = io.NopCloser(bytes.NewReader(rawBody))
	}()

	r.Body = io.NopCloser(bytes.NewReader(rawBody))
	_, err = h.hook.Parse(r, github.PushEvent, github.PingEvent)
	switch {
	case err == nil:
		return 0, "", true
	case errors.Is(err, github.ErrHMACVerificationFailed):
		logger.Warn().Msg("github signature mismatch")
		return http.StatusUnauthorized, "invalid signature", false
	case errors.Is(err, github.ErrMissingHubSignatureHeader):
		if verifyGitHubSHA1(h.secret, rawBody, r.Header.Get("X-Hub-Signature")) {
			logger.Info().Msg("accepted legacy sha1 signature")
			return 0, "", true
		}
		return http.StatusUnauthorized, "missing signature", false
	case errors.Is(err, github.ErrMissingGithubEventHeader):
		return http.StatusBadRequest, "missing X-GitHub-Event header", false
	case errors.Is(err, github.ErrEventNotFound):
		// Accepted here; non-push events are acknowledged and ignored by the caller.
		return 0, "", true
	case errors.Is(err, github.ErrParsingPayload):
		return http.StatusBadRequest, "empty payload", false
	default:
		// The signature is checked before the body is decoded, so a decode error
		// (a form-encoded delivery) still means the signature matched.
		return 0, "", true
	}
}

func verifyGitHubSHA1(secret string, body []byte, signature string) bool {
	if secret == "" || len(body) == 0 || signature == "" {
		return false
	}
	signature = strings.TrimPrefix(signature, "sha1=")
	mac := hmac.New(sha1.New, []byte(secret))
	_, _ = mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}
