package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zcommit/internal"
	"zcommit/pkg/storage"
	"zcommit/pkg/zcommit"
)

const endToEndPayload = `{"ref":"refs/heads/main","commits":[{"id":"abcdef1234567890","author":{"name":"A","email":"a@x.com"},"message":"fix","timestamp":"2020-01-01T00:00:00Z","added":["f.txt"]}]}`

const mixedPayload = `{"ref":"refs/heads/main","repository":{"name":"demo","full_name":"org/demo"},"commits":[
{"id":"1111111111","author":{"name":"A","email":"a@x.com"},"message":"one","timestamp":"2020-01-01T00:00:00Z"},
{"id":"2222222222","message":"no author","timestamp":"2020-01-01T00:00:00Z"},
{"id":"3333333333","author":{"name":"C","email":"c@x.com"},"message":"three","timestamp":"2020-01-01T00:00:00Z"}]}`

type recordingSender struct {
	mu      sync.Mutex
	sent    []zcommit.Notification
	failFor map[string]bool
}

func (s *recordingSender) Send(ctx context.Context, n zcommit.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	if s.failFor[n.Instance] {
		return errors.New("zsend exited with status 1")
	}
	return nil
}

type recordingPublisher struct {
	topics []string
	events []internal.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, event internal.Event) error {
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) PublishForDrivers(ctx context.Context, topic string, event internal.Event, drivers []string) error {
	return p.Publish(ctx, topic, event)
}

func (p *recordingPublisher) Close() error { return nil }

type memoryJournal struct {
	records []storage.DeliveryRecord
}

func (j *memoryJournal) RecordDelivery(ctx context.Context, record storage.DeliveryRecord) error {
	j.records = append(j.records, record)
	return nil
}

func (j *memoryJournal) ListDeliveries(ctx context.Context, filter storage.DeliveryFilter) ([]storage.DeliveryRecord, error) {
	return j.records, nil
}

func (j *memoryJournal) Close() error { return nil }

type fixture struct {
	sender    *recordingSender
	publisher *recordingPublisher
	journal   *memoryJournal
	handler   http.Handler
}

func newFixture(t *testing.T, mutate func(*RouterConfig)) *fixture {
	t.Helper()
	f := &fixture{
		sender:    &recordingSender{},
		publisher: &recordingPublisher{},
		journal:   &memoryJournal{},
	}
	cfg := RouterConfig{
		MountPath:    "/zcommit",
		MaxBodyBytes: 1 << 20,
		Translator:   zcommit.Translator{Order: zcommit.OrderForward},
		Pipeline: &Pipeline{
			Sender:    f.sender,
			Publisher: f.publisher,
			Topic:     "zcommit.notifications",
			Journal:   f.journal,
			Logger:    zerolog.Nop(),
		},
		Logger: zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	handler, err := NewRouter(cfg)
	require.NoError(t, err)
	f.handler = handler
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func formRequest(target, payload string) *http.Request {
	form := url.Values{"payload": {payload}}
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func jsonRequest(target, payload string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestGitHubPushEndToEnd(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(formRequest("/zcommit/github/class/demo", endToEndPayload))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, zcommit.Acknowledgement, rec.Body.String())
	require.Len(t, f.sender.sent, 1)
	n := f.sender.sent[0]
	assert.Equal(t, "demo", n.Class)
	assert.Equal(t, "abcdef12", n.Instance)
	assert.Equal(t, "refs/heads/main", n.Signature)
	assert.Equal(t, zcommit.DefaultSender, n.Sender)
	assert.Contains(t, n.Body, "A <a@x.com>")
	assert.Contains(t, n.Body, "2020-01-01 00:00:00 +0000")
	assert.Contains(t, n.Body, "> fix")
	assert.Contains(t, n.Body, "Added: f.txt")

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, "zcommit.notifications", f.publisher.topics[0])
	assert.Equal(t, StatusSent, f.publisher.events[0].Status)
	require.Len(t, f.journal.records, 1)
	assert.Equal(t, "abcdef1234567890", f.journal.records[0].CommitID)
	assert.Equal(t, "github", f.journal.records[0].Endpoint)
}

func TestGitHubPushJSONBodyAndOptions(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(jsonRequest("/zcommit/github/class/demo/instance/builds/zsig/CI/sender/bot/", endToEndPayload))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.sender.sent, 1)
	n := f.sender.sent[0]
	assert.Equal(t, "builds", n.Instance)
	assert.Equal(t, "CI: refs/heads/main", n.Signature)
	assert.Equal(t, "bot", n.Sender)
}

func TestGitHubGetIsDryRun(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/zcommit/github/class/demo", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "If you had sent a POST request to this URL, would have sent a zephyr to -c demo", rec.Body.String())
	assert.Empty(t, f.sender.sent)
	assert.Empty(t, f.publisher.events)
}

func TestGitHubRejectsBadRequests(t *testing.T) {
	cases := []struct {
		name   string
		req    *http.Request
		status int
		body   string
	}{
		{"odd segments", formRequest("/zcommit/github/class", endToEndPayload), http.StatusBadRequest, "Invalid submission URL"},
		{"no class", formRequest("/zcommit/github/instance/x", endToEndPayload), http.StatusBadRequest, "Must specify a zephyr class name"},
		{"no class on get", httptest.NewRequest(http.MethodGet, "/zcommit/github", nil), http.StatusBadRequest, "Must specify a zephyr class name"},
		{"not json", formRequest("/zcommit/github/class/demo", "{nope"), http.StatusBadRequest, "invalid payload"},
		{"no commits", formRequest("/zcommit/github/class/demo", `{"ref":"refs/heads/main"}`), http.StatusBadRequest, "missing commits"},
		{"no payload field", formRequest("/zcommit/github/class/demo", ""), http.StatusBadRequest, "invalid payload"},
		{"method", httptest.NewRequest(http.MethodDelete, "/zcommit/github/class/demo", nil), http.StatusMethodNotAllowed, "method not allowed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			rec := f.do(tc.req)
			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.body)
			assert.Empty(t, f.sender.sent)
		})
	}
}

func TestGitHubMissingPayloadField(t *testing.T) {
	f := newFixture(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/zcommit/github/class/demo", strings.NewReader("other=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := f.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing payload field")
}

func TestGitHubBodyTooLarge(t *testing.T) {
	f := newFixture(t, func(cfg *RouterConfig) { cfg.MaxBodyBytes = 16 })

	rec := f.do(jsonRequest("/zcommit/github/class/demo", endToEndPayload))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, f.sender.sent)
}

func TestGitHubPartialFailures(t *testing.T) {
	f := newFixture(t, nil)
	f.sender.failFor = map[string]bool{"33333333": true}

	rec := f.do(formRequest("/zcommit/github/class/demo", mixedPayload))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, zcommit.Acknowledgement), body)
	assert.Contains(t, body, "2 of 3 commits failed")
	require.Len(t, f.sender.sent, 2)
	assert.Equal(t, "11111111", f.sender.sent[0].Instance)
	assert.Equal(t, "33333333", f.sender.sent[1].Instance)

	statuses := make([]string, 0, len(f.journal.records))
	for _, record := range f.journal.records {
		statuses = append(statuses, record.Status)
		assert.Equal(t, "demo", record.Class)
	}
	assert.Equal(t, []string{StatusSent, StatusMalformed, StatusFailed}, statuses)
	require.Len(t, f.publisher.events, 3)
	assert.Equal(t, "org/demo", f.publisher.events[0].Repository)
}

func TestGitHubAllFailedIsBadGateway(t *testing.T) {
	f := newFixture(t, nil)
	f.sender.failFor = map[string]bool{"abcdef12": true}

	rec := f.do(formRequest("/zcommit/github/class/demo", endToEndPayload))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "No notifications were sent."))
}

func TestGitHubReverseOrder(t *testing.T) {
	f := newFixture(t, func(cfg *RouterConfig) {
		cfg.Translator = zcommit.Translator{Order: zcommit.OrderReverse}
	})

	rec := f.do(formRequest("/zcommit/github/class/demo", mixedPayload))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.sender.sent, 2)
	assert.Equal(t, "33333333", f.sender.sent[0].Instance)
	assert.Equal(t, "11111111", f.sender.sent[1].Instance)
}

func TestGitHubEventHeaders(t *testing.T) {
	f := newFixture(t, nil)

	ping := formRequest("/zcommit/github/class/demo", `{"zen":"hi"}`)
	ping.Header.Set("X-GitHub-Event", "ping")
	rec := f.do(ping)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())

	issues := formRequest("/zcommit/github/class/demo", `{}`)
	issues.Header.Set("X-GitHub-Event", "issues")
	rec = f.do(issues)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	assert.Empty(t, f.sender.sent)
}

func sign256(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func sign1(secret, body string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha1=" + hex.EncodeToString(mac.Sum(nil))
}

func TestGitHubSignatureVerification(t *testing.T) {
	const secret = "s3cret"
	withSecret := func(cfg *RouterConfig) { cfg.GitHubSecret = secret }

	t.Run("valid sha256", func(t *testing.T) {
		f := newFixture(t, withSecret)
		req := jsonRequest("/zcommit/github/class/demo", endToEndPayload)
		req.Header.Set("X-GitHub-Event", "push")
		req.Header.Set("X-Hub-Signature-256", sign256(secret, endToEndPayload))
		rec := f.do(req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, f.sender.sent, 1)
	})

	t.Run("valid sha256 form", func(t *testing.T) {
		f := newFixture(t, withSecret)
		req := formRequest("/zcommit/github/class/demo", endToEndPayload)
		body := url.Values{"payload": {endToEndPayload}}.Encode()
		req.Header.Set("X-GitHub-Event", "push")
		req.Header.Set("X-Hub-Signature-256", sign256(secret, body))
		rec := f.do(req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, f.sender.sent, 1)
	})

	t.Run("legacy sha1", func(t *testing.T) {
		f := newFixture(t, withSecret)
		req := jsonRequest("/zcommit/github/class/demo", endToEndPayload)
		req.Header.Set("X-GitHub-Event", "push")
		req.Header.Set("X-Hub-Signature", sign1(secret, endToEndPayload))
		rec := f.do(req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, f.sender.sent, 1)
	})

	t.Run("wrong signature", func(t *testing.T) {
		f := newFixture(t, withSecret)
		req := jsonRequest("/zcommit/github/class/demo", endToEndPayload)
		req.Header.Set("X-GitHub-Event", "push")
		req.Header.Set("X-Hub-Signature-256", sign256("other", endToEndPayload))
		rec := f.do(req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, f.sender.sent)
	})

	t.Run("unsigned", func(t *testing.T) {
		f := newFixture(t, withSecret)
		req := jsonRequest("/zcommit/github/class/demo", endToEndPayload)
		req.Header.Set("X-GitHub-Event", "push")
		rec := f.do(req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("no event header", func(t *testing.T) {
		f := newFixture(t, withSecret)
		req := jsonRequest("/zcommit/github/class/demo", endToEndPayload)
		req.Header.Set("X-Hub-Signature-256", sign256(secret, endToEndPayload))
		rec := f.do(req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRequestIDFromDelivery(t *testing.T) {
	f := newFixture(t, nil)
	req := formRequest("/zcommit/github/class/demo", endToEndPayload)
	req.Header.Set("X-GitHub-Delivery", "72d3162e-cc78-11e3-81ab-4c9367dc0958")

	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "72d3162e-cc78-11e3-81ab-4c9367dc0958", rec.Header().Get("X-Request-Id"))
	require.Len(t, f.journal.records, 1)
	assert.Equal(t, "72d3162e-cc78-11e3-81ab-4c9367dc0958", f.journal.records[0].RequestID)
}

func TestRulesSelectMirrorTopics(t *testing.T) {
	rules, err := internal.NewRuleEngine(internal.RulesConfig{
		Rules: []internal.Rule{
			{When: `status == "failed"`, Emit: internal.EmitList{"zcommit.failures"}},
			{When: `class == "demo"`, Emit: internal.EmitList{"zcommit.demo"}},
		},
	})
	require.NoError(t, err)
	f := newFixture(t, func(cfg *RouterConfig) { cfg.Pipeline.Rules = rules })
	f.sender.failFor = map[string]bool{"33333333": true}

	f.do(formRequest("/zcommit/github/class/demo", mixedPayload))

	assert.Equal(t, []string{"zcommit.demo", "zcommit.demo", "zcommit.failures", "zcommit.demo"}, f.publisher.topics)
}

func TestGenericEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/zcommit/default?class=demo&instance=build", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "If you had sent a POST request to this URL, would have sent a zephyr to -c demo -i build", rec.Body.String())
	assert.Empty(t, f.sender.sent)

	rec = f.do(httptest.NewRequest(http.MethodPost, "/zcommit/default?class=demo&instance=build", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, zcommit.Acknowledgement, rec.Body.String())
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, zcommit.Notification{
		Sender:    zcommit.DefaultSender,
		Class:     "demo",
		Instance:  "build",
		Signature: zcommit.DefaultGenericZsig,
		Body:      zcommit.DefaultGenericMessage,
	}, f.sender.sent[0])
	require.Len(t, f.journal.records, 1)
	assert.Equal(t, "default", f.journal.records[0].Endpoint)
}

func TestGenericEndpointErrors(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/zcommit/default?instance=build", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Must specify a zephyr class name", rec.Body.String())

	rec = f.do(httptest.NewRequest(http.MethodPost, "/zcommit/default?class=demo", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Must specify a zephyr instance name", rec.Body.String())

	f.sender.failFor = map[string]bool{"build": true}
	rec = f.do(httptest.NewRequest(http.MethodPost, "/zcommit/default?class=demo&instance=build", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "zsend exited with status 1")
}

func TestIndexAndHealth(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/zcommit/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/zcommit/github/class/$classname")

	rec = f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRootMount(t *testing.T) {
	f := newFixture(t, func(cfg *RouterConfig) { cfg.MountPath = "/" })

	rec := f.do(formRequest("/github/class/demo", endToEndPayload))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.sender.sent, 1)
}

func TestSplitSegments(t *testing.T) {
	assert.Nil(t, splitSegments(""))
	assert.Nil(t, splitSegments("/"))
	assert.Equal(t, []string{"class", "demo"}, splitSegments("/class/demo/"))
	assert.Equal(t, []string{"class", "", "instance", "x"}, splitSegments("/class//instance/x"))
	assert.Equal(t, []string{"class", "a/b c"}, splitSegments("/class/a%2Fb%20c"))
	assert.Equal(t, []string{"class", "%zz"}, splitSegments("/class/%zz"))
}

type hangupSender struct {
	recordingSender
	hangup func()
}

func (s *hangupSender) Send(ctx context.Context, n zcommit.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.recordingSender.Send(ctx, n)
	s.hangup()
	return err
}

func TestDispatchSurvivesClientHangup(t *testing.T) {
	payload := `{"ref":"refs/heads/main","commits":[
{"id":"1111111111","author":{"name":"A","email":"a@x.com"},"message":"one","timestamp":"2020-01-01T00:00:00Z"},
{"id":"2222222222","author":{"name":"B","email":"b@x.com"},"message":"two","timestamp":"2020-01-01T00:00:00Z"},
{"id":"3333333333","author":{"name":"C","email":"c@x.com"},"message":"three","timestamp":"2020-01-01T00:00:00Z"}]}`

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sender := &hangupSender{hangup: cancel}
	f := newFixture(t, func(cfg *RouterConfig) {
		cfg.Pipeline.Sender = sender
	})

	rec := f.do(formRequest("/zcommit/github/class/demo", payload).WithContext(ctx))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Thanks for posting!", strings.TrimSpace(rec.Body.String()))
	require.Len(t, sender.sent, 3)
	assert.Equal(t, "33333333", sender.sent[2].Instance)
	for _, record := range f.journal.records {
		assert.Equal(t, StatusSent, record.Status)
	}

	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	sender.hangup = cancel
	req := httptest.NewRequest(http.MethodPost, "/zcommit/default?class=demo&instance=x", nil).WithContext(ctx)
	cancel()
	rec = f.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sender.sent, 4)
}
