package webhook

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"zcommit/internal"
	"zcommit/pkg/storage"
	"zcommit/pkg/zcommit"
)

// Delivery status values shared by metrics, the mirror and the journal.
const (
	StatusSent      = "sent"
	StatusFailed    = "failed"
	StatusMalformed = "malformed"
)

// Pipeline dispatches translated notifications and reports every outcome to
// the optional mirror publisher and delivery journal.
type Pipeline struct {
	Sender zcommit.NotificationSender
	// Publisher and Rules mirror each outcome; Topic is used when no rule is configured.
	Publisher internal.Publisher
	Rules     *internal.RuleEngine
	Topic     string
	Journal   storage.DeliveryStore
	Logger    zerolog.Logger
}

// delivery describes the request a batch came from.
type delivery struct {
	source     string
	requestID  string
	ref        string
	repository string
	options    string
	class      string
	logger     zerolog.Logger
}

// deliver sends every result even if the client goes away mid-batch; the
// sender's own timeout bounds each call.
func (p *Pipeline) deliver(ctx context.Context, d delivery, results []zcommit.CommitResult) zcommit.BatchReport {
	ctx = context.WithoutCancel(ctx)
	report := zcommit.Dispatch(ctx, p.Sender, results)
	for _, res := range report.Results {
		status := statusOf(res)
		internal.IncNotification(status)
		if res.Err != nil {
			d.logger.Error().
				Err(res.Err).
				Str("source", d.source).
				Str("options", d.options).
				Str("ref", d.ref).
				Int("index", res.Index).
				Str("commit", res.Commit.ID).
				Str("status", status).
				Msg("notification not sent")
		}
		p.mirror(ctx, d, res, status)
		p.record(ctx, d, res, status)
	}
	return report
}

func statusOf(res zcommit.CommitResult) string {
	switch {
	case res.Err == nil:
		return StatusSent
	case res.Dispatched:
		return StatusFailed
	default:
		return StatusMalformed
	}
}

func (p *Pipeline) mirror(ctx context.Context, d delivery, res zcommit.CommitResult, status string) {
	if p.Publisher == nil {
		return
	}
	var commit *zcommit.Commit
	if res.Commit.ID != "" {
		c := res.Commit
		commit = &c
	}
	n := res.Notification
	if n.Class == "" {
		n.Class = d.class
	}
	event := internal.NewEvent(d.source, d.requestID, d.ref, d.repository, commit, n, status, res.Err)

	if p.Rules.Empty() {
		if err := p.Publisher.Publish(ctx, p.Topic, event); err != nil {
			d.logger.Warn().Err(err).Str("topic", p.Topic).Msg("mirror publish failed")
		}
		return
	}
	matches := p.Rules.EvaluateWithLogger(event, d.logger)
	for _, match := range matches {
		if err := p.Publisher.PublishForDrivers(ctx, match.Topic, event, match.Drivers); err != nil {
			d.logger.Warn().Err(err).Str("topic", match.Topic).Msg("mirror publish failed")
		}
	}
}

func (p *Pipeline) record(ctx context.Context, d delivery, res zcommit.CommitResult, status string) {
	if p.Journal == nil {
		return
	}
	n := res.Notification
	record := storage.DeliveryRecord{
		RequestID: d.requestID,
		Endpoint:  d.source,
		CommitID:  res.Commit.ID,
		Sender:    n.Sender,
		Class:     n.Class,
		Instance:  n.Instance,
		Signature: n.Signature,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
	if record.Class == "" {
		record.Class = d.class
	}
	if res.Err != nil {
		record.Error = res.Err.Error()
	}
	if err := p.Journal.RecordDelivery(ctx, record); err != nil {
		d.logger.Warn().Err(err).Msg("journal write failed")
	}
}
