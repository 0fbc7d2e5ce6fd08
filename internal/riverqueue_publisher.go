package internal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
)

// NotificationJobKind is the River job kind for mirrored notifications.
const NotificationJobKind = "zcommit.notification"

// NotificationJobArgs is the River job payload for one delivery.
type NotificationJobArgs struct {
	Topic string `json:"topic"`
	Event Event  `json:"event"`
}

func (NotificationJobArgs) Kind() string { return NotificationJobKind }

// riverQueuePublisher inserts a River job per event. It never works jobs.
type riverQueuePublisher struct {
	pool   *pgxpool.Pool
	client *river.Client[pgx.Tx]
	cfg    RiverQueueConfig
}

func newRiverQueuePublisher(cfg RiverQueueConfig) (*riverQueuePublisher, error) {
	if cfg.DSN == "" {
		return nil, invalidConfig("riverqueue dsn is required")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("riverqueue ping: %w", err)
	}
	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{})
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &riverQueuePublisher{pool: pool, client: client, cfg: cfg}, nil
}

func (p *riverQueuePublisher) insertOpts() *river.InsertOpts {
	return &river.InsertOpts{
		Queue:       p.cfg.Queue,
		MaxAttempts: p.cfg.MaxAttempts,
		Priority:    p.cfg.Priority,
		Tags:        p.cfg.Tags,
	}
}

// Publish enqueues event as a River job.
func (p *riverQueuePublisher) Publish(ctx context.Context, topic string, event Event) error {
	_, err := p.client.Insert(ctx, NotificationJobArgs{Topic: topic, Event: event}, p.insertOpts())
	return err
}

func (p *riverQueuePublisher) PublishForDrivers(ctx context.Context, topic string, event Event, drivers []string) error {
	return p.Publish(ctx, topic, event)
}

func (p *riverQueuePublisher) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}
