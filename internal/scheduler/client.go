package scheduler

import (
	"context"
	"errors"
	"time"

	"ppob_backend/platform/apperr"
	"ppob_backend/platform/config"
	"ppob_backend/platform/redisconn"

	"github.com/hibiken/asynq"
)

const (
	// providerSyncUniqueTTL collapses repeated enqueues of the same provider.
	providerSyncUniqueTTL = 5 * time.Minute
	providerSyncTimeout   = 15 * time.Minute
	providerSyncMaxRetry  = 3
)

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	opt, err := redisClientOpt(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueProviderSync queues a sync run for provider. A run already queued
// for the same provider is reported as a Conflict.
func (c *Client) EnqueueProviderSync(ctx context.Context, provider string) error {
	if c == nil || c.client == nil {
		return apperr.Unavailable("task queue not configured", nil)
	}

	task, err := NewProviderSyncTask(ProviderSyncPayload{Provider: provider})
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, "invalid provider sync task", err)
	}

	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.Unique(providerSyncUniqueTTL),
		asynq.MaxRetry(providerSyncMaxRetry),
		asynq.Timeout(providerSyncTimeout),
	)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return apperr.Conflict("sync already queued for provider " + provider)
	}
	if err != nil {
		return apperr.Unavailable("enqueue provider sync", err)
	}
	return nil
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redisconn.Options(redisURL, tlsInsecure)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}
