// Package redis keeps presence records in Redis. Presence is last-writer-wins
// state that every connect/disconnect/heartbeat rewrites, which makes it a poor
// fit for the relational store and a natural fit for a hash per user.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chatrelay/internal/model"
	"github.com/chatrelay/internal/store"
)

const presenceKeyPrefix = "presence:"

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error { return c.cli.Close() }

func presenceKey(userID string) string { return presenceKeyPrefix + userID }

func wrapErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, store.ErrTransient)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (c *Client) SetPresence(ctx context.Context, rec *model.PresenceRecord) error {
	err := c.cli.HSet(ctx, presenceKey(rec.UserID),
		"online", rec.Online,
		"last_activity", rec.LastActivity.UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return wrapErr("redis.SetPresence", err)
	}
	return nil
}

func (c *Client) GetPresence(ctx context.Context, userID string) (*model.PresenceRecord, error) {
	vals, err := c.cli.HGetAll(ctx, presenceKey(userID)).Result()
	if err != nil {
		return nil, wrapErr("redis.GetPresence", err)
	}
	if len(vals) == 0 {
		return nil, store.ErrNotFound
	}
	rec := &model.PresenceRecord{UserID: userID}
	rec.Online = vals["online"] == "1" || vals["online"] == "true"
	if raw := vals["last_activity"]; raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			rec.LastActivity = t
		}
	}
	return rec, nil
}

// ResetPresence marks every stored record offline. Run at boot so users from
// a previous process lifetime are not reported online with no socket behind them.
func (c *Client) ResetPresence(ctx context.Context) error {
	iter := c.cli.Scan(ctx, 0, presenceKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.cli.HSet(ctx, iter.Val(), "online", false).Err(); err != nil {
			return wrapErr("redis.ResetPresence", err)
		}
	}
	if err := iter.Err(); err != nil {
		return wrapErr("redis.ResetPresence", err)
	}
	return nil
}

func (c *Client) TouchPresence(ctx context.Context, userID string, at time.Time) error {
	key := presenceKey(userID)
	exists, err := c.cli.Exists(ctx, key).Result()
	if err != nil {
		return wrapErr("redis.TouchPresence", err)
	}
	if exists == 0 {
		return nil
	}
	if err := c.cli.HSet(ctx, key, "last_activity", at.UTC().Format(time.RFC3339Nano)).Err(); err != nil {
		return wrapErr("redis.TouchPresence", err)
	}
	return nil
}
