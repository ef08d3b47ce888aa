// Package redisstore implements checkpoint.Store, session.Store, and
// approval.Store over a shared Redis instance, for deployments running
// multiple engine replicas against one cache. Each session keeps a
// checkpoint:{session}:latest key plus an ordered :history list; sorted
// sets index sessions by user and approvals by pending status.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store holds the shared client and key prefix for all three namespaces.
type Store struct {
	client *redis.Client
	prefix string
}

// Open connects to the Redis URL (redis://host:port/db) and verifies the
// connection with a ping.
func Open(rawURL string) (*Store, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("redisstore: parse url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redisstore: connect: %w", err)
	}
	return &Store{client: client, prefix: "bankflow:"}, nil
}

// NewWithClient wraps an existing client; tests use this with miniredis.
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client, prefix: "bankflow:"}
}

// Close releases the client's connection pool.
func (s *Store) Close() error { return s.client.Close() }

// Ping reports whether the backing Redis is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *Store) checkpointLatestKey(sessionID string) string {
	return s.prefix + "checkpoint:" + sessionID + ":latest"
}

func (s *Store) checkpointHistoryKey(sessionID string) string {
	return s.prefix + "checkpoint:" + sessionID + ":history"
}

func (s *Store) sessionKey(sessionID string) string {
	return s.prefix + "session:" + sessionID
}

func (s *Store) userSessionsKey(userID string) string {
	return s.prefix + "user:" + userID + ":sessions"
}

func (s *Store) allSessionsKey() string {
	return s.prefix + "sessions:all"
}

func (s *Store) approvalKey(approvalID string) string {
	return s.prefix + "approval:" + approvalID
}

func (s *Store) pendingApprovalsKey() string {
	return s.prefix + "approvals:pending"
}

func (s *Store) sessionPendingKey(sessionID string) string {
	return s.prefix + "session:" + sessionID + ":pending_approval"
}
