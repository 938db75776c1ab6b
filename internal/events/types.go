// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package events provides the gateway's internal monitor event bus.
package events

import (
	"context"
	"time"
)

// Event represents an immutable event record.
type Event struct {
	ID        string                 `json:"id"`
	Version   string                 `json:"version"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Key       string                 `json:"key"` // gateway session key this event concerns, if any
	Payload   map[string]interface{} `json:"payload"`
}

// EventHandler processes received events.
type EventHandler func(ctx context.Context, event Event) error

// SubscriptionID uniquely identifies a subscription.
type SubscriptionID string

// EventFilter for querying event history.
type EventFilter struct {
	Types    []string  // Event types to match (supports wildcards)
	Key      string    // Filter by gateway session key
	Since    time.Time // Events after this time
	Until    time.Time // Events before this time
	Limit    int       // Maximum events to return
}

// EventBus is the core event pub/sub system.
type EventBus interface {
	// Publish emits an event to all matching subscribers.
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a synchronous handler for events matching pattern.
	Subscribe(pattern string, handler EventHandler) (SubscriptionID, error)

	// SubscribeAsync registers an async handler with buffered channel.
	SubscribeAsync(pattern string, handler EventHandler, bufferSize int) (SubscriptionID, error)

	// Unsubscribe removes a subscription.
	Unsubscribe(id SubscriptionID) error

	// History retrieves past events matching filter.
	History(filter EventFilter) ([]Event, error)

	// SetDefaultKey sets the session key applied to published events that
	// don't carry one of their own.
	SetDefaultKey(key string)

	// Close shuts down the event bus gracefully.
	Close() error
}

// Common event types, broadcast on GET /events and kept in the history
// served by GET /events/history.
const (
	EventRequestReceived = "request.received"
	EventSessionResumed  = "session.resumed"
	EventSessionCreated  = "session.created"
	EventSessionForked   = "session.forked"
	EventSessionMigrated = "session.migrated"

	EventChildSpawned    = "child.spawned"
	EventChildRetried    = "child.retried"
	EventChildExited     = "child.exited"
	EventChildKilled     = "child.killed"
	EventChildIdleKilled = "child.idle_killed"

	EventRequestPreempted = "request.preempted"
	EventRequestCancelled = "request.cancelled"
	EventRequestCompleted = "request.completed"
	EventRequestFailed    = "request.failed"

	EventAliasMapReloaded = "identity.alias_map_reloaded"
)
