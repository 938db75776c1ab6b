// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/groupsio/claudegw/internal/claudecli"
	"github.com/groupsio/claudegw/internal/events"
)

// EngineConfig is the set of knobs the Request Handler needs that come
// from the process configuration rather than from a single request.
type EngineConfig struct {
	Binary       string
	WorkspaceDir string
	TempDir      string
	Idle         IdleTimeouts
}

// Engine ties the session registry, the per-key queue, the identity alias
// map and the child supervisor together into the one explicit value that
// HTTP handlers drive, rather than reaching for package-level globals.
type Engine struct {
	cfg      EngineConfig
	Registry *Registry
	Queue    *Queue
	Aliases  *AliasMap
	Bus      events.EventBus
	debug    *debugHub
}

// NewEngine constructs an Engine. bus may be nil, in which case event
// publication is skipped.
func NewEngine(cfg EngineConfig, reg *Registry, q *Queue, aliases *AliasMap, bus events.EventBus) *Engine {
	return &Engine{cfg: cfg, Registry: reg, Queue: q, Aliases: aliases, Bus: bus, debug: newDebugHub()}
}

// Debug exposes the pre-translation event hub that /v1/debug/stream reads
// from.
func (e *Engine) Debug() *debugHub { return e.debug }

func (e *Engine) publish(typ string, payload map[string]any) {
	if e.Bus == nil {
		return
	}
	var key string
	if k, ok := payload["key"].(string); ok {
		key = k
	}
	e.Bus.Publish(context.Background(), events.Event{
		Type:      typ,
		Timestamp: time.Now(),
		Key:       key,
		Payload:   payload,
	})
}

// StopResult is returned by HandleStop.
type StopResult struct {
	Preempted bool
}

// HandleStop implements the `/stop` pseudo-command: it kills the active
// child for key, if any, and never spawns or queues anything.
func (e *Engine) HandleStop(key string) StopResult {
	preempted := e.Queue.Preempt(key)
	if preempted {
		e.publish(events.EventRequestPreempted, map[string]any{"key": key, "reason": "stop"})
	}
	return StopResult{Preempted: preempted}
}

// resolveSession determines which CLI session UUID a run should use:
// exact registry match, else identity migration from a different key,
// else a deterministic new UUID. The returned bool reports whether the
// session should be resumed (an existing conversation) or started fresh.
func (e *Engine) resolveSession(key, identity string) (uuidStr string, resume bool) {
	if s, ok := e.Registry.Lookup(key); ok {
		if claudecli.Exists(e.cfg.WorkspaceDir, s.UUID) {
			return s.UUID, true
		}
		// Registry says this key has a session, but its file is gone
		// (deleted to clear a stale lock, or never flushed) — fall
		// through to deriving fresh below.
	}
	if s, ok := e.Registry.Migrate(key, identity); ok {
		if claudecli.Exists(e.cfg.WorkspaceDir, s.UUID) {
			e.publish(events.EventSessionMigrated, map[string]any{"key": key, "identity": identity})
			return s.UUID, true
		}
	}
	derived := DeriveUUID(key)
	if claudecli.Exists(e.cfg.WorkspaceDir, derived) {
		return derived, true
	}
	return derived, false
}

// Run executes the full Request Handler happy path for req: session
// resolution, regenerate fork, queue join, spawn-with-retry, and
// translation of the child's event stream. emit, if non-nil, is called for
// every SSE event the translator produces, for streaming and non-streaming
// requests alike (a non-streaming caller passes a collector that assembles
// the final message from those events). Run blocks until the turn
// completes, is preempted, or ctx is cancelled (client disconnect).
func (e *Engine) Run(ctx context.Context, req RunRequest, emit func(SSEEvent)) (*RunOutcome, error) {
	key := req.SessionKey
	identity := e.Aliases.Canonical(req.Identity)

	if req.Regenerate {
		if _, err := Regenerate(e.Registry, e.cfg.WorkspaceDir, key, identity); err != nil {
			log.Printf("gateway: regenerate for key %s: %v", key, err)
		} else {
			e.publish(events.EventSessionForked, map[string]any{"key": key})
		}
		e.Queue.Preempt(key)
	}

	prev, token := e.Queue.Enqueue(key)
	defer e.Queue.Release(key, token)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	uuidStr, resume := e.resolveSession(key, identity)
	if resume {
		e.publish(events.EventSessionResumed, map[string]any{"key": key, "uuid": uuidStr})
	} else {
		e.publish(events.EventSessionCreated, map[string]any{"key": key, "uuid": uuidStr})
	}

	run, runUUID, err := e.spawnWithRetry(req, uuidStr, resume)
	if err != nil {
		return nil, err
	}
	uuidStr = runUUID

	active := &ActiveRun{RequestID: uuidStr, Sender: identity, Cancel: run.Kill}
	e.Queue.SetActive(key, active)
	defer e.Queue.ClearActive(key, active)
	e.publish(events.EventChildSpawned, map[string]any{"key": key, "uuid": uuidStr, "resume": resume})

	messageID := req.MessageID
	if messageID == "" {
		messageID = "msg_" + NewForkUUID()
	}
	translator := NewTranslator(messageID, req.Model)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		run.Kill()
		return nil
	})

	var outcome RunOutcome
	outcome.UUID = uuidStr
	outcome.MessageID = messageID

	for ev := range run.Events() {
		e.debug.broadcast(key, ev)
		for _, sse := range translator.Consume(ev) {
			if emit != nil {
				emit(sse)
			}
		}
		run.SetPhase(translator.ToolExecuting(), translator.Compacting())
	}

	waitErr := run.Wait()
	_ = g.Wait()

	// A non-zero exit after a parseable result already arrived is how the
	// CLI reports quota/credit conditions, not a failure: the text it
	// printed is the answer. Only a genuine disconnect or an exit with no
	// result at all counts as unsuccessful.
	success := waitErr == nil || translator.ResultReceived()
	closeOK := ctx.Err() == nil && success
	for _, sse := range translator.Close(closeOK) {
		if emit != nil {
			emit(sse)
		}
	}

	outcome.InputTokens, outcome.OutputTokens = translator.inputTokens, translator.outputTokens

	switch {
	case ctx.Err() != nil:
		e.publish(events.EventRequestCancelled, map[string]any{"key": key, "uuid": uuidStr})
		outcome.Err = ctx.Err()
	case !success && run.Killed():
		// Preemption and idle timeout both terminate the child via Kill,
		// which always leaves a non-zero waitErr behind. Neither is a
		// failure: the stream simply ends with no terminal event, and the
		// original caller's HTTP response still completes normally.
		e.publish(events.EventRequestPreempted, map[string]any{"key": key, "uuid": uuidStr})
	case !success:
		e.publish(events.EventRequestFailed, map[string]any{"key": key, "uuid": uuidStr, "error": waitErr.Error()})
		outcome.Err = fmt.Errorf("cli: %w", waitErr)
	default:
		e.Registry.Record(key, uuidStr, identity)
		e.publish(events.EventRequestCompleted, map[string]any{"key": key, "uuid": uuidStr})
	}

	return &outcome, nil
}

// spawnWithRetry spawns the child, retrying once as a fresh session if the
// first attempt reports a stale "already in use" lock, a failed resume, or
// any other exit without a result inside the detection window.
// It returns the UUID the run actually ended up using, which differs from
// uuidStr when a retry had to fall back to a brand new session.
func (e *Engine) spawnWithRetry(req RunRequest, uuidStr string, resume bool) (*Run, string, error) {
	opts := SpawnOptions{
		Binary:     e.cfg.Binary,
		WorkDir:    e.cfg.WorkspaceDir,
		UUID:       uuidStr,
		Resume:     resume,
		System:     req.SystemText,
		AppendText: req.AppendText,
		Model:      req.Model,
		Stream:     req.Stream,
		Prompt:     req.Prompt,
		ImagePaths: req.ImagePaths,
		Idle:       e.cfg.Idle,
	}

	outcome, err := Spawn(opts)
	if err != nil {
		return nil, "", fmt.Errorf("spawn: %w", err)
	}
	if outcome.RetryReason == "" {
		return outcome.Run, uuidStr, nil
	}

	log.Printf("gateway: spawn retry for %s: %s", uuidStr, outcome.RetryReason)
	e.publish(events.EventChildRetried, map[string]any{"key": req.SessionKey, "uuid": uuidStr, "reason": outcome.RetryReason})

	if outcome.RetryReason == "already_in_use" {
		logAlreadyInUse(e.cfg.Binary)
		_ = claudecli.Delete(e.cfg.WorkspaceDir, uuidStr)
	}

	retryOpts := opts
	retryOpts.UUID = NewForkUUID()
	retryOpts.Resume = false

	retryOutcome, err := Spawn(retryOpts)
	if err != nil {
		return nil, "", fmt.Errorf("spawn retry: %w", err)
	}
	return retryOutcome.Run, retryOpts.UUID, nil
}
