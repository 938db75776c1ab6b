// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_SerializesSameKey(t *testing.T) {
	q := NewQueue()
	var order []int32
	var counter int32

	run := func(n int32) {
		prev, token := q.Enqueue("k")
		if prev != nil {
			<-prev
		}
		order = append(order, atomic.AddInt32(&counter, 1))
		time.Sleep(5 * time.Millisecond)
		q.Release("k", token)
	}

	done := make(chan struct{}, 2)
	go func() { run(1); done <- struct{}{} }()
	time.Sleep(time.Millisecond)
	go func() { run(2); done <- struct{}{} }()
	<-done
	<-done

	require.Len(t, order, 2)
	assert.Equal(t, []int32{1, 2}, order)
}

func TestQueue_DifferentKeysRunConcurrently(t *testing.T) {
	q := NewQueue()
	start := time.Now()

	done := make(chan struct{}, 2)
	for _, key := range []string{"a", "b"} {
		key := key
		go func() {
			prev, token := q.Enqueue(key)
			if prev != nil {
				<-prev
			}
			time.Sleep(30 * time.Millisecond)
			q.Release(key, token)
			done <- struct{}{}
		}()
	}
	<-done
	<-done

	assert.Less(t, time.Since(start), 60*time.Millisecond)
}

func TestQueue_PreemptCallsCancel(t *testing.T) {
	q := NewQueue()
	var cancelled bool
	run := &ActiveRun{RequestID: "r1", Cancel: func() { cancelled = true }}
	q.SetActive("k", run)

	assert.True(t, q.Preempt("k"))
	assert.True(t, cancelled)

	q.ClearActive("k", run)
	assert.False(t, q.Preempt("k"))
}

func TestQueue_ReleaseClearsTailOnlyWhenCurrent(t *testing.T) {
	q := NewQueue()
	_, tok1 := q.Enqueue("k")
	_, tok2 := q.Enqueue("k")

	q.Release("k", tok1)
	q.mu.Lock()
	_, stillTail := q.tails["k"]
	q.mu.Unlock()
	assert.True(t, stillTail, "tok2 is still tail after releasing tok1")

	q.Release("k", tok2)
	q.mu.Lock()
	_, gone := q.tails["k"]
	q.mu.Unlock()
	assert.False(t, gone)
}
