/*
 * Copyright 2024 SRVX Project
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package service

import (
	"runtime"
	"testing"
	"time"

	"github.com/icon-project/btp2/common/errors"
	"github.com/stretchr/testify/assert"
)

func waitCancelled(t *testing.T, s *Signal, timeout time.Duration) {
	select {
	case <-s.Done():
	case <-time.After(timeout):
		assert.FailNow(t, "timeout assert cancelled")
	}
}

func Test_WithDeadline_NoTimeout(t *testing.T) {
	parent, _ := NewSignal()
	assert.True(t, parent == WithDeadline(parent, 0))
	assert.Nil(t, WithDeadline(nil, 0))
}

func Test_WithDeadline_DeadlineExceeded(t *testing.T) {
	s := WithDeadline(nil, 50*time.Millisecond)
	assert.False(t, s.Cancelled())
	assert.NoError(t, s.Reason())
	waitCancelled(t, s, time.Second)
	assert.True(t, s.Cancelled())
	assert.EqualError(t, s.Reason(), "DeadlineExceeded")
	assertCode(t, ErrorCodeTimeout, s.Reason())
}

func Test_WithDeadline_ParentCancelFirst(t *testing.T) {
	parent, cancel := NewSignal()
	reason := errors.New("parent gone")
	s := WithDeadline(parent, 100*time.Millisecond)
	cancel(reason)
	waitCancelled(t, s, time.Second)
	assert.Same(t, reason, s.Reason())

	// the first reason is permanent, the timer elapsing changes nothing
	time.Sleep(150 * time.Millisecond)
	assert.Same(t, reason, s.Reason())
}

func Test_WithDeadline_ParentAlreadyCancelled(t *testing.T) {
	parent, cancel := NewSignal()
	cancel(nil)
	s := WithDeadline(parent, 100*time.Millisecond)
	assert.True(t, s.Cancelled())
	assert.EqualError(t, s.Reason(), "Aborted")
}

func Test_WithDeadline_ReleasesGoroutineOnDeadline(t *testing.T) {
	parent, cancel := NewSignal()
	defer cancel(nil)
	before := runtime.NumGoroutine()
	signals := make([]*Signal, 0, 50)
	for i := 0; i < 50; i++ {
		signals = append(signals, WithDeadline(parent, 10*time.Millisecond))
	}
	for _, s := range signals {
		waitCancelled(t, s, time.Second)
	}
	// the propagation goroutines exit once their derived signals terminate,
	// even though the parent is never cancelled
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+2
	}, time.Second, 10*time.Millisecond)
	assert.False(t, parent.Cancelled())
}

func Test_WithDeadline_ParentCancelStopsTimer(t *testing.T) {
	parent, cancel := NewSignal()
	s := WithDeadline(parent, time.Hour)
	s.mu.Lock()
	assert.NotNil(t, s.timer)
	s.mu.Unlock()

	cancel(errors.New("parent gone"))
	waitCancelled(t, s, time.Second)
	s.mu.Lock()
	assert.Nil(t, s.timer)
	s.mu.Unlock()
}

func Test_Signal_CancelIdempotent(t *testing.T) {
	s, cancel := NewSignal()
	first := errors.New("first")
	cancel(first)
	cancel(errors.New("second"))
	assert.Same(t, first, s.Reason())
	assert.True(t, s.Cancelled())
}

func Test_Signal_NilSafe(t *testing.T) {
	var s *Signal
	assert.False(t, s.Cancelled())
	assert.NoError(t, s.Reason())
}
