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
	"sync"
	"time"

	"github.com/icon-project/btp2/common/errors"
)

var errAborted = errors.New("Aborted")

// Signal is a cooperative cancellation token. It reaches its terminal
// cancelled state at most once; the first reason to arrive is permanent.
type Signal struct {
	mu     sync.Mutex
	done   chan struct{}
	reason error
	timer  *time.Timer
}

type CancelFunc func(reason error)

func NewSignal() (*Signal, CancelFunc) {
	s := &Signal{done: make(chan struct{})}
	return s, s.cancel
}

// Done returns a channel closed when the signal is cancelled. A nil signal
// never cancels.
func (s *Signal) Done() <-chan struct{} {
	if s == nil {
		return nil
	}
	return s.done
}

func (s *Signal) Cancelled() bool {
	if s == nil {
		return false
	}
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Signal) Reason() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func (s *Signal) cancel(reason error) {
	s.mu.Lock()
	if s.reason != nil {
		s.mu.Unlock()
		return
	}
	if reason == nil {
		reason = errAborted
	}
	s.reason = reason
	t := s.timer
	s.timer = nil
	close(s.done)
	s.mu.Unlock()
	if t != nil {
		t.Stop()
	}
}

// WithDeadline derives a signal that cancels on the earliest of parent
// cancellation and the given timeout. A non-positive timeout returns the
// parent unchanged with no allocation. The deadline cancels with a
// Timeout-coded "DeadlineExceeded" reason; parent cancellation propagates the
// parent's reason. The timer is stopped and the propagation goroutine
// released on whichever terminal transition occurs first.
func WithDeadline(parent *Signal, timeout time.Duration) *Signal {
	if timeout <= 0 {
		return parent
	}
	s, cancel := NewSignal()
	if parent.Cancelled() {
		cancel(parent.Reason())
		return s
	}
	s.mu.Lock()
	s.timer = time.AfterFunc(timeout, func() {
		cancel(TimeoutError("DeadlineExceeded"))
	})
	s.mu.Unlock()
	if parent != nil {
		go func() {
			select {
			case <-parent.Done():
				cancel(parent.Reason())
			case <-s.Done():
			}
		}()
	}
	return s
}
