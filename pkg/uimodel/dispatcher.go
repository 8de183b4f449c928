// communicator - A contact list filtering and device notification core.
// Copyright (C) 2024 communicator contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package uimodel

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"
)

var (
	ErrDispatcherStopped = errors.New("dispatcher is stopped")
	ErrPanic             = errors.New("panic in dispatched function")
)

// Dispatcher runs functions one at a time on a single goroutine. Everything
// that touches the display tree must go through it.
type Dispatcher struct {
	log   zerolog.Logger
	tasks chan func()

	stop      chan struct{}
	stopped   chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

func NewDispatcher(log zerolog.Logger, queueSize int) *Dispatcher {
	return &Dispatcher{
		log:     log,
		tasks:   make(chan func(), queueSize),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		go d.loop()
	})
}

// Stop ends the loop after the function that is currently running. Queued
// functions are dropped.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stop)
	})
	d.startOnce.Do(func() {
		close(d.stopped)
	})
	<-d.stopped
}

func (d *Dispatcher) loop() {
	defer close(d.stopped)
	for {
		select {
		case fn := <-d.tasks:
			_ = d.run(fn)
		case <-d.stop:
			return
		}
	}
}

func (d *Dispatcher) run(fn func()) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, recovered)
			d.log.Error().
				Bytes(zerolog.ErrorStackFieldName, debug.Stack()).
				Interface(zerolog.ErrorFieldName, recovered).
				Msg("Panic in dispatched function")
		}
	}()
	fn()
	return nil
}

// Invoke queues fn without waiting for it. It blocks only when the queue is
// full, so it must not be called from the dispatcher goroutine itself.
func (d *Dispatcher) Invoke(fn func()) {
	select {
	case d.tasks <- fn:
	case <-d.stop:
	}
}

// InvokeAndWait runs fn on the dispatcher goroutine and returns its error.
// Panics are converted to errors wrapping ErrPanic.
func (d *Dispatcher) InvokeAndWait(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	wrapped := func() {
		var fnErr error
		panicErr := d.run(func() {
			fnErr = fn()
		})
		if panicErr != nil {
			result <- panicErr
		} else {
			result <- fnErr
		}
	}
	select {
	case d.tasks <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-d.stop:
		return ErrDispatcherStopped
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-d.stopped:
		return ErrDispatcherStopped
	}
}
