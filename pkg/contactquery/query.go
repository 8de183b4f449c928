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

// Package contactquery implements cancellable asynchronous filter passes over
// a contact list.
package contactquery

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"go.mau.fi/communicator/pkg/contactlist"
)

type Status int32

const (
	StatusRunning Status = iota
	StatusCompleted
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

type EventType int

const (
	EventResultAvailable EventType = iota
	EventStatusChanged
)

type Event struct {
	Query  *Query
	Type   EventType
	Result contactlist.MetaContact
	Status Status
}

type EventHandler func(evt Event)

// Query is one pass of matching a contact list against a filter.
type Query struct {
	ID      uuid.UUID
	Name    string
	Started time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	status      atomic.Int32
	resultCount atomic.Int64
	finishOnce  sync.Once

	handlersLock sync.RWMutex
	handlers     []EventHandler
}

// New creates a running query. Canceling the parent context cancels the query.
func New(ctx context.Context, name string) *Query {
	q := &Query{
		ID:      uuid.New(),
		Name:    name,
		Started: time.Now(),
		done:    make(chan struct{}),
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	return q
}

// Context is canceled when the query is canceled.
func (q *Query) Context() context.Context {
	return q.ctx
}

func (q *Query) Cancel() {
	q.cancel()
}

// Canceled is polled by workers between traversal steps.
func (q *Query) Canceled() bool {
	return q.ctx.Err() != nil
}

func (q *Query) Status() Status {
	return Status(q.status.Load())
}

func (q *Query) ResultCount() int {
	return int(q.resultCount.Load())
}

// IncrementResultCount registers one more match and returns the new count.
func (q *Query) IncrementResultCount() int {
	return int(q.resultCount.Add(1))
}

func (q *Query) AddEventHandler(handler EventHandler) {
	q.handlersLock.Lock()
	q.handlers = append(q.handlers, handler)
	q.handlersLock.Unlock()
}

func (q *Query) fire(evt Event) {
	q.handlersLock.RLock()
	handlers := q.handlers
	q.handlersLock.RUnlock()
	for _, handler := range handlers {
		handler(evt)
	}
}

// FireResultAvailable reports a match that wasn't inserted directly.
func (q *Query) FireResultAvailable(mc contactlist.MetaContact) {
	q.fire(Event{Query: q, Type: EventResultAvailable, Result: mc, Status: q.Status()})
}

// Finish marks the query as completed, or canceled if it was canceled before
// the traversal returned. Only the first call has any effect.
func (q *Query) Finish() {
	q.finishOnce.Do(func() {
		status := StatusCompleted
		if q.Canceled() {
			status = StatusCanceled
		}
		q.status.Store(int32(status))
		q.cancel()
		q.fire(Event{Query: q, Type: EventStatusChanged, Status: status})
		close(q.done)
	})
}

func (q *Query) Done() <-chan struct{} {
	return q.done
}

// Wait blocks until the query finishes or the context is done.
func (q *Query) Wait(ctx context.Context) (Status, error) {
	select {
	case <-q.done:
		return q.Status(), nil
	case <-ctx.Done():
		return q.Status(), ctx.Err()
	}
}
