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
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherRunsInOrder(t *testing.T) {
	d := NewDispatcher(zerolog.Nop(), 16)
	d.Start()
	defer d.Stop()

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		d.Invoke(func() { order = append(order, i) })
	}
	require.NoError(t, d.InvokeAndWait(context.Background(), func() error { return nil }))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestDispatcherErrorsAndPanics(t *testing.T) {
	d := NewDispatcher(zerolog.Nop(), 1)
	d.Start()

	errTest := errors.New("test")
	assert.ErrorIs(t, d.InvokeAndWait(context.Background(), func() error { return errTest }), errTest)
	assert.ErrorIs(t, d.InvokeAndWait(context.Background(), func() error { panic("boom") }), ErrPanic)
	// The loop survives a panic.
	assert.NoError(t, d.InvokeAndWait(context.Background(), func() error { return nil }))

	d.Stop()
	assert.ErrorIs(t, d.InvokeAndWait(context.Background(), func() error { return nil }), ErrDispatcherStopped)
}

func TestDispatcherStopWithoutStart(t *testing.T) {
	d := NewDispatcher(zerolog.Nop(), 1)
	d.Stop()
	d.Stop()
}

func TestInvokeAndWaitCanceledContext(t *testing.T) {
	d := NewDispatcher(zerolog.Nop(), 0)
	defer d.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Not started, so the task can never be picked up.
	assert.ErrorIs(t, d.InvokeAndWait(ctx, func() error { return nil }), context.Canceled)
}
