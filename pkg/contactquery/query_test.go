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

package contactquery_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mau.fi/communicator/pkg/contactquery"
)

func TestQueryCompletes(t *testing.T) {
	q := contactquery.New(context.Background(), "test")
	var statuses []contactquery.Status
	q.AddEventHandler(func(evt contactquery.Event) {
		if evt.Type == contactquery.EventStatusChanged {
			statuses = append(statuses, evt.Status)
		}
	})
	assert.Equal(t, contactquery.StatusRunning, q.Status())
	assert.Equal(t, 1, q.IncrementResultCount())
	assert.Equal(t, 2, q.IncrementResultCount())

	q.Finish()
	q.Finish()
	status, err := q.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, contactquery.StatusCompleted, status)
	assert.Equal(t, 2, q.ResultCount())
	assert.Equal(t, []contactquery.Status{contactquery.StatusCompleted}, statuses)
	assert.True(t, q.Canceled(), "the context is released after finishing")
}

func TestQueryCanceled(t *testing.T) {
	q := contactquery.New(context.Background(), "test")
	q.Cancel()
	assert.True(t, q.Canceled())
	q.Finish()
	assert.Equal(t, contactquery.StatusCanceled, q.Status())
}

func TestQueryParentContextCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := contactquery.New(ctx, "test")
	cancel()
	q.Finish()
	assert.Equal(t, contactquery.StatusCanceled, q.Status())
}

func TestQueryWaitTimeout(t *testing.T) {
	q := contactquery.New(context.Background(), "test")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	status, err := q.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, contactquery.StatusRunning, status)
}
