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

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics. All methods are no-ops on a nil
// receiver so components can be used without metrics.
type Metrics struct {
	registry *prometheus.Registry

	queryDuration      *prometheus.HistogramVec
	queryResults       prometheus.Histogram
	queryFailures      prometheus.Counter
	contactListEvents  *prometheus.CounterVec
	wrapperCount       *prometheus.GaugeVec
	notifications      *prometheus.CounterVec
	deviceChangeEvents *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,

		queryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name: "contact_filter_query_seconds",
			Help: "Time spent running contact filter queries",
		}, []string{"kind", "status"}),
		queryResults: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "contact_filter_query_results",
			Help:    "Number of matches found by a contact filter query",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
		}),
		queryFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "contact_filter_insert_failures_total",
			Help: "Number of matched contacts that couldn't be inserted into the display tree",
		}),
		contactListEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "contact_list_events_total",
			Help: "Number of contact list events handled by the display model",
		}, []string{"event_type"}),
		wrapperCount: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "display_wrappers",
			Help: "Number of live display wrappers",
		}, []string{"kind"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "device_notifications_total",
			Help: "Device change notifications by outcome",
		}, []string{"outcome"}),
		deviceChangeEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "device_change_events_total",
			Help: "Device configuration property changes received",
		}, []string{"property"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func noop(string, int) {}

// TrackQuery starts timing a filter query. The returned function must be
// called once with the final status and result count.
func (m *Metrics) TrackQuery(kind string) func(status string, results int) {
	if m == nil {
		return noop
	}
	start := time.Now()
	return func(status string, results int) {
		m.queryDuration.
			With(prometheus.Labels{"kind": kind, "status": status}).
			Observe(time.Since(start).Seconds())
		m.queryResults.Observe(float64(results))
	}
}

func (m *Metrics) TrackInsertFailure() {
	if m == nil {
		return
	}
	m.queryFailures.Inc()
}

func (m *Metrics) TrackContactListEvent(eventType string) {
	if m == nil {
		return
	}
	m.contactListEvents.With(prometheus.Labels{"event_type": eventType}).Inc()
}

func (m *Metrics) TrackWrapper(kind string, delta float64) {
	if m == nil {
		return
	}
	m.wrapperCount.With(prometheus.Labels{"kind": kind}).Add(delta)
}

func (m *Metrics) TrackNotification(outcome string) {
	if m == nil {
		return
	}
	m.notifications.With(prometheus.Labels{"outcome": outcome}).Inc()
}

func (m *Metrics) TrackDeviceChange(property string) {
	if m == nil {
		return
	}
	m.deviceChangeEvents.With(prometheus.Labels{"property": property}).Inc()
}
