// Package metrics wraps a single prometheus registry shared by every
// subsystem, exposed over HTTP at /metrics in text format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the process-wide metric registry. It is initialised once at
// startup and torn down only at process exit.
type Registry struct {
	reg *prometheus.Registry

	TWAddTotal *prometheus.CounterVec
	TWTypeMismatchTotal prometheus.Counter
	TWDropOffsetTotal prometheus.Counter
	TWEntriesGauge *prometheus.GaugeVec
	TWEvictionsTotal *prometheus.CounterVec

	BLWLAddTotal *prometheus.CounterVec
	BLWLDeleteTotal *prometheus.CounterVec
	BLWLExpiredTotal *prometheus.CounterVec
	BLWLEntriesGauge *prometheus.GaugeVec

	WebhookQueueDepth prometheus.Gauge
	WebhookQueueFullTotal prometheus.Counter
	WebhookDeliveredTotal prometheus.Counter
	WebhookFailedTotal prometheus.Counter

	ReplicationSentTotal prometheus.Counter
	ReplicationRecvTotal prometheus.Counter
	ReplicationDroppedTotal *prometheus.CounterVec
}

// New builds and registers the full metric set.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		TWAddTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loginguard_tw_add_total",
			Help: "Number of TW store add/sub operations by store name.",
		}, []string{"store"}),
		TWTypeMismatchTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loginguard_tw_type_mismatch_total",
			Help: "Number of TW writes dropped due to field type mismatch.",
		}),
		TWDropOffsetTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loginguard_tw_drop_offset_total",
			Help: "Number of TW writes dropped due to an out-of-range bucket offset.",
		}),
		TWEntriesGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "loginguard_tw_entries",
			Help: "Current number of live entries in a TW store.",
		}, []string{"store"}),
		TWEvictionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loginguard_tw_evictions_total",
			Help: "Number of entries evicted from a TW store by reason.",
		}, []string{"store", "reason"}),
		BLWLAddTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loginguard_blwl_add_total",
			Help: "Number of BL/WL add operations by kind.",
		}, []string{"kind"}),
		BLWLDeleteTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loginguard_blwl_delete_total",
			Help: "Number of BL/WL delete operations by kind.",
		}, []string{"kind"}),
		BLWLExpiredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loginguard_blwl_expired_total",
			Help: "Number of BL/WL entries naturally expired by kind.",
		}, []string{"kind"}),
		BLWLEntriesGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "loginguard_blwl_entries",
			Help: "Current number of live BL/WL entries by kind.",
		}, []string{"kind"}),
		WebhookQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loginguard_webhook_queue_depth",
			Help: "Current depth of the webhook dispatch queue.",
		}),
		WebhookQueueFullTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loginguard_webhook_queue_full_total",
			Help: "Number of webhook deliveries dropped because the queue was full.",
		}),
		WebhookDeliveredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loginguard_webhook_delivered_total",
			Help: "Number of webhook deliveries that received a 2xx response.",
		}),
		WebhookFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loginguard_webhook_failed_total",
			Help: "Number of webhook deliveries that failed.",
		}),
		ReplicationSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loginguard_replication_sent_total",
			Help: "Number of replication datagrams sent to peers.",
		}),
		ReplicationRecvTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loginguard_replication_recv_total",
			Help: "Number of replication datagrams received from peers.",
		}),
		ReplicationDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loginguard_replication_dropped_total",
			Help: "Number of inbound replication datagrams dropped, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		r.TWAddTotal, r.TWTypeMismatchTotal, r.TWDropOffsetTotal, r.TWEntriesGauge, r.TWEvictionsTotal,
		r.BLWLAddTotal, r.BLWLDeleteTotal, r.BLWLExpiredTotal, r.BLWLEntriesGauge,
		r.WebhookQueueDepth, r.WebhookQueueFullTotal, r.WebhookDeliveredTotal, r.WebhookFailedTotal,
		r.ReplicationSentTotal, r.ReplicationRecvTotal, r.ReplicationDroppedTotal,
	)
	return r
}

// Handler returns the HTTP handler serving the Prometheus text exposition
// format for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
