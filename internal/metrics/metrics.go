package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	DetachedTaskFailures prometheus.Counter
	OrdersAccepted       prometheus.Counter
	OrdersRejected       prometheus.Counter
	Cancellations        *prometheus.CounterVec
	Recreations          *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		DetachedTaskFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terplink_detached_task_failures_total",
			Help: "Detached payment/notification tasks that failed and were only logged.",
		}),
		OrdersAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terplink_orders_accepted_total",
			Help: "Orders consumed by a successful interpreter accept.",
		}),
		OrdersRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terplink_orders_rejected_total",
			Help: "Interpreter rejections recorded on orders or groups.",
		}),
		Cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "terplink_appointment_cancellations_total",
			Help: "Appointment cancellations by initiating party.",
		}, []string{"actor"}),
		Recreations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "terplink_order_recreations_total",
			Help: "Order/group recreations by strategy.",
		}, []string{"strategy"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.DetachedTaskFailures,
		m.OrdersAccepted,
		m.OrdersRejected,
		m.Cancellations,
		m.Recreations,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
