package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "loop_dash"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type promGauge struct {
	gauge prometheus.Gauge
}

func (p promGauge) Set(v float64) {
	p.gauge.Set(v)
}

type Prometheus struct {
	Metrics *Metrics

	registry       *prometheus.Registry
	pollsSucceeded prometheus.Counter
	pollsFailed    prometheus.Counter
	cacheLoads     prometheus.Counter
	quotes         prometheus.Counter
	feedClients    prometheus.Counter
	alertsFailed   prometheus.Counter
	timescaleDrops prometheus.Counter
	marketsTracked prometheus.Gauge
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      name,
		Help:      help,
	})
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	pollsSucceeded := newCounter("market_polls_succeeded_total", "Total number of successful market polls.")
	pollsFailed := newCounter("market_polls_failed_total", "Total number of failed market polls.")
	cacheLoads := newCounter("market_cache_loads_total", "Total number of market snapshots served from the local cache.")
	quotes := newCounter("quotes_total", "Total number of position quotes computed.")
	feedClients := newCounter("feed_clients_total", "Total number of websocket feed connections accepted.")
	alertsFailed := newCounter("alerts_failed_total", "Total number of alert delivery failures.")
	timescaleDrops := newCounter("timescale_batches_dropped_total", "Total number of market history batches dropped on a full write queue.")
	marketsTracked := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      "markets_tracked",
		Help:      "Number of markets in the current snapshot.",
	})

	registry.MustRegister(pollsSucceeded, pollsFailed, cacheLoads, quotes, feedClients, alertsFailed, timescaleDrops, marketsTracked)

	m := &Metrics{
		PollsSucceeded: promCounter{pollsSucceeded},
		PollsFailed:    promCounter{pollsFailed},
		CacheLoads:     promCounter{cacheLoads},
		Quotes:         promCounter{quotes},
		FeedClients:    promCounter{feedClients},
		AlertsFailed:   promCounter{alertsFailed},
		TimescaleDrops: promCounter{timescaleDrops},
		MarketsTracked: promGauge{marketsTracked},
	}

	return &Prometheus{
		Metrics:        m,
		registry:       registry,
		pollsSucceeded: pollsSucceeded,
		pollsFailed:    pollsFailed,
		cacheLoads:     cacheLoads,
		quotes:         quotes,
		feedClients:    feedClients,
		alertsFailed:   alertsFailed,
		timescaleDrops: timescaleDrops,
		marketsTracked: marketsTracked,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
