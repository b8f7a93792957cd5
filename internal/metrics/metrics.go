package metrics

type Counter interface {
	Inc()
}

type Gauge interface {
	Set(float64)
}

type Metrics struct {
	PollsSucceeded Counter
	PollsFailed    Counter
	CacheLoads     Counter
	Quotes         Counter
	FeedClients    Counter
	AlertsFailed   Counter
	TimescaleDrops Counter
	MarketsTracked Gauge
}

type noopCounter struct{}

func (noopCounter) Inc() {}

type noopGauge struct{}

func (noopGauge) Set(float64) {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		PollsSucceeded: n,
		PollsFailed:    n,
		CacheLoads:     n,
		Quotes:         n,
		FeedClients:    n,
		AlertsFailed:   n,
		TimescaleDrops: n,
		MarketsTracked: noopGauge{},
	}
}
