package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type promCollectors struct {
	transformations *prometheus.CounterVec
	blocks          *prometheus.CounterVec
	latency         prometheus.Histogram
}

// WithPrometheus registers morphing collectors on the given registerer and
// mirrors every recorded event into them.
func WithPrometheus(reg prometheus.Registerer) Option {
	return func(r *Recorder) {
		p := &promCollectors{
			transformations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "morphcore",
				Name:      "transformations_total",
				Help:      "Accepted morph switches by origin, target and trigger layer.",
			}, []string{"from", "to", "trigger"}),
			blocks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "morphcore",
				Name:      "anti_loop_blocks_total",
				Help:      "Switches rejected by the anti-loop guard, by target morph.",
			}, []string{"morph"}),
			latency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "morphcore",
				Name:      "transformation_duration_seconds",
				Help:      "Decision-to-commit latency of accepted switches.",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
			}),
		}
		reg.MustRegister(p.transformations, p.blocks, p.latency)
		r.prom = p
	}
}

func (p *promCollectors) observeTransformation(rec Transformation) {
	p.transformations.WithLabelValues(rec.FromMorph, rec.ToMorph, rec.TriggerType).Inc()
	p.latency.Observe(rec.TimeMs / 1000)
}

func (p *promCollectors) observeBlock(morph string) {
	p.blocks.WithLabelValues(morph).Inc()
}
