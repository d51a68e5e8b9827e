package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Service struct {
	reg *prometheus.Registry

	msgCount    *prometheus.CounterVec
	msgDuration *prometheus.HistogramVec

	associations        prometheus.Gauge
	associationDuration prometheus.Histogram
	enbs                prometheus.Gauge
	authVectors         *prometheus.CounterVec
}

// NewPrometheusService registers the MME collectors on a private registry.
func NewPrometheusService() *Service {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	msgCount := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "s1ap_messages_total",
		Help: "Counter for incoming and outgoing S1AP messages",
	}, []string{"procedure", "direction", "result"})

	msgDuration := promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "s1ap_messages_duration_seconds",
		Help:    "Time spent handling an S1AP message",
		Buckets: []float64{1e-6, 1e-5, 1e-4, 1e-3, 1e-2, 1e-1, 1},
	}, []string{"procedure", "direction"})

	associations := promauto.With(reg).NewGauge(prometheus.GaugeOpts{
		Name: "s1ap_associations",
		Help: "Number of open eNodeB associations",
	})

	associationDuration := promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
		Name: "s1ap_association_duration_seconds",
		Help: "The lifetime of an eNodeB association",
		Buckets: []float64{
			1,
			1 * time.Minute.Seconds(),
			10 * time.Minute.Seconds(),
			1 * time.Hour.Seconds(),
			24 * time.Hour.Seconds(),
		},
	})

	enbs := promauto.With(reg).NewGauge(prometheus.GaugeOpts{
		Name: "mme_enbs",
		Help: "Number of eNodeBs in the session table",
	})

	authVectors := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "hss_auth_vectors_total",
		Help: "Authentication vector lookups by result",
	}, []string{"result"})

	return &Service{
		reg: reg,

		msgCount:    msgCount,
		msgDuration: msgDuration,

		associations:        associations,
		associationDuration: associationDuration,
		enbs:                enbs,
		authVectors:         authVectors,
	}
}

func (s *Service) Registry() *prometheus.Registry {
	return s.reg
}

func (s *Service) SaveMessages(m *Message) {
	s.msgCount.WithLabelValues(m.Procedure, m.Direction, m.Result).Inc()
	s.msgDuration.WithLabelValues(m.Procedure, m.Direction).Observe(m.Duration)
}

func (s *Service) SaveAssociations(a *Association) {
	if a.Duration == 0 {
		s.associations.Inc()
		return
	}

	s.associations.Dec()
	s.associationDuration.Observe(a.Duration)
}

func (s *Service) SaveAuthVector(result string) {
	s.authVectors.WithLabelValues(result).Inc()
}

func (s *Service) SetENBs(n int) {
	s.enbs.Set(float64(n))
}
