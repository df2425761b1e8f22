package codec

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Metrics counts and times inference RPCs.
type Metrics struct {
	calls   *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewMetrics registers the inference collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "selfcheck",
			Subsystem: "inference",
			Name:      "calls_total",
			Help:      "Inference RPCs by method and status code.",
		}, []string{"method", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "selfcheck",
			Subsystem: "inference",
			Name:      "call_duration_seconds",
			Help:      "Inference RPC latency.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"method"}),
	}
	reg.MustRegister(m.calls, m.latency)
	return m
}

// UnaryClientInterceptor records every unary call made on the connection.
func (m *Metrics) UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		m.latency.WithLabelValues(method).Observe(time.Since(start).Seconds())
		m.calls.WithLabelValues(method, status.Code(err).String()).Inc()
		return err
	}
}

// DialOption installs the interceptor.
func (m *Metrics) DialOption() grpc.DialOption {
	return grpc.WithChainUnaryInterceptor(m.UnaryClientInterceptor())
}
