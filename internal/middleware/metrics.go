package middleware

import (
	"context"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsInterceptor records a latency histogram per procedure and result
// code. Install it outermost so rejected calls are counted too.
func MetricsInterceptor(registerer prometheus.Registerer) connect.UnaryInterceptorFunc {
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sharedledger_rpc_duration_seconds",
		Help:    "Duration of ledger RPCs by procedure and result code.",
		Buckets: prometheus.DefBuckets,
	}, []string{"procedure", "code"})
	if registerer != nil {
		registerer.MustRegister(duration)
	}

	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			code := "ok"
			if err != nil {
				code = connect.CodeOf(err).String()
			}
			duration.WithLabelValues(req.Spec().Procedure, code).Observe(time.Since(start).Seconds())
			return resp, err
		}
	}
}
