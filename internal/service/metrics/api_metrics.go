package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
)

var (
    once sync.Once

    APIErrors = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "insider",
            Subsystem: "api",
            Name:      "errors_total",
            Help:      "Domain errors returned by API endpoint and error code",
        },
        []string{"endpoint", "code"},
    )

    GenerateRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "insider",
            Subsystem: "api",
            Name:      "generate_requests_total",
            Help:      "On-demand generation requests by outcome",
        },
        []string{"mode"},
    )
)

func Register() {
    once.Do(func() {
        prometheus.MustRegister(APIErrors, GenerateRequests)
    })
}
