package httpserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "allmyposts_http_requests",
	Help: "Number of HTTP requests served by route pattern and status",
}, []string{"pattern", "status"})
