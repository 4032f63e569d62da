package bluesky

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "allmyposts_bluesky_requests",
	Help: "XRPC requests by method and response status",
}, []string{"nsid", "status"})
