package mastodon

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "allmyposts_mastodon_requests",
	Help: "REST requests by instance and response status",
}, []string{"instance", "status"})
