package domain

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var pagesMerged = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "allmyposts_feed_pages_fetched",
	Help: "Number of feed pages fetched into sessions",
}, []string{"platform"})

var pagesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "allmyposts_feed_pages_failed",
	Help: "Number of feed page fetches that failed",
}, []string{"platform"})

var crosspostGroups = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "allmyposts_crosspost_groups",
	Help: "Crosspost groups in the most recently computed view",
})

var affinityBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "allmyposts_affinity_builds",
	Help: "Affinity index builds by platform and outcome",
}, []string{"platform", "outcome"})

var searchEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "allmyposts_search_events",
	Help: "Search stream events emitted by type",
}, []string{"type"})
