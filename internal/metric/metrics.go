package metric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TestsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "testops_tests_running",
		Help: "The number of tests that started but did not complete yet",
	})

	ResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "testops_results_total",
		Help: "The number of results forwarded to a backend",
	}, []string{"thread", "status"})

	FaultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "testops_faults_total",
		Help: "The number of failures contained while handling test events",
	}, []string{"operation"})

	CollectedResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "testops_collector_results_total",
		Help: "The number of results received by the collector",
	}, []string{"status"})

	CollectorRunsPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "testops_collector_runs_pruned_total",
		Help: "The number of runs deleted by the retention schedule",
	})
)
