package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fefoSelectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mfgcore_fefo_selections_total",
		Help: "FEFO lot selections by outcome",
	}, []string{"result"})

	fefoLotsTouched = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mfgcore_fefo_lots_touched",
		Help:    "Number of lots touched by a successful FEFO selection",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
	})

	batchCommitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mfgcore_batch_commits_total",
		Help: "Product batch commits by mode and outcome",
	}, []string{"mode", "result"})

	recallTracesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mfgcore_recall_traces_total",
		Help: "Recall traces by target type",
	}, []string{"target"})
)

// resultLabel превращает ошибку в метку метрики: "ok" или категорию ошибки
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := KindOf(err); kind != "" {
		return string(kind)
	}
	return string(KindStorageFailure)
}
