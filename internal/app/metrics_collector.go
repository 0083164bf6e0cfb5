package app

import (
	"context"

	"github.com/kzeybek/push-fanout/internal/port"
)

type MetricsCollector struct {
	repo port.NotificationRepository
}

func NewMetricsCollector(repo port.NotificationRepository) *MetricsCollector {
	return &MetricsCollector{repo: repo}
}

type MetricsSnapshot struct {
	InQueue     int64   `json:"in_queue"`
	InProgress  int64   `json:"in_progress"`
	Sent        int64   `json:"sent"`
	Failed      int64   `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

func (m *MetricsCollector) Snapshot(ctx context.Context) MetricsSnapshot {
	totals, err := m.repo.StatusTotals(ctx)
	if err != nil {
		return MetricsSnapshot{}
	}

	snapshot := MetricsSnapshot{
		InQueue:    totals.InQueue,
		InProgress: totals.InProgress,
		Sent:       totals.Sent,
		Failed:     totals.Failed,
	}

	if finished := totals.Sent + totals.Failed; finished > 0 {
		snapshot.SuccessRate = float64(totals.Sent) / float64(finished) * 100
	}
	return snapshot
}
