package app

import (
	"context"
	"sync"
	"time"

	"github.com/kzeybek/push-fanout/internal/domain"
)

type mockRepo struct {
	mu             sync.Mutex
	nextNotifID    int64
	nextDeliveryID int64
	clock          time.Time
	notifications  map[int64]*domain.Notification
	deliveries     []*domain.DeliveryRecord
	tokens         map[int64]string

	failAtBatch  int
	claimErr     error
	claimErrCall int
	claimCalls   int
	markErr      error
	markedIDs    []int64
	requeueErr   error
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		notifications: make(map[int64]*domain.Notification),
		tokens:        make(map[int64]string),
		clock:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *mockRepo) tick() time.Time {
	m.clock = m.clock.Add(time.Millisecond)
	return m.clock
}

func (m *mockRepo) CreateWithDeliveries(_ context.Context, n *domain.Notification, devices []domain.Device, batchSize int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failAtBatch > 0 && len(devices) > (m.failAtBatch-1)*batchSize {
		// Simulated mid-batch failure: transaction rolls back, nothing stored.
		return errDeliveryInsert
	}

	m.nextNotifID++
	n.ID = m.nextNotifID
	stored := *n
	m.notifications[n.ID] = &stored

	for _, d := range devices {
		m.nextDeliveryID++
		m.deliveries = append(m.deliveries, &domain.DeliveryRecord{
			ID:             m.nextDeliveryID,
			NotificationID: n.ID,
			DeviceID:       d.ID,
			Status:         domain.StatusQueued,
			CreatedAt:      m.tick(),
		})
		m.tokens[d.ID] = d.Token
	}
	return nil
}

func (m *mockRepo) ClaimQueued(_ context.Context, limit int) ([]domain.DeliveryCandidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.claimCalls++
	if m.claimErr != nil && (m.claimErrCall == 0 || m.claimCalls == m.claimErrCall) {
		return nil, m.claimErr
	}

	var out []domain.DeliveryCandidate
	for _, rec := range m.deliveries {
		if len(out) >= limit {
			break
		}
		if rec.Status != domain.StatusQueued {
			continue
		}
		rec.Status = domain.StatusInProgress
		rec.UpdatedAt = m.tick()
		n := m.notifications[rec.NotificationID]
		out = append(out, domain.DeliveryCandidate{
			DeliveryID:     rec.ID,
			NotificationID: rec.NotificationID,
			Title:          n.Title,
			Message:        n.Message,
			Token:          m.tokens[rec.DeviceID],
		})
	}
	return out, nil
}

func (m *mockRepo) MarkDelivery(_ context.Context, deliveryID int64, status domain.DeliveryStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.markErr != nil {
		return m.markErr
	}
	for _, rec := range m.deliveries {
		if rec.ID == deliveryID {
			rec.Status = status
			rec.UpdatedAt = m.tick()
			m.markedIDs = append(m.markedIDs, deliveryID)
			return nil
		}
	}
	return nil
}

func (m *mockRepo) RequeueStale(_ context.Context, olderThan time.Duration, limit int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.requeueErr != nil {
		return 0, m.requeueErr
	}
	cutoff := m.clock.Add(-olderThan)
	var count int64
	for _, rec := range m.deliveries {
		if count >= int64(limit) {
			break
		}
		if rec.Status == domain.StatusInProgress && rec.UpdatedAt.Before(cutoff) {
			rec.Status = domain.StatusQueued
			rec.UpdatedAt = m.clock
			count++
		}
	}
	return count, nil
}

func (m *mockRepo) Details(_ context.Context, id int64) (*domain.NotificationDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notifications[id]
	if !ok {
		return nil, domain.ErrNotificationNotFound
	}

	details := &domain.NotificationDetails{ID: n.ID, Title: n.Title, Message: n.Message}
	var total int64
	for _, rec := range m.deliveries {
		if rec.NotificationID != id {
			continue
		}
		total++
		switch rec.Status {
		case domain.StatusQueued:
			details.InQueue++
		case domain.StatusInProgress:
			details.InProgress++
		case domain.StatusSent:
			details.Sent++
		case domain.StatusFailed:
			details.Failed++
		}
	}
	if total == 0 {
		// The aggregation joins through delivery records, so a fan-out to
		// zero devices is indistinguishable from an unknown id.
		return nil, domain.ErrNotificationNotFound
	}
	return details, nil
}

func (m *mockRepo) StatusTotals(_ context.Context) (*domain.StatusTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	totals := &domain.StatusTotals{}
	for _, rec := range m.deliveries {
		switch rec.Status {
		case domain.StatusQueued:
			totals.InQueue++
		case domain.StatusInProgress:
			totals.InProgress++
		case domain.StatusSent:
			totals.Sent++
		case domain.StatusFailed:
			totals.Failed++
		}
	}
	return totals, nil
}

func (m *mockRepo) statusCounts() map[domain.DeliveryStatus]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[domain.DeliveryStatus]int)
	for _, rec := range m.deliveries {
		counts[rec.Status]++
	}
	return counts
}

type mockDeviceDirectory struct {
	byCountry map[int64][]domain.Device
	err       error
}

func newMockDeviceDirectory() *mockDeviceDirectory {
	return &mockDeviceDirectory{byCountry: make(map[int64][]domain.Device)}
}

func (m *mockDeviceDirectory) ActiveByCountry(_ context.Context, countryID int64) ([]domain.Device, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.byCountry[countryID], nil
}

type mockTransport struct {
	mu     sync.Mutex
	sent   []string
	sendFn func(token string) error
}

func (m *mockTransport) Send(_ context.Context, _, _, token string) error {
	m.mu.Lock()
	m.sent = append(m.sent, token)
	fn := m.sendFn
	m.mu.Unlock()

	if fn != nil {
		return fn(token)
	}
	return nil
}

func (m *mockTransport) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type mockPublisher struct {
	mu         sync.Mutex
	queued     []int64
	drainRuns  [][]domain.DrainReport
	publishErr error
}

func (m *mockPublisher) NotificationQueued(_ context.Context, n *domain.Notification, _ int) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued = append(m.queued, n.ID)
	return nil
}

func (m *mockPublisher) DrainCompleted(_ context.Context, reports []domain.DrainReport) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drainRuns = append(m.drainRuns, reports)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

type mockBroadcaster struct {
	mu      sync.Mutex
	reports []domain.DrainReport
}

func (m *mockBroadcaster) Broadcast(report domain.DrainReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, report)
}
