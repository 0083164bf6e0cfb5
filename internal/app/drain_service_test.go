package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kzeybek/push-fanout/internal/domain"
)

func newTestDrainService(repo *mockRepo, transport *mockTransport, cfg DrainConfig) (*DrainService, *mockBroadcaster, *mockPublisher) {
	broadcaster := &mockBroadcaster{}
	publisher := &mockPublisher{}
	svc := NewDrainService(repo, transport, broadcaster, publisher, zap.NewNop(), cfg)
	return svc, broadcaster, publisher
}

func seedNotification(t *testing.T, repo *mockRepo, title string, deviceCount int) int64 {
	t.Helper()

	n, err := domain.NewNotification(title, "body of "+title)
	require.NoError(t, err)

	devices := make([]domain.Device, deviceCount)
	for i := range devices {
		devices[i] = domain.Device{
			ID:    repo.nextDeliveryID + int64(1000+i),
			Token: fmt.Sprintf("%s-token-%d", title, i),
		}
	}
	require.NoError(t, repo.CreateWithDeliveries(context.Background(), n, devices, 100))
	return n.ID
}

func TestDrainService_Run_AllSent(t *testing.T) {
	repo := newMockRepo()
	id := seedNotification(t, repo, "Hello", 3)

	svc, broadcaster, publisher := newTestDrainService(repo, &mockTransport{}, DrainConfig{PageSize: 2, Concurrency: 4})

	reports, err := svc.Run(context.Background(), 10)

	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, id, reports[0].NotificationID)
	assert.Equal(t, "Hello", reports[0].Title)
	assert.Equal(t, 3, reports[0].Sent)
	assert.Zero(t, reports[0].Failed)

	details, err := repo.Details(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), details.Sent)
	assert.Zero(t, details.InQueue)
	assert.Zero(t, details.InProgress)

	assert.Len(t, broadcaster.reports, 1)
	assert.Len(t, publisher.drainRuns, 1)
}

func TestDrainService_Run_RespectsDeviceCap(t *testing.T) {
	repo := newMockRepo()
	seedNotification(t, repo, "First", 3)
	seedNotification(t, repo, "Second", 2)

	transport := &mockTransport{}
	svc, _, _ := newTestDrainService(repo, transport, DrainConfig{PageSize: 10, Concurrency: 1})

	reports, err := svc.Run(context.Background(), 2)

	require.NoError(t, err)
	assert.Equal(t, 2, transport.sentCount())

	// Oldest records first, regardless of notification.
	assert.Equal(t, []string{"First-token-0", "First-token-1"}, transport.sent)
	require.Len(t, reports, 1)
	assert.Equal(t, 2, reports[0].Sent)

	counts := repo.statusCounts()
	assert.Equal(t, 3, counts[domain.StatusQueued])
	assert.Equal(t, 2, counts[domain.StatusSent])
}

func TestDrainService_Run_SequentialDrainsCoverQueueExactlyOnce(t *testing.T) {
	repo := newMockRepo()
	seedNotification(t, repo, "Hello", 3)

	transport := &mockTransport{}
	svc, _, _ := newTestDrainService(repo, transport, DrainConfig{PageSize: 2, Concurrency: 2})

	first, err := svc.Run(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 3, first[0].Sent)

	second, err := svc.Run(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, second)

	assert.Equal(t, 3, transport.sentCount(), "no record dispatched twice")
}

func TestDrainService_Run_TransportOutcomeMapping(t *testing.T) {
	repo := newMockRepo()
	id := seedNotification(t, repo, "Hello", 3)

	transport := &mockTransport{sendFn: func(token string) error {
		if token == "Hello-token-1" {
			return errors.New("device unreachable")
		}
		return nil
	}}
	svc, _, _ := newTestDrainService(repo, transport, DrainConfig{PageSize: 10, Concurrency: 2})

	reports, err := svc.Run(context.Background(), 10)

	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 2, reports[0].Sent)
	assert.Equal(t, 1, reports[0].Failed)

	details, err := repo.Details(context.Background(), id)
	require.NoError(t, err)
	assert.Zero(t, details.InQueue, "no record left queued after dispatch")
	assert.Equal(t, int64(2), details.Sent)
	assert.Equal(t, int64(1), details.Failed)
}

func TestDrainService_Run_TransportPanicMapsToFailed(t *testing.T) {
	repo := newMockRepo()
	id := seedNotification(t, repo, "Hello", 2)

	transport := &mockTransport{sendFn: func(token string) error {
		if token == "Hello-token-0" {
			panic("gateway client bug")
		}
		return nil
	}}
	svc, _, _ := newTestDrainService(repo, transport, DrainConfig{PageSize: 10, Concurrency: 1})

	reports, err := svc.Run(context.Background(), 10)

	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 1, reports[0].Sent)
	assert.Equal(t, 1, reports[0].Failed)

	details, err := repo.Details(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), details.Failed)
}

func TestDrainService_Run_ZeroCap(t *testing.T) {
	repo := newMockRepo()
	seedNotification(t, repo, "Hello", 3)

	svc, _, _ := newTestDrainService(repo, &mockTransport{}, DrainConfig{PageSize: 10, Concurrency: 2})

	reports, err := svc.Run(context.Background(), 0)

	require.NoError(t, err)
	assert.Empty(t, reports)
	assert.Equal(t, 3, repo.statusCounts()[domain.StatusQueued])
}

func TestDrainService_Run_EmptyQueue(t *testing.T) {
	repo := newMockRepo()
	svc, _, publisher := newTestDrainService(repo, &mockTransport{}, DrainConfig{PageSize: 10, Concurrency: 2})

	reports, err := svc.Run(context.Background(), 10)

	require.NoError(t, err)
	assert.Empty(t, reports)
	assert.Empty(t, publisher.drainRuns)
}

func TestDrainService_Run_ClaimFailureAbortsRemainingPagesOnly(t *testing.T) {
	repo := newMockRepo()
	seedNotification(t, repo, "Hello", 5)
	repo.claimErr = errors.New("connection lost")
	repo.claimErrCall = 2

	svc, _, _ := newTestDrainService(repo, &mockTransport{}, DrainConfig{PageSize: 2, Concurrency: 1})

	reports, err := svc.Run(context.Background(), 10)

	require.Error(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 2, reports[0].Sent, "first page outcomes are kept")

	counts := repo.statusCounts()
	assert.Equal(t, 2, counts[domain.StatusSent])
	assert.Equal(t, 3, counts[domain.StatusQueued])
}

func TestDrainService_Run_StatusWriteFailureDoesNotAbortRun(t *testing.T) {
	repo := newMockRepo()
	seedNotification(t, repo, "Hello", 3)
	repo.markErr = errors.New("write timeout")

	svc, _, _ := newTestDrainService(repo, &mockTransport{}, DrainConfig{PageSize: 10, Concurrency: 2})

	reports, err := svc.Run(context.Background(), 10)

	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 3, reports[0].Sent)
}

func TestDrainService_Run_CancellationLeavesStateConsistent(t *testing.T) {
	repo := newMockRepo()
	seedNotification(t, repo, "Hello", 4)

	ctx, cancel := context.WithCancel(context.Background())
	transport := &mockTransport{sendFn: func(token string) error {
		if token == "Hello-token-0" {
			cancel()
		}
		return nil
	}}
	svc, _, _ := newTestDrainService(repo, transport, DrainConfig{PageSize: 2, Concurrency: 1})

	reports, err := svc.Run(ctx, 10)

	require.ErrorIs(t, err, context.Canceled)

	// The record in flight when the run stopped keeps its terminal status,
	// its claimed page-mate stays in_progress for the sweeper, and the
	// second page is never claimed.
	counts := repo.statusCounts()
	assert.Equal(t, 1, counts[domain.StatusSent])
	assert.Equal(t, 1, counts[domain.StatusInProgress])
	assert.Equal(t, 2, counts[domain.StatusQueued])
	assert.Zero(t, counts[domain.StatusFailed], "cancellation must not invent failures")

	require.Len(t, reports, 1)
	assert.Equal(t, 1, reports[0].Sent)
	assert.Zero(t, reports[0].Failed)
}

func TestDrainService_Run_ConcurrentRunsMarkEachRecordOnce(t *testing.T) {
	repo := newMockRepo()
	seedNotification(t, repo, "Hello", 6)

	transport := &mockTransport{}
	svc, _, _ := newTestDrainService(repo, transport, DrainConfig{PageSize: 2, Concurrency: 2})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Run(context.Background(), 10)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 6, transport.sentCount(), "overlapping runs never dispatch a record twice")
	assert.Equal(t, 6, repo.statusCounts()[domain.StatusSent])

	marked := make(map[int64]int)
	for _, id := range repo.markedIDs {
		marked[id]++
	}
	require.Len(t, marked, 6)
	for id, n := range marked {
		assert.Equal(t, 1, n, "delivery %d marked exactly once", id)
	}
}

func TestDrainService_Run_GroupsByNotification(t *testing.T) {
	repo := newMockRepo()
	firstID := seedNotification(t, repo, "First", 2)
	secondID := seedNotification(t, repo, "Second", 3)
	seedNotification(t, repo, "Untouched", 2)

	svc, _, _ := newTestDrainService(repo, &mockTransport{}, DrainConfig{PageSize: 3, Concurrency: 1})

	reports, err := svc.Run(context.Background(), 5)

	require.NoError(t, err)
	require.Len(t, reports, 2, "notifications with no candidates this run are absent")
	assert.Equal(t, firstID, reports[0].NotificationID)
	assert.Equal(t, 2, reports[0].Sent)
	assert.Equal(t, secondID, reports[1].NotificationID)
	assert.Equal(t, 3, reports[1].Sent)
}
