package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/repository"
	"SignalDesk/internal/services/explainer"
	"SignalDesk/internal/usecase"
	xhttp "SignalDesk/pkg/http"
	"SignalDesk/pkg/logger"
	"SignalDesk/pkg/queue"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

type failingWorker struct{}

func (failingWorker) Start(context.Context) error { return errors.New("redis ping: refused") }
func (failingWorker) Stop(context.Context) error  { return nil }

func newTestApp(t *testing.T, jobs Worker, opts ...Option) (*App, *usecase.Scheduler) {
	t.Helper()
	holder, err := usecase.NewConfigHolder(models.DefaultRuntimeConfig(), repository.NewMemoryConfigStore(), nil)
	require.NoError(t, err)

	events := repository.NewMemoryEventStore(nil)
	snapshots := repository.NewMemorySnapshotStore()
	eval := usecase.NewEvaluator(events, snapshots, holder, nil, nil)
	tier := usecase.NewExplainTier(repository.NewMemoryLocker(nil), snapshots,
		explainer.New("template", explainer.OpenAIConfig{}, nil, nil), nil, nil, 0)
	sched := usecase.NewScheduler(eval, tier, holder, nil, nil)

	srv := xhttp.NewServer(logger.Nop(), nil,
		xhttp.WithHost("127.0.0.1"), xhttp.WithPort(0),
		xhttp.WithRegistry(prometheus.NewRegistry()))
	return New(logger.Nop(), srv, holder, sched, jobs, opts...), sched
}

func TestAppStartAndShutdown(t *testing.T) {
	closed := 0
	jobs := queue.NewLocalQueue(nil, queue.QueueConfig{Workers: 1}, 8)
	app, sched := newTestApp(t, jobs, WithClosers(closerFunc(func() error { closed++; return nil })))

	require.NoError(t, app.Start(context.Background()))
	assert.True(t, sched.Status().Running)
	assert.Eventually(t, func() bool { return sched.Status().RulesTicks > 0 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, app.Shutdown(ctx))
	assert.False(t, sched.Status().Running)
	assert.Equal(t, 1, closed)
}

func TestAppStartFailsWhenQueueCannotStart(t *testing.T) {
	app, sched := newTestApp(t, failingWorker{})
	err := app.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job queue")
	assert.False(t, sched.Status().Running)
}
