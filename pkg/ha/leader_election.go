package ha

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"
)

// Singleton is a loop that must run on at most one replica. It returns when
// ctx is cancelled.
type Singleton struct {
	Name string
	Run  func(ctx context.Context)
}

// LeaderElector runs singleton loops while this replica holds the Lease.
type LeaderElector struct {
	config  *HAConfig
	client  kubernetes.Interface
	logger  *slog.Logger
	loops   []Singleton
	onStart func(ctx context.Context)
	onStop  func()

	leading atomic.Bool
}

// NewLeaderElector creates a LeaderElector for cfg.Identity.
func NewLeaderElector(cfg *HAConfig, client kubernetes.Interface, logger *slog.Logger) *LeaderElector {
	if logger == nil {
		logger = slog.Default()
	}
	return &LeaderElector{config: cfg, client: client, logger: logger}
}

// Add registers a loop to run while leading. Must be called before Run.
func (le *LeaderElector) Add(s Singleton) {
	le.loops = append(le.loops, s)
}

// OnStartLeading registers a callback invoked after the loops are started.
func (le *LeaderElector) OnStartLeading(fn func(ctx context.Context)) {
	le.onStart = fn
}

// OnStopLeading registers a callback invoked when leadership is lost.
func (le *LeaderElector) OnStopLeading(fn func()) {
	le.onStop = fn
}

// IsLeader reports whether this replica is running the singleton loops.
func (le *LeaderElector) IsLeader() bool {
	return le.leading.Load()
}

// Run blocks until ctx is cancelled. With leader election disabled the
// loops run immediately; otherwise they run while the Lease is held and
// are stopped when it is lost.
func (le *LeaderElector) Run(ctx context.Context) {
	if !le.config.LeaderElectionEnabled || le.client == nil {
		le.lead(ctx)
		le.leading.Store(false)
		return
	}

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      le.config.LeaseName,
			Namespace: le.config.LeaseNamespace,
		},
		Client:     le.client.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{Identity: le.config.Identity},
	}

	le.logger.Info("starting leader election",
		"identity", le.config.Identity,
		"lease", le.config.LeaseName,
		"namespace", le.config.LeaseNamespace,
	)

	leaderelection.RunOrDie(ctx, leaderelection.LeaderElectionConfig{
		Lock:            lock,
		LeaseDuration:   le.config.LeaseDuration,
		RenewDeadline:   le.config.RenewDeadline,
		RetryPeriod:     le.config.RetryPeriod,
		ReleaseOnCancel: true,
		Callbacks: leaderelection.LeaderCallbacks{
			OnStartedLeading: func(ctx context.Context) {
				le.logger.Info("elected as leader", "identity", le.config.Identity)
				le.lead(ctx)
			},
			OnStoppedLeading: func() {
				le.leading.Store(false)
				le.logger.Info("lost leadership", "identity", le.config.Identity)
				if le.onStop != nil {
					le.onStop()
				}
			},
			OnNewLeader: func(identity string) {
				if identity != le.config.Identity {
					le.logger.Info("new leader elected", "leader", identity)
				}
			},
		},
	})
}

// lead runs every loop and blocks until ctx is done and they have returned.
func (le *LeaderElector) lead(ctx context.Context) {
	le.leading.Store(true)

	var wg sync.WaitGroup
	for _, s := range le.loops {
		wg.Add(1)
		go func(s Singleton) {
			defer wg.Done()
			le.logger.Info("starting singleton loop", "loop", s.Name)
			s.Run(ctx)
			le.logger.Info("singleton loop stopped", "loop", s.Name)
		}(s)
	}
	if le.onStart != nil {
		le.onStart(ctx)
	}
	<-ctx.Done()
	wg.Wait()
}
