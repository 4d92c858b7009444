// Package metrics registers the Prometheus instruments exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectedClients tracks live WebSocket connections.
	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "devswarm_ws_connected_clients",
		Help: "Number of currently connected WebSocket clients.",
	})

	// EvictedClients counts clients dropped for not draining their send queue.
	EvictedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "devswarm_ws_evicted_clients_total",
		Help: "WebSocket clients evicted because their send queue was full.",
	})

	// BroadcastFrames counts frames fanned out to the hub.
	BroadcastFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "devswarm_ws_broadcast_frames_total",
		Help: "Frames broadcast to WebSocket clients.",
	})

	// SnapshotPushes counts full STATE_UPDATE snapshots assembled by the bridge.
	SnapshotPushes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "devswarm_state_snapshot_pushes_total",
		Help: "Full state snapshots pushed to the hub.",
	})

	// GoalsProcessed counts queue goals by outcome.
	GoalsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devswarm_queue_goals_processed_total",
		Help: "Task queue goals processed, labeled by outcome.",
	}, []string{"outcome"})

	// DispatchCycles counts dispatcher scan iterations.
	DispatchCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "devswarm_dispatch_cycles_total",
		Help: "Dispatcher scan cycles executed.",
	})

	// TasksDispatched counts tasks handed to an agent for execution.
	TasksDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "devswarm_tasks_dispatched_total",
		Help: "Pending tasks dispatched to idle agents.",
	})
)
