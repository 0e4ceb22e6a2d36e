// Package workerhost runs many room.Coordinators inside a single process,
// one Job per room, each its own isolated goroutine tree.
package workerhost

import (
	"context"
	"fmt"
	"sync"

	"github.com/lookatitude/vox-interpret/internal/syncutil"
	"github.com/lookatitude/vox-interpret/o11y"
	"github.com/lookatitude/vox-interpret/room"
)

// maxConcurrentAccepts bounds how many Jobs can be mid-construction (the
// coordinator factory, provider setup, etc.) at once, so a burst of
// simultaneous room_started webhooks can't pile up unbounded goroutines
// before any of them finish starting.
const maxConcurrentAccepts = 8

// Exit codes returned by cmd/workerhost's main, distinguishing operator
// misconfiguration from transport/provider failures the orchestrator
// layer should treat differently (e.g. retry vs. page).
const (
	ExitClean                = 0
	ExitConfigError          = 1
	ExitTransportAuthFailure = 2
	ExitProviderOutage       = 3
)

// Job describes one room this Host should run a Coordinator for.
type Job struct {
	RoomID       string
	RoomType     string
	SeedMetadata map[string]string
}

// CoordinatorFactory builds a room.Coordinator for a Job.
type CoordinatorFactory func(job Job) (*room.Coordinator, error)

// Host owns the set of room.Coordinators running in this process.
type Host struct {
	newCoordinator CoordinatorFactory
	logger         *o11y.Logger

	mu    sync.Mutex
	rooms map[string]*runningRoom
	wg    sync.WaitGroup

	acceptLimit syncutil.Semaphore
}

type runningRoom struct {
	coordinator *room.Coordinator
	cancel      context.CancelFunc
}

// New constructs a Host. factory is called once per accepted Job to build
// that room's Coordinator.
func New(factory CoordinatorFactory, logger *o11y.Logger) *Host {
	if logger == nil {
		logger = o11y.NewLogger()
	}
	return &Host{
		newCoordinator: factory,
		logger:         logger,
		rooms:          map[string]*runningRoom{},
		acceptLimit:    syncutil.NewSemaphore(maxConcurrentAccepts),
	}
}

// Accept starts a Coordinator for job, unless one is already running for
// its RoomID. Safe to call concurrently; each room runs on its own
// goroutine, isolated from every other room's failures. Construction itself
// (the coordinator factory) is bounded by acceptLimit so a burst of Jobs
// arriving at once can't all build providers/clients simultaneously.
func (h *Host) Accept(ctx context.Context, job Job) error {
	h.mu.Lock()
	if _, exists := h.rooms[job.RoomID]; exists {
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	h.acceptLimit.Acquire()
	defer h.acceptLimit.Release()

	h.mu.Lock()
	if _, exists := h.rooms[job.RoomID]; exists {
		h.mu.Unlock()
		return nil
	}

	coord, err := h.newCoordinator(job)
	if err != nil {
		h.mu.Unlock()
		return fmt.Errorf("workerhost: build coordinator for room %s: %w", job.RoomID, err)
	}

	roomCtx, cancel := context.WithCancel(ctx)
	h.rooms[job.RoomID] = &runningRoom{coordinator: coord, cancel: cancel}
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := coord.Run(roomCtx); err != nil {
			h.logger.Error(ctx, "workerhost: room coordinator exited with error", "room_id", job.RoomID, "error", err)
		}
		h.mu.Lock()
		delete(h.rooms, job.RoomID)
		h.mu.Unlock()
	}()

	return nil
}

// Retire stops the Coordinator for roomID, if running.
func (h *Host) Retire(roomID string) {
	h.mu.Lock()
	rr, ok := h.rooms[roomID]
	if ok {
		delete(h.rooms, roomID)
	}
	h.mu.Unlock()
	if ok {
		rr.cancel()
	}
}

// Submit routes an Event to the room's Coordinator, if running.
func (h *Host) Submit(roomID string, ev room.Event) bool {
	h.mu.Lock()
	rr, ok := h.rooms[roomID]
	h.mu.Unlock()
	if !ok {
		return false
	}
	rr.coordinator.Submit(ev)
	return true
}

// Coordinator returns the running Coordinator for roomID, if any — used by
// the translation-stats HTTP surface.
func (h *Host) Coordinator(roomID string) (*room.Coordinator, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rr, ok := h.rooms[roomID]
	if !ok {
		return nil, false
	}
	return rr.coordinator, true
}

// RoomCount returns the number of rooms currently running.
func (h *Host) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Shutdown cancels every running room and waits for their Coordinators to
// return.
func (h *Host) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	for roomID, rr := range h.rooms {
		rr.cancel()
		delete(h.rooms, roomID)
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
