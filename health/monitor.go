package health

import (
	"encoding/json"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/pbosetti/mads-plugin/plugin"
)

// Monitor tracks the latest status of named stages in a thread-safe manner
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
}

// NewMonitor creates an empty monitor
func NewMonitor() *Monitor {
	return &Monitor{statuses: make(map[string]Status)}
}

// Update stores status under name
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	m.statuses[name] = status
}

// Record stores the outcome of a stage call and updates its counters
func (m *Monitor) Record(name string, result plugin.ReturnType, lastError string) {
	status := FromResult(name, result, lastError)

	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := &Metrics{}
	if prev, ok := m.statuses[name]; ok && prev.Metrics != nil {
		*metrics = *prev.Metrics
	}
	metrics.Calls++
	if result.Failed() {
		metrics.ErrorCount++
	}
	metrics.LastResult = result.String()
	metrics.LastActivity = status.Timestamp
	status.Metrics = metrics
	m.statuses[name] = status
}

// Get retrieves the status stored under name
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status, ok := m.statuses[name]
	return status, ok
}

// Remove forgets name
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.statuses, name)
}

// Names returns the tracked names, sorted
func (m *Monitor) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Sorted(maps.Keys(m.statuses))
}

// AggregateHealth aggregates every tracked status, in name order
func (m *Monitor) AggregateHealth(system string) Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	subs := make([]Status, 0, len(m.statuses))
	for _, name := range slices.Sorted(maps.Keys(m.statuses)) {
		subs = append(subs, m.statuses[name])
	}
	return Aggregate(system, subs)
}

// Handler serves the aggregate status as JSON. An unhealthy aggregate
// answers 503.
func (m *Monitor) Handler(system string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status := m.AggregateHealth(system)
		w.Header().Set("Content-Type", "application/json")
		if status.IsUnhealthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	})
}
