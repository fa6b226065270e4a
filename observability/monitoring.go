package observability

import (
	"chat-relay/domain"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// HealthStats aggregates everything /healthz reports.
type HealthStats struct {
	StoreMode        string               `json:"storeMode"`
	StoreReachable   bool                 `json:"storeReachable"`
	StoreError       string               `json:"storeError,omitempty"`
	LastCheck        time.Time            `json:"lastCheck"`
	Connections      int                  `json:"connections"`
	Joined           int                  `json:"joined"`
	MessagesRouted   uint64               `json:"messagesRouted"`
	StoreFailures    uint64               `json:"storeFailures"`
	DeliveryFailures uint64               `json:"deliveryFailures"`
	JoinRejected     uint64               `json:"joinRejected"`
	AllocMemMb       uint64               `json:"allocMemMb"`
	NumGC            uint32               `json:"numGc"`
	Process          *domain.ProcessStats `json:"process,omitempty"`
}

// Monitor keeps counters updated by the coordinator and the latest sample
// taken by the health monitoring worker. A nil *Monitor is a no-op.
type Monitor struct {
	mu     sync.RWMutex
	latest HealthStats

	messagesRouted   uint64
	storeFailures    uint64
	deliveryFailures uint64
	joinRejected     uint64
}

func NewMonitor(storeMode string) *Monitor {
	return &Monitor{latest: HealthStats{StoreMode: storeMode, StoreReachable: true}}
}

func (m *Monitor) IncrMessagesRouted() {
	if m != nil {
		atomic.AddUint64(&m.messagesRouted, 1)
	}
}

func (m *Monitor) IncrStoreFailures() {
	if m != nil {
		atomic.AddUint64(&m.storeFailures, 1)
	}
}

func (m *Monitor) IncrDeliveryFailures() {
	if m != nil {
		atomic.AddUint64(&m.deliveryFailures, 1)
	}
}

func (m *Monitor) IncrJoinRejected() {
	if m != nil {
		atomic.AddUint64(&m.joinRejected, 1)
	}
}

// RecordCheck stores the outcome of one health tick.
func (m *Monitor) RecordCheck(storeErr error, connections, joined int, process *domain.ProcessStats) {
	if m == nil {
		return
	}
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest.StoreReachable = storeErr == nil
	m.latest.StoreError = ""
	if storeErr != nil {
		m.latest.StoreError = storeErr.Error()
	}
	m.latest.LastCheck = time.Now().UTC()
	m.latest.Connections = connections
	m.latest.Joined = joined
	m.latest.AllocMemMb = mem.Alloc / 1024 / 1024
	m.latest.NumGC = mem.NumGC
	if process != nil {
		m.latest.Process = process
	}
}

func (m *Monitor) GetLatest() HealthStats {
	if m == nil {
		return HealthStats{}
	}
	m.mu.RLock()
	stats := m.latest
	m.mu.RUnlock()

	stats.MessagesRouted = atomic.LoadUint64(&m.messagesRouted)
	stats.StoreFailures = atomic.LoadUint64(&m.storeFailures)
	stats.DeliveryFailures = atomic.LoadUint64(&m.deliveryFailures)
	stats.JoinRejected = atomic.LoadUint64(&m.joinRejected)
	return stats
}
