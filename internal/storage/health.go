package storage

import (
	"sort"
	"sync"
	"time"
)

// HealthData is the last known state of a sink
type HealthData struct {
	LastCheck time.Time `json:"last_check"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Error     string    `json:"error,omitempty"`
	Stored    int       `json:"stored"`
}

// HealthManager manages sink health status in memory
type HealthManager struct {
	mu     sync.RWMutex
	health map[string]HealthData
}

// GlobalHealthManager is the singleton instance for health management
var GlobalHealthManager = NewHealthManager()

// NewHealthManager creates a new health manager
func NewHealthManager() *HealthManager {
	return &HealthManager{
		health: make(map[string]HealthData),
	}
}

// UpdateHealth records the health of a sink
func (hm *HealthManager) UpdateHealth(sink string, h HealthData) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.health[sink] = h
}

// GetHealth retrieves the health status of one sink
func (hm *HealthManager) GetHealth(sink string) (HealthData, bool) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	h, ok := hm.health[sink]
	return h, ok
}

// GetAllHealth returns the health of every sink keyed by name
func (hm *HealthManager) GetAllHealth() map[string]HealthData {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	out := make(map[string]HealthData, len(hm.health))
	for k, v := range hm.health {
		out[k] = v
	}
	return out
}

// Names returns the sorted sink names
func (hm *HealthManager) Names() []string {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	names := make([]string, 0, len(hm.health))
	for k := range hm.health {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// CreateHealthData creates a basic health data structure
func CreateHealthData(status, message string, stored int, err error) HealthData {
	h := HealthData{
		LastCheck: time.Now(),
		Status:    status,
		Message:   message,
		Stored:    stored,
	}
	if err != nil {
		h.Error = err.Error()
	}
	return h
}
