package webhook

import (
	"sort"
	"sync"

	gwerrors "github.com/AltairaLabs/agentgw/pkg/errors"
)

// ConfigStore is the gateway's registered-push-config directory (spec §3
// "PushConfig", §6 tasks.pushNotificationConfig.{set,get,list,delete}).
// Grounded on registry.Registry's copy-on-write map, keyed here by config
// id. Lookups by id serve CRUD; List finds a task's configs for delivery
// fan-out by scanning every config, as there is no per-task index.
type ConfigStore struct {
	mu      sync.Mutex
	configs map[string]Config
}

// NewConfigStore creates an empty ConfigStore.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{configs: make(map[string]Config)}
}

// Set registers or replaces cfg under cfg.ID.
func (s *ConfigStore) Set(cfg Config) error {
	if cfg.ID == "" {
		return gwerrors.New("webhook", "set", gwerrors.KindInvalid, nil)
	}
	if cfg.URL == "" {
		return gwerrors.New("webhook", "set", gwerrors.KindNoURL, nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]Config, len(s.configs)+1)
	for id, c := range s.configs {
		next[id] = c
	}
	next[cfg.ID] = cfg
	s.configs = next
	return nil
}

// Get returns the config registered under id, or KindConfigNotFound.
func (s *ConfigStore) Get(id string) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.configs[id]
	if !ok {
		return Config{}, gwerrors.New("webhook", "get", gwerrors.KindConfigNotFound, nil)
	}
	return cfg, nil
}

// List returns every config registered for taskID, ordered by id.
func (s *ConfigStore) List(taskID string) []Config {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Config, 0)
	for _, c := range s.configs {
		if c.TaskID == taskID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Delete removes the config registered under id. Idempotent.
func (s *ConfigStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.configs[id]; !ok {
		return
	}
	next := make(map[string]Config, len(s.configs))
	for existingID, c := range s.configs {
		if existingID != id {
			next[existingID] = c
		}
	}
	s.configs = next
}
