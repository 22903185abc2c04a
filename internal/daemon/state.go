package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/botforge/forge3d/pkg/types"
)

// State is the asset catalog: every file the service wrote, plus counters.
// It is persisted as JSON and reloaded on start.
type State struct {
	mu         sync.RWMutex
	filePath   string
	StartTime  time.Time               `json:"start_time"`
	Assets     map[string]*types.Asset `json:"assets"`
	Statistics Statistics              `json:"statistics"`
	LastSave   time.Time               `json:"last_save"`
}

type Statistics struct {
	MeshesWritten    int       `json:"meshes_written"`
	MeshesMerged     int       `json:"meshes_merged"`
	RigsCompleted    int       `json:"rigs_completed"`
	ImagesFetched    int       `json:"images_fetched"`
	BytesWritten     int64     `json:"bytes_written"`
	DaemonStartCount int       `json:"daemon_start_count"`
	LastStartTime    time.Time `json:"last_start_time"`
}

func NewState(filePath string) *State {
	return &State{
		filePath:  filePath,
		StartTime: time.Now(),
		Assets:    make(map[string]*types.Asset),
	}
}

func (s *State) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			// No previous state, start fresh
			s.Statistics.DaemonStartCount = 1
			s.Statistics.LastStartTime = s.StartTime
			return nil
		}
		return fmt.Errorf("failed to read state file: %w", err)
	}

	var loaded State
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("failed to unmarshal state: %w", err)
	}

	if loaded.Assets != nil {
		s.Assets = loaded.Assets
	}
	s.Statistics = loaded.Statistics
	s.Statistics.DaemonStartCount++
	s.Statistics.LastStartTime = s.StartTime

	s.pruneMissing()
	return nil
}

func (s *State) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.LastSave = time.Now()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	// Write to temporary file first
	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	// Rename to final location (atomic operation)
	if err := os.Rename(tempFile, s.filePath); err != nil {
		return fmt.Errorf("failed to rename state file: %w", err)
	}

	return nil
}

// AddAsset records a written file. Records are never updated; a second
// write under the same ID replaces the first.
func (s *State) AddAsset(a types.Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	s.Assets[a.ID] = &a
	s.Statistics.BytesWritten += a.Size

	switch a.Kind {
	case types.AssetMesh:
		s.Statistics.MeshesWritten++
	case types.AssetReferenceImage:
		s.Statistics.ImagesFetched++
	case types.AssetRig:
		s.Statistics.RigsCompleted++
	}
}

// IncrementMerged counts a merge. The merged file itself is recorded with
// AddAsset like any other mesh.
func (s *State) IncrementMerged() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Statistics.MeshesMerged++
}

func (s *State) RemoveAsset(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.Assets, id)
}

func (s *State) GetAsset(id string) (types.Asset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.Assets[id]
	if !ok {
		return types.Asset{}, false
	}
	return *a, true
}

// ListAssets returns the catalog, newest first
func (s *State) ListAssets() []types.Asset {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]types.Asset, 0, len(s.Assets))
	for _, a := range s.Assets {
		list = append(list, *a)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list
}

func (s *State) GetStatistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.Statistics
}

// pruneMissing drops records whose file was deleted while the daemon was down
func (s *State) pruneMissing() {
	for id, a := range s.Assets {
		if _, err := os.Stat(a.Path); os.IsNotExist(err) {
			delete(s.Assets, id)
		}
	}
}
