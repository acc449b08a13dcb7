package systems

import (
	"errors"

	"github.com/spaghettifunk/anima-memory/engine/config"
)

type SystemManager struct {
	MemorySystem *MemorySystem
	JobSystem    *JobSystem
}

func NewSystemManager(cfg *config.Config) (*SystemManager, error) {
	ms, err := NewMemorySystem(cfg)
	if err != nil {
		return nil, err
	}
	js, err := NewJobSystem(cfg.Testbed.Workers, cfg.Testbed.Workers*2)
	if err != nil {
		return nil, errors.Join(err, ms.Shutdown())
	}
	return &SystemManager{
		MemorySystem: ms,
		JobSystem:    js,
	}, nil
}

// ApplyConfig forwards a reloaded configuration to the systems that support it.
func (sm *SystemManager) ApplyConfig(cfg *config.Config) {
	sm.MemorySystem.ApplyConfig(cfg)
}

// Shutdown stops the job system first so no job touches memory that is
// being released.
func (sm *SystemManager) Shutdown() error {
	if err := sm.JobSystem.Shutdown(); err != nil {
		return err
	}
	return sm.MemorySystem.Shutdown()
}
