package app

import (
	"sync/atomic"

	"grid-trader/internal/config"
)

// gridTuning 持有当前生效的网格参数，只在周期开始时读取。
type gridTuning struct {
	current atomic.Pointer[config.GridConfig]
}

func newGridTuning(initial config.GridConfig) *gridTuning {
	t := &gridTuning{}
	cfg := initial
	t.current.Store(&cfg)
	return t
}

// Load 返回当前参数的副本。
func (t *gridTuning) Load() config.GridConfig {
	return *t.current.Load()
}

// Update 校验通过后整体替换参数，返回替换前的值。
func (t *gridTuning) Update(next config.GridConfig) (config.GridConfig, error) {
	if err := next.Validate(); err != nil {
		return t.Load(), err
	}
	cfg := next
	previous := t.current.Swap(&cfg)
	return *previous, nil
}
