package health

import (
	"log/slog"
	"sync"
	"time"
)

// State 定义了存储健康状态的枚举类型
type State int

const (
	StateHealthy State = iota
	StateDegraded
)

func (s State) String() string {
	if s == StateHealthy {
		return "healthy"
	}
	return "degraded"
}

// Report 是最近一次检查的结果
type Report struct {
	State     State     `json:"-"`
	Status    string    `json:"status"`
	Backend   string    `json:"backend"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
	// Restarts 统计检测到的Redis重启次数，SQL后端恒为0
	Restarts int `json:"restarts"`
}

// statusManager 负责线程安全地管理和提供存储的健康状态。
type statusManager struct {
	mu             sync.RWMutex
	report         Report
	lastKnownRunID string
	log            *slog.Logger
}

func (sm *statusManager) snapshot() Report {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.report
}

// assess 根据一次探测结果推进状态。runID 为空表示该后端没有实例标识。
func (sm *statusManager) assess(err error, runID string, at time.Time) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	prev := sm.report.State
	sm.report.CheckedAt = at
	if err != nil {
		sm.report.State = StateDegraded
		sm.report.Error = err.Error()
		if prev == StateHealthy {
			sm.log.Warn("健康检查: 存储连接丢失，系统状态 -> [降级]", "backend", sm.report.Backend, "error", err)
		}
		sm.report.Status = sm.report.State.String()
		return
	}

	if runID != "" {
		if sm.lastKnownRunID != "" && sm.lastKnownRunID != runID {
			// 未开启持久化的Redis重启后用户记录会丢失
			sm.report.Restarts++
			sm.log.Error("健康检查: 检测到Redis重启", "oldRunID", sm.lastKnownRunID, "newRunID", runID)
		}
		sm.lastKnownRunID = runID
	}
	sm.report.State = StateHealthy
	sm.report.Error = ""
	sm.report.Status = sm.report.State.String()
	if prev == StateDegraded {
		sm.log.Info("健康检查: 存储连接已恢复，系统状态 -> [健康]", "backend", sm.report.Backend)
	}
}
