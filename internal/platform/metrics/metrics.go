package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ScoringMetrics 汇总投票与周期结算相关的指标。
// nil 接收者上的所有方法都是空操作，测试中可以直接传 nil。
type ScoringMetrics struct {
	votes    *prometheus.CounterVec
	levelUps prometheus.Counter
	resets   *prometheus.CounterVec
	retries  prometheus.Counter
}

var (
	scoringOnce     sync.Once
	scoringRegistry *ScoringMetrics
)

// Scoring 返回注册在默认 Prometheus registry 上的单例
func Scoring() *ScoringMetrics {
	scoringOnce.Do(func() {
		scoringRegistry = NewScoringMetrics()
		prometheus.MustRegister(
			scoringRegistry.votes,
			scoringRegistry.levelUps,
			scoringRegistry.resets,
			scoringRegistry.retries,
		)
	})
	return scoringRegistry
}

// NewScoringMetrics 创建未注册的指标集合
func NewScoringMetrics() *ScoringMetrics {
	return &ScoringMetrics{
		votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reputation_votes_total",
			Help: "Votes handled by the scoring engine, by direction and outcome.",
		}, []string{"direction", "outcome"}),
		levelUps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reputation_level_ups_total",
			Help: "Number of level-ups granted.",
		}),
		resets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reputation_resets_total",
			Help: "Completed periodic resets by kind.",
		}, []string{"kind"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reputation_vote_retries_total",
			Help: "Transactions retried after a storage conflict.",
		}),
	}
}

func (m *ScoringMetrics) ObserveVote(direction, outcome string) {
	if m == nil {
		return
	}
	m.votes.WithLabelValues(direction, outcome).Inc()
}

func (m *ScoringMetrics) ObserveLevelUp() {
	if m == nil {
		return
	}
	m.levelUps.Inc()
}

func (m *ScoringMetrics) ObserveReset(kind string) {
	if m == nil {
		return
	}
	m.resets.WithLabelValues(kind).Inc()
}

func (m *ScoringMetrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// Handler 暴露默认 registry 的 /metrics 端点
func Handler() http.Handler {
	return promhttp.Handler()
}
