package scoring

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/SlpAus/group-reputation-backend/internal/user"
	"github.com/gin-gonic/gin"
)

// VoterLimiter 按投票者限流
type VoterLimiter interface {
	Allow(id string) bool
}

// Handler 把 Engine 暴露为HTTP接口，供聊天平台适配层调用
type Handler struct {
	engine *Engine
	log    *slog.Logger
	voters VoterLimiter
}

// NewHandler 创建处理器
func NewHandler(engine *Engine, log *slog.Logger) *Handler {
	return &Handler{engine: engine, log: log}
}

// LimitVoters 为 CastVote 设置按投票者ID的限流，nil 表示不限流
func (h *Handler) LimitVoters(l VoterLimiter) {
	h.voters = l
}

// --- 请求体 ---

type ensureUserBody struct {
	ID   int64  `json:"id" binding:"required"`
	Name string `json:"name"`
}

type renameBody struct {
	Name string `json:"name" binding:"required"`
}

// --- 用户 ---

// EnsureUser 处理 POST /users
func (h *Handler) EnsureUser(c *gin.Context) {
	var body ensureUserBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}
	u, err := h.engine.Registry().EnsureUser(c.Request.Context(), body.ID, body.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// GetUser 处理 GET /users/:id
func (h *Handler) GetUser(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	u, err := h.engine.Registry().Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// RenameUser 处理 PUT /users/:id/name
func (h *Handler) RenameUser(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var body renameBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}
	if err := h.engine.Registry().Rename(c.Request.Context(), id, body.Name); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetStats 处理 GET /users/:id/stats?name=
func (h *Handler) GetStats(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	view, err := h.engine.ComputeStats(c.Request.Context(), id, c.Query("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// --- 投票 ---

// CastVote 处理 POST /votes。被拒绝的投票同样返回200，由 accepted 字段区分。
func (h *Handler) CastVote(c *gin.Context) {
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}
	if h.voters != nil && !h.voters.Allow(strconv.FormatInt(req.Voter.ID, 10)) {
		h.log.Warn("投票过于频繁", "voter_id", req.Voter.ID)
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "投票过于频繁，请稍后再试"})
		return
	}
	res, err := h.engine.CastVote(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// --- 排行榜 ---

// GetReputationRanking 处理 GET /rankings/reputation
func (h *Handler) GetReputationRanking(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	top, err := h.engine.TopByReputation(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ranking": top})
}

// GetWeeklyRanking 处理 GET /rankings/weekly
func (h *Handler) GetWeeklyRanking(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	top, err := h.engine.TopByWeeklyScore(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ranking": top})
}

// --- 管理 ---

// Replenish 处理 POST /admin/replenish，手动补充投票
func (h *Handler) Replenish(c *gin.Context) {
	report, err := h.engine.ReplenishVotes(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// CloseWeek 处理 POST /admin/close-week，手动执行周结算
func (h *Handler) CloseWeek(c *gin.Context) {
	res, err := h.engine.CloseWeek(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// --- 辅助函数 ---

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的用户ID: " + c.Param("id")})
		return 0, false
	}
	return id, true
}

func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return DefaultLeaderboardSize, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的limit: " + raw})
		return 0, false
	}
	return n, true
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, user.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidDirection):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrRetriesExhausted), errors.Is(err, user.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "服务繁忙，请稍后重试"})
	default:
		_ = c.Error(err)
		h.log.Error("请求处理失败", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
	}
}
