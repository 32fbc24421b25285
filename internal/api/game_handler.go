package api

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/runner-game/internal/errors"
	"github.com/wfunc/runner-game/internal/middleware"
	"github.com/wfunc/runner-game/internal/service"
	"go.uber.org/zap"
)

// GameHandler 对局相关接口
type GameHandler struct {
	games service.GameService
	log   *zap.Logger
}

// NewGameHandler 创建对局处理器
func NewGameHandler(games service.GameService, log *zap.Logger) *GameHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &GameHandler{games: games, log: log}
}

// currentUser 读取认证中间件写入的用户ID
func currentUser(c *gin.Context) (string, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		middleware.AbortWithError(c, apperrors.New(apperrors.ErrAuthentication))
	}
	return userID, ok
}

// bindOptionalJSON 空请求体视为全部字段缺省
func bindOptionalJSON(c *gin.Context, obj interface{}) error {
	err := c.ShouldBindJSON(obj)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// StartRun 开始对局
// POST /api/v1/game/run/start
func (h *GameHandler) StartRun(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var cmd service.StartRunCommand
	if err := bindOptionalJSON(c, &cmd); err != nil {
		respondInvalid(c, h.log, err)
		return
	}
	cmd.UserID = userID

	result, err := h.games.StartRun(c.Request.Context(), &cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Game run started", result)
}

// FinishRun 结束对局
// POST /api/v1/game/run/finish
func (h *GameHandler) FinishRun(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var cmd service.FinishRunCommand
	if err := bindOptionalJSON(c, &cmd); err != nil {
		respondInvalid(c, h.log, err)
		return
	}
	cmd.UserID = userID

	result, err := h.games.FinishRun(c.Request.Context(), &cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Game run finished", result)
}

// ClaimReward 领取奖励
// POST /api/v1/game/reward/claim
func (h *GameHandler) ClaimReward(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var cmd service.ClaimRewardCommand
	if err := bindOptionalJSON(c, &cmd); err != nil {
		respondInvalid(c, h.log, err)
		return
	}
	cmd.UserID = userID

	result, err := h.games.ClaimReward(c.Request.Context(), &cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Reward claimed successfully", result)
}

// Leaderboard 排行榜
// GET /api/v1/game/leaderboard?page=1&limit=10&timeframe=all
func (h *GameHandler) Leaderboard(c *gin.Context) {
	var q service.LeaderboardQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondInvalid(c, h.log, err)
		return
	}
	q.ClientIP = c.ClientIP()

	result, err := h.games.Leaderboard(c.Request.Context(), &q)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Leaderboard retrieved", result)
}

// PlayerStats 当前玩家统计
// GET /api/v1/game/me
func (h *GameHandler) PlayerStats(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	result, err := h.games.PlayerStats(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Player stats retrieved", result)
}
