package service

import (
	"context"
	"errors"
	"math"
	"time"

	apperrors "github.com/wfunc/runner-game/internal/errors"
	"github.com/wfunc/runner-game/internal/game"
	"github.com/wfunc/runner-game/internal/logger"
	"github.com/wfunc/runner-game/internal/models"
	"github.com/wfunc/runner-game/internal/ratelimit"
	"github.com/wfunc/runner-game/internal/repository"
	"github.com/wfunc/runner-game/internal/utils"
	"go.uber.org/zap"
)

// 排行榜分页限制
const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 50
)

// gameService 对局服务实现
type gameService struct {
	runs     repository.GameRunRepository
	rewards  repository.GameRewardRepository
	guard    *ratelimit.Guard
	notifier RewardNotifier
	config   *Config
	log      *zap.Logger
	now      func() time.Time
}

// Option 对局服务选项
type Option func(*gameService)

// WithClock 注入时钟，测试使用
func WithClock(now func() time.Time) Option {
	return func(s *gameService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithNotifier 设置奖励通知器
func WithNotifier(n RewardNotifier) Option {
	return func(s *gameService) {
		if n != nil {
			s.notifier = n
		}
	}
}

// NewGameService 创建对局服务
func NewGameService(
	runs repository.GameRunRepository,
	rewards repository.GameRewardRepository,
	guard *ratelimit.Guard,
	config *Config,
	log *zap.Logger,
	opts ...Option,
) GameService {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &gameService{
		runs:     runs,
		rewards:  rewards,
		guard:    guard,
		notifier: noopNotifier{},
		config:   config,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type noopNotifier struct{}

func (noopNotifier) NotifyRewardIssued(context.Context, *models.GameReward) error { return nil }

func (s *gameService) clock() time.Time {
	return s.now().UTC()
}

// checkRate 限流检查，后端故障时放行
func (s *gameService) checkRate(ctx context.Context, action ratelimit.Action, subject string) error {
	ok, err := s.guard.Allow(ctx, action, subject)
	if err != nil {
		s.log.Warn("Rate limiter unavailable, allowing request",
			zap.Error(err), zap.String("action", string(action)), zap.String("subject", subject))
		return nil
	}
	if !ok {
		s.log.Info("Rate limit exceeded", zap.String("action", string(action)), zap.String("subject", subject))
		return apperrors.New(apperrors.ErrRateLimited)
	}
	return nil
}

// storeError 记录存储故障并包装成统一错误
func (s *gameService) storeError(err error, msg string, fields ...zap.Field) error {
	s.log.Error(msg, append(fields, zap.Error(err))...)
	return apperrors.Wrap(err, apperrors.ErrStoreUnavailable)
}

// StartRun 开始新对局
func (s *gameService) StartRun(ctx context.Context, cmd *StartRunCommand) (*StartRunResult, error) {
	if cmd == nil || cmd.UserID == "" {
		return nil, apperrors.New(apperrors.ErrAuthentication)
	}
	if err := s.checkRate(ctx, ratelimit.ActionStart, cmd.UserID); err != nil {
		return nil, err
	}

	gameType := utils.SanitizeInput(cmd.GameType)
	if gameType == "" {
		gameType = models.DefaultGameType
	}
	if gameType != models.DefaultGameType {
		return nil, apperrors.Newf(apperrors.ErrInvalidParam, "unsupported game type: %s", gameType)
	}
	// 随机数原样保存，结束时逐字节比较
	if len(cmd.ClientNonce) > models.MaxClientNonceLength {
		return nil, apperrors.Newf(apperrors.ErrInvalidParam, "clientNonce exceeds %d bytes", models.MaxClientNonceLength)
	}

	now := s.clock()
	since := now.Add(-s.config.ActiveLookback)

	// 超过回看窗口的进行中对局视为放弃，释放唯一锁
	abandoned, err := s.runs.AbandonStaleForUser(ctx, cmd.UserID, since)
	if err != nil {
		return nil, s.storeError(err, "Failed to abandon stale runs", zap.String("userID", cmd.UserID))
	}
	if abandoned > 0 {
		s.log.Info("Abandoned stale runs", zap.String("userID", cmd.UserID), zap.Int64("count", abandoned))
	}

	active, err := s.runs.CountActiveSince(ctx, cmd.UserID, since)
	if err != nil {
		return nil, s.storeError(err, "Failed to count active runs", zap.String("userID", cmd.UserID))
	}
	if active > 0 {
		return nil, apperrors.New(apperrors.ErrActiveSessionExists)
	}

	serverNonce, err := utils.NewServerNonce()
	if err != nil {
		s.log.Error("Failed to generate server nonce", zap.Error(err))
		return nil, apperrors.Wrap(err, apperrors.ErrUnknown)
	}

	lock := cmd.UserID
	run := &models.GameRun{
		RunID:       utils.NewRunID(),
		UserID:      cmd.UserID,
		GameType:    gameType,
		Status:      models.RunStatusActive,
		ServerNonce: serverNonce,
		ClientNonce: cmd.ClientNonce,
		ClientData:  sanitizeClientData(cmd.ClientData),
		ActiveLock:  &lock,
		StartTime:   now,
	}

	if err := s.runs.Create(ctx, run); err != nil {
		if errors.Is(err, repository.ErrActiveRunExists) {
			return nil, apperrors.New(apperrors.ErrActiveSessionExists)
		}
		return nil, s.storeError(err, "Failed to create game run", zap.String("userID", cmd.UserID))
	}

	logger.LogGameEvent("run_started", run.RunID, map[string]interface{}{
		"user_id":   run.UserID,
		"game_type": run.GameType,
	})

	return &StartRunResult{
		RunID:       run.RunID,
		ServerNonce: run.ServerNonce,
		StartTime:   run.StartTime,
	}, nil
}

func sanitizeClientData(d *ClientData) models.JSONMap {
	if d == nil {
		return nil
	}
	data := models.JSONMap{}
	if v := utils.SanitizeInput(d.UserAgent); v != "" {
		data["userAgent"] = v
	}
	if v := utils.SanitizeInput(d.ScreenResolution); v != "" {
		data["screenResolution"] = v
	}
	if v := utils.SanitizeInput(d.Timezone); v != "" {
		data["timezone"] = v
	}
	if len(data) == 0 {
		return nil
	}
	return data
}

// maxMetricValue 上报数值上限（2^53），超出后浮点无法精确表示整数
const maxMetricValue = 1 << 53

// metric 校验单个上报数值；wholeNumber 为 true 时必须是整数
func metric(name string, v float64, wholeNumber bool) error {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return apperrors.Newf(apperrors.ErrInvalidParam, "%s must be a finite number", name)
	case v < 0:
		return apperrors.Newf(apperrors.ErrInvalidParam, "%s must be non-negative", name)
	case v > maxMetricValue:
		return apperrors.Newf(apperrors.ErrInvalidParam, "%s is too large", name)
	case wholeNumber && v != math.Trunc(v):
		return apperrors.Newf(apperrors.ErrInvalidParam, "%s must be a whole number", name)
	}
	return nil
}

func optional(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// validateFinish 校验结束请求字段，返回规范化后的上报结果。
// 距离允许小数，时长（毫秒）、分数、金币、道具必须是整数
func validateFinish(cmd *FinishRunCommand) (game.Report, error) {
	if cmd.RunID == "" || cmd.Duration == nil || *cmd.Duration == 0 || cmd.Score == nil || cmd.Distance == nil {
		return game.Report{}, apperrors.New(apperrors.ErrMissingFields)
	}

	fields := []struct {
		name  string
		value float64
		whole bool
	}{
		{"duration", *cmd.Duration, true},
		{"score", *cmd.Score, true},
		{"distance", *cmd.Distance, false},
		{"coinsCollected", optional(cmd.CoinsCollected), true},
		{"powerUpsUsed", optional(cmd.PowerUpsUsed), true},
	}
	for _, f := range fields {
		if err := metric(f.name, f.value, f.whole); err != nil {
			return game.Report{}, err
		}
	}

	return game.Report{
		Duration:       int64(*cmd.Duration),
		Score:          int64(*cmd.Score),
		Distance:       *cmd.Distance,
		CoinsCollected: int64(optional(cmd.CoinsCollected)),
		PowerUpsUsed:   int64(optional(cmd.PowerUpsUsed)),
	}, nil
}

// FinishRun 结束对局，校验完整性并计算奖励
func (s *gameService) FinishRun(ctx context.Context, cmd *FinishRunCommand) (*FinishRunResult, error) {
	if cmd == nil || cmd.UserID == "" {
		return nil, apperrors.New(apperrors.ErrAuthentication)
	}
	if err := s.checkRate(ctx, ratelimit.ActionFinish, cmd.UserID); err != nil {
		return nil, err
	}

	report, err := validateFinish(cmd)
	if err != nil {
		return nil, err
	}

	run, err := s.runs.FindActive(ctx, cmd.RunID, cmd.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.New(apperrors.ErrRunNotFound)
		}
		return nil, s.storeError(err, "Failed to load game run", zap.String("runID", cmd.RunID))
	}

	// 开局时提供了客户端随机数，结束时必须一致
	if run.ClientNonce != "" && !utils.NonceEqual(run.ClientNonce, cmd.ClientNonce) {
		s.log.Warn("Client nonce mismatch", zap.String("runID", run.RunID), zap.String("userID", run.UserID))
		return nil, apperrors.New(apperrors.ErrNonceMismatch)
	}

	now := s.clock()
	verdict := game.ValidateCompletion(report, game.Facts{StartTime: run.StartTime}, now, s.config.Thresholds)

	status := models.RunStatusCompleted
	if !verdict.Valid {
		status = models.RunStatusInvalid
	}

	eligible := game.IsEligible(verdict, report.Score, s.config.MinRewardScore)
	var reward int64
	if eligible {
		current := game.Counters{
			SpeedViolations:     run.SpeedViolations,
			ImpossibleMoves:     run.ImpossibleMoves,
			TimeInconsistencies: run.TimeInconsistencies,
		}
		reward = game.CalculateReward(game.Snapshot{
			Score:    report.Score,
			Distance: report.Distance,
			Counters: current.Add(verdict.Delta),
		})
	}

	completion := &repository.RunCompletion{
		EndTime:             now,
		Duration:            report.Duration,
		Score:               report.Score,
		Distance:            report.Distance,
		CoinsCollected:      report.CoinsCollected,
		PowerUpsUsed:        report.PowerUpsUsed,
		Status:              status,
		Eligible:            eligible,
		RewardAmount:        reward,
		SpeedViolations:     verdict.Delta.SpeedViolations,
		ImpossibleMoves:     verdict.Delta.ImpossibleMoves,
		TimeInconsistencies: verdict.Delta.TimeInconsistencies,
	}

	if err := s.runs.Complete(ctx, run.RunID, run.UserID, completion); err != nil {
		if errors.Is(err, repository.ErrRunNotActive) {
			return nil, apperrors.New(apperrors.ErrRunNotFound)
		}
		return nil, s.storeError(err, "Failed to complete game run", zap.String("runID", run.RunID))
	}

	if !verdict.Valid {
		s.log.Warn("Game run failed integrity checks",
			zap.String("runID", run.RunID),
			zap.String("userID", run.UserID),
			zap.Strings("violations", verdict.Violations),
		)
	}
	logger.LogGameEvent("run_finished", run.RunID, map[string]interface{}{
		"user_id":  run.UserID,
		"status":   status,
		"score":    report.Score,
		"eligible": eligible,
		"reward":   reward,
	})

	result := &FinishRunResult{
		RunID:               run.RunID,
		Status:              status,
		Score:               report.Score,
		Distance:            report.Distance,
		Duration:            report.Duration,
		IsEligibleForReward: eligible,
		RewardAmount:        reward,
	}
	if !verdict.Valid {
		result.Violations = verdict.Violations
	}
	return result, nil
}

// ClaimReward 领取对局奖励，每局最多发放一次
func (s *gameService) ClaimReward(ctx context.Context, cmd *ClaimRewardCommand) (*ClaimRewardResult, error) {
	if cmd == nil || cmd.UserID == "" {
		return nil, apperrors.New(apperrors.ErrAuthentication)
	}
	if err := s.checkRate(ctx, ratelimit.ActionClaim, cmd.UserID); err != nil {
		return nil, err
	}
	if cmd.RunID == "" {
		return nil, apperrors.New(apperrors.ErrRunIDRequired)
	}

	run, err := s.runs.FindEligible(ctx, cmd.RunID, cmd.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, s.notEligible(ctx, cmd)
		}
		return nil, s.storeError(err, "Failed to load eligible run", zap.String("runID", cmd.RunID))
	}

	existing, err := s.rewards.FindByRun(ctx, run.RunID, run.UserID)
	switch {
	case err == nil:
		// 台账已有记录但标记未写入，补写标记
		s.healClaimFlag(ctx, run)
		s.log.Info("Reward already issued", zap.String("runID", run.RunID), zap.String("rewardID", existing.RewardID))
		return nil, apperrors.New(apperrors.ErrAlreadyClaimed)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, s.storeError(err, "Failed to load reward ledger", zap.String("runID", run.RunID))
	}

	now := s.clock()
	reward := &models.GameReward{
		RewardID:   utils.NewRunID(),
		RunID:      run.RunID,
		UserID:     run.UserID,
		GameType:   run.GameType,
		RewardType: models.RewardTypeTokens,
		Amount:     run.RewardAmount,
		Status:     models.RewardStatusCompleted,
		ClaimedAt:  &now,
		Score:      run.Score,
		Distance:   run.Distance,
		Duration:   run.Duration,
	}
	reward.AuditDigest = utils.RewardDigest(utils.RewardSnapshot{
		RunID:    reward.RunID,
		UserID:   reward.UserID,
		Amount:   reward.Amount,
		Score:    reward.Score,
		Distance: reward.Distance,
		Duration: reward.Duration,
	})

	if err := s.rewards.CreateIfAbsent(ctx, reward); err != nil {
		if errors.Is(err, repository.ErrRewardConflict) {
			return nil, apperrors.New(apperrors.ErrAlreadyClaimed)
		}
		return nil, s.storeError(err, "Failed to create reward", zap.String("runID", run.RunID))
	}

	// 台账是唯一事实来源，标记失败不影响本次领奖结果
	if err := s.runs.MarkClaimed(ctx, run.RunID, run.UserID); err != nil && !errors.Is(err, repository.ErrAlreadyMarked) {
		s.log.Error("Failed to mark run as claimed", zap.Error(err), zap.String("runID", run.RunID))
	}

	if err := s.notifier.NotifyRewardIssued(ctx, reward); err != nil {
		s.log.Warn("Failed to publish reward event", zap.Error(err), zap.String("rewardID", reward.RewardID))
	}

	logger.LogGameEvent("reward_claimed", run.RunID, map[string]interface{}{
		"user_id":   reward.UserID,
		"reward_id": reward.RewardID,
		"amount":    reward.Amount,
	})

	return &ClaimRewardResult{
		RewardID:   reward.RewardID,
		Amount:     reward.Amount,
		RewardType: reward.RewardType,
		Status:     reward.Status,
		ClaimedAt:  now,
	}, nil
}

// notEligible 区分已领取和不可领取，台账中已有记录时返回 AlreadyClaimed
func (s *gameService) notEligible(ctx context.Context, cmd *ClaimRewardCommand) error {
	_, err := s.rewards.FindByRun(ctx, cmd.RunID, cmd.UserID)
	switch {
	case err == nil:
		return apperrors.New(apperrors.ErrAlreadyClaimed)
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.New(apperrors.ErrNotEligible)
	default:
		return s.storeError(err, "Failed to load reward ledger", zap.String("runID", cmd.RunID))
	}
}

func (s *gameService) healClaimFlag(ctx context.Context, run *models.GameRun) {
	err := s.runs.MarkClaimed(ctx, run.RunID, run.UserID)
	if err != nil && !errors.Is(err, repository.ErrAlreadyMarked) {
		s.log.Error("Failed to heal claim flag", zap.Error(err), zap.String("runID", run.RunID))
	}
}

// timeframeStart 计算排行榜时间范围的起点（UTC），all 返回 nil
func timeframeStart(timeframe string, now time.Time) (*time.Time, error) {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var since time.Time
	switch timeframe {
	case TimeframeAll:
		return nil, nil
	case TimeframeDaily:
		since = day
	case TimeframeWeekly:
		since = day.AddDate(0, 0, -int(day.Weekday()))
	case TimeframeMonthly:
		since = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return nil, apperrors.Newf(apperrors.ErrInvalidParam, "unknown timeframe: %s", timeframe)
	}
	return &since, nil
}

// Leaderboard 查询排行榜
func (s *gameService) Leaderboard(ctx context.Context, q *LeaderboardQuery) (*LeaderboardResult, error) {
	if q == nil {
		q = &LeaderboardQuery{}
	}
	if err := s.checkRate(ctx, ratelimit.ActionLeaderboard, q.ClientIP); err != nil {
		return nil, err
	}

	timeframe := q.Timeframe
	if timeframe == "" {
		timeframe = TimeframeAll
	}
	since, err := timeframeStart(timeframe, s.clock())
	if err != nil {
		return nil, err
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}

	p := repository.NewPagination(page, limit)
	entries, err := s.runs.Leaderboard(ctx, since, p)
	if err != nil {
		return nil, s.storeError(err, "Failed to query leaderboard", zap.String("timeframe", timeframe))
	}
	if entries == nil {
		entries = []*repository.LeaderboardEntry{}
	}

	return &LeaderboardResult{
		Leaderboard: entries,
		Page:        page,
		Limit:       limit,
		Total:       p.Total,
		Timeframe:   timeframe,
	}, nil
}

// PlayerStats 查询玩家统计
func (s *gameService) PlayerStats(ctx context.Context, userID string) (*PlayerStatsResult, error) {
	if userID == "" {
		return nil, apperrors.New(apperrors.ErrAuthentication)
	}
	if err := s.checkRate(ctx, ratelimit.ActionStats, userID); err != nil {
		return nil, err
	}

	stats, err := s.runs.PlayerStats(ctx, userID)
	if err != nil {
		return nil, s.storeError(err, "Failed to query player stats", zap.String("userID", userID))
	}
	totals, err := s.rewards.Totals(ctx, userID)
	if err != nil {
		return nil, s.storeError(err, "Failed to query reward totals", zap.String("userID", userID))
	}

	// 没有已完成对局的玩家不参与排名
	var rank int64
	if stats.TotalRuns > 0 {
		better, err := s.runs.CountBetterPlayers(ctx, stats.BestScore)
		if err != nil {
			return nil, s.storeError(err, "Failed to query player rank", zap.String("userID", userID))
		}
		rank = better + 1
	}

	limit := s.config.RecentRuns
	if limit <= 0 {
		limit = 10
	}
	recent, err := s.runs.RecentRuns(ctx, userID, limit)
	if err != nil {
		return nil, s.storeError(err, "Failed to query recent runs", zap.String("userID", userID))
	}
	summaries := make([]*RunSummary, 0, len(recent))
	for _, run := range recent {
		summaries = append(summaries, &RunSummary{
			RunID:               run.RunID,
			Status:              run.Status,
			Score:               run.Score,
			Distance:            run.Distance,
			Duration:            run.Duration,
			IsEligibleForReward: run.IsEligibleForReward,
			RewardAmount:        run.RewardAmount,
			StartTime:           run.StartTime,
		})
	}

	return &PlayerStatsResult{
		TotalRuns:     stats.TotalRuns,
		BestScore:     stats.BestScore,
		TotalDistance: stats.TotalDistance,
		TotalCoins:    stats.TotalCoins,
		AverageScore:  int64(math.Round(stats.AverageScore)),
		TotalPlayTime: stats.TotalPlayTime,
		TotalRewards:  totals.TotalRewards,
		TotalClaims:   totals.TotalClaims,
		CurrentRank:   rank,
		RecentRuns:    summaries,
	}, nil
}

// ReapStaleRuns 将超时未结束的对局标记为放弃
func (s *gameService) ReapStaleRuns(ctx context.Context) (int64, error) {
	before := s.clock().Add(-s.config.StaleAfter)
	n, err := s.runs.AbandonStale(ctx, before)
	if err != nil {
		return 0, s.storeError(err, "Failed to reap stale runs")
	}
	if n > 0 {
		s.log.Info("Reaped stale game runs", zap.Int64("count", n), zap.Time("before", before))
	}
	return n, nil
}
