package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/wfunc/runner-game/internal/models"
	"gorm.io/gorm"
)

// GameRewardRepositoryTestSuite 奖励台账仓储测试套件
type GameRewardRepositoryTestSuite struct {
	suite.Suite
	db      *gorm.DB
	manager *Manager
	ctx     context.Context
}

func (suite *GameRewardRepositoryTestSuite) SetupTest() {
	suite.db = SetupTestDB()
	suite.manager = NewManager(suite.db)
	suite.ctx = context.Background()
}

func (suite *GameRewardRepositoryTestSuite) TearDownTest() {
	CleanupTestDB(suite.db)
}

func newTestReward(runID, userID string, amount int64) *models.GameReward {
	now := time.Now()
	return &models.GameReward{
		RewardID:   uuid.NewString(),
		RunID:      runID,
		UserID:     userID,
		GameType:   models.DefaultGameType,
		RewardType: models.RewardTypeTokens,
		Amount:     amount,
		Status:     models.RewardStatusCompleted,
		ClaimedAt:  &now,
	}
}

func (suite *GameRewardRepositoryTestSuite) TestManagerLazyRepositories() {
	suite.Same(suite.manager.GameReward(), suite.manager.GameReward())
	suite.Same(suite.manager.GameRun(), suite.manager.GameRun())
	suite.Equal(suite.db, suite.manager.DB())
}

func (suite *GameRewardRepositoryTestSuite) TestCreateAndFind() {
	repo := suite.manager.GameReward()
	suite.Require().NoError(repo.CreateIfAbsent(suite.ctx, newTestReward("run-1", "user-1", 18)))

	found, err := repo.FindByRun(suite.ctx, "run-1", "user-1")
	suite.Require().NoError(err)
	suite.Equal(int64(18), found.Amount)

	_, err = repo.FindByRun(suite.ctx, "run-1", "user-2")
	suite.ErrorIs(err, ErrNotFound)
}

func (suite *GameRewardRepositoryTestSuite) TestCreateIfAbsentConflict() {
	repo := suite.manager.GameReward()
	suite.Require().NoError(repo.CreateIfAbsent(suite.ctx, newTestReward("run-1", "user-1", 18)))

	err := repo.CreateIfAbsent(suite.ctx, newTestReward("run-1", "user-1", 18))
	suite.ErrorIs(err, ErrRewardConflict)
}

func (suite *GameRewardRepositoryTestSuite) TestConcurrentCreateIfAbsent() {
	repo := suite.manager.GameReward()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.CreateIfAbsent(suite.ctx, newTestReward("run-1", "user-1", 18))
		}()
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		if err == nil {
			created++
		} else {
			suite.ErrorIs(err, ErrRewardConflict)
		}
	}
	suite.Equal(1, created)

	var count int64
	suite.db.Model(&models.GameReward{}).Where("run_id = ?", "run-1").Count(&count)
	suite.Equal(int64(1), count)
}

func (suite *GameRewardRepositoryTestSuite) TestTotals() {
	repo := suite.manager.GameReward()
	suite.Require().NoError(repo.CreateIfAbsent(suite.ctx, newTestReward("run-1", "user-1", 18)))
	suite.Require().NoError(repo.CreateIfAbsent(suite.ctx, newTestReward("run-2", "user-1", 60)))

	failed := newTestReward("run-3", "user-1", 100)
	failed.Status = models.RewardStatusFailed
	suite.Require().NoError(repo.CreateIfAbsent(suite.ctx, failed))

	totals, err := repo.Totals(suite.ctx, "user-1")
	suite.Require().NoError(err)
	suite.Equal(int64(78), totals.TotalRewards)
	suite.Equal(int64(2), totals.TotalClaims)

	empty, err := repo.Totals(suite.ctx, "user-2")
	suite.Require().NoError(err)
	suite.Equal(int64(0), empty.TotalRewards)
}

func TestGameRewardRepositorySuite(t *testing.T) {
	suite.Run(t, new(GameRewardRepositoryTestSuite))
}
