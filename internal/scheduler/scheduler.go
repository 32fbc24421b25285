package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Reaper 回收过期对局
type Reaper interface {
	ReapStaleRuns(ctx context.Context) (int64, error)
}

// Sweeper 清理空闲限流键
type Sweeper interface {
	Sweep() int
}

// Config 定时任务配置，间隔为 0 表示不启用对应任务
type Config struct {
	ReapInterval  time.Duration
	ReapTimeout   time.Duration
	SweepInterval time.Duration
}

// Scheduler 后台定时任务
type Scheduler struct {
	sched gocron.Scheduler
	log   *zap.Logger
}

// New 创建并注册定时任务，reaper 或 sweeper 为 nil 时跳过
func New(cfg Config, reaper Reaper, sweeper Sweeper, log *zap.Logger) (*Scheduler, error) {
	if log == nil {
		log = zap.NewNop()
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("创建调度器失败: %w", err)
	}
	s := &Scheduler{sched: sched, log: log}

	if reaper != nil && cfg.ReapInterval > 0 {
		timeout := cfg.ReapTimeout
		if timeout <= 0 {
			timeout = cfg.ReapInterval
		}
		if err := s.add("reap_stale_runs", cfg.ReapInterval, func() { s.reap(reaper, timeout) }); err != nil {
			return nil, err
		}
	}

	if sweeper != nil && cfg.SweepInterval > 0 {
		if err := s.add("sweep_rate_limits", cfg.SweepInterval, func() { s.sweep(sweeper) }); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Scheduler) add(name string, every time.Duration, task func()) error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(task),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.sched.Shutdown()
		return fmt.Errorf("注册任务 %s 失败: %w", name, err)
	}
	s.log.Info("Scheduled job", zap.String("job", name), zap.Duration("interval", every))
	return nil
}

func (s *Scheduler) reap(reaper Reaper, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if _, err := reaper.ReapStaleRuns(ctx); err != nil {
		s.log.Error("Reaper job failed", zap.Error(err))
	}
}

func (s *Scheduler) sweep(sweeper Sweeper) {
	if n := sweeper.Sweep(); n > 0 {
		s.log.Debug("Swept idle rate limit keys", zap.Int("count", n))
	}
}

// Start 启动调度
func (s *Scheduler) Start() {
	s.sched.Start()
}

// Jobs 已注册任务数
func (s *Scheduler) Jobs() int {
	return len(s.sched.Jobs())
}

// Stop 停止调度并等待运行中的任务结束
func (s *Scheduler) Stop() error {
	return s.sched.Shutdown()
}
