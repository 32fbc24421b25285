package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/wfunc/runner-game/internal/api"
	"github.com/wfunc/runner-game/internal/config"
	"github.com/wfunc/runner-game/internal/database"
	"github.com/wfunc/runner-game/internal/errors"
	"github.com/wfunc/runner-game/internal/logger"
	"github.com/wfunc/runner-game/internal/mq"
	"github.com/wfunc/runner-game/internal/ratelimit"
	"github.com/wfunc/runner-game/internal/scheduler"
	"github.com/wfunc/runner-game/internal/service"
	"github.com/wfunc/runner-game/internal/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 服务器实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	db        *gorm.DB
	redis     *redis.Client
	publisher *mq.Publisher
	sweeper   scheduler.Sweeper
	services  *service.Services
	scheduler *scheduler.Scheduler
	http      *http.Server

	wg sync.WaitGroup
}

func main() {
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
	)
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Cleanup()

	server := NewServer(cfg)

	if err := server.Start(); err != nil {
		logger.Fatal("Server failed to start", zap.Error(err))
	}

	server.WaitForShutdown()

	if err := server.Shutdown(); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Server stopped")
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger.GetLogger(),
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("Starting runner game server",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode),
	)

	if err := s.initComponents(); err != nil {
		return errors.Wrap(err, errors.ErrUnknown, "初始化组件失败")
	}

	if err := s.startServices(); err != nil {
		return errors.Wrap(err, errors.ErrUnknown, "启动服务失败")
	}

	// 热更新只调整日志级别，其余配置需要重启
	config.Watch(func(newCfg *config.Config) {
		logger.SetLevel(newCfg.Log.Level)
		s.logger.Info("Configuration reloaded", zap.String("log_level", newCfg.Log.Level))
	})

	s.logger.Info("Server started", zap.String("http", s.cfg.Server.Addr()))
	return nil
}

// initComponents 按依赖顺序初始化组件
func (s *Server) initComponents() error {
	if err := s.initDatabase(); err != nil {
		return err
	}

	guard, err := s.initRateLimit()
	if err != nil {
		return err
	}

	var notifier service.RewardNotifier
	if s.cfg.MQ.Enabled {
		publisher, err := mq.Dial(&s.cfg.MQ)
		if err != nil {
			return err
		}
		s.publisher = publisher
		notifier = publisher
		s.logger.Info("Reward events enabled", zap.String("queue", s.cfg.MQ.QueueName))
	}

	s.services = service.NewServices(
		s.db,
		service.ConfigFromApp(s.cfg),
		guard,
		notifier,
		logger.WithModule("game"),
	)

	gin.SetMode(ginMode(s.cfg.Server.Mode))
	jwt := utils.NewJWTManager(s.cfg.Security.JWT.Secret, time.Duration(s.cfg.Security.JWT.ExpireHours)*time.Hour)
	router := api.NewRouter(s.db, s.services, jwt, logger.WithModule("api"))

	s.http = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      router.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}
	return nil
}

// initDatabase 初始化数据库
func (s *Server) initDatabase() error {
	if s.cfg.Database.Driver == "sqlite" {
		database.CleanupStaleLocks(s.cfg.Database.DSN)
	}

	if err := database.Init(&s.cfg.Database); err != nil {
		return errors.Wrap(err, errors.ErrDatabaseConnect, "初始化数据库连接失败")
	}

	if s.cfg.Database.AutoMigrate {
		s.logger.Info("Running database migration")
		if err := database.AutoMigrate(); err != nil {
			return errors.Wrap(err, errors.ErrDatabaseConnect, "数据库迁移失败")
		}
	}

	if !database.IsConnected() {
		return errors.New(errors.ErrDatabaseConnect, "数据库连接检查失败")
	}

	s.db = database.GetDB()
	return nil
}

// initRateLimit 根据配置选择限流后端
func (s *Server) initRateLimit() (*ratelimit.Guard, error) {
	rl := s.cfg.Security.RateLimit
	if !rl.Enabled {
		s.logger.Warn("Rate limiting disabled")
		return ratelimit.NewGuard(nil, nil), nil
	}

	budgets := ratelimit.BudgetsFromConfig(rl)

	switch rl.Backend {
	case "redis":
		client, err := database.NewRedis(&s.cfg.Redis)
		if err != nil {
			return nil, err
		}
		s.redis = client
		s.logger.Info("Rate limiting backed by redis", zap.String("addr", s.cfg.Redis.Addr))
		return ratelimit.NewGuard(ratelimit.NewRedisLimiter(client, ""), budgets), nil
	case "", "memory":
		limiter := ratelimit.NewMemoryLimiter()
		s.sweeper = limiter
		return ratelimit.NewGuard(limiter, budgets), nil
	default:
		return nil, errors.Newf(errors.ErrConfigLoad, "unknown rate limit backend: %s", rl.Backend)
	}
}

// startServices 启动HTTP服务与定时任务
func (s *Server) startServices() error {
	schedCfg := scheduler.Config{SweepInterval: s.cfg.Security.RateLimit.SweepInterval}
	if s.cfg.Reaper.Enabled {
		schedCfg.ReapInterval = s.cfg.Reaper.Interval
	}
	sched, err := scheduler.New(schedCfg, s.services.Game, s.sweeper, logger.WithModule("scheduler"))
	if err != nil {
		return err
	}
	s.scheduler = sched
	s.scheduler.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("HTTP server listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	return nil
}

// WaitForShutdown 等待关闭信号
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	s.logger.Info("Received signal", zap.String("signal", sig.String()))
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Warn("HTTP shutdown timed out", zap.Error(err))
		return errors.Wrap(err, errors.ErrTimeout, "关闭超时")
	}
	s.wg.Wait()

	s.closeComponents()
	return nil
}

// closeComponents 关闭组件，错误只记录不中断
func (s *Server) closeComponents() {
	if s.scheduler != nil {
		if err := s.scheduler.Stop(); err != nil {
			s.logger.Error("Failed to stop scheduler", zap.Error(err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.logger.Error("Failed to close publisher", zap.Error(err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close redis", zap.Error(err))
		}
	}
	if err := database.Close(); err != nil {
		s.logger.Error("Failed to close database", zap.Error(err))
	}
}

func ginMode(mode string) string {
	switch mode {
	case "production", "release":
		return gin.ReleaseMode
	case "test":
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("Runner game server\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
