package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"grid-trader/internal/config"
	"grid-trader/internal/monitor"
)

type eventLister interface {
	ListEvents(ctx context.Context, eventType monitor.EventType, limit int) ([]monitor.Event, error)
}

type server struct {
	orch      *orchestrator
	scheduler *Scheduler
	tuning    *gridTuning
	events    eventLister
	journal   journal
	logger    *zap.Logger
}

func newRouter(s *server) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/status", s.handleStatus)
	r.POST("/status/reset", s.handleReset)
	r.POST("/stop", s.handleStop)
	r.GET("/events", s.handleEvents)

	cfg := r.Group("/config")
	cfg.GET("/grid", s.handleGetGrid)
	cfg.PUT("/grid", s.handlePutGrid)

	return r
}

func (s *server) handleStatus(c *gin.Context) {
	status := s.orch.Status()
	if s.scheduler != nil {
		status.State = s.scheduler.State()
		status.Running = !s.scheduler.Stopped() && status.State != StateStopped
	}
	c.JSON(http.StatusOK, status)
}

func (s *server) handleReset(c *gin.Context) {
	s.orch.Reset()
	s.logger.Info("已清空运行统计")
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

func (s *server) handleStop(c *gin.Context) {
	if s.scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler unavailable"})
		return
	}
	s.scheduler.Stop()
	s.logger.Info("收到停止请求，当前周期结束后退出")
	c.JSON(http.StatusAccepted, gin.H{"message": "stopping"})
}

func (s *server) handleEvents(c *gin.Context) {
	if s.events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event journal disabled"})
		return
	}

	limit := 200
	if qs := c.Query("limit"); qs != "" {
		if v, err := strconv.Atoi(qs); err == nil && v > 0 {
			if v > 1000 {
				v = 1000
			}
			limit = v
		}
	}

	eventType := monitor.EventType("")
	if typ := strings.TrimSpace(c.Query("type")); typ != "" {
		eventType = monitor.EventType(strings.ToLower(typ))
	}

	events, err := s.events.ListEvents(c.Request.Context(), eventType, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, events)
}

func (s *server) handleGetGrid(c *gin.Context) {
	c.JSON(http.StatusOK, s.tuning.Load())
}

func (s *server) handlePutGrid(c *gin.Context) {
	next := s.tuning.Load()
	if err := c.ShouldBindJSON(&next); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("参数格式错误: %v", err)})
		return
	}

	previous, err := s.tuning.Update(next)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, config.ErrInvariant) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	s.logger.Info("网格参数已更新，下一轮生效",
		zap.Int("total_orders", next.TotalOrders),
		zap.Float64("window_percent", next.WindowPercent),
		zap.Float64("interval", next.Interval),
	)
	if s.journal != nil {
		s.journal.RecordConfigChange(c.Request.Context(), previous, next, "api")
	}
	c.JSON(http.StatusOK, next)
}

func startMonitorServer(ctx context.Context, handler http.Handler, port int, logger *zap.Logger) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("关闭监控服务失败", zap.Error(err))
		}
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("监控服务异常", zap.Error(err))
		}
	}()

	logger.Info("监控接口已启动", zap.String("addr", addr))
	return nil
}
