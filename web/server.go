package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"tradesync/config"
	"tradesync/database"
	"tradesync/logger"
	"tradesync/syncer"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server 查询与手动触发 API
type Server struct {
	db   database.Database
	orch *syncer.Orchestrator
	srv  *http.Server
}

// NewServer 创建 Web 服务
func NewServer(cfg *config.WebConfig, db database.Database, orch *syncer.Orchestrator) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		db:   db,
		orch: orch,
	}

	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api")
	{
		api.GET("/trades", s.handleTrades)
		api.GET("/runs", s.handleRuns)
		api.GET("/reconciliations", s.handleReconciliations)
		api.GET("/health", s.handleHealthAll)
		api.GET("/health/:account", s.handleHealth)
		api.POST("/sync/:account", s.handleTriggerSync)
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", s.handleHealthz)

	s.srv = &http.Server{
		Addr:    cfg.Listen,
		Handler: router,
	}
	return s
}

// Start 启动 HTTP 服务（阻塞）
func (s *Server) Start() error {
	logger.Info("🌐 Web 服务启动: %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// handleTrades 查询聚合交易
func (s *Server) handleTrades(c *gin.Context) {
	filter := &database.TradeFilter{
		AccountID:  c.Query("account"),
		Instrument: c.Query("instrument"),
		Direction:  c.Query("direction"),
		Limit:      intQuery(c, "limit", 100),
		Offset:     intQuery(c, "offset", 0),
	}

	var ok bool
	if filter.StartTime, ok = timeQuery(c, "start"); !ok {
		return
	}
	if filter.EndTime, ok = timeQuery(c, "end"); !ok {
		return
	}

	trades, err := s.db.GetAggregatedTrades(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(trades), "trades": trades})
}

// handleRuns 查询同步运行记录
func (s *Server) handleRuns(c *gin.Context) {
	filter := &database.SyncRunFilter{
		AccountID: c.Query("account"),
		Status:    c.Query("status"),
		Limit:     intQuery(c, "limit", 100),
		Offset:    intQuery(c, "offset", 0),
	}

	runs, err := s.db.GetSyncRuns(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(runs), "runs": runs})
}

// handleReconciliations 查询对账历史
func (s *Server) handleReconciliations(c *gin.Context) {
	filter := &database.ReconciliationFilter{
		AccountID: c.Query("account"),
		Limit:     intQuery(c, "limit", 100),
		Offset:    intQuery(c, "offset", 0),
	}

	if v := c.Query("within_tolerance"); v != "" {
		within := v == "true" || v == "1"
		filter.WithinTolerance = &within
	}

	var ok bool
	if filter.StartTime, ok = timeQuery(c, "start"); !ok {
		return
	}
	if filter.EndTime, ok = timeQuery(c, "end"); !ok {
		return
	}

	recons, err := s.db.GetReconciliations(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(recons), "reconciliations": recons})
}

// handleHealthAll 全部账户的同步健康状态
func (s *Server) handleHealthAll(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"accounts": s.orch.Monitor().HealthAll()})
}

// handleHealth 单个账户的同步健康状态
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.orch.Monitor().Health(c.Param("account")))
}

// handleTriggerSync 手动触发同步
// 单飞冲突返回 409，配额耗尽与退避中返回 429；force=true 绕过退避窗口
func (s *Server) handleTriggerSync(c *gin.Context) {
	accountID := c.Param("account")
	force := c.Query("force") == "true" || c.Query("force") == "1"

	run, err := s.orch.Sync(c.Request.Context(), accountID, force)
	if err != nil {
		switch {
		case errors.Is(err, syncer.ErrAccountNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, syncer.ErrSyncInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, syncer.ErrQuotaExhausted), errors.Is(err, syncer.ErrBackoffActive):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		default:
			// 同步运行失败：运行摘要仍然返回给调用方
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "run": run})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"run": run})
}

// handleHealthz 进程存活与数据库连通性
func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// intQuery 解析整型查询参数
func intQuery(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// timeQuery 解析 RFC3339 时间查询参数，格式错误直接返回 400
func timeQuery(c *gin.Context, key string) (*time.Time, bool) {
	v := c.Query(key)
	if v == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "时间参数 " + key + " 格式错误，应为 RFC3339"})
		return nil, false
	}
	return &t, true
}
