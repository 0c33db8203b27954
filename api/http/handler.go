package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forever-free1/DumpMixer/watch"
)

// ==================== Handler 定义 ====================

// Handler HTTP 请求处理器
type Handler struct {
	// 任务管理器
	manager *Manager

	// 进度事件通知中心
	watchHub *watch.Hub

	// 指标注册表，可为 nil（此时不暴露 /metrics）
	registry *prometheus.Registry
}

// NewHandler 创建新的 Handler
//
// 参数：
//   - manager: 任务管理器
//   - watchHub: 进度事件通知中心
//   - registry: 指标注册表，可为 nil
//
// 返回：
//   - *Handler: Handler 实例
func NewHandler(manager *Manager, watchHub *watch.Hub, registry *prometheus.Registry) *Handler {
	return &Handler{
		manager:  manager,
		watchHub: watchHub,
		registry: registry,
	}
}

// ==================== API 路由 ====================

// RegisterRoutes 注册所有路由
//
// 参数：
//   - engine: Gin 引擎
func (h *Handler) RegisterRoutes(engine *gin.Engine) {
	// 健康检查
	engine.GET("/health", h.HealthCheck)

	// 监控指标
	if h.registry != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})))
	}

	// 重建任务 API
	v1 := engine.Group("/v1")
	{
		mix := v1.Group("/mix")
		{
			mix.POST("", h.SubmitJob)
			mix.GET("/:id", h.GetJob)
		}

		// Watch API (SSE 长连接)
		v1.GET("/watch", h.Watch)
	}
}

// ==================== API 处理函数 ====================

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// SubmitJob 提交重建任务
// POST /v1/mix
func (h *Handler) SubmitJob(c *gin.Context) {
	var req JobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid request: " + err.Error(),
		})
		return
	}

	// 提交到任务队列
	job, err := h.manager.Submit(req)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "submit failed: " + err.Error(),
		})
		return
	}

	// 任务是异步执行的，返回 ID 供调用方轮询
	c.JSON(http.StatusAccepted, gin.H{
		"id":     job.ID,
		"status": job.Status,
	})
}

// GetJob 查询任务状态
// GET /v1/mix/:id
func (h *Handler) GetJob(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "id is required",
		})
		return
	}

	job, ok := h.manager.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "job not found",
		})
		return
	}

	c.JSON(http.StatusOK, job)
}

// ==================== Watch (SSE) ====================

// Watch 处理 Watch 请求
// GET /v1/watch?topic=xxx
// 使用 Server-Sent Events (SSE) 实现长连接
func (h *Handler) Watch(c *gin.Context) {
	// 获取要监听的主题前缀
	topic := c.DefaultQuery("topic", "")

	// 设置响应头
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	// 注册 Watcher
	// 使用较大的缓冲区以支持高并发场景
	watcher := h.watchHub.Watch(topic, 1000)
	defer h.watchHub.Unregister(watcher)

	// 创建客户端断开连接的检测
	clientGone := c.Request.Context().Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	// 开始推送事件
	c.Status(http.StatusOK)
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "streaming not supported",
		})
		return
	}

	// 发送初始连接消息
	fmt.Fprintf(c.Writer, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-clientGone:
			// 客户端断开连接
			return

		case event := <-watcher.Ch:
			// 发送事件
			data, err := watch.EventToJSON(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(c.Writer, "data: %s\n\n", data)
			flusher.Flush()

		case <-ticker.C:
			// 发送心跳，保持连接
			fmt.Fprintf(c.Writer, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

// ==================== 服务器启动 ====================

// Server HTTP 服务器
type Server struct {
	addr    string
	engine  *gin.Engine
	handler *Handler
}

// NewServer 创建新的 Server
func NewServer(addr string, manager *Manager, watchHub *watch.Hub, registry *prometheus.Registry) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	handler := NewHandler(manager, watchHub, registry)
	handler.RegisterRoutes(engine)

	return &Server{
		addr:    addr,
		engine:  engine,
		handler: handler,
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	return s.engine.Run(s.addr)
}

// ServeHTTP 实现 http.Handler 接口
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// StartTLS 启动 HTTPS 服务器
func (s *Server) StartTLS(certFile, keyFile string) error {
	return s.engine.RunTLS(s.addr, certFile, keyFile)
}
