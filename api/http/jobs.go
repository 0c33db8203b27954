package http

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/forever-free1/DumpMixer/config"
	"github.com/forever-free1/DumpMixer/metrics"
	"github.com/forever-free1/DumpMixer/pipeline"
	"github.com/forever-free1/DumpMixer/rebuild"
	"github.com/forever-free1/DumpMixer/watch"
)

// ==================== 任务定义 ====================

// JobStatus 定义任务状态
type JobStatus string

const (
	JobPending JobStatus = "pending" // 已提交，排队等待
	JobRunning JobStatus = "running" // 正在执行
	JobDone    JobStatus = "done"    // 成功结束
	JobFailed  JobStatus = "failed"  // 失败结束
)

// JobRequest 表示一次通过 API 提交的重建请求
type JobRequest struct {
	Module        string   `json:"module" binding:"required"`
	DumpsDir      string   `json:"dumps_dir"`
	Profile       string   `json:"profile,omitempty"`
	OutputFile    string   `json:"output_file,omitempty"`
	LogFiles      []string `json:"log_files,omitempty"`
	CompressCopy  bool     `json:"compress_copy,omitempty"`
	WriteManifest bool     `json:"write_manifest,omitempty"`
}

// Job 表示一个重建任务及其当前状态
type Job struct {
	ID          string           `json:"id"`
	Status      JobStatus        `json:"status"`
	Request     JobRequest       `json:"request"`
	Summary     *rebuild.Summary `json:"summary,omitempty"`
	Warnings    []string         `json:"warnings,omitempty"`
	Error       string           `json:"error,omitempty"`
	SubmittedAt int64            `json:"submitted_at"`
	StartedAt   int64            `json:"started_at,omitempty"`
	FinishedAt  int64            `json:"finished_at,omitempty"`
}

// ==================== 任务管理器 ====================

// Manager 管理重建任务的提交与串行执行
// 重建是严格顺序写出的单一流，任务之间不并行，一次只跑一个
type Manager struct {
	cfg     *config.Config
	logger  hclog.Logger
	hub     *watch.Hub
	metrics *metrics.Metrics // 可为 nil

	mu   sync.RWMutex
	jobs map[string]*Job
	seq  int64

	queue  chan *Job
	stopCh chan struct{}
}

// NewManager 创建新的 Manager 并启动后台执行 goroutine
//
// 参数：
//   - cfg: 配置
//   - logger: 结构化日志
//   - hub: 进度事件通知中心
//   - m: 监控指标，可为 nil
//
// 返回：
//   - *Manager: Manager 实例
func NewManager(cfg *config.Config, logger hclog.Logger, hub *watch.Hub, m *metrics.Metrics) *Manager {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	mgr := &Manager{
		cfg:     cfg,
		logger:  logger.Named("jobs"),
		hub:     hub,
		metrics: m,
		jobs:    make(map[string]*Job),
		queue:   make(chan *Job, 64),
		stopCh:  make(chan struct{}),
	}

	// 后台 worker：任务串行执行
	go mgr.worker()

	return mgr
}

// Submit 提交一个新任务
//
// 参数：
//   - req: 重建请求
//
// 返回：
//   - *Job: 任务快照
//   - error: 队列已满或请求不合法
func (m *Manager) Submit(req JobRequest) (*Job, error) {
	if req.Module == "" {
		return nil, fmt.Errorf("缺少目标模块名")
	}
	if req.DumpsDir == "" && len(req.LogFiles) == 0 {
		return nil, fmt.Errorf("缺少转储目录")
	}

	m.mu.Lock()
	m.seq++
	job := &Job{
		ID:          fmt.Sprintf("job-%06d", m.seq),
		Status:      JobPending,
		Request:     req,
		SubmittedAt: time.Now().Unix(),
	}
	m.jobs[job.ID] = job
	m.mu.Unlock()

	select {
	case m.queue <- job:
	default:
		m.mu.Lock()
		job.Status = JobFailed
		job.Error = "任务队列已满"
		m.mu.Unlock()
		return nil, fmt.Errorf("任务队列已满")
	}

	return m.snapshot(job.ID), nil
}

// Get 根据 ID 获取任务快照
//
// 参数：
//   - id: 任务 ID
//
// 返回：
//   - *Job: 任务快照
//   - bool: 任务是否存在
func (m *Manager) Get(id string) (*Job, bool) {
	job := m.snapshot(id)
	return job, job != nil
}

// snapshot 返回任务的浅拷贝，避免调用方与 worker 竞争
func (m *Manager) snapshot(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil
	}
	cp := *job
	return &cp
}

// Close 停止后台 worker
func (m *Manager) Close() {
	close(m.stopCh)
}

// ==================== 任务执行 ====================

// worker 后台 goroutine，从队列取任务串行执行
func (m *Manager) worker() {
	for {
		select {
		case <-m.stopCh:
			return
		case job := <-m.queue:
			m.run(job)
		}
	}
}

// run 执行单个任务的完整流水线
func (m *Manager) run(job *Job) {
	m.mu.Lock()
	job.Status = JobRunning
	job.StartedAt = time.Now().Unix()
	m.mu.Unlock()

	m.logger.Info("任务开始", "id", job.ID, "module", job.Request.Module)
	start := time.Now()

	outcome, err := pipeline.Run(context.Background(), m.cfg, pipeline.Request{
		Module:        job.Request.Module,
		DumpsDir:      job.Request.DumpsDir,
		Profile:       job.Request.Profile,
		OutputFile:    job.Request.OutputFile,
		LogFiles:      job.Request.LogFiles,
		CompressCopy:  job.Request.CompressCopy,
		WriteManifest: job.Request.WriteManifest,
	}, m.logger, m.hub)

	m.mu.Lock()
	job.FinishedAt = time.Now().Unix()
	if err != nil {
		job.Status = JobFailed
		job.Error = err.Error()
	} else {
		job.Status = JobDone
		job.Summary = outcome.Summary
		job.Warnings = outcome.Warnings
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("任务失败", "id", job.ID, "error", err)
		if m.metrics != nil {
			m.metrics.ObserveJob("failed", time.Since(start).Seconds(), 0, 0, 0)
		}
		return
	}

	s := outcome.Summary
	m.logger.Info("任务完成", "id", job.ID, "recovered", s.Recovered, "total", s.TotalPages)
	if m.metrics != nil {
		m.metrics.ObserveJob("done", time.Since(start).Seconds(), s.Recovered, s.ZeroFilled, s.ShortReads)
	}
}
