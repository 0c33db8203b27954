package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/forever-free1/DumpMixer/config"
	"github.com/forever-free1/DumpMixer/metrics"
	"github.com/forever-free1/DumpMixer/watch"
)

const testPageSize = 16

// newTestServer 构造一个带临时输出目录的测试服务器
func newTestServer(t *testing.T, dir string) (*Server, *Manager) {
	t.Helper()

	cfg := &config.Config{
		PageSize:  testPageSize,
		OutputDir: filepath.Join(dir, "out"),
	}

	hub := watch.NewHub()
	t.Cleanup(hub.Close)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	manager := NewManager(cfg, nil, hub, m)
	t.Cleanup(manager.Close)

	return NewServer(":0", manager, hub, registry), manager
}

// writeFixture 生成一个转储文件和指向它的页面清单日志
func writeFixture(t *testing.T, dir string) string {
	t.Helper()

	buf := make([]byte, 3*testPageSize)
	for i := range buf {
		buf[i] = 0x5A
	}
	dump := filepath.Join(dir, "a.dmp")
	if err := os.WriteFile(dump, buf, 0644); err != nil {
		t.Fatalf("写入转储失败: %v", err)
	}

	logPath := filepath.Join(dir, "mem.log")
	line := fmt.Sprintf("%s,d1,v1:0,1,2:3\n", dump)
	if err := os.WriteFile(logPath, []byte(line), 0644); err != nil {
		t.Fatalf("写入日志失败: %v", err)
	}
	return logPath
}

func TestHandler_HealthCheck(t *testing.T) {
	dir, err := os.MkdirTemp("", "api_test")
	if err != nil {
		t.Fatalf("创建临时目录失败: %v", err)
	}
	defer os.RemoveAll(dir)

	server, _ := newTestServer(t, dir)

	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("状态码不匹配: got %d, want %d", w.Code, http.StatusOK)
	}
}

func TestHandler_SubmitAndPollJob(t *testing.T) {
	dir, err := os.MkdirTemp("", "api_test")
	if err != nil {
		t.Fatalf("创建临时目录失败: %v", err)
	}
	defer os.RemoveAll(dir)

	server, _ := newTestServer(t, dir)
	logPath := writeFixture(t, dir)

	body, _ := json.Marshal(JobRequest{
		Module:   "mod.dll",
		LogFiles: []string{logPath},
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/mix", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	server.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("提交状态码不匹配: got %d, body: %s", w.Code, w.Body.String())
	}
	var submitResp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &submitResp); err != nil {
		t.Fatalf("解析提交响应失败: %v", err)
	}
	if submitResp.ID == "" {
		t.Fatal("提交响应缺少任务 ID")
	}

	// 任务异步执行，轮询直到结束
	deadline := time.Now().Add(5 * time.Second)
	for {
		w := httptest.NewRecorder()
		server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/mix/"+submitResp.ID, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("查询状态码不匹配: got %d", w.Code)
		}

		var job Job
		if err := json.Unmarshal(w.Body.Bytes(), &job); err != nil {
			t.Fatalf("解析任务失败: %v", err)
		}
		if job.Status == JobDone {
			if job.Summary == nil || job.Summary.Recovered != 3 {
				t.Errorf("任务摘要不匹配: %+v", job.Summary)
			}
			return
		}
		if job.Status == JobFailed {
			t.Fatalf("任务失败: %s", job.Error)
		}
		if time.Now().After(deadline) {
			t.Fatalf("任务超时未结束: status=%s", job.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestHandler_SubmitInvalidRequest(t *testing.T) {
	dir, err := os.MkdirTemp("", "api_test")
	if err != nil {
		t.Fatalf("创建临时目录失败: %v", err)
	}
	defer os.RemoveAll(dir)

	server, _ := newTestServer(t, dir)

	// 缺少必填的 module 字段
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/mix", bytes.NewReader([]byte(`{"dumps_dir":"/dumps"}`)))
	req.Header.Set("Content-Type", "application/json")
	server.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("状态码不匹配: got %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandler_GetJobNotFound(t *testing.T) {
	dir, err := os.MkdirTemp("", "api_test")
	if err != nil {
		t.Fatalf("创建临时目录失败: %v", err)
	}
	defer os.RemoveAll(dir)

	server, _ := newTestServer(t, dir)

	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/mix/job-999999", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("状态码不匹配: got %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandler_Metrics(t *testing.T) {
	dir, err := os.MkdirTemp("", "api_test")
	if err != nil {
		t.Fatalf("创建临时目录失败: %v", err)
	}
	defer os.RemoveAll(dir)

	server, _ := newTestServer(t, dir)

	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Errorf("状态码不匹配: got %d, want %d", w.Code, http.StatusOK)
	}
}

func TestManager_SubmitValidation(t *testing.T) {
	dir, err := os.MkdirTemp("", "api_test")
	if err != nil {
		t.Fatalf("创建临时目录失败: %v", err)
	}
	defer os.RemoveAll(dir)

	_, manager := newTestServer(t, dir)

	if _, err := manager.Submit(JobRequest{DumpsDir: "/dumps"}); err == nil {
		t.Error("缺少模块名应返回错误")
	}
	if _, err := manager.Submit(JobRequest{Module: "mod.dll"}); err == nil {
		t.Error("缺少转储目录与日志应返回错误")
	}
}
