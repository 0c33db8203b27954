package extract

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forever-free1/DumpMixer/config"
)

func testConfig(interpreter string) *config.Config {
	return &config.Config{
		Interpreter:  interpreter,
		ExtractorBin: "/opt/vol/vol.py",
		PluginDir:    "/opt/vol/plugins",
		PageSize:     4096,
		OutputDir:    "output",
	}
}

func TestBuildArgs(t *testing.T) {
	r := NewRunner(testConfig("python2"), nil, nil)

	args := r.BuildArgs("/dumps/a.dmp", "mod.dll", "/out", "/out/a.log", "Win7SP1x64")
	want := []string{
		"/opt/vol/vol.py",
		"--plugins=/opt/vol/plugins",
		"--profile=Win7SP1x64",
		"-f", "/dumps/a.dmp",
		"-r", "mod.dll",
		"-D", "/out",
		"--log-memory-pages", "/out/a.log",
		"sum",
	}
	if len(args) != len(want) {
		t.Fatalf("参数数量不匹配: got %d, want %d\n%v", len(args), len(want), args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("参数 %d 不匹配: got %q, want %q", i, args[i], want[i])
		}
	}
}

func TestBuildArgs_NoProfile(t *testing.T) {
	r := NewRunner(testConfig("python2"), nil, nil)

	args := r.BuildArgs("/dumps/a.dmp", "mod.dll", "/out", "/out/a.log", "")
	for _, arg := range args {
		if strings.HasPrefix(arg, "--profile") {
			t.Errorf("未指定画像时不应出现 --profile: %v", args)
		}
	}
}

func TestExtractAll_Success(t *testing.T) {
	dir, err := os.MkdirTemp("", "extract_test")
	if err != nil {
		t.Fatalf("创建临时目录失败: %v", err)
	}
	defer os.RemoveAll(dir)

	dumpsDir := filepath.Join(dir, "dumps")
	if err := os.Mkdir(dumpsDir, 0755); err != nil {
		t.Fatalf("创建转储目录失败: %v", err)
	}
	for _, name := range []string{"a.dmp", "b.dmp"} {
		if err := os.WriteFile(filepath.Join(dumpsDir, name), []byte("dump"), 0644); err != nil {
			t.Fatalf("写入转储失败: %v", err)
		}
	}

	// true 命令忽略所有参数并以 0 退出，模拟提取成功
	r := NewRunner(testConfig("true"), nil, nil)
	logs, warnings, err := r.ExtractAll(context.Background(), dumpsDir, "mod.dll", dir, "")
	if err != nil {
		t.Fatalf("提取失败: %v", err)
	}
	if len(logs) != 2 {
		t.Errorf("日志数不匹配: got %d, want 2", len(logs))
	}
	if len(warnings) != 0 {
		t.Errorf("不应产生告警: %v", warnings)
	}
}

func TestExtractAll_FailureExcludesLog(t *testing.T) {
	dir, err := os.MkdirTemp("", "extract_test")
	if err != nil {
		t.Fatalf("创建临时目录失败: %v", err)
	}
	defer os.RemoveAll(dir)

	dumpsDir := filepath.Join(dir, "dumps")
	if err := os.Mkdir(dumpsDir, 0755); err != nil {
		t.Fatalf("创建转储目录失败: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dumpsDir, "a.dmp"), []byte("dump"), 0644); err != nil {
		t.Fatalf("写入转储失败: %v", err)
	}

	// false 命令以非零退出码结束，模拟提取失败
	r := NewRunner(testConfig("false"), nil, nil)
	logs, warnings, err := r.ExtractAll(context.Background(), dumpsDir, "mod.dll", dir, "")
	if err != nil {
		t.Fatalf("单个转储的提取失败不应致命: %v", err)
	}
	if len(logs) != 0 {
		t.Errorf("失败的转储不应贡献日志: %v", logs)
	}
	if len(warnings) != 1 {
		t.Errorf("应产生一条告警: %v", warnings)
	}
}

func TestExtractAll_SpaceInFilenameWarns(t *testing.T) {
	dir, err := os.MkdirTemp("", "extract_test")
	if err != nil {
		t.Fatalf("创建临时目录失败: %v", err)
	}
	defer os.RemoveAll(dir)

	dumpsDir := filepath.Join(dir, "dumps")
	if err := os.Mkdir(dumpsDir, 0755); err != nil {
		t.Fatalf("创建转储目录失败: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dumpsDir, "with space.dmp"), []byte("dump"), 0644); err != nil {
		t.Fatalf("写入转储失败: %v", err)
	}

	r := NewRunner(testConfig("true"), nil, nil)
	_, warnings, err := r.ExtractAll(context.Background(), dumpsDir, "mod.dll", dir, "")
	if err != nil {
		t.Fatalf("提取失败: %v", err)
	}
	var found bool
	for _, w := range warnings {
		if strings.Contains(w, "空格") {
			found = true
		}
	}
	if !found {
		t.Errorf("文件名包含空格应产生告警: %v", warnings)
	}
}

func TestExtractAll_MissingDirIsFatal(t *testing.T) {
	r := NewRunner(testConfig("true"), nil, nil)
	_, _, err := r.ExtractAll(context.Background(), "/nonexistent/dumps", "mod.dll", "/tmp", "")
	if err == nil {
		t.Error("转储目录不存在应返回错误")
	}
}
