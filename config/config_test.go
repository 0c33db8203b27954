package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Interpreter != "python2" {
		t.Errorf("默认解释器不匹配: got %q", cfg.Interpreter)
	}
	if cfg.PageSize != 4096 {
		t.Errorf("默认页大小不匹配: got %d", cfg.PageSize)
	}
	if cfg.OutputDir != "output" {
		t.Errorf("默认输出目录不匹配: got %q", cfg.OutputDir)
	}
}

func TestLoad(t *testing.T) {
	dir, err := os.MkdirTemp("", "config_test")
	if err != nil {
		t.Fatalf("创建临时目录失败: %v", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "config.yaml")
	content := `
interpreter: /usr/bin/python2
extractor_bin: /opt/vol/vol.py
plugin_dir: /opt/vol/plugins
page_size: 8192
output_dir: /tmp/mixed
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.Interpreter != "/usr/bin/python2" {
		t.Errorf("解释器不匹配: got %q", cfg.Interpreter)
	}
	if cfg.ExtractorBin != "/opt/vol/vol.py" {
		t.Errorf("提取工具路径不匹配: got %q", cfg.ExtractorBin)
	}
	if cfg.PluginDir != "/opt/vol/plugins" {
		t.Errorf("插件目录不匹配: got %q", cfg.PluginDir)
	}
	if cfg.PageSize != 8192 {
		t.Errorf("页大小不匹配: got %d", cfg.PageSize)
	}
	if cfg.OutputDir != "/tmp/mixed" {
		t.Errorf("输出目录不匹配: got %q", cfg.OutputDir)
	}
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	dir, err := os.MkdirTemp("", "config_test")
	if err != nil {
		t.Fatalf("创建临时目录失败: %v", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("output_dir: out\n"), 0644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	// 未出现的字段保持默认值
	if cfg.PageSize != 4096 || cfg.Interpreter != "python2" {
		t.Errorf("部分配置未保持默认值: %+v", cfg)
	}
	if cfg.OutputDir != "out" {
		t.Errorf("输出目录不匹配: got %q", cfg.OutputDir)
	}
}

func TestLoad_Invalid(t *testing.T) {
	dir, err := os.MkdirTemp("", "config_test")
	if err != nil {
		t.Fatalf("创建临时目录失败: %v", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("page_size: -1\n"), 0644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("无效页大小应返回错误")
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("不存在的配置文件应返回错误")
	}
}
