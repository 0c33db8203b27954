package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config 是整个工具的显式配置
// 外部提取工具的路径、页大小等都从这里注入各阶段，不使用任何全局状态
type Config struct {
	// Interpreter 运行提取工具的解释器路径（提取工具是 Python2 程序）
	Interpreter string `yaml:"interpreter"`

	// ExtractorBin 提取工具入口脚本路径
	ExtractorBin string `yaml:"extractor_bin"`

	// PluginDir 页面清单插件所在目录，通过 --plugins 传给提取工具
	PluginDir string `yaml:"plugin_dir"`

	// PageSize 页大小（字节）
	PageSize int `yaml:"page_size"`

	// OutputDir 输出目录：提取日志与混合产物都落在这里
	OutputDir string `yaml:"output_dir"`
}

// Default 返回默认配置
// 返回：
//   - *Config: 配置指针
func Default() *Config {
	return &Config{
		Interpreter: "python2",
		PageSize:    4096,
		OutputDir:   "output",
	}
}

// Load 从 YAML 文件加载配置
// 文件中未出现的字段保持默认值
// 参数：
//   - path: 配置文件路径
//
// 返回：
//   - *Config: 配置指针
//   - error: 读取或解析错误
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("配置的页大小无效: %d", cfg.PageSize)
	}
	return cfg, nil
}
