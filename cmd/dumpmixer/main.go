package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	api "github.com/forever-free1/DumpMixer/api/http"
	"github.com/forever-free1/DumpMixer/config"
	"github.com/forever-free1/DumpMixer/metrics"
	"github.com/forever-free1/DumpMixer/mixer"
	"github.com/forever-free1/DumpMixer/pipeline"
	"github.com/forever-free1/DumpMixer/watch"
)

// ==================== 全局选项 ====================

var (
	configPath string
	outputDir  string
	pageSize   int
	verbose    bool
)

// loadConfig 加载配置并套用命令行覆盖项
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}
	if pageSize > 0 {
		cfg.PageSize = pageSize
	}
	return cfg, nil
}

// newLogger 创建结构化日志
func newLogger() hclog.Logger {
	level := hclog.Info
	if verbose {
		level = hclog.Debug
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:  "dumpmixer",
		Level: level,
	})
}

// ==================== mix 子命令 ====================

var (
	profile       string
	outputFile    string
	logFiles      []string
	indexType     string
	compressCopy  bool
	writeManifest bool
)

// newMixCmd 构造 mix 子命令：单次运行，提取 + 混合 + 重建
func newMixCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mix MODULE-NAME DUMPS-FOLDER",
		Short: "从多份内存转储中混合重建目标模块",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			moduleName := args[0]
			dumpsDir := ""
			if len(args) > 1 {
				dumpsDir = args[1]
			}
			if dumpsDir == "" && len(logFiles) == 0 {
				return fmt.Errorf("必须提供转储目录或通过 --log 指定页面清单日志")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger()

			it := mixer.IndexTypeAVL
			if indexType == "art" {
				it = mixer.IndexTypeART
			}

			if len(logFiles) == 0 {
				fmt.Println("[>] Ready to parse dumps...")
			}
			fmt.Printf("[*] Mixing module %s...\n", moduleName)

			outcome, err := pipeline.Run(context.Background(), cfg, pipeline.Request{
				Module:        moduleName,
				DumpsDir:      dumpsDir,
				Profile:       profile,
				OutputFile:    outputFile,
				LogFiles:      logFiles,
				IndexType:     it,
				CompressCopy:  compressCopy,
				WriteManifest: writeManifest,
			}, logger, nil)
			if err != nil {
				return err
			}

			for _, w := range outcome.Warnings {
				fmt.Printf("[!] %s\n", w)
			}
			s := outcome.Summary
			fmt.Printf("[*] Writing %s... done!\n", s.OutputPath)
			fmt.Printf("[*] %d out of %d memory pages retrieved\n", s.Recovered, s.TotalPages)
			return nil
		},
	}

	cmd.Flags().StringVarP(&profile, "profile", "p", "", "系统画像名，透传给提取工具")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "输出文件名（默认 <MODULE-NAME>.mixed）")
	cmd.Flags().StringSliceVar(&logFiles, "log", nil, "直接使用指定的页面清单日志，跳过提取阶段")
	cmd.Flags().StringVar(&indexType, "index", "avl", "页面归属索引类型（avl / art）")
	cmd.Flags().BoolVar(&compressCopy, "compress", false, "同时写出 snappy 压缩副本")
	cmd.Flags().BoolVar(&writeManifest, "manifest", false, "同时写出页面归属清单")
	return cmd
}

// ==================== serve 子命令 ====================

var serveAddr string

// newServeCmd 构造 serve 子命令：以 HTTP 服务方式接收重建任务
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务，通过 API 提交与跟踪重建任务",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger()

			hub := watch.NewHub()
			defer hub.Close()

			registry := prometheus.NewRegistry()
			m := metrics.New(registry)

			manager := api.NewManager(cfg, logger, hub, m)
			defer manager.Close()

			server := api.NewServer(serveAddr, manager, hub, registry)
			logger.Info("HTTP 服务启动", "addr", serveAddr)
			return server.Start()
		},
	}

	cmd.Flags().StringVar(&serveAddr, "addr", ":8080", "HTTP 监听地址")
	return cmd
}

// ==================== 入口 ====================

func main() {
	root := &cobra.Command{
		Use:           "dumpmixer",
		Short:         "把同一模块分散在多份内存转储中的页面混合重建为单一文件",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML 配置文件路径")
	root.PersistentFlags().StringVarP(&outputDir, "output-dir", "d", "", "输出目录（覆盖配置）")
	root.PersistentFlags().IntVarP(&pageSize, "page-size", "s", 0, "页大小（字节，覆盖配置）")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "输出调试日志")

	root.AddCommand(newMixCmd())
	root.AddCommand(newServeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "[x] %v\n", err)
		os.Exit(1)
	}
}
