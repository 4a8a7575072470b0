// Package main 提供 isomux 命令行入口
//
// 服务端模式模拟发卡方主机，对每个请求回应成功应答；
// 客户端模式构建 Switch 并发起压测请求。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dep2p/go-isomux"
	"github.com/dep2p/go-isomux/config"
	"github.com/dep2p/go-isomux/pkg/lib/log"
)

var logger = log.Logger("isomux/cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
//   命令行参数：运行时覆盖 / 快速测试
//   JSON 配置文件：持久化配置
//
// ═══════════════════════════════════════════════════════════════════════════
var (
	configFile  = flag.String("config", "", "配置文件路径")
	mode        = flag.String("mode", "client", "运行模式 (client/server)")
	addr        = flag.String("addr", "", "对端地址（client）或监听地址（server），覆盖配置文件")
	count       = flag.Int("count", 100, "请求总数（client）")
	concurrency = flag.Int("concurrency", 8, "并发请求数（client）")
	timeout     = flag.Duration("timeout", 30*time.Second, "单个请求超时（client）")
	logLevel    = flag.String("log-level", "", "日志级别 (debug/info/warn/error)，覆盖配置文件")
	showVersion = flag.Bool("version", false, "显示版本信息")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		fmt.Println(isomux.VersionInfo())
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}
	if err := setupLogging(cfg); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch *mode {
	case "server":
		return runServer(ctx, cfg)
	case "client":
		return runClient(ctx, cfg)
	default:
		return fmt.Errorf("未知模式 %q", *mode)
	}
}

// loadConfig 加载配置文件并应用命令行覆盖
func loadConfig() (*config.Config, error) {
	cfg := config.NewConfig()
	if *configFile != "" {
		loaded, err := config.LoadFile(*configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if *addr != "" {
		cfg.Channel.Address = *addr
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *count <= 0 || *concurrency <= 0 {
		return nil, fmt.Errorf("count 和 concurrency 必须为正数")
	}
	return config.ValidateAndFix(cfg)
}

// setupLogging 按配置设置全局日志
func setupLogging(cfg *config.Config) error {
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	log.Configure(os.Stderr, cfg.Log.Format, level)
	return nil
}
