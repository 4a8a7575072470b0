package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-isomux/config"
	"github.com/dep2p/go-isomux/pkg/interfaces"
)

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Registry interfaces.Registry

	Config   *config.Config        `optional:"true"`
	Prom     prometheus.Registerer `optional:"true"`
	Gatherer prometheus.Gatherer   `optional:"true"`
}

// ModuleOutput 模块输出
type ModuleOutput struct {
	fx.Out

	Collector *Collector
	Reporter  *Reporter
}

// ProvideMetrics 创建收集器，按配置创建 Reporter
//
// 未注入 Registerer 时使用独立的 prometheus.Registry，
// 不污染进程默认注册表。禁用时两个输出都为 nil。
func ProvideMetrics(input ModuleInput) (ModuleOutput, error) {
	cfg := ConfigFromUnified(input.Config)
	if err := cfg.Validate(); err != nil {
		return ModuleOutput{}, err
	}
	if !cfg.Enabled {
		logger.Debug("指标导出已禁用")
		return ModuleOutput{}, nil
	}

	reg, gatherer := input.Prom, input.Gatherer
	if reg == nil {
		own := prometheus.NewRegistry()
		reg, gatherer = own, own
	} else if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	c := NewCollector(cfg.Namespace, input.Registry, cfg.Clock)
	if err := reg.Register(c); err != nil {
		return ModuleOutput{}, err
	}

	out := ModuleOutput{Collector: c}
	if cfg.ListenAddr != "" {
		out.Reporter = NewReporter(cfg.ListenAddr, cfg.Path, gatherer)
	}
	return out, nil
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(ProvideMetrics),
		fx.Invoke(registerLifecycle),
	)
}

// lifecycleInput 生命周期输入参数
type lifecycleInput struct {
	fx.In
	LC       fx.Lifecycle
	Reporter *Reporter `optional:"true"`
}

// registerLifecycle 注册生命周期钩子
func registerLifecycle(input lifecycleInput) {
	if input.Reporter == nil {
		return
	}
	input.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return input.Reporter.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return input.Reporter.Stop(ctx)
		},
	})
}

// 模块元信息常量
const (
	Version     = "1.0.0"
	Name        = "metrics"
	Description = "多路复用器计数器 Prometheus 导出"
)
