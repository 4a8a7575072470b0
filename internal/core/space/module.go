package space

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-isomux/config"
	"github.com/dep2p/go-isomux/internal/core/space/badger"
	"github.com/dep2p/go-isomux/pkg/interfaces"
)

// ============================================================================
//                              模块输入输出
// ============================================================================

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config *config.Config `optional:"true"`
}

// ModuleOutput 模块输出
type ModuleOutput struct {
	fx.Out

	Space interfaces.Space
}

// ============================================================================
//                              服务提供
// ============================================================================

// Open 按配置选择后端创建空间
func Open(cfg config.SpaceConfig) (interfaces.Space, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case config.SpaceBadger:
		bcfg := badger.DefaultConfig(cfg.DBPath())
		bcfg.GCInterval = cfg.GCInterval.Duration()
		bcfg.ValueLogGCInterval = cfg.ValueLogGCInterval.Duration()
		sp, err := badger.Open(bcfg)
		if err != nil {
			return nil, err
		}
		return sp, nil
	default:
		return New(WithGCInterval(cfg.GCInterval.Duration())), nil
	}
}

// ProvideSpace 创建元组空间
func ProvideSpace(input ModuleInput) (ModuleOutput, error) {
	cfg := config.DefaultSpaceConfig()
	if input.Config != nil {
		cfg = input.Config.Space
	}
	sp, err := Open(cfg)
	if err != nil {
		return ModuleOutput{}, err
	}
	logger.Info("元组空间已创建", "backend", cfg.Backend)
	return ModuleOutput{Space: sp}, nil
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("space",
		fx.Provide(ProvideSpace),
		fx.Invoke(registerLifecycle),
	)
}

// starter 需要启动后台任务的空间实现
type starter interface {
	Start(ctx context.Context) error
}

// lifecycleInput 生命周期输入参数
type lifecycleInput struct {
	fx.In
	LC    fx.Lifecycle
	Space interfaces.Space
}

// registerLifecycle 注册生命周期
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if s, ok := input.Space.(starter); ok {
				return s.Start(ctx)
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			return input.Space.Close()
		},
	})
}

// 模块元信息常量
const (
	Version     = "1.0.0"
	Name        = "space"
	Description = "内存与 BadgerDB 元组空间"
)
