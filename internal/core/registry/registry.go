// Package registry 提供多路复用器名称注册表
//
// 注册表由 fx 构造一次并注入各组件，替代进程级全局目录：
//
//	m, err := reg.Lookup("acquirer")
//	if err != nil {
//	    return err
//	}
//	resp, err := m.Request(ctx, msg, 30*time.Second)
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/fx"

	"github.com/dep2p/go-isomux/pkg/interfaces"
	"github.com/dep2p/go-isomux/pkg/lib/log"
)

var logger = log.Logger("core/registry")

var (
	// ErrNotFound 名称未注册
	ErrNotFound = errors.New("registry: not found")

	// ErrDuplicate 名称已被占用
	ErrDuplicate = errors.New("registry: duplicate name")

	// ErrInvalid 名称为空或实例为 nil
	ErrInvalid = errors.New("registry: invalid entry")
)

var _ interfaces.Registry = (*Registry)(nil)

// Registry 名称到多路复用器的映射
type Registry struct {
	mu      sync.RWMutex
	entries map[string]interfaces.Multiplexer
}

// New 创建空注册表
func New() *Registry {
	return &Registry{entries: make(map[string]interfaces.Multiplexer)}
}

// Register 注册实例，重名返回 ErrDuplicate
func (r *Registry) Register(name string, m interfaces.Multiplexer) error {
	if name == "" || m == nil {
		return ErrInvalid
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	r.entries[name] = m
	logger.Debug("注册多路复用器", "name", name)
	return nil
}

// Unregister 注销实例
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(r.entries, name)
	return nil
}

// Lookup 按名称查找
func (r *Registry) Lookup(name string) (interfaces.Multiplexer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return m, nil
}

// Names 已注册名称（升序）
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("registry",
		fx.Provide(
			fx.Annotate(
				New,
				fx.As(fx.Self()),
				fx.As(new(interfaces.Registry)),
			),
		),
	)
}

// 模块元信息常量
const (
	Version     = "1.0.0"
	Name        = "registry"
	Description = "多路复用器名称注册表"
)
