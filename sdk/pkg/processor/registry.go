package processor

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ErrUnknownProvider 未注册的处理器名称
var ErrUnknownProvider = errors.New("unknown record processor provider")

// Factory 处理器工厂，settings 来自 extensions.settings
type Factory func(settings map[string]interface{}, logger *zap.Logger) (Processor, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register 注册处理器工厂，通常在扩展包的 init 中调用；重复注册会 panic
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	if factory == nil {
		panic("processor: Register factory is nil")
	}
	if _, dup := factories[name]; dup {
		panic("processor: Register called twice for provider " + name)
	}
	factories[name] = factory
}

// New 按名称创建处理器
func New(name string, settings map[string]interface{}, logger *zap.Logger) (Processor, error) {
	mu.RLock()
	factory, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownProvider, name, Providers())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p, err := factory(settings, logger.Named(name))
	if err != nil {
		return nil, fmt.Errorf("create record processor %q: %w", name, err)
	}
	return p, nil
}

// Providers 已注册的处理器名称（有序）
func Providers() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
