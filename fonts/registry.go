// Package fonts 维护进程级字体注册表：启动阶段按名字登记字体文件路径或
// 字节数据，布局与渲染阶段按名取用。注册表登记完成后只读。
package fonts

import (
	"fmt"
	"os"
	"sort"
	"sync"
)

type entry struct {
	path string
	data []byte
}

var (
	mu       sync.RWMutex
	registry = map[string]entry{}
)

// Register 登记一个按路径惰性加载的字体，同名覆盖。
func Register(name, path string) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = entry{path: path}
}

// RegisterBytes 登记一个已在内存中的字体。
func RegisterBytes(name string, data []byte) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = entry{data: data}
}

// Load 返回已登记字体的字节数据；路径登记的字体在首次加载后缓存。
func Load(name string) ([]byte, error) {
	mu.RLock()
	e, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("fonts: 字体 %s 未登记", name)
	}
	if e.data != nil {
		return e.data, nil
	}
	data, err := os.ReadFile(e.path)
	if err != nil {
		return nil, fmt.Errorf("fonts: 读取字体 %s（%s）失败: %w", name, e.path, err)
	}
	mu.Lock()
	e.data = data
	registry[name] = e
	mu.Unlock()
	return data, nil
}

// Names 返回所有已登记字体名，按字典序排列。
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
