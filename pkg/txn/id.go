package txn

import (
	"sync"

	"github.com/google/uuid"
)

// IDGenerator 生成事务 ID
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator 生成按创建时间排序的 UUIDv7
type UUIDv7Generator struct{}

func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator 按顺序返回预设的 ID，用于测试
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate 用完预设 ID 后 panic，暴露测试配置错误
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
