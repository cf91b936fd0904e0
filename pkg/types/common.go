// pkg/types/common.go
package types

import "encoding/hex"

// Hash 代表对象的唯一标识符 (SHA256 Hex String)
// 这是一个“值对象”，应当是不可变的。
type Hash string

func (h Hash) String() string { return string(h) }

// 验证 Hash 合法性
func (h Hash) IsZero() bool { return h == "" }
func (h Hash) IsValid() bool {
	if len(h) != 64 {
		return false
	}
	_, err := hex.DecodeString(string(h))
	return err == nil
}

// Short 返回用于日志/展示的短哈希
func (h Hash) Short() string {
	if len(h) <= 8 {
		return string(h)
	}
	return string(h[:8])
}

type HashPrefix string

func (p HashPrefix) String() string { return string(p) }

// Document 是数据库中的一条文档：Key 是斜杠分隔的路径，Value 是原始内容
type Document struct {
	Key   string `json:"key" yaml:"key"`
	Value []byte `json:"value" yaml:"value"`
}

// Reference 描述一个分支或标签的指向
// Pointer 在创建时可以是任意可解析的 ref (分支名/标签名/提交哈希)，
// 在查询结果中总是完整的提交哈希。
type Reference struct {
	Name    string `json:"name" yaml:"name"`
	Pointer string `json:"pointer" yaml:"pointer"`
}

// CommitInfo 是提交的只读视图，用于 Log 输出
type CommitInfo struct {
	Hash      Hash   `json:"hash" yaml:"hash"`
	Tree      Hash   `json:"tree" yaml:"tree"`
	Parents   []Hash `json:"parents" yaml:"parents"`
	Author    string `json:"author" yaml:"author"`
	Message   string `json:"message" yaml:"message"`
	Timestamp int64  `json:"timestamp" yaml:"timestamp"`
}

// Diff 描述两个快照之间文档 Key 的差异，各列表按 Key 排序
type Diff struct {
	Added    []string `json:"added" yaml:"added"`
	Removed  []string `json:"removed" yaml:"removed"`
	Modified []string `json:"modified" yaml:"modified"`
}

// IsEmpty 两个快照完全相同时为 true
func (d Diff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}
