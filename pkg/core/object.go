package core

import "gitdb/pkg/types"

// ObjectType 定义了 gitdb 中的对象类型
type ObjectType string

const (
	TypeBlob   ObjectType = "blob"   // 文档内容 (叶子)
	TypeTree   ObjectType = "tree"   // 目录快照
	TypeCommit ObjectType = "commit" // 版本快照
)

// Object 是所有 Merkle DAG 节点的通用接口
type Object interface {
	// Type 返回对象类型
	Type() ObjectType

	// ID 返回对象的哈希值
	// 哈希 = SHA-256(Bytes())，所以对象一旦构造完成就不可变
	ID() types.Hash

	// Bytes 返回对象的序列化数据 (用于存储)
	Bytes() []byte
}
