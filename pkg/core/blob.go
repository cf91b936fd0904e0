package core

import "gitdb/pkg/types"

// Blob 是一个文档的原始内容，它是 Merkle DAG 的叶子节点
// Blob 不做 CBOR 编码，哈希直接作用在原始字节上
type Blob struct {
	hash types.Hash
	data []byte
}

func NewBlob(data []byte) *Blob {
	return &Blob{
		hash: CalculateBlobHash(data),
		data: data,
	}
}

func (b *Blob) Type() ObjectType { return TypeBlob }
func (b *Blob) ID() types.Hash   { return b.hash }
func (b *Blob) Bytes() []byte    { return b.data }
func (b *Blob) Size() int64      { return int64(len(b.data)) }
