package core

import (
	"fmt"
	"time"

	"gitdb/pkg/types"
)

type Commit struct {
	hash     types.Hash `cbor:"-"`
	rawBytes []byte     `cbor:"-"`

	TypeVal ObjectType `cbor:"t"`

	TreeCid Link   `cbor:"th"`
	Parents []Link `cbor:"p"`

	Author  string `cbor:"a"`
	Message string `cbor:"m"`

	Timestamp int64 `cbor:"ts"`
}

func NewCommit(treeHash types.Hash, parents []types.Hash, author, msg string) (*Commit, error) {
	return NewCommitAt(treeHash, parents, author, msg, time.Now().Unix())
}

// NewCommitAt 使用指定的时间戳创建 Commit (根提交与测试需要确定性的 Hash)
func NewCommitAt(treeHash types.Hash, parents []types.Hash, author, msg string, ts int64) (*Commit, error) {
	parentLinks := make([]Link, len(parents))
	for i, p := range parents {
		parentLinks[i] = NewLink(p)
	}

	c := &Commit{
		TypeVal:   TypeCommit,
		TreeCid:   NewLink(treeHash),
		Parents:   parentLinks,
		Author:    author,
		Message:   msg,
		Timestamp: ts,
	}

	h, b, err := CalculateHash(c)
	if err != nil {
		return nil, err
	}
	c.hash = h
	c.rawBytes = b
	return c, nil
}

// DecodeCommit 从存储的字节还原 Commit
func DecodeCommit(data []byte) (*Commit, error) {
	var c Commit
	if err := DecodeObject(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode commit: %w", err)
	}
	if c.TypeVal != TypeCommit {
		return nil, fmt.Errorf("object is not a commit, got: %q", c.TypeVal)
	}
	c.hash = CalculateBlobHash(data)
	c.rawBytes = data
	return &c, nil
}

func (c *Commit) TreeHash() types.Hash { return c.TreeCid.Hash }

func (c *Commit) ParentHashes() []types.Hash {
	out := make([]types.Hash, len(c.Parents))
	for i, p := range c.Parents {
		out[i] = p.Hash
	}
	return out
}

func (c *Commit) IsMerge() bool { return len(c.Parents) > 1 }

func (c *Commit) Type() ObjectType { return TypeCommit }
func (c *Commit) ID() types.Hash   { return c.hash }
func (c *Commit) Bytes() []byte    { return c.rawBytes }
