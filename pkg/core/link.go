package core

import (
	"encoding/hex"
	"fmt"

	"gitdb/pkg/types"

	"github.com/fxamacker/cbor/v2"
	gocid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Link 代表 Merkle DAG 中的一条边 (指向子节点的哈希引用)
// 在 Go 层面，它只是一个包装了 Hash 字符串的结构体
// 在 CBOR 层面，它会被序列化为 Tag 42(0x00 + CIDv1)
type Link struct {
	Hash types.Hash
	// Raw 为 true 表示指向 Blob (raw codec)，否则指向 dag-cbor 对象
	Raw bool
}

const (
	linkTagNumber = 42
)

// NewLink 指向一个 Tree 或 Commit
func NewLink(hash types.Hash) Link {
	return Link{Hash: hash}
}

// NewBlobLink 指向一个 Blob
func NewBlobLink(hash types.Hash) Link {
	return Link{Hash: hash, Raw: true}
}

// CID 把十六进制哈希转换成 CIDv1 (sha2-256)
func (l Link) CID() (gocid.Cid, error) {
	digest, err := hex.DecodeString(string(l.Hash))
	if err != nil {
		return gocid.Undef, fmt.Errorf("invalid hash format in link: %w", err)
	}
	if len(digest) != 32 {
		return gocid.Undef, fmt.Errorf("invalid hash format in link: expected 32 bytes, got %d", len(digest))
	}
	mh, err := multihash.Encode(digest, multihash.SHA2_256)
	if err != nil {
		return gocid.Undef, fmt.Errorf("multihash: %w", err)
	}
	codec := uint64(gocid.DagCBOR)
	if l.Raw {
		codec = gocid.Raw
	}
	return gocid.NewCidV1(codec, mh), nil
}

// String 返回 CID 的 base32 表示，用于展示
func (l Link) String() string {
	c, err := l.CID()
	if err != nil {
		return string(l.Hash)
	}
	return c.String()
}

// MarshalCBOR 实现自定义序列化逻辑
// 规范：Tag 42, Content = [0x00, cid bytes...]
func (l Link) MarshalCBOR() ([]byte, error) {
	c, err := l.CID()
	if err != nil {
		return nil, err
	}

	// Multibase Identity 前缀 (0x00)，DAG-CBOR 对 Tag 42 的要求
	cidBytes := append([]byte{0x00}, c.Bytes()...)

	return em.Marshal(cbor.Tag{
		Number:  linkTagNumber,
		Content: cidBytes,
	})
}

// UnmarshalCBOR 实现自定义反序列化逻辑
func (l *Link) UnmarshalCBOR(data []byte) error {
	var tag cbor.Tag
	if err := dm.Unmarshal(data, &tag); err != nil {
		return err
	}

	if tag.Number != linkTagNumber {
		return fmt.Errorf("expected tag 42 for Link, got %d", tag.Number)
	}

	bytes, ok := tag.Content.([]byte)
	if !ok {
		return fmt.Errorf("link content must be byte string")
	}
	if len(bytes) < 1 {
		return fmt.Errorf("invalid link: empty content")
	}
	if bytes[0] != 0x00 {
		return fmt.Errorf("invalid link: missing 0x00 multibase prefix")
	}

	c, err := gocid.Cast(bytes[1:])
	if err != nil {
		return fmt.Errorf("invalid link: %w", err)
	}
	dec, err := multihash.Decode(c.Hash())
	if err != nil {
		return fmt.Errorf("invalid link multihash: %w", err)
	}
	if dec.Code != multihash.SHA2_256 {
		return fmt.Errorf("invalid link: unsupported hash function 0x%x", dec.Code)
	}

	l.Hash = types.Hash(hex.EncodeToString(dec.Digest))
	l.Raw = c.Prefix().Codec == gocid.Raw
	return nil
}
