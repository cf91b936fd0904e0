package core

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"gitdb/pkg/types"
)

type EntryType string

const (
	EntryBlob EntryType = "blob"
	EntryTree EntryType = "tree"
)

type TreeEntry struct {
	Name string    `cbor:"n"`
	Type EntryType `cbor:"t"`
	Hash Link      `cbor:"h"`
	Size int64     `cbor:"s"` // 文档字节数，目录为 0
}

func (e TreeEntry) IsTree() bool { return e.Type == EntryTree }

type Tree struct {
	hash     types.Hash `cbor:"-"`
	rawBytes []byte     `cbor:"-"`

	TypeVal ObjectType  `cbor:"t"`
	Entries []TreeEntry `cbor:"e"`
}

// NewTree 创建一个新的目录树节点
// 条目按名字排序，保证相同内容的目录得到相同的 Hash
func NewTree(entries []TreeEntry) (*Tree, error) {
	sorted := make([]TreeEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	for i, e := range sorted {
		if e.Name == "" || strings.Contains(e.Name, "/") {
			return nil, fmt.Errorf("invalid tree entry name %q", e.Name)
		}
		if i > 0 && sorted[i-1].Name == e.Name {
			return nil, fmt.Errorf("duplicate tree entry %q", e.Name)
		}
	}

	t := &Tree{
		TypeVal: TypeTree,
		Entries: sorted,
	}
	h, b, err := CalculateHash(t)
	if err != nil {
		return nil, err
	}
	t.hash = h
	t.rawBytes = b
	return t, nil
}

// DecodeTree 从存储的字节还原 Tree，Hash 由字节重新计算
func DecodeTree(data []byte) (*Tree, error) {
	var t Tree
	if err := DecodeObject(data, &t); err != nil {
		return nil, fmt.Errorf("failed to decode tree: %w", err)
	}
	if t.TypeVal != TypeTree {
		return nil, fmt.Errorf("object is not a tree, got: %q", t.TypeVal)
	}
	t.hash = CalculateBlobHash(data)
	t.rawBytes = data
	return &t, nil
}

// NewTreeEntryFromObject 自动根据子对象生成条目
func NewTreeEntryFromObject(name string, child Object) (TreeEntry, error) {
	switch n := child.(type) {
	case *Blob:
		return TreeEntry{Name: name, Type: EntryBlob, Hash: NewBlobLink(n.ID()), Size: n.Size()}, nil
	case *Tree:
		return TreeEntry{Name: name, Type: EntryTree, Hash: NewLink(n.ID())}, nil
	case *Commit:
		return TreeEntry{}, fmt.Errorf("commit cannot be an entry inside a tree")
	default:
		return TreeEntry{}, fmt.Errorf("unsupported object type: %s", child.Type())
	}
}

// Find 按名字查找条目 (Entries 已排序，二分查找)
func (t *Tree) Find(name string) (TreeEntry, bool) {
	i, ok := slices.BinarySearchFunc(t.Entries, name, func(e TreeEntry, n string) int {
		return strings.Compare(e.Name, n)
	})
	if !ok {
		return TreeEntry{}, false
	}
	return t.Entries[i], true
}

func (t *Tree) Type() ObjectType { return TypeTree }
func (t *Tree) ID() types.Hash   { return t.hash }
func (t *Tree) Bytes() []byte    { return t.rawBytes }
