package history

import (
	"context"
	"sort"
	"strings"

	"gitdb/pkg/core"
	"gitdb/pkg/navigator"
	"gitdb/pkg/types"
)

// Change 是单个文档 Key 在两棵树之间的变化
// Old 为空表示新增，New 为空表示删除
type Change struct {
	Key string
	Old types.Hash
	New types.Hash
}

// TreeChanges 比较两棵树，返回按 Key 排序的文档级变化
// Hash 相同的子树直接跳过。oldTree 或 newTree 为空表示空树。
func (g *Graph) TreeChanges(ctx context.Context, oldTree, newTree types.Hash) ([]Change, error) {
	nav := navigator.New(g.objects)
	var changes []Change

	added := func(e core.TreeEntry, key string) error {
		if !e.IsTree() {
			changes = append(changes, Change{Key: key, New: e.Hash.Hash})
			return nil
		}
		files, err := nav.FlattenTree(ctx, e.Hash.Hash, key)
		if err != nil {
			return err
		}
		for _, f := range files {
			changes = append(changes, Change{Key: f.Key, New: f.Hash})
		}
		return nil
	}
	removed := func(e core.TreeEntry, key string) error {
		if !e.IsTree() {
			changes = append(changes, Change{Key: key, Old: e.Hash.Hash})
			return nil
		}
		files, err := nav.FlattenTree(ctx, e.Hash.Hash, key)
		if err != nil {
			return err
		}
		for _, f := range files {
			changes = append(changes, Change{Key: f.Key, Old: f.Hash})
		}
		return nil
	}

	type frame struct {
		old, new types.Hash
		prefix   string
	}
	stack := []frame{{old: oldTree, new: newTree}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.old == f.new {
			continue
		}

		oldEntries, err := g.entries(ctx, f.old)
		if err != nil {
			return nil, err
		}
		newEntries, err := g.entries(ctx, f.new)
		if err != nil {
			return nil, err
		}

		for name, o := range oldEntries {
			key := types.JoinKey(f.prefix, name)
			n, ok := newEntries[name]
			switch {
			case !ok:
				err = removed(o, key)
			case o.Hash.Hash == n.Hash.Hash && o.Type == n.Type:
			case o.IsTree() && n.IsTree():
				stack = append(stack, frame{old: o.Hash.Hash, new: n.Hash.Hash, prefix: key})
			case !o.IsTree() && !n.IsTree():
				changes = append(changes, Change{Key: key, Old: o.Hash.Hash, New: n.Hash.Hash})
			default:
				// 文档与目录互换
				if err = removed(o, key); err == nil {
					err = added(n, key)
				}
			}
			if err != nil {
				return nil, err
			}
		}
		for name, n := range newEntries {
			if _, ok := oldEntries[name]; ok {
				continue
			}
			if err := added(n, types.JoinKey(f.prefix, name)); err != nil {
				return nil, err
			}
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Key < changes[j].Key })
	return changes, nil
}

func (g *Graph) entries(ctx context.Context, tree types.Hash) (map[string]core.TreeEntry, error) {
	out := make(map[string]core.TreeEntry)
	if tree == "" {
		return out, nil
	}
	t, err := g.objects.GetTree(ctx, tree)
	if err != nil {
		return nil, err
	}
	for _, e := range t.Entries {
		out[e.Name] = e
	}
	return out, nil
}

// DiffTrees 把文档级变化归类为新增、删除、修改
func (g *Graph) DiffTrees(ctx context.Context, oldTree, newTree types.Hash) (types.Diff, error) {
	changes, err := g.TreeChanges(ctx, oldTree, newTree)
	if err != nil {
		return types.Diff{}, err
	}
	return Summarize(changes), nil
}

// DiffCommits 比较两个提交的根树
func (g *Graph) DiffCommits(ctx context.Context, from, to types.Hash) (types.Diff, error) {
	a, err := g.Commit(ctx, from)
	if err != nil {
		return types.Diff{}, err
	}
	b, err := g.Commit(ctx, to)
	if err != nil {
		return types.Diff{}, err
	}
	return g.DiffTrees(ctx, a.TreeHash(), b.TreeHash())
}

// Summarize 归类已排序的变化，三个列表都不为 nil
func Summarize(changes []Change) types.Diff {
	d := types.Diff{Added: []string{}, Removed: []string{}, Modified: []string{}}
	for _, c := range changes {
		switch {
		case c.Old == "":
			d.Added = append(d.Added, c.Key)
		case c.New == "":
			d.Removed = append(d.Removed, c.Key)
		default:
			d.Modified = append(d.Modified, c.Key)
		}
	}
	return d
}

// KindClash 检查在文档集合 docs 中写入 key 是否会让文档与目录冲突：
// key 的某个上级路径是文档，或 key 本身已是某些文档的目录。返回冲突的那个 Key。
func KindClash(docs map[string]types.Hash, key string) (string, bool) {
	parts := types.SplitKey(key)
	for i := 1; i < len(parts); i++ {
		parent := strings.Join(parts[:i], "/")
		if _, ok := docs[parent]; ok {
			return parent, true
		}
	}
	prefix := key + "/"
	for k := range docs {
		if strings.HasPrefix(k, prefix) {
			return k, true
		}
	}
	return "", false
}

// Docs 把树扁平化为 Key -> Blob Hash
func (g *Graph) Docs(ctx context.Context, tree types.Hash) (map[string]types.Hash, error) {
	out := make(map[string]types.Hash)
	if tree == "" {
		return out, nil
	}
	files, err := navigator.New(g.objects).FlattenTree(ctx, tree, "")
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		out[f.Key] = f.Hash
	}
	return out, nil
}
