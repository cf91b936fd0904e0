package exporter

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"gitdb/pkg/ignore"
	"gitdb/pkg/types"

	"golang.org/x/sync/errgroup"
)

// importWorkers 是并发读取文件的上限
const importWorkers = 8

// ImportDir 把 root 下的文件读成文档，Key 为 prefix + 相对路径
// 被 matcher 忽略的文件和目录会被跳过；结果按 Key 排序。
func ImportDir(ctx context.Context, root, prefix string, matcher *ignore.Matcher) ([]types.Document, error) {
	prefix, err := types.CleanPrefix(prefix)
	if err != nil {
		return nil, err
	}

	var paths, keys []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if matcher.MatchesDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || matcher.Matches(rel) {
			return nil
		}

		key, err := types.CleanKey(types.JoinKey(prefix, rel))
		if err != nil {
			return err
		}
		paths = append(paths, path)
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	docs := make([]types.Document, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(importWorkers)
	for i := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(paths[i])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", paths[i], err)
			}
			docs[i] = types.Document{Key: keys[i], Value: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Key < docs[j].Key })
	return docs, nil
}
