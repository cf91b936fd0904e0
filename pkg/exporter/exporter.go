package exporter

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gitdb/pkg/core"
	"gitdb/pkg/odb"
	"gitdb/pkg/types"
)

type Exporter struct {
	objects *odb.DB
}

func NewExporter(objects *odb.DB) *Exporter {
	return &Exporter{objects: objects}
}

// ExportDocument 把 Blob 的内容写入 writer
func (e *Exporter) ExportDocument(ctx context.Context, hash types.Hash, writer io.Writer) error {
	blob, err := e.objects.GetBlob(ctx, hash)
	if err != nil {
		return fmt.Errorf("failed to get document %s: %w", hash.Short(), err)
	}
	if _, err := writer.Write(blob.Bytes()); err != nil {
		return fmt.Errorf("failed to write document %s: %w", hash.Short(), err)
	}
	return nil
}

// RestoreCallback 在每个文档写到磁盘后调用
// key 是文档在树中的完整路径
type RestoreCallback func(path, key string, hash types.Hash, size int64)

// Checkout 把提交的快照还原到 targetDir
func (e *Exporter) Checkout(ctx context.Context, commit types.Hash, targetDir string, onRestore RestoreCallback) error {
	c, err := e.objects.GetCommit(ctx, commit)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return fmt.Errorf("failed to create dir %s: %w", targetDir, err)
	}
	return e.RestoreTree(ctx, c.TreeHash(), targetDir, "", onRestore)
}

// RestoreTree 递归地将目录树还原到 targetDir，prefix 是该树在快照中的路径
func (e *Exporter) RestoreTree(ctx context.Context, treeHash types.Hash, targetDir, prefix string, onRestore RestoreCallback) error {
	tree, err := e.objects.GetTree(ctx, treeHash)
	if err != nil {
		return fmt.Errorf("failed to get tree %s: %w", treeHash.Short(), err)
	}

	for _, entry := range tree.Entries {
		fullPath := filepath.Join(targetDir, entry.Name)
		key := types.JoinKey(prefix, entry.Name)

		if entry.Type == core.EntryTree {
			if err := os.MkdirAll(fullPath, 0755); err != nil {
				return fmt.Errorf("failed to create dir %s: %w", fullPath, err)
			}
			if err := e.RestoreTree(ctx, entry.Hash.Hash, fullPath, key, onRestore); err != nil {
				return err
			}
			continue
		}

		if err := e.restoreDocument(ctx, entry.Hash.Hash, fullPath); err != nil {
			return err
		}
		if onRestore != nil {
			onRestore(fullPath, key, entry.Hash.Hash, entry.Size)
		}
	}
	return nil
}

func (e *Exporter) restoreDocument(ctx context.Context, hash types.Hash, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", path, err)
	}
	if err := e.ExportDocument(ctx, hash, file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// PrintObject 按类型打印对象：提交和目录树打印结构，Blob 打印原始内容
func (e *Exporter) PrintObject(ctx context.Context, hash types.Hash, writer io.Writer) error {
	data, err := e.objects.ReadRaw(ctx, hash)
	if err != nil {
		return err
	}

	structured, err := PrintStructure(data, writer)
	if err != nil || structured {
		return err
	}

	fmt.Fprintf(writer, "Type: Blob\nSize: %s\n\n", fmtSize(int64(len(data))))
	_, err = writer.Write(data)
	return err
}
