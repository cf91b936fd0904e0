package exporter

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"gitdb/pkg/core"
	"gitdb/pkg/types"
)

// PrintStructure 解析并打印结构化对象 (Commit/Tree)
// 如果是 Blob，返回 false，由调用者决定如何展示
func PrintStructure(data []byte, w io.Writer) (bool, error) {
	switch core.PeekType(data) {
	case core.TypeCommit:
		c, err := core.DecodeCommit(data)
		if err != nil {
			return true, err
		}
		printCommit(c, w)
		return true, nil
	case core.TypeTree:
		t, err := core.DecodeTree(data)
		if err != nil {
			return true, err
		}
		return true, printTree(t, w)
	default:
		return false, nil
	}
}

func printCommit(c *core.Commit, w io.Writer) {
	fmt.Fprintf(w, "Type:    Commit\n")
	fmt.Fprintf(w, "Hash:    %s\n", c.ID())
	fmt.Fprintf(w, "Tree:    %s\n", c.TreeHash())
	for _, p := range c.ParentHashes() {
		fmt.Fprintf(w, "Parent:  %s\n", p)
	}
	fmt.Fprintf(w, "Author:  %s\n", c.Author)
	fmt.Fprintf(w, "Time:    %s\n", fmtTime(c.Timestamp))
	fmt.Fprintf(w, "\n%s\n", c.Message)
}

func printTree(t *core.Tree, w io.Writer) error {
	fmt.Fprintf(w, "Type: Tree\n\n")
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "TYPE\tHASH\tSIZE\tNAME\n")
	for _, entry := range t.Entries {
		size := "-"
		if !entry.IsTree() {
			size = fmtSize(entry.Size)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", entry.Type, entry.Hash.Hash.Short(), size, entry.Name)
	}
	return tw.Flush()
}

// PrintLog 以 git log 的样式打印提交列表
func PrintLog(w io.Writer, commits []types.CommitInfo) {
	for _, c := range commits {
		fmt.Fprintf(w, "commit %s\n", c.Hash)
		if len(c.Parents) > 1 {
			short := make([]string, len(c.Parents))
			for i, p := range c.Parents {
				short[i] = p.Short()
			}
			fmt.Fprintf(w, "Merge:  %s\n", strings.Join(short, " "))
		}
		fmt.Fprintf(w, "Author: %s\n", c.Author)
		fmt.Fprintf(w, "Date:   %s\n\n", fmtTime(c.Timestamp))
		for _, line := range strings.Split(c.Message, "\n") {
			fmt.Fprintf(w, "    %s\n", line)
		}
		fmt.Fprintln(w)
	}
}

// PrintDiff 按 Key 排序输出 A/D/M 状态
func PrintDiff(w io.Writer, d types.Diff) {
	type line struct{ status, key string }
	var lines []line
	for _, k := range d.Added {
		lines = append(lines, line{"A", k})
	}
	for _, k := range d.Removed {
		lines = append(lines, line{"D", k})
	}
	for _, k := range d.Modified {
		lines = append(lines, line{"M", k})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].key < lines[j].key })
	for _, l := range lines {
		fmt.Fprintf(w, "%s\t%s\n", l.status, l.key)
	}
}

// PrintConflicts 列出每个冲突的 Key 及原因
func PrintConflicts(w io.Writer, conflicts []types.Conflict) {
	for _, c := range conflicts {
		fmt.Fprintf(w, "CONFLICT (%s): %s\n", c.Reason, c.Key)
	}
}

// PrintRefs 对齐输出引用名与短 Hash，current 对应的行以 "*" 标记
func PrintRefs(w io.Writer, refs []types.Reference, current string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	for _, r := range refs {
		mark := " "
		if r.Name == current {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s %s\t%s\n", mark, r.Name, types.Hash(r.Pointer).Short())
	}
	return tw.Flush()
}

func fmtTime(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

func fmtSize(s int64) string {
	if s < 1024 {
		return fmt.Sprintf("%dB", s)
	} else if s < 1024*1024 {
		return fmt.Sprintf("%.1fKB", float64(s)/1024)
	}
	return fmt.Sprintf("%.2fMB", float64(s)/1024/1024)
}
