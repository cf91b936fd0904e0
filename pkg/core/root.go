package core

// 根提交的固定元数据。所有仓库的根提交 Hash 都相同。
const (
	RootAuthor  = "gitdb"
	RootMessage = "Initial commit"
)

// NewRootCommit 构造空目录树和指向它的根提交 (无父节点，时间戳为 0)
func NewRootCommit() (*Tree, *Commit, error) {
	tree, err := NewTree(nil)
	if err != nil {
		return nil, nil, err
	}
	commit, err := NewCommitAt(tree.ID(), nil, RootAuthor, RootMessage, 0)
	if err != nil {
		return nil, nil, err
	}
	return tree, commit, nil
}
