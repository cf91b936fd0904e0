package ignore

import (
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// Filename 是导入目录下用户自定义忽略规则的文件名
const Filename = ".gitdbignore"

// 强制生效的规则
var defaultRules = []string{
	".gitdb", // 仓库元数据目录
	".git",
	Filename,

	// 防止密钥被导入
	"config.yaml",
	".env",

	".DS_Store",
	"Thumbs.db",
}

// Matcher 判断导入时哪些文件不应成为文档
type Matcher struct {
	ignorer *gitignore.GitIgnore
}

// NewMatcher 编译默认规则、rootPath 下的 .gitdbignore 以及额外的 extra 规则
func NewMatcher(rootPath string, extra ...string) (*Matcher, error) {
	rules := append(append([]string{}, defaultRules...), extra...)

	ignoreFile := filepath.Join(rootPath, Filename)
	if _, err := os.Stat(ignoreFile); err != nil {
		return &Matcher{ignorer: gitignore.CompileIgnoreLines(rules...)}, nil
	}

	ignorer, err := gitignore.CompileIgnoreFileAndLines(ignoreFile, rules...)
	if err != nil {
		return nil, err
	}
	return &Matcher{ignorer: ignorer}, nil
}

// Matches 检查相对导入根目录的路径 (使用 "/" 分隔) 是否应被忽略
func (m *Matcher) Matches(path string) bool {
	if m == nil || m.ignorer == nil {
		return false
	}
	return m.ignorer.MatchesPath(path)
}

// MatchesDir 与 Matches 相同，但让 "logs/" 这类只匹配目录的规则生效
func (m *Matcher) MatchesDir(path string) bool {
	if m == nil || m.ignorer == nil {
		return false
	}
	return m.ignorer.MatchesPath(strings.TrimSuffix(path, "/") + "/")
}
