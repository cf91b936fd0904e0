package types

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CleanKey 规范化文档 Key：NFC 归一化，去掉首尾的 "/"，
// 拒绝空路径段、"." 和 ".."。
func CleanKey(key string) (string, error) {
	cleaned, err := CleanPrefix(key)
	if err != nil {
		return "", err
	}
	if cleaned == "" {
		return "", fmt.Errorf("%w: empty document key", ErrInvalidArgument)
	}
	return cleaned, nil
}

// CleanPrefix 与 CleanKey 相同，但允许空串 (表示根目录)
func CleanPrefix(prefix string) (string, error) {
	p := strings.Trim(norm.NFC.String(prefix), "/")
	if p == "" {
		return "", nil
	}
	for _, seg := range strings.Split(p, "/") {
		switch {
		case seg == "":
			return "", fmt.Errorf("%w: key %q contains an empty path segment", ErrInvalidArgument, prefix)
		case seg == "." || seg == "..":
			return "", fmt.Errorf("%w: key %q contains a relative path segment", ErrInvalidArgument, prefix)
		case strings.ContainsRune(seg, 0):
			return "", fmt.Errorf("%w: key %q contains a NUL byte", ErrInvalidArgument, prefix)
		}
	}
	return p, nil
}

// SplitKey 把规范化后的 Key 切成路径段，空串返回 nil
func SplitKey(key string) []string {
	if key == "" {
		return nil
	}
	return strings.Split(key, "/")
}

// JoinKey 拼接目录前缀与名字
func JoinKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
