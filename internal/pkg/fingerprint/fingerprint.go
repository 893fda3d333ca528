// Package fingerprint 从 unified diff 计算内容指纹，
// 用于判断新触发是否携带了语义上的新改动。
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Compute 计算 diff 的内容指纹
//
// 只取 +/- 开头的内容行（跳过 "+++"、"---"、"diff --git" 头部和上下文行），
// 去掉行尾空白后排序再哈希，因此对文件块的排列顺序不敏感。
// 没有任何增删行时返回空串，表示 "没有实际变化"。
func Compute(diff string) string {
	lines := contentLines(diff)
	if len(lines) == 0 {
		return ""
	}

	sort.Strings(lines)

	h := sha256.New()
	for _, line := range lines {
		h.Write([]byte(line))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// contentLines 提取有意义的增删行
func contentLines(diff string) []string {
	var lines []string
	for _, line := range strings.Split(diff, "\n") {
		if strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---") {
			continue
		}
		if strings.HasPrefix(line, "diff --git") {
			continue
		}
		if len(line) == 0 || (line[0] != '+' && line[0] != '-') {
			continue
		}
		lines = append(lines, strings.TrimRight(line, " \t\r"))
	}
	return lines
}
