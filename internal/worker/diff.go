package worker

import (
	"strings"
)

// ChangedFiles 从 unified diff 提取被改动的文件路径集合
//
// 取 `diff --git a/old b/new` 行的第二个路径（目的路径），
// 重命名时跟踪的是新路径
func ChangedFiles(diff string) map[string]struct{} {
	files := make(map[string]struct{})
	for _, line := range strings.Split(diff, "\n") {
		if !strings.HasPrefix(line, "diff --git ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		path := strings.TrimPrefix(fields[len(fields)-1], "b/")
		if path != "" {
			files[path] = struct{}{}
		}
	}
	return files
}
