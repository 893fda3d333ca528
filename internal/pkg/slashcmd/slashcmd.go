// Package slashcmd 解析 PR 评论中的 /codecrow 命令。
package slashcmd

import (
	"strings"
)

const prefix = "/codecrow"

// 命令类型
const (
	CommandAsk    = "ASK"
	CommandReview = "REVIEW"
)

// Command 解析出的命令
type Command struct {
	Type     string
	Argument string
}

// Parse 解析评论正文
//
// 语法：/codecrow <verb> [args]。无法识别的 verb、缺少必需参数时
// 返回 (nil, false) 表示 "不是命令"，而不是错误，普通评论不应产生任务。
func Parse(body string) (*Command, bool) {
	body = strings.TrimSpace(body)
	if !strings.HasPrefix(body, prefix) {
		return nil, false
	}

	rest := strings.TrimSpace(strings.TrimPrefix(body, prefix))
	if rest == "" {
		return nil, false
	}

	verb := rest
	arg := ""
	if idx := strings.IndexAny(rest, " \t\n"); idx >= 0 {
		verb = rest[:idx]
		arg = strings.TrimSpace(rest[idx+1:])
	}

	switch strings.ToLower(verb) {
	case "ask":
		// ask 必须带问题内容
		if arg == "" {
			return nil, false
		}
		return &Command{Type: CommandAsk, Argument: arg}, true
	case "review":
		return &Command{Type: CommandReview, Argument: arg}, true
	}

	return nil, false
}
