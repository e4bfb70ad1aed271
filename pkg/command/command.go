// Package command implements the "strip prefix, strip system name, split
// remainder" tokenizer shared by every system.
package command

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Command 解析结果
type Command struct {
	Name string   // 命中的系统名
	Rest string   // 去除前缀和名称后的原文（已 trim）
	Args []string // Rest 按空白切分
}

// Parse 检查 text 是否以 prefix+name 开头（名称不区分大小写）。
// 名称之后必须是结尾或空白，因此 "#listen" 不会命中 "list"。
func Parse(text, prefix, name string) (Command, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, prefix) {
		return Command{}, false
	}
	body := trimmed[len(prefix):]
	if len(body) < len(name) || !strings.EqualFold(body[:len(name)], name) {
		return Command{}, false
	}
	rest := body[len(name):]
	if rest != "" {
		r, _ := utf8.DecodeRuneInString(rest)
		if !unicode.IsSpace(r) {
			return Command{}, false
		}
	}
	rest = strings.TrimSpace(rest)
	return Command{Name: name, Rest: rest, Args: strings.Fields(rest)}, true
}

// HasPrefix 判断文本是否像一条命令
func HasPrefix(text, prefix string) bool {
	return prefix != "" && strings.HasPrefix(strings.TrimSpace(text), prefix)
}

// Sub 返回第一个参数（小写）和剩余命令
func (c Command) Sub() (string, Command) {
	if len(c.Args) == 0 {
		return "", c
	}
	sub := strings.ToLower(c.Args[0])
	rest := strings.TrimSpace(c.Rest[len(c.Args[0]):])
	return sub, Command{Name: c.Name + " " + sub, Rest: rest, Args: c.Args[1:]}
}

// Arg 返回第 i 个参数，越界时返回空串
func (c Command) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}

// From 返回从第 i 个参数开始的原文，保留内部空白
func (c Command) From(i int) string {
	s := c.Rest
	for j := 0; j < i; j++ {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		k := strings.IndexFunc(s, unicode.IsSpace)
		if k < 0 {
			return ""
		}
		s = s[k:]
	}
	return strings.TrimSpace(s)
}
