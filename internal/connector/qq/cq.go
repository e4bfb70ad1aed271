package qq

import (
	"sort"
	"strings"

	"mcqq/pkg/message"
)

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "[", "&#91;", "]", "&#93;")
	argEscaper  = strings.NewReplacer("&", "&amp;", "[", "&#91;", "]", "&#93;", ",", "&#44;")
	unescaper   = strings.NewReplacer("&#91;", "[", "&#93;", "]", "&#44;", ",", "&amp;", "&")
)

// EscapeText escapes plain text for a CQ string.
func EscapeText(s string) string { return textEscaper.Replace(s) }

// EscapeArg escapes a CQ code parameter value.
func EscapeArg(s string) string { return argEscaper.Replace(s) }

// Unescape reverses EscapeText and EscapeArg.
func Unescape(s string) string { return unescaper.Replace(s) }

// ParseCQ decodes a CQ-code string such as "hi [CQ:at,qq=1] there".
// Malformed codes are kept as text; unknown types are dropped.
func ParseCQ(s string) message.Message {
	var out message.Message
	for len(s) > 0 {
		start := strings.Index(s, "[CQ:")
		if start < 0 {
			out = appendText(out, s)
			break
		}
		end := strings.IndexByte(s[start:], ']')
		if end < 0 {
			out = appendText(out, s)
			break
		}
		end += start

		out = appendText(out, s[:start])
		if it, ok := message.FromSegment(parseCode(s[start+4 : end])); ok {
			out = append(out, it)
		}
		s = s[end+1:]
	}
	return out
}

func parseCode(body string) message.Segment {
	fields := strings.Split(body, ",")
	seg := message.Segment{Type: fields[0], Data: make(map[string]any, len(fields)-1)}
	for _, f := range fields[1:] {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		seg.Data[k] = Unescape(v)
	}
	return seg
}

func appendText(m message.Message, s string) message.Message {
	if s == "" {
		return m
	}
	s = Unescape(s)
	if n := len(m); n > 0 {
		if t, ok := m[n-1].(message.Text); ok {
			m[n-1] = message.Text{Text: t.Text + s}
			return m
		}
	}
	return append(m, message.Text{Text: s})
}

// BuildCQ encodes msg as a CQ-code string. Parameters are written in sorted
// key order so the output is stable.
func BuildCQ(msg message.Message) string {
	var b strings.Builder
	for _, it := range msg {
		if t, ok := it.(message.Text); ok {
			b.WriteString(EscapeText(t.Text))
			continue
		}
		seg := message.ToSegment(it)
		keys := make([]string, 0, len(seg.Data))
		for k := range seg.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString("[CQ:")
		b.WriteString(seg.Type)
		for _, k := range keys {
			b.WriteByte(',')
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(EscapeArg(toString(seg.Data[k])))
		}
		b.WriteByte(']')
	}
	return b.String()
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
