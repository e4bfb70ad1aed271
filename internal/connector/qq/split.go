package qq

import "mcqq/pkg/message"

// DefaultMaxLength is the default per-part budget in virtual length units.
const DefaultMaxLength = 2000

// Split breaks msg into parts whose summed virtual length is at most max.
// Text is cut at the last newline in the second half of the remaining budget
// when there is one, otherwise exactly at the budget. Non-text items are never
// cut; one that does not fit starts a new part, and one larger than max sits
// alone in its own part.
func Split(msg message.Message, max int) []message.Message {
	if max <= 0 {
		max = DefaultMaxLength
	}

	var (
		parts []message.Message
		cur   message.Message
		used  int
	)
	flush := func() {
		if len(cur) > 0 {
			parts = append(parts, cur)
		}
		cur, used = nil, 0
	}

	for _, it := range msg {
		t, ok := it.(message.Text)
		if !ok {
			n := message.VirtualLength(it)
			if used+n > max {
				flush()
			}
			cur = append(cur, it)
			used += n
			if used >= max {
				flush()
			}
			continue
		}

		runes := []rune(t.Text)
		for len(runes) > 0 {
			remain := max - used
			if len(runes) <= remain {
				cur = append(cur, message.Text{Text: string(runes)})
				used += len(runes)
				break
			}
			if remain <= 0 {
				flush()
				continue
			}
			cut := cutPoint(runes, remain)
			cur = append(cur, message.Text{Text: string(runes[:cut])})
			flush()
			runes = runes[cut:]
		}
	}
	flush()
	return parts
}

// cutPoint returns the index just after the last newline within
// [remain/2, remain), or remain when there is none.
func cutPoint(runes []rune, remain int) int {
	for i := remain - 1; i >= remain/2 && i > 0; i-- {
		if runes[i] == '\n' {
			return i + 1
		}
	}
	return remain
}
