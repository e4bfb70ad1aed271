package qq

import (
	"math/rand/v2"
	"regexp"
	"strings"

	"mcqq/internal/config"
	"mcqq/pkg/message"
)

var formattingRe = regexp.MustCompile(`§[0-9a-fk-orA-FK-OR]`)

// StripFormatting removes Minecraft § formatting codes.
func StripFormatting(s string) string {
	return formattingRe.ReplaceAllString(s, "")
}

// Formatter renders the provenance label put in front of relayed messages.
type Formatter struct {
	Templates []config.Template
	// DisplayName resolves the bound player name of the sender; nil or an
	// empty result falls back to the sender.
	DisplayName func(info *message.ProcessedInfo) string
	// Intn picks a random number in [0, n).
	Intn func(n int) int
}

// Label returns the prefix for info as seen by the connector named self, or
// "" when the message never left self. A message that came back over a
// bridge from a same-named connector on another server is labelled.
func (f *Formatter) Label(info *message.ProcessedInfo, self string) string {
	origin := info.Source.Origin()
	if origin == "" || (origin == self && info.Source.Len() == 1) {
		return ""
	}
	if info.Sender == "" {
		return "[" + origin + "] "
	}

	tpl := f.pick()
	if tpl == "" {
		return "[" + origin + "] " + info.Sender + ": "
	}

	display := info.Sender
	if f.DisplayName != nil {
		if name := f.DisplayName(info); name != "" {
			display = name
		}
	}
	via := ""
	if chain := info.Source.Chain(); len(chain) > 1 {
		via = strings.Join(chain[1:], " > ")
	}
	return strings.NewReplacer(
		"{display_name}", display,
		"{sender}", info.Sender,
		"{origin}", origin,
		"{via}", via,
	).Replace(tpl)
}

// pick chooses a template by weight; non-positive weights count as 1.
func (f *Formatter) pick() string {
	if len(f.Templates) == 0 {
		return ""
	}
	total := 0
	for _, t := range f.Templates {
		total += weight(t)
	}
	intn := f.Intn
	if intn == nil {
		intn = rand.IntN
	}
	n := intn(total)
	for _, t := range f.Templates {
		if n < weight(t) {
			return t.Template
		}
		n -= weight(t)
	}
	return f.Templates[len(f.Templates)-1].Template
}

func weight(t config.Template) int {
	if t.Weight <= 0 {
		return 1
	}
	return t.Weight
}

// Render builds the outbound message: label first, then the content with
// formatting codes stripped from text items.
func (f *Formatter) Render(info *message.ProcessedInfo, self string) message.Message {
	out := make(message.Message, 0, len(info.ProcessedMessage)+1)
	if label := f.Label(info, self); label != "" {
		out = append(out, message.Text{Text: label})
	}
	for _, it := range info.ProcessedMessage {
		if t, ok := it.(message.Text); ok {
			it = message.Text{Text: StripFormatting(t.Text)}
		}
		out = append(out, it)
	}
	return out
}
