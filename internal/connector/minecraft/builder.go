package minecraft

import (
	"encoding/json"

	"mcqq/pkg/connector"
	"mcqq/pkg/message"
)

// Component is one element of a Minecraft raw JSON text.
type Component struct {
	Text       string      `json:"text"`
	Color      string      `json:"color,omitempty"`
	Underlined bool        `json:"underlined,omitempty"`
	ClickEvent *ClickEvent `json:"clickEvent,omitempty"`
	HoverEvent *HoverEvent `json:"hoverEvent,omitempty"`
}

// ClickEvent opens a URL or suggests text.
type ClickEvent struct {
	Action string `json:"action"`
	Value  string `json:"value"`
}

// HoverEvent shows a tooltip.
type HoverEvent struct {
	Action   string `json:"action"`
	Contents string `json:"contents"`
}

// Colors used by the builder.
const (
	ColorOrigin  = "aqua"
	ColorSender  = "yellow"
	ColorRich    = "gray"
	ColorMention = "green"
)

// Components renders msg as raw JSON text components. Rich items the game
// cannot show become gray summaries; links stay clickable.
func Components(msg message.Message) []Component {
	out := make([]Component, 0, len(msg))
	for _, it := range msg {
		switch v := it.(type) {
		case message.Text:
			out = append(out, Component{Text: v.Text})
		case message.At:
			out = append(out, Component{Text: message.Summary(v), Color: ColorMention})
		case message.Image:
			c := Component{Text: message.Summary(v), Color: ColorRich}
			if isURL(v.File) {
				c.Underlined = true
				c.ClickEvent = &ClickEvent{Action: "open_url", Value: v.File}
				c.HoverEvent = &HoverEvent{Action: "show_text", Contents: v.File}
			}
			out = append(out, c)
		case message.Share:
			c := Component{Text: message.Summary(v), Color: ColorRich}
			if isURL(v.URL) {
				c.Underlined = true
				c.ClickEvent = &ClickEvent{Action: "open_url", Value: v.URL}
				c.HoverEvent = &HoverEvent{Action: "show_text", Contents: v.URL}
			}
			out = append(out, c)
		case message.Voice, message.Face, message.Reply, message.Location,
			message.Contact, message.Poke, message.Dice, message.RPS, message.Shake:
			out = append(out, Component{Text: message.Summary(v), Color: ColorRich})
		}
	}
	return out
}

func isURL(s string) bool {
	return len(s) > 8 && (s[:7] == "http://" || s[:8] == "https://")
}

// Label renders the provenance prefix "[origin] sender: " or "[origin] ".
func Label(info *message.ProcessedInfo) []Component {
	origin := info.Source.Origin()
	if origin == "" {
		return nil
	}
	out := []Component{{Text: "[" + origin + "] ", Color: ColorOrigin}}
	if info.Sender != "" {
		out = append(out, Component{Text: info.Sender, Color: ColorSender}, Component{Text: ": "})
	}
	return out
}

// TellrawBuilder renders a message into the JSON argument of tellraw.
type TellrawBuilder struct{}

var _ connector.Builder[string] = TellrawBuilder{}

// Build implements connector.Builder.
func (TellrawBuilder) Build(msg message.Message) (string, error) {
	return encode(Components(msg))
}

func encode(cs []Component) (string, error) {
	// a leading empty string stops the first component's style leaking
	all := make([]any, 0, len(cs)+1)
	all = append(all, "")
	for _, c := range cs {
		all = append(all, c)
	}
	data, err := json.Marshal(all)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
