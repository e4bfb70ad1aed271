package message

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Message is an ordered sequence of items; order is render order.
type Message []Item

// TextMessage builds a message holding a single text item.
func TextMessage(s string) Message {
	return Message{Text{Text: s}}
}

// PlainText concatenates the message, rendering non-text items with Summary.
func (m Message) PlainText() string {
	var b strings.Builder
	for _, it := range m {
		b.WriteString(Summary(it))
	}
	return b.String()
}

// OnlyText concatenates the text items and ignores everything else.
func (m Message) OnlyText() string {
	var b strings.Builder
	for _, it := range m {
		if t, ok := it.(Text); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

// IsEmpty reports whether the message has no items or only blank text.
func (m Message) IsEmpty() bool {
	for _, it := range m {
		t, ok := it.(Text)
		if !ok || strings.TrimSpace(t.Text) != "" {
			return false
		}
	}
	return true
}

// Clone returns a copy of the slice; items are values and need no deep copy.
func (m Message) Clone() Message {
	if m == nil {
		return nil
	}
	out := make(Message, len(m))
	copy(out, m)
	return out
}

// Segment is the OneBot v11 array element form of an item. It is the wire
// schema every parser produces and every builder consumes.
type Segment struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// ToSegment converts an item to its segment form.
func ToSegment(it Item) Segment {
	d := map[string]any{}
	switch v := it.(type) {
	case Text:
		d["text"] = v.Text
	case At:
		d["qq"] = v.Target
		if v.Name != "" {
			d["name"] = v.Name
		}
	case Image:
		d["file"] = v.File
		if v.Summary != "" {
			d["summary"] = v.Summary
		}
	case Voice:
		d["file"] = v.File
	case Face:
		d["id"] = v.ID
	case Reply:
		d["id"] = v.ID
	case Share:
		d["url"] = v.URL
		d["title"] = v.Title
		if v.Content != "" {
			d["content"] = v.Content
		}
		if v.Image != "" {
			d["image"] = v.Image
		}
	case Location:
		d["lat"] = v.Lat
		d["lon"] = v.Lon
		if v.Title != "" {
			d["title"] = v.Title
		}
		if v.Content != "" {
			d["content"] = v.Content
		}
	case Contact:
		d["type"] = v.Type
		d["id"] = v.ID
	case Poke:
		d["qq"] = v.QQ
	case Dice, RPS, Shake:
	}
	return Segment{Type: string(it.Kind()), Data: d}
}

// FromSegment converts a segment to an item. Unknown types report false.
func FromSegment(seg Segment) (Item, bool) {
	str := func(keys ...string) string {
		for _, k := range keys {
			if s := stringify(seg.Data[k]); s != "" {
				return s
			}
		}
		return ""
	}

	switch Kind(seg.Type) {
	case KindText:
		return Text{Text: str("text")}, true
	case KindAt:
		return At{Target: str("qq"), Name: str("name")}, true
	case KindImage:
		return Image{File: str("url", "file"), Summary: str("summary")}, true
	case KindVoice:
		return Voice{File: str("url", "file")}, true
	case KindFace:
		return Face{ID: str("id")}, true
	case KindReply:
		return Reply{ID: str("id")}, true
	case KindShare:
		return Share{URL: str("url"), Title: str("title"), Content: str("content"), Image: str("image")}, true
	case KindLocation:
		return Location{Lat: str("lat"), Lon: str("lon"), Title: str("title"), Content: str("content")}, true
	case KindContact:
		return Contact{Type: str("type"), ID: str("id")}, true
	case KindPoke:
		return Poke{QQ: str("qq", "id")}, true
	case KindDice:
		return Dice{}, true
	case KindRPS:
		return RPS{}, true
	case KindShake:
		return Shake{}, true
	default:
		return nil, false
	}
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// Segments converts the whole message.
func (m Message) Segments() []Segment {
	out := make([]Segment, 0, len(m))
	for _, it := range m {
		out = append(out, ToSegment(it))
	}
	return out
}

// FromSegments converts segments, skipping unknown types.
func FromSegments(segs []Segment) Message {
	out := make(Message, 0, len(segs))
	for _, s := range segs {
		if it, ok := FromSegment(s); ok {
			out = append(out, it)
		}
	}
	return out
}

// MarshalJSON encodes the message as a segment array.
func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Segments())
}

// UnmarshalJSON accepts a segment array or, for leniency, a bare string
// which becomes a single text item.
func (m *Message) UnmarshalJSON(data []byte) error {
	var segs []Segment
	if err := json.Unmarshal(data, &segs); err == nil {
		*m = FromSegments(segs)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("message: expected segment array or string: %w", err)
	}
	*m = TextMessage(s)
	return nil
}
