package message

import "fmt"

// Kind names a content item variant. The values match OneBot segment types
// where one exists.
type Kind string

const (
	KindText     Kind = "text"
	KindAt       Kind = "at"
	KindImage    Kind = "image"
	KindVoice    Kind = "record"
	KindFace     Kind = "face"
	KindReply    Kind = "reply"
	KindShare    Kind = "share"
	KindLocation Kind = "location"
	KindContact  Kind = "contact"
	KindPoke     Kind = "poke"
	KindDice     Kind = "dice"
	KindRPS      Kind = "rps"
	KindShake    Kind = "shake"
)

// Virtual lengths used for split budgeting of non-text items.
const (
	ImageVirtualLength = 100
	OtherVirtualLength = 20
)

// Item is one element of a message. The set of implementations is closed;
// renderers switch over the concrete types.
type Item interface {
	Kind() Kind
	isItem()
}

// Text is plain text.
type Text struct {
	Text string
}

// At mentions a user; Target "all" mentions everyone.
type At struct {
	Target string
	Name   string
}

// Image is a picture referenced by URL or file name.
type Image struct {
	File    string
	Summary string
}

// Voice is an audio clip.
type Voice struct {
	File string
}

// Face is a built-in emoticon.
type Face struct {
	ID string
}

// Reply quotes an earlier message by id.
type Reply struct {
	ID string
}

// Share is a link card.
type Share struct {
	URL     string
	Title   string
	Content string
	Image   string
}

// Location is a map pin.
type Location struct {
	Lat     string
	Lon     string
	Title   string
	Content string
}

// Contact recommends a user ("qq") or a group ("group").
type Contact struct {
	Type string
	ID   string
}

// Poke is a nudge aimed at a user.
type Poke struct {
	QQ string
}

// Dice is the random dice face.
type Dice struct{}

// RPS is rock-paper-scissors.
type RPS struct{}

// Shake is a window shake.
type Shake struct{}

func (Text) Kind() Kind     { return KindText }
func (At) Kind() Kind       { return KindAt }
func (Image) Kind() Kind    { return KindImage }
func (Voice) Kind() Kind    { return KindVoice }
func (Face) Kind() Kind     { return KindFace }
func (Reply) Kind() Kind    { return KindReply }
func (Share) Kind() Kind    { return KindShare }
func (Location) Kind() Kind { return KindLocation }
func (Contact) Kind() Kind  { return KindContact }
func (Poke) Kind() Kind     { return KindPoke }
func (Dice) Kind() Kind     { return KindDice }
func (RPS) Kind() Kind      { return KindRPS }
func (Shake) Kind() Kind    { return KindShake }

func (Text) isItem()     {}
func (At) isItem()       {}
func (Image) isItem()    {}
func (Voice) isItem()    {}
func (Face) isItem()     {}
func (Reply) isItem()    {}
func (Share) isItem()    {}
func (Location) isItem() {}
func (Contact) isItem()  {}
func (Poke) isItem()     {}
func (Dice) isItem()     {}
func (RPS) isItem()      {}
func (Shake) isItem()    {}

// VirtualLength is the budget an item consumes when splitting: the rune
// count for text, a fixed cost otherwise.
func VirtualLength(it Item) int {
	switch v := it.(type) {
	case Text:
		return len([]rune(v.Text))
	case Image:
		return ImageVirtualLength
	default:
		return OtherVirtualLength
	}
}

// Summary renders an item as short human readable text, used where the
// target cannot display rich content.
func Summary(it Item) string {
	switch v := it.(type) {
	case Text:
		return v.Text
	case At:
		if v.Name != "" {
			return "@" + v.Name
		}
		if v.Target == "all" {
			return "@全体成员"
		}
		return "@" + v.Target
	case Image:
		if v.Summary != "" {
			return v.Summary
		}
		return "[图片]"
	case Voice:
		return "[语音]"
	case Face:
		return "[表情]"
	case Reply:
		return "[回复]"
	case Share:
		if v.Title != "" {
			return fmt.Sprintf("[分享:%s]", v.Title)
		}
		return "[分享]"
	case Location:
		if v.Title != "" {
			return fmt.Sprintf("[位置:%s]", v.Title)
		}
		return "[位置]"
	case Contact:
		return "[推荐]"
	case Poke:
		return "[戳一戳]"
	case Dice:
		return "[骰子]"
	case RPS:
		return "[猜拳]"
	case Shake:
		return "[窗口抖动]"
	default:
		return ""
	}
}
