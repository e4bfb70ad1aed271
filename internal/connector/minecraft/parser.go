package minecraft

import (
	"regexp"
	"strings"

	"mcqq/pkg/connector"
	"mcqq/pkg/message"
)

// Notice sub types produced by the console parser.
const (
	SubTypeJoin  = "join"
	SubTypeLeave = "leave"
)

// "[12:34:56] [Server thread/INFO]: " (vanilla) or "[12:34:56 INFO]: " (Paper)
var logPrefixRe = regexp.MustCompile(`^\[[^\]]*\](?: \[[^\]]*\])?: `)

var (
	chatRe  = regexp.MustCompile(`^(?:\[Not Secure\] )?<([^>\s]+)> (.*)$`)
	joinRe  = regexp.MustCompile(`^([A-Za-z0-9_.]{1,32}) joined the game$`)
	leaveRe = regexp.MustCompile(`^([A-Za-z0-9_.]{1,32}) left the game$`)
)

// NoticeFunc renders a join or leave notice for player.
type NoticeFunc func(subType, player string) message.Message

// DefaultNotice renders notices in English.
func DefaultNotice(subType, player string) message.Message {
	if subType == SubTypeJoin {
		return message.TextMessage(player + " joined the game")
	}
	return message.TextMessage(player + " left the game")
}

// LineParser turns server console lines into BroadcastInfo.
type LineParser struct {
	// Server is the SourceID of every event.
	Server string
	// JoinLeave enables join/leave notices.
	JoinLeave bool
	Notice    NoticeFunc
	// IsAdmin reports whether a player is an administrator; may be nil.
	IsAdmin func(player string) bool
}

var _ connector.Parser[string] = (*LineParser)(nil)

// Parse returns connector.ErrSkip for lines that carry no chat event.
func (p *LineParser) Parse(line string) (*message.BroadcastInfo, error) {
	body := logPrefixRe.ReplaceAllString(strings.TrimSpace(line), "")
	if body == "" {
		return nil, connector.ErrSkip
	}

	if m := chatRe.FindStringSubmatch(body); m != nil {
		text := strings.TrimSpace(m[2])
		if text == "" {
			return nil, connector.ErrSkip
		}
		return p.info(message.EventMessage, message.TargetGroup, m[1], message.TextMessage(text)), nil
	}
	if !p.JoinLeave {
		return nil, connector.ErrSkip
	}

	notice := p.Notice
	if notice == nil {
		notice = DefaultNotice
	}
	if m := joinRe.FindStringSubmatch(body); m != nil {
		info := p.info(message.EventNotice, SubTypeJoin, "", notice(SubTypeJoin, m[1]))
		info.SenderID = m[1]
		return info, nil
	}
	if m := leaveRe.FindStringSubmatch(body); m != nil {
		info := p.info(message.EventNotice, SubTypeLeave, "", notice(SubTypeLeave, m[1]))
		info.SenderID = m[1]
		return info, nil
	}
	return nil, connector.ErrSkip
}

func (p *LineParser) info(ev message.EventType, sub, player string, msg message.Message) *message.BroadcastInfo {
	info := &message.BroadcastInfo{
		EventType:    ev,
		EventSubType: sub,
		Message:      msg,
		SourceID:     p.Server,
		Sender:       player,
		SenderID:     player,
	}
	if player != "" && p.IsAdmin != nil {
		info.IsAdmin = p.IsAdmin(player)
	}
	return info
}
