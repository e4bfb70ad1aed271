package qq

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"mcqq/pkg/connector"
	"mcqq/pkg/message"
)

// Event is the subset of an OneBot v11 event the parser reads.
type Event struct {
	PostType    string          `json:"post_type"`
	MessageType string          `json:"message_type"`
	NoticeType  string          `json:"notice_type"`
	RequestType string          `json:"request_type"`
	SubType     string          `json:"sub_type"`
	SelfID      ID              `json:"self_id"`
	UserID      ID              `json:"user_id"`
	GroupID     ID              `json:"group_id"`
	OperatorID  ID              `json:"operator_id"`
	MessageID   ID              `json:"message_id"`
	Message     json.RawMessage `json:"message"`
	RawMessage  string          `json:"raw_message"`
	Comment     string          `json:"comment"`
	Sender      struct {
		Nickname string `json:"nickname"`
		Card     string `json:"card"`
		Role     string `json:"role"`
	} `json:"sender"`
}

// frame is used to tell events from action responses.
type frame struct {
	PostType string `json:"post_type"`
	Echo     string `json:"echo"`
}

// EventParser converts OneBot events into BroadcastInfo.
type EventParser struct {
	// Groups accepted; empty accepts every group.
	Groups       []string
	AllowPrivate bool
	// IsAdmin reports whether a QQ id is an administrator; may be nil.
	IsAdmin func(userID string) bool
}

var _ connector.Parser[[]byte] = (*EventParser)(nil)

// Parse returns connector.ErrSkip for heartbeats, self messages and events
// from groups that are not configured.
func (p *EventParser) Parse(raw []byte) (*message.BroadcastInfo, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	info := &message.BroadcastInfo{
		Raw:      json.RawMessage(raw),
		SenderID: string(ev.UserID),
	}
	if p.IsAdmin != nil && ev.UserID != "" {
		info.IsAdmin = p.IsAdmin(string(ev.UserID))
	}

	switch ev.PostType {
	case "message", "message_sent":
		if ev.PostType == "message_sent" || (ev.SelfID != "" && ev.SelfID == ev.UserID) {
			return nil, connector.ErrSkip
		}
		msg, err := decodeMessage(ev.Message, ev.RawMessage)
		if err != nil {
			return nil, err
		}
		info.EventType = message.EventMessage
		info.Message = msg
		info.Sender = ev.Sender.Card
		if info.Sender == "" {
			info.Sender = ev.Sender.Nickname
		}

		switch ev.MessageType {
		case "group":
			if !p.acceptGroup(string(ev.GroupID)) {
				return nil, connector.ErrSkip
			}
			info.EventSubType = message.TargetGroup
			info.SourceID = string(ev.GroupID)
		case "private":
			if !p.AllowPrivate {
				return nil, connector.ErrSkip
			}
			info.EventSubType = message.TargetPrivate
			info.SourceID = string(ev.UserID)
		default:
			return nil, connector.ErrSkip
		}
		return info, nil

	case "notice":
		if ev.GroupID != "" && !p.acceptGroup(string(ev.GroupID)) {
			return nil, connector.ErrSkip
		}
		info.EventType = message.EventNotice
		info.EventSubType = ev.NoticeType
		info.SourceID = string(ev.GroupID)
		return info, nil

	case "request":
		if ev.GroupID != "" && !p.acceptGroup(string(ev.GroupID)) {
			return nil, connector.ErrSkip
		}
		info.EventType = message.EventRequest
		info.EventSubType = ev.RequestType
		info.SourceID = string(ev.GroupID)
		if ev.Comment != "" {
			info.Message = message.TextMessage(ev.Comment)
		}
		return info, nil

	case "meta_event":
		return nil, connector.ErrSkip

	default:
		return nil, fmt.Errorf("unknown post_type %q", ev.PostType)
	}
}

func (p *EventParser) acceptGroup(id string) bool {
	if len(p.Groups) == 0 {
		return true
	}
	for _, g := range p.Groups {
		if g == id {
			return true
		}
	}
	return false
}

// decodeMessage accepts the array and the CQ string message formats.
func decodeMessage(data json.RawMessage, rawMessage string) (message.Message, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return ParseCQ(rawMessage), nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return ParseCQ(s), nil
	}
	var segs []message.Segment
	if err := json.Unmarshal(data, &segs); err != nil {
		return nil, errors.New("message is neither a segment array nor a CQ string")
	}
	return message.FromSegments(segs), nil
}
