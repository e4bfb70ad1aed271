package message

import "encoding/json"

// EventType is the top level event category.
type EventType string

const (
	EventMessage EventType = "message"
	EventNotice  EventType = "notice"
	EventRequest EventType = "request"
)

// Target kinds used as values of the Target map.
const (
	TargetGroup   = "group"
	TargetPrivate = "private"
)

// BroadcastInfo is an inbound event normalised by a parser. It is read only
// while it travels through the system chain.
type BroadcastInfo struct {
	EventType      EventType         `json:"event_type"`
	EventSubType   string            `json:"event_sub_type,omitempty"`
	Message        Message           `json:"message"`
	Raw            json.RawMessage   `json:"raw,omitempty"`
	Source         Source            `json:"source"`
	SourceID       string            `json:"source_id,omitempty"`
	Sender         string            `json:"sender,omitempty"`
	SenderID       string            `json:"sender_id,omitempty"`
	Receiver       string            `json:"receiver,omitempty"`
	ReceiverSource string            `json:"receiver_source,omitempty"`
	IsAdmin        bool              `json:"is_admin"`
	Target         map[string]string `json:"target,omitempty"`
}

// ProcessedInfo is an outbound message ready for fan-out. ProcessedMessage
// is final; builders render it as is.
type ProcessedInfo struct {
	EventType        EventType         `json:"event_type,omitempty"`
	ProcessedMessage Message           `json:"processed_message"`
	Source           Source            `json:"source"`
	SourceID         string            `json:"source_id,omitempty"`
	Sender           string            `json:"sender,omitempty"`
	SenderID         string            `json:"sender_id,omitempty"`
	Receiver         string            `json:"receiver,omitempty"`
	EventSubType     string            `json:"event_sub_type,omitempty"`
	Target           map[string]string `json:"target,omitempty"`
	Raw              json.RawMessage   `json:"raw,omitempty"`
	IsAdmin          bool              `json:"is_admin"`
}

// ToProcessed copies the addressing fields into a pass-through ProcessedInfo.
// The source chain is cloned so outbound hops never alter the inbound event.
func (b *BroadcastInfo) ToProcessed() *ProcessedInfo {
	return &ProcessedInfo{
		EventType:        b.EventType,
		ProcessedMessage: b.Message.Clone(),
		Source:           b.Source.Clone(),
		SourceID:         b.SourceID,
		Sender:           b.Sender,
		SenderID:         b.SenderID,
		Receiver:         b.Receiver,
		EventSubType:     b.EventSubType,
		Target:           cloneTarget(b.Target),
		Raw:              b.Raw,
		IsAdmin:          b.IsAdmin,
	}
}

// WithMessage returns a copy of p carrying msg.
func (p *ProcessedInfo) WithMessage(msg Message) *ProcessedInfo {
	cp := *p
	cp.Source = p.Source.Clone()
	cp.Target = cloneTarget(p.Target)
	cp.ProcessedMessage = msg
	return &cp
}

// Clone returns a deep enough copy for a connector to mutate the source chain
// or message without affecting sibling sends.
func (p *ProcessedInfo) Clone() *ProcessedInfo {
	return p.WithMessage(p.ProcessedMessage.Clone())
}

// IsPinned reports whether the info is addressed to explicit destinations.
func (p *ProcessedInfo) IsPinned() bool { return len(p.Target) > 0 }

func cloneTarget(t map[string]string) map[string]string {
	if t == nil {
		return nil
	}
	out := make(map[string]string, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}
