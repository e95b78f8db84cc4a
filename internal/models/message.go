package models

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// InviteKind discriminates the action payload carried by system invite
// messages.
type InviteKind string

const (
	// InviteLeaveRoot asks the recipient to leave a root review about the
	// counterpart.
	InviteLeaveRoot InviteKind = "invite_leave_root"
	// InviteLeaveReply asks the recipient to reply to a review the
	// counterpart left.
	InviteLeaveReply InviteKind = "invite_leave_reply"
)

// Label returns the button label shown for the invite kind.
func (k InviteKind) Label() string {
	switch k {
	case InviteLeaveRoot:
		return "Leave review"
	case InviteLeaveReply:
		return "Reply"
	}
	return ""
}

// ActionMeta is the structured payload of an invite action.
type ActionMeta struct {
	Counterpart UserPreview     `json:"counterpart"`
	Listing     *ListingPreview `json:"listing,omitempty"`
}

// MessageAction is the tagged action attached to a pending invite message.
// Cleared (set to nil) once the invite is fulfilled.
type MessageAction struct {
	Type  InviteKind `json:"type"`
	Label string     `json:"label"`
	Meta  ActionMeta `json:"meta"`
}

// Message represents a chat message at rest.
type Message struct {
	ID        int            `db:"id" json:"id"`
	ChatID    int            `db:"chat_id" json:"chat_id"`
	SenderID  int            `db:"sender_id" json:"sender_id"`
	Text      string         `db:"text" json:"text"`
	Media     pq.StringArray `db:"media" json:"media"`
	MediaType string         `db:"media_type" json:"media_type"`
	IsRead    bool           `db:"is_read" json:"is_read"`
	Reaction  *string        `db:"reaction" json:"reaction"`
	ReplyTo   *int           `db:"reply_to" json:"reply_to"`
	IsChanged bool           `db:"is_changed" json:"is_changed"`

	ActionType          *string         `db:"action_type" json:"-"`
	ActionLabel         *string         `db:"action_label" json:"-"`
	ActionCounterpartID *int            `db:"action_counterpart_id" json:"-"`
	ActionListingID     *int            `db:"action_listing_id" json:"-"`
	ActionMeta          json.RawMessage `db:"action_meta" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Action assembles the tagged action payload from the persisted columns.
// Returns nil for ordinary messages and for fulfilled invites.
func (m Message) Action() *MessageAction {
	if m.ActionType == nil {
		return nil
	}
	action := &MessageAction{Type: InviteKind(*m.ActionType)}
	if m.ActionLabel != nil {
		action.Label = *m.ActionLabel
	}
	if len(m.ActionMeta) > 0 {
		_ = json.Unmarshal(m.ActionMeta, &action.Meta)
	}
	return action
}

// MarshalJSON renders the message with its assembled action payload.
func (m Message) MarshalJSON() ([]byte, error) {
	type alias Message
	return json.Marshal(struct {
		alias
		Action *MessageAction `json:"action"`
	}{alias(m), m.Action()})
}
