package model

import (
	"fmt"
	"time"
)

// MsgKind classifies a message line for rendering and filtering.
type MsgKind int

const (
	// MsgStatus is a client-side diagnostic or session notice.
	MsgStatus MsgKind = iota
	// MsgChat is a regular chat message.
	MsgChat
	// MsgAction is a /me style action.
	MsgAction
	// MsgNotice is a notice addressed to the user.
	MsgNotice
	// MsgError is an error reported by the core.
	MsgError
)

var msgKindNames = [...]string{
	MsgStatus: "status",
	MsgChat:   "chat",
	MsgAction: "action",
	MsgNotice: "notice",
	MsgError:  "error",
}

func (k MsgKind) String() string {
	if k < 0 || int(k) >= len(msgKindNames) {
		return fmt.Sprintf("MsgKind(%d)", int(k))
	}
	return msgKindNames[k]
}

// ParseMsgKind maps a wire name back to a MsgKind. Unknown names map to MsgChat.
func ParseMsgKind(name string) MsgKind {
	for k, n := range msgKindNames {
		if n == name {
			return MsgKind(k)
		}
	}
	return MsgChat
}

// LineData is the payload of a Line. The set of implementations is closed.
type LineData interface {
	lineData()
}

// Message is a line of text sent by someone.
type Message struct {
	From string
	Text string
	Kind MsgKind
}

// Join records a user joining the buffer's channel.
type Join struct {
	User string
}

// Part records a user leaving the buffer's channel.
type Part struct {
	User   string
	Reason string
}

// Notice is a server-originated notice without a sender.
type Notice struct {
	Text string
}

// Topic records a topic change.
type Topic struct {
	User string
	Text string
}

func (Message) lineData() {}
func (Join) lineData()    {}
func (Part) lineData()    {}
func (Notice) lineData()  {}
func (Topic) lineData()   {}

// Line is one timestamped event in a buffer.
type Line struct {
	Time time.Time
	Data LineData
}

// NewLine builds a line with the given time and payload.
func NewLine(at time.Time, data LineData) Line {
	return Line{Time: at, Data: data}
}

// StatusLine builds a status message line stamped with the current time.
func StatusLine(from, text string) Line {
	return NewLine(time.Now(), Message{From: from, Text: text, Kind: MsgStatus})
}

// Text renders the line payload as plain text without the timestamp.
func (l Line) Text() string {
	switch d := l.Data.(type) {
	case Message:
		if d.Kind == MsgAction {
			return fmt.Sprintf("* %s %s", d.From, d.Text)
		}
		return fmt.Sprintf("<%s> %s", d.From, d.Text)
	case Join:
		return fmt.Sprintf("--> %s joined", d.User)
	case Part:
		if d.Reason != "" {
			return fmt.Sprintf("<-- %s left (%s)", d.User, d.Reason)
		}
		return fmt.Sprintf("<-- %s left", d.User)
	case Notice:
		return "-- " + d.Text
	case Topic:
		return fmt.Sprintf("-- %s set topic: %s", d.User, d.Text)
	default:
		return ""
	}
}

func (l Line) String() string {
	return l.Time.Format("15:04:05") + " " + l.Text()
}
