package session

import (
	"fmt"
	"time"

	"github.com/vovakirdan/distirc/internal/model"
	"github.com/vovakirdan/distirc/internal/proto"
)

// Command is a user action for the core, addressed to a buffer.
type Command struct {
	Target model.BufKey
	Text   string
}

func targetToKey(t proto.Target) (model.BufKey, error) {
	kind, err := model.ParseBufKind(t.Kind)
	if err != nil {
		return model.BufKey{}, fmt.Errorf("%w: %v", ErrUnexpectedFrame, err)
	}
	if kind == model.BufStatus {
		// the status buffer belongs to the local log sink
		return model.BufKey{}, fmt.Errorf("%w: core addressed the status buffer", ErrUnexpectedFrame)
	}
	key, err := model.NewBufKey(kind, t.Name)
	if err != nil {
		return model.BufKey{}, fmt.Errorf("%w: %v", ErrUnexpectedFrame, err)
	}
	return key, nil
}

func keyToTarget(k model.BufKey) proto.Target {
	return proto.Target{Kind: k.Kind.String(), Name: k.Name}
}

// lineFromWire converts a wire line. ok is false for line types this client
// does not know, which are skipped.
func lineFromWire(l proto.LineData) (model.Line, bool) {
	at := time.Now()
	if l.TS > 0 {
		at = time.UnixMilli(l.TS)
	}

	var data model.LineData
	switch l.Type {
	case proto.LineMessage:
		data = model.Message{From: l.From, Text: l.Text, Kind: model.ParseMsgKind(l.Kind)}
	case proto.LineJoin:
		data = model.Join{User: l.User}
	case proto.LinePart:
		data = model.Part{User: l.User, Reason: l.Reason}
	case proto.LineNotice:
		data = model.Notice{Text: l.Text}
	case proto.LineTopic:
		data = model.Topic{User: l.User, Text: l.Text}
	default:
		return model.Line{}, false
	}
	return model.NewLine(at, data), true
}
