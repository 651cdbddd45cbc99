package session

import (
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-cmp/cmp"

	"github.com/vovakirdan/distirc/internal/model"
	"github.com/vovakirdan/distirc/internal/proto"
)

func TestLineFromWire(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   proto.LineData
		want model.LineData
	}{
		{"message", proto.LineData{Type: "message", From: "bob", Text: "hi"}, model.Message{From: "bob", Text: "hi", Kind: model.MsgChat}},
		{"action", proto.LineData{Type: "message", From: "bob", Text: "waves", Kind: "action"}, model.Message{From: "bob", Text: "waves", Kind: model.MsgAction}},
		{"join", proto.LineData{Type: "join", User: "carol"}, model.Join{User: "carol"}},
		{"part", proto.LineData{Type: "part", User: "carol", Reason: "bye"}, model.Part{User: "carol", Reason: "bye"}},
		{"notice", proto.LineData{Type: "notice", Text: "maintenance"}, model.Notice{Text: "maintenance"}},
		{"topic", proto.LineData{Type: "topic", User: "dave", Text: "go 1.25"}, model.Topic{User: "dave", Text: "go 1.25"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.in.TS = ts.UnixMilli()
			got, ok := lineFromWire(tc.in)
			if !ok {
				t.Fatalf("line rejected")
			}
			if diff := cmp.Diff(tc.want, got.Data); diff != "" {
				t.Fatalf("data mismatch (-want +got):\n%s", diff)
			}
			if !got.Time.Equal(ts) {
				t.Fatalf("time = %v, want %v", got.Time, ts)
			}
		})
	}
}

func TestLineFromWireSkipsUnknownTypes(t *testing.T) {
	if _, ok := lineFromWire(proto.LineData{Type: "reaction"}); ok {
		t.Fatalf("unknown line type accepted")
	}
}

func TestLineFromWireStampsMissingTime(t *testing.T) {
	before := time.Now()
	got, ok := lineFromWire(proto.LineData{Type: "notice", Text: "x"})
	if !ok || got.Time.Before(before) {
		t.Fatalf("got %+v ok=%v", got, ok)
	}
}

func TestTargetToKey(t *testing.T) {
	key, err := targetToKey(proto.Target{Kind: "query", Name: "bob"})
	if err != nil || key != model.QueryKey("bob") {
		t.Fatalf("targetToKey = %v, %v", key, err)
	}
	if got := keyToTarget(model.ChannelKey("#go")); got != (proto.Target{Kind: "channel", Name: "#go"}) {
		t.Fatalf("keyToTarget = %+v", got)
	}

	for _, bad := range []proto.Target{{Kind: "galaxy", Name: "x"}, {Kind: "channel"}, {Kind: "status"}} {
		if _, err := targetToKey(bad); !errors.Is(err, ErrUnexpectedFrame) {
			t.Fatalf("targetToKey(%+v) err = %v", bad, err)
		}
	}
}

func TestTokenUsable(t *testing.T) {
	now := time.Now()
	sign := func(claims jwt.RegisteredClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}

	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"empty", "", false},
		{"garbage", "not.a.token", false},
		{"valid", sign(jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))}), true},
		{"expired", sign(jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute))}), false},
		{"about to expire", sign(jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Second))}), false},
		{"no expiry", sign(jwt.RegisteredClaims{Subject: "alice"}), true},
	}
	for _, tc := range tests {
		if got := tokenUsable(tc.token, now); got != tc.want {
			t.Fatalf("%s: tokenUsable = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{io.EOF, KindTransport},
		{fmt.Errorf("read frame: %w", proto.ErrMalformedFrame), KindProtocol},
		{proto.ErrFrameTooLarge, KindProtocol},
		{fmt.Errorf("%w: x", ErrUnexpectedFrame), KindProtocol},
		{model.ErrPoisoned, KindLocalState},
	}
	for _, tc := range tests {
		got := classify("op", tc.err)
		if got.Kind != tc.want {
			t.Fatalf("classify(%v) = %s, want %s", tc.err, got.Kind, tc.want)
		}
		if !errors.Is(got, tc.err) {
			t.Fatalf("classify(%v) lost the cause", tc.err)
		}
		if got.Recoverable() != (tc.want != KindLocalState) {
			t.Fatalf("classify(%v).Recoverable() = %v", tc.err, got.Recoverable())
		}
	}
}
