package stream

import (
	"context"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/agentgate/upstream"
)

type trackedBody struct {
	io.Reader
	closer io.Closer
	closes *atomic.Int32
}

func (b trackedBody) Close() error {
	b.closes.Add(1)
	if b.closer != nil {
		return b.closer.Close()
	}
	return nil
}

// linesOpener 返回把 lines 逐行输出的上游流
func linesOpener(engine string, lines ...string) (Opener, *atomic.Int32, **upstream.Stream) {
	closes := &atomic.Int32{}
	var opened *upstream.Stream
	open := func(context.Context) (*upstream.Stream, error) {
		body := trackedBody{Reader: strings.NewReader(strings.Join(lines, "\n") + "\n"), closes: closes}
		opened = upstream.NewStream(engine, nil, body, nil)
		return opened, nil
	}
	return open, closes, &opened
}

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("stream did not finish")
			return out
		}
	}
}

func ofType(events []Event, typ EventType) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func terminalCount(events []Event) int {
	n := 0
	for _, ev := range events {
		if ev.Type.Terminal() {
			n++
		}
	}
	return n
}

func joinContent(events []Event) string {
	var b strings.Builder
	for _, ev := range ofType(events, EventMessage) {
		b.WriteString(ev.Content)
	}
	return b.String()
}

var testMeta = Meta{ConversationID: "c0ffee", MessageID: "m1"}
