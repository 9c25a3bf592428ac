package transport

import (
	"net"
	"testing"

	"github.com/lunastream/realtime/internal/room"
)

// The send channel stays open for the connection's whole lifetime; teardown
// only closes the socket, and the write pump exits on the failed write.
// Enqueue must therefore stay safe to call from any goroutine after close.
func TestSendChannelSurvivesClose(t *testing.T) {
	left, right := net.Pipe()
	defer left.Close()

	c := &conn{id: "c1", netConn: right, send: make(chan room.Event, 1)}
	c.close()
	c.close()

	if !c.Enqueue(room.Event{Type: EventPong}) {
		t.Fatal("enqueue refused after close with buffer space available")
	}
}
