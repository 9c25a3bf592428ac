package transport

import (
	"bufio"
	"encoding/json"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxFrameSize bounds inbound frames; the largest legitimate payload is
	// a full-length chat message plus envelope overhead.
	maxFrameSize = 64 * 1024
)

// readPump reads frames off the socket and hands them to the dispatcher.
// It owns connection cleanup: whatever ends the loop, cleanup runs exactly
// once.
func (s *Server) readPump(c *conn) {
	defer s.cleanup(c)

	c.netConn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		msg, op, err := wsutil.ReadClientData(c.netConn)
		if err != nil {
			return
		}
		c.netConn.SetReadDeadline(time.Now().Add(pongWait))
		c.touch()

		switch op {
		case ws.OpText:
			if len(msg) > maxFrameSize {
				s.writeErrorTo(c, CodeValidation, "frame too large", "", 0)
				continue
			}
			s.dispatch(c, msg)
		case ws.OpClose:
			return
		}
	}
}

// writePump serializes outbound events onto the socket. Writes are batched
// through a buffered writer: after the first event it drains whatever else
// is queued before flushing, cutting syscalls under fan-out load.
func (s *Server) writePump(c *conn) {
	writer := bufio.NewWriter(c.netConn)
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	// c.send is never closed; teardown goes through c.close() on the socket,
	// which fails the next write and ends the loop.
	for {
		select {
		case ev := <-c.send:
			c.netConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := writeEvent(writer, ev); err != nil {
				s.logger.Debug().Err(err).Str("conn", c.id).Msg("Write failed")
				return
			}

			// Drain queued events into the same flush.
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := writeEvent(writer, <-c.send); err != nil {
					s.logger.Debug().Err(err).Str("conn", c.id).Msg("Write failed")
					return
				}
			}
			if err := writer.Flush(); err != nil {
				s.logger.Debug().Err(err).Str("conn", c.id).Msg("Flush failed")
				return
			}

		case <-ticker.C:
			c.netConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsutil.WriteServerMessage(c.netConn, ws.OpPing, nil); err != nil {
				return
			}
		}
	}
}

func writeEvent(w *bufio.Writer, ev any) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return wsutil.WriteServerMessage(w, ws.OpText, data)
}
