package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/quickrts/skirmish/pkg/streaming"
)

const (
	// queueSize bounds every outgoing queue and the default inbox.
	queueSize      = 10_000
	ackQueueSize   = 16
	maxRedials     = 10
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	writeWait      = 10 * time.Second
	helloTimeout   = 10 * time.Second

	// outlasts most of the client's redial schedule
	defaultLeaveGrace = time.Minute
)

// writeFrame writes one text frame with a deadline.
func writeFrame(conn *ws.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, data)
}

// closeFrame tells the other end why the link is going away. It is safe to
// call while another goroutine writes.
func closeFrame(conn *ws.Conn, code int, text string) {
	_ = conn.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(code, text), time.Now().Add(writeWait))
}

func encode(env streaming.Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", env.Type, err)
	}
	return data, nil
}

// encodeNew builds and encodes an envelope that is not about a unit.
func encodeNew(msgType string, payload any) ([]byte, error) {
	env, err := streaming.NewEnvelope(msgType, 0, payload)
	if err != nil {
		return nil, err
	}
	return encode(env)
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
