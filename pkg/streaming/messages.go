package streaming

import (
	"encoding/json"
	"fmt"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/quickrts/skirmish/pkg/core"
)

// Message type constants of the replication protocol. The same type names
// are used for a command (mirror to authority) and for the broadcast the
// authority commits from it.
const (
	TypeSpawn       = "spawn"
	TypeSetTarget   = "set_target"
	TypeMoveOrder   = "move_order"
	TypeStatus      = "status"
	TypeApplyHealth = "apply_health"
	TypeAttack      = "attack"
	TypeDestroy     = "destroy"

	// Session control, never journaled.
	TypeHello = "hello"
	TypeAck   = "ack"
	// TypeLeave is raised by the host transport when a mirror is gone for
	// good. Origin names the mirror.
	TypeLeave = "leave"
)

// Envelope wraps every replication message.
//
// Commands carry Command=true and Seq=0. Broadcasts carry the subject unit's
// sequence number, starting at 1 and increasing by one per commit.
//
// Origin is set by the host transport on commands it receives and names the
// forwarding mirror. Local commands have no origin.
type Envelope struct {
	Type    string          `json:"type"`
	Command bool            `json:"command,omitempty"`
	Unit    core.UnitID     `json:"unit"`
	Seq     uint64          `json:"seq,omitempty"`
	Origin  string          `json:"origin,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Route is the dispatcher key of the envelope.
func (e Envelope) Route() string {
	if e.Command {
		return CommandRoute(e.Type)
	}
	return e.Type
}

// CommandRoute is the dispatcher key of a command of the given type.
func CommandRoute(msgType string) string {
	return "cmd:" + msgType
}

// AsBroadcast returns a copy of a command envelope stamped with seq.
func (e Envelope) AsBroadcast(seq uint64) Envelope {
	e.Command = false
	e.Seq = seq
	e.Origin = ""
	return e
}

// Leave builds the notice that mirror origin has left.
func Leave(origin string) Envelope {
	return Envelope{Type: TypeLeave, Origin: origin}
}

// AckMessage is the host's acknowledgement of a session control message.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`
}

// HelloPayload is the first message of a mirror connection.
type HelloPayload struct {
	Node string `json:"node"`
}

// SpawnPayload creates a unit on every observer.
type SpawnPayload struct {
	Record core.SpawnRecord `json:"record"`
}

// SetTargetPayload carries a targeting decision. A field equal to the
// subject unit's own id is the "no target" sentinel.
type SetTargetPayload struct {
	Pursuit core.UnitID `json:"pursuit"`
	Attack  core.UnitID `json:"attack"`
}

// MoveOrderPayload carries a player-issued destination.
type MoveOrderPayload struct {
	Destination geom.XY `json:"destination"`
}

// StatusPayload carries the authority-owned status of a unit.
type StatusPayload struct {
	Snapshot core.UnitSnapshot `json:"snapshot"`
}

// ApplyHealthPayload carries the health computed by the authority.
type ApplyHealthPayload struct {
	Health int `json:"health"`
}

// AttackPayload names the victim of an attack. The envelope unit is the attacker.
type AttackPayload struct {
	Victim core.UnitID `json:"victim"`
}

// NewEnvelope marshals payload into an envelope of the given type.
func NewEnvelope(msgType string, unit core.UnitID, payload any) (Envelope, error) {
	env := Envelope{Type: msgType, Unit: unit}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env.Payload = data
	return env, nil
}

// Decode unmarshals the envelope payload into dst.
func Decode[T any](e Envelope) (T, error) {
	var dst T
	if len(e.Payload) == 0 {
		return dst, fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, &dst); err != nil {
		return dst, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return dst, nil
}
