package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
)

type MessageType string

const (
	TypeReady     MessageType = "ready"
	TypeOffer     MessageType = "offer"
	TypeAnswer    MessageType = "answer"
	TypeCandidate MessageType = "candidate"
)

type PeerRole string

const (
	RoleHost   PeerRole = "host"
	RoleViewer PeerRole = "viewer"
)

var (
	ErrUnknownType = errors.New("unknown signaling message type")
	ErrMalformed   = errors.New("malformed signaling message")
)

// Message is the closed set of signaling payloads: Ready, Offer, Answer and
// Candidate. The unexported method keeps other packages from adding variants.
type Message interface {
	Type() MessageType
	Sender() string
	signal()
}

// Ready announces a peer and its role to everyone on the channel.
type Ready struct {
	SenderID string
	Role     PeerRole
}

// Offer, Answer and Candidate are point-to-point. SDP and ICE payloads are
// carried opaquely.
type Offer struct {
	SenderID string
	TargetID string
	SDP      json.RawMessage
}

type Answer struct {
	SenderID string
	TargetID string
	SDP      json.RawMessage
}

type Candidate struct {
	SenderID     string
	TargetID     string
	ICECandidate json.RawMessage
}

func (Ready) Type() MessageType     { return TypeReady }
func (Offer) Type() MessageType     { return TypeOffer }
func (Answer) Type() MessageType    { return TypeAnswer }
func (Candidate) Type() MessageType { return TypeCandidate }

func (m Ready) Sender() string     { return m.SenderID }
func (m Offer) Sender() string     { return m.SenderID }
func (m Answer) Sender() string    { return m.SenderID }
func (m Candidate) Sender() string { return m.SenderID }

func (Ready) signal()     {}
func (Offer) signal()     {}
func (Answer) signal()    {}
func (Candidate) signal() {}

type envelope struct {
	Type         MessageType     `json:"type"`
	SenderID     string          `json:"senderId,omitempty"`
	TargetID     string          `json:"targetId,omitempty"`
	Role         PeerRole        `json:"role,omitempty"`
	SDP          json.RawMessage `json:"sdp,omitempty"`
	ICECandidate json.RawMessage `json:"iceCandidate,omitempty"`
}

func Encode(m Message) ([]byte, error) {
	var env envelope
	switch v := m.(type) {
	case Ready:
		env = envelope{Type: TypeReady, SenderID: v.SenderID, Role: v.Role}
	case Offer:
		env = envelope{Type: TypeOffer, SenderID: v.SenderID, TargetID: v.TargetID, SDP: v.SDP}
	case Answer:
		env = envelope{Type: TypeAnswer, SenderID: v.SenderID, TargetID: v.TargetID, SDP: v.SDP}
	case Candidate:
		env = envelope{Type: TypeCandidate, SenderID: v.SenderID, TargetID: v.TargetID, ICECandidate: v.ICECandidate}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, m)
	}
	return json.Marshal(env)
}

// Decode parses an envelope. Unknown types and targeted messages without a
// target or payload are rejected here rather than dropped later.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case TypeReady:
		switch env.Role {
		case RoleHost, RoleViewer:
		default:
			return nil, fmt.Errorf("%w: ready needs role host or viewer", ErrMalformed)
		}
		return Ready{SenderID: env.SenderID, Role: env.Role}, nil
	case TypeOffer, TypeAnswer:
		if env.TargetID == "" || len(env.SDP) == 0 {
			return nil, fmt.Errorf("%w: %s needs targetId and sdp", ErrMalformed, env.Type)
		}
		if env.Type == TypeOffer {
			return Offer{SenderID: env.SenderID, TargetID: env.TargetID, SDP: env.SDP}, nil
		}
		return Answer{SenderID: env.SenderID, TargetID: env.TargetID, SDP: env.SDP}, nil
	case TypeCandidate:
		if env.TargetID == "" || len(env.ICECandidate) == 0 {
			return nil, fmt.Errorf("%w: candidate needs targetId and iceCandidate", ErrMalformed)
		}
		return Candidate{SenderID: env.SenderID, TargetID: env.TargetID, ICECandidate: env.ICECandidate}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// Target returns the addressee of a targeted message.
func Target(m Message) (string, bool) {
	switch v := m.(type) {
	case Offer:
		return v.TargetID, true
	case Answer:
		return v.TargetID, true
	case Candidate:
		return v.TargetID, true
	}
	return "", false
}

// WithSender returns m with its sender replaced.
func WithSender(m Message, sender string) Message {
	switch v := m.(type) {
	case Ready:
		v.SenderID = sender
		return v
	case Offer:
		v.SenderID = sender
		return v
	case Answer:
		v.SenderID = sender
		return v
	case Candidate:
		v.SenderID = sender
		return v
	}
	return m
}

// Deliverable applies the routing rule: ready reaches every subscriber,
// targeted variants reach only the subscriber named by targetId.
func Deliverable(m Message, subscriberID string) bool {
	if target, ok := Target(m); ok {
		return target == subscriberID
	}
	return m.Type() == TypeReady
}
