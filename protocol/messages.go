// Package protocol defines the wire messages exchanged on the vote topic.
// Every payload is a JSON envelope carrying an explicit type discriminant,
// so new message kinds can be added without guessing at shapes.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Laegel/votingdapp/store"
)

// MessageType discriminates envelope payloads.
type MessageType string

const (
	MessageTypeRequest  MessageType = "list_request"
	MessageTypeResponse MessageType = "list_response"
)

// ListMode selects which peers a request addresses.
type ListMode string

const (
	// ModeAll asks every subscriber for its public votes.
	ModeAll ListMode = "all"
	// ModeOne asks a single peer, named in ListRequest.Peer.
	ModeOne ListMode = "one"
)

// BroadcastReceiver addresses a response to every subscriber rather than
// one requester.
const BroadcastReceiver = "any"

// ErrUnknownMessage reports a payload that is not a valid envelope.
// Receivers drop such payloads silently.
var ErrUnknownMessage = errors.New("unknown message")

// ListRequest asks for the public vote subset of one peer or of all peers.
type ListRequest struct {
	Mode ListMode `json:"mode"`
	// Peer is the target identifier when Mode is ModeOne.
	Peer string `json:"peer,omitempty"`
}

// ListResponse answers a ListRequest with the sender's public votes in
// store order. Receiver identifies the intended consumer.
type ListResponse struct {
	Mode     ListMode     `json:"mode"`
	Receiver string       `json:"receiver"`
	Data     []store.Vote `json:"data"`
}

// Envelope is the tagged union published on the vote topic.
type Envelope struct {
	Type     MessageType   `json:"type"`
	Request  *ListRequest  `json:"request,omitempty"`
	Response *ListResponse `json:"response,omitempty"`
}

// NewAllRequest builds an envelope asking every peer for its public votes.
func NewAllRequest() *Envelope {
	return &Envelope{
		Type:    MessageTypeRequest,
		Request: &ListRequest{Mode: ModeAll},
	}
}

// NewOneRequest builds an envelope asking a single peer for its public votes.
func NewOneRequest(peer string) *Envelope {
	return &Envelope{
		Type:    MessageTypeRequest,
		Request: &ListRequest{Mode: ModeOne, Peer: peer},
	}
}

// NewResponse builds an envelope answering a request from receiver.
func NewResponse(receiver string, data []store.Vote) *Envelope {
	return &Envelope{
		Type:     MessageTypeResponse,
		Response: &ListResponse{Mode: ModeAll, Receiver: receiver, Data: data},
	}
}

// Marshal serializes the envelope for publishing.
func (e *Envelope) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s message: %w", e.Type, err)
	}
	return data, nil
}

// Decode parses an inbound payload. Payloads that are not a well-formed
// envelope, carry an unknown type, or miss the payload their type names
// yield ErrUnknownMessage.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, ErrUnknownMessage
	}

	switch env.Type {
	case MessageTypeRequest:
		if env.Request == nil {
			return nil, ErrUnknownMessage
		}
		if env.Request.Mode != ModeAll && env.Request.Mode != ModeOne {
			return nil, ErrUnknownMessage
		}
	case MessageTypeResponse:
		if env.Response == nil {
			return nil, ErrUnknownMessage
		}
	default:
		return nil, ErrUnknownMessage
	}

	return &env, nil
}
