package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Laegel/votingdapp/protocol"
	"github.com/Laegel/votingdapp/store"
)

func TestDecode_Request(t *testing.T) {
	env, err := protocol.NewOneRequest("peer-a").Marshal()
	require.NoError(t, err)

	decoded, err := protocol.Decode(env)
	require.NoError(t, err)
	require.Equal(t, protocol.MessageTypeRequest, decoded.Type)
	require.NotNil(t, decoded.Request)
	require.Equal(t, protocol.ModeOne, decoded.Request.Mode)
	require.Equal(t, "peer-a", decoded.Request.Peer)
	require.Nil(t, decoded.Response)
}

func TestDecode_Response(t *testing.T) {
	votes := []store.Vote{
		{ID: 0, Name: "A", Public: true},
		{ID: 2, Name: "C", Public: true},
	}
	data, err := protocol.NewResponse("peer-b", votes).Marshal()
	require.NoError(t, err)

	decoded, err := protocol.Decode(data)
	require.NoError(t, err)
	require.Equal(t, protocol.MessageTypeResponse, decoded.Type)
	require.NotNil(t, decoded.Response)
	require.Equal(t, "peer-b", decoded.Response.Receiver)
	require.Equal(t, votes, decoded.Response.Data)
}

func TestDecode_RejectsUnknownPayloads(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "not json", data: []byte("garbage")},
		{name: "wrong shape", data: []byte(`{"foo":"bar"}`)},
		{name: "unknown type", data: []byte(`{"type":"ballot"}`)},
		{name: "request without payload", data: []byte(`{"type":"list_request"}`)},
		{name: "request with bad mode", data: []byte(`{"type":"list_request","request":{"mode":"some"}}`)},
		{name: "response without payload", data: []byte(`{"type":"list_response"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := protocol.Decode(tt.data)
			require.ErrorIs(t, err, protocol.ErrUnknownMessage)
		})
	}
}

func TestNewAllRequest(t *testing.T) {
	env := protocol.NewAllRequest()
	require.Equal(t, protocol.MessageTypeRequest, env.Type)
	require.Equal(t, protocol.ModeAll, env.Request.Mode)
	require.Empty(t, env.Request.Peer)
}
