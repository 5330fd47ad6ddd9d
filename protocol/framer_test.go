package protocol

import (
	// Go Internal Packages
	"testing"

	// Local Packages
	models "termbridge/models"

	// External Packages
	"github.com/stretchr/testify/require"
)

func TestWrapPayloadLayout(t *testing.T) {
	payload := []byte(`{"message":"ACK"}`)
	frame := WrapPayload(payload)

	expected := append([]byte{STX, LF}, payload...)
	expected = append(expected, LF, ETX, LF)
	require.Equal(t, expected, frame)
}

func TestDecoderRoundTrip(t *testing.T) {
	env, err := models.NewCommandEnvelope("Ping", "1", "000042", nil)
	require.NoError(t, err)
	frame, err := EncodeFrame(env)
	require.NoError(t, err)

	dec := &Decoder{}
	frames := dec.Feed(frame)
	require.Len(t, frames, 1)
	require.NoError(t, frames[0].Err)
	require.JSONEq(t, `{"message":"MSG","data":{"command":"Ping","EcrId":"1","requestId":"000042"}}`,
		string(frames[0].JSON))
}

func TestDecoderSplitAcrossChunks(t *testing.T) {
	frame, err := EncodeFrame(models.AckEnvelope())
	require.NoError(t, err)

	dec := &Decoder{}
	require.Empty(t, dec.Feed(frame[:1]))
	require.Empty(t, dec.Feed(frame[1:5]))
	frames := dec.Feed(frame[5:])
	require.Len(t, frames, 1)
	require.NoError(t, frames[0].Err)
	require.JSONEq(t, `{"message":"ACK"}`, string(frames[0].JSON))
}

func TestDecoderDiscardsGarbageAndFillers(t *testing.T) {
	frame, err := EncodeFrame(models.AckEnvelope())
	require.NoError(t, err)

	stream := append([]byte("telnet banner\r\n"), frame...)
	stream = append(stream, LF, LF)
	stream = append(stream, frame...)

	dec := &Decoder{}
	frames := dec.Feed(stream)
	require.Len(t, frames, 2)
	for _, fr := range frames {
		require.NoError(t, fr.Err)
		require.JSONEq(t, `{"message":"ACK"}`, string(fr.JSON))
	}
}

func TestDecoderScrubsEmbeddedFillers(t *testing.T) {
	raw := []byte{STX, LF, '{', '"', 'a', '"', ':', LF, '1', CR, NUL, '}', LF, ETX}

	dec := &Decoder{}
	frames := dec.Feed(raw)
	require.Len(t, frames, 1)
	require.NoError(t, frames[0].Err)
	require.JSONEq(t, `{"a":1}`, string(frames[0].JSON))
}

func TestDecoderResyncsAfterBadJSON(t *testing.T) {
	bad := WrapPayload([]byte("not json at all"))
	good, err := EncodeFrame(models.AckEnvelope())
	require.NoError(t, err)

	dec := &Decoder{}
	frames := dec.Feed(append(bad, good...))
	require.Len(t, frames, 2)
	require.Error(t, frames[0].Err)
	require.NoError(t, frames[1].Err)
	require.JSONEq(t, `{"message":"ACK"}`, string(frames[1].JSON))
}

func TestDecoderManyFramesOneChunk(t *testing.T) {
	ack, err := EncodeFrame(models.AckEnvelope())
	require.NoError(t, err)
	ready, err := EncodeFrame(models.ReadyEnvelope())
	require.NoError(t, err)

	dec := &Decoder{}
	frames := dec.Feed(append(append([]byte{}, ack...), ready...))
	require.Len(t, frames, 2)
	require.JSONEq(t, `{"message":"ACK"}`, string(frames[0].JSON))
	require.JSONEq(t, `{"message":"READY","data":{"response":"SystemReady"}}`, string(frames[1].JSON))
}
