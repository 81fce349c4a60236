package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := MakeMovePayload{GameID: "g1", Move: "e2e4"}
	buf, err := EncodeJSON(MakeMove, payload)
	require.NoError(t, err)

	d := NewDecoder()
	d.Feed(buf)

	frame, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, MakeMove, frame.MessageID)

	var got MakeMovePayload
	require.NoError(t, json.Unmarshal(frame.Payload, &got))
	require.Equal(t, payload, got)
}

func TestDecoderBuffersPartialFrames(t *testing.T) {
	buf, err := EncodeJSON(Resign, GameRefPayload{GameID: "g1"})
	require.NoError(t, err)

	d := NewDecoder()
	d.Feed(buf[:3])
	_, ok, err := d.Next()
	require.NoError(t, err)
	require.False(t, ok)

	d.Feed(buf[3:])
	frame, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Resign, frame.MessageID)
}

func TestDecoderHandlesMultipleFramesInOneFeed(t *testing.T) {
	first, err := EncodeJSON(Login, LoginPayload{Username: "a", Password: "b"})
	require.NoError(t, err)
	second, err := EncodeJSON(Register, RegisterPayload{Username: "c", Password: "d"})
	require.NoError(t, err)

	d := NewDecoder()
	d.Feed(append(append([]byte(nil), first...), second...))

	f1, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Login, f1.MessageID)

	f2, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Register, f2.MessageID)

	_, ok, err = d.Next()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	_, err := Encode(MakeMove, make([]byte, MaxPayloadSize+1))
	require.ErrorIs(t, err, ErrOversizedFrame)
}

func TestDecoderRejectsOversizedDeclaredLength(t *testing.T) {
	buf := make([]byte, HeaderSize)
	buf[2] = 0xff
	buf[3] = 0xff
	buf[4] = 0xff
	buf[5] = 0xff

	d := NewDecoder()
	d.Feed(buf)
	_, ok, err := d.Next()
	require.ErrorIs(t, err, ErrOversizedFrame)
	require.False(t, ok)
}
