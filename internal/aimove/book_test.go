package aimove

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// polyglotMove packs a from/to pair the way .bin files store it.
func polyglotMove(fromFile, fromRank, toFile, toRank uint16) uint16 {
	return toFile | toRank<<3 | fromFile<<6 | fromRank<<9
}

func singleEntryBook(t *testing.T, fen string, move uint16) []byte {
	t.Helper()
	key, err := bookKey(fen)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.BigEndian, key))
	require.NoError(t, binary.Write(&buf, binary.BigEndian, move))
	require.NoError(t, binary.Write(&buf, binary.BigEndian, uint16(100)))
	require.NoError(t, binary.Write(&buf, binary.BigEndian, uint32(0)))
	return buf.Bytes()
}

func TestBookAnswersKnownPosition(t *testing.T) {
	book, err := ReadBook(bytes.NewReader(singleEntryBook(t, startFEN, polyglotMove(4, 1, 4, 3))))
	require.NoError(t, err)

	inner := &mockCapability{}
	b := NewBook(inner, book, 0)
	resp, err := b.SuggestMove(context.Background(), MoveRequest{Position: startFEN})
	require.NoError(t, err)
	assert.Equal(t, "e2e4", resp.Move)
	inner.AssertNotCalled(t, "SuggestMove", mock.Anything, mock.Anything)
	assert.Equal(t, "book+mock", b.Name())
}

func TestBookDefersOutOfBook(t *testing.T) {
	book, err := ReadBook(bytes.NewReader(singleEntryBook(t, startFEN, polyglotMove(4, 1, 4, 3))))
	require.NoError(t, err)

	inner := &mockCapability{}
	inner.On("SuggestMove", mock.Anything, MoveRequest{Position: afterE4}).Return(MoveResponse{Move: "e7e5"}, nil)
	b := NewBook(inner, book, 0)
	resp, err := b.SuggestMove(context.Background(), MoveRequest{Position: afterE4})
	require.NoError(t, err)
	assert.Equal(t, "e7e5", resp.Move)
	inner.AssertExpectations(t)
}

func TestBookStopsAfterMoveLimit(t *testing.T) {
	late := "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 12"
	book, err := ReadBook(bytes.NewReader(singleEntryBook(t, late, polyglotMove(4, 1, 4, 3))))
	require.NoError(t, err)

	b := NewBook(nil, book, 10)
	_, err = b.SuggestMove(context.Background(), MoveRequest{Position: late})
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Equal(t, "book", b.Name())
}

func TestFullMoveNumber(t *testing.T) {
	assert.Equal(t, 1, fullMoveNumber(startFEN))
	assert.Equal(t, 12, fullMoveNumber("8/8/8/8/8/8/8/K6k w - - 3 12"))
	assert.Equal(t, 1, fullMoveNumber("garbage"))
}
