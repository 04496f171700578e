package aimove

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/park285/chess-duet/internal/rules"
	"github.com/park285/chess-duet/pkg/chessdto"
)

const afterE4 = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"

type mockCapability struct {
	mock.Mock
}

func (m *mockCapability) Name() string { return "mock" }

func (m *mockCapability) SuggestMove(ctx context.Context, req MoveRequest) (MoveResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(MoveResponse), args.Error(1)
}

func TestDecideUsesLegalSuggestion(t *testing.T) {
	capability := new(mockCapability)
	capability.On("SuggestMove", mock.Anything, MoveRequest{Position: afterE4, Difficulty: chessdto.DifficultyMedium}).
		Return(MoveResponse{Move: " e7e5\n"}, nil).Once()

	c := NewCoordinator(capability, rules.NewStandard())
	d, err := c.Decide(context.Background(), afterE4, "")
	require.NoError(t, err)
	assert.Equal(t, "e7e5", d.UCI)
	assert.False(t, d.Fallback)
	assert.NoError(t, d.Cause)
	assert.Equal(t, "mock", d.Provider)
	capability.AssertExpectations(t)
}

func TestDecideFallsBackOnCapabilityErrors(t *testing.T) {
	oracle := rules.NewStandard()
	legal, err := oracle.AllMoves(afterE4)
	require.NoError(t, err)

	cases := []struct {
		name  string
		resp  MoveResponse
		err   error
		cause error
	}{
		{name: "rate limited", err: ErrRateLimited, cause: ErrRateLimited},
		{name: "unavailable", err: errors.New("connection refused"), cause: ErrUnavailable},
		{name: "garbage", resp: MoveResponse{Move: "I think the knight should go somewhere"}, cause: ErrMalformed},
		{name: "empty", resp: MoveResponse{}, cause: ErrMalformed},
		{name: "illegal", resp: MoveResponse{Move: "e2e4"}, cause: ErrIllegalSuggestion},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			capability := new(mockCapability)
			capability.On("SuggestMove", mock.Anything, mock.Anything).Return(tc.resp, tc.err)

			d, err := NewCoordinator(capability, oracle).Decide(context.Background(), afterE4, chessdto.DifficultyHard)
			require.NoError(t, err)
			assert.True(t, d.Fallback)
			assert.ErrorIs(t, d.Cause, tc.cause)
			assert.Equal(t, legal[0], d.UCI)
			assert.Contains(t, legal, d.UCI)
		})
	}
}

func TestDecideTimesOut(t *testing.T) {
	capability := new(mockCapability)
	capability.On("SuggestMove", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(MoveResponse{}, context.DeadlineExceeded)

	c := NewCoordinator(capability, rules.NewStandard(), WithTimeout(30*time.Millisecond))
	start := time.Now()
	d, err := c.Decide(context.Background(), chessdto.StandardStart, chessdto.DifficultyEasy)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, d.Fallback)
	assert.ErrorIs(t, d.Cause, ErrUnavailable)
	assert.Equal(t, "a2a3", d.UCI)
}

func TestDecideWithoutCapability(t *testing.T) {
	d, err := NewCoordinator(nil, rules.NewStandard()).Decide(context.Background(), chessdto.StandardStart, "")
	require.NoError(t, err)
	assert.True(t, d.Fallback)
	assert.ErrorIs(t, d.Cause, ErrUnavailable)
	assert.Equal(t, "none", d.Provider)
}

func TestDecidePromotionDefaultsToQueen(t *testing.T) {
	const fen = "8/4P3/8/8/8/8/8/k6K w - - 0 1"
	capability := new(mockCapability)
	capability.On("SuggestMove", mock.Anything, mock.Anything).Return(MoveResponse{Move: "e7e8"}, nil)

	d, err := NewCoordinator(capability, rules.NewStandard()).Decide(context.Background(), fen, "")
	require.NoError(t, err)
	assert.False(t, d.Fallback)
	assert.Equal(t, "e7e8q", d.UCI)
}

func TestDecideNoLegalMoves(t *testing.T) {
	const mated = "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3"
	capability := new(mockCapability)
	_, err := NewCoordinator(capability, rules.NewStandard()).Decide(context.Background(), mated, "")
	assert.ErrorIs(t, err, ErrNoLegalMoves)
	capability.AssertNotCalled(t, "SuggestMove", mock.Anything, mock.Anything)
}

func TestFallbackSortsWhenNeeded(t *testing.T) {
	assert.Equal(t, "", Fallback(nil))
	assert.Equal(t, "a7a6", Fallback([]string{"g8f6", "a7a6", "b8c6"}))
}
