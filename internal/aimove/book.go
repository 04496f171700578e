package aimove

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	chesslib "github.com/corentings/chess/v2"

	"github.com/park285/chess-duet/internal/rules"
)

// DefaultBookMoves is the last full-move number answered from the book.
const DefaultBookMoves = 10

// Book answers opening positions from a Polyglot book and defers everything
// else to the wrapped capability.
type Book struct {
	inner    MoveCapability
	book     *chesslib.PolyglotBook
	maxMoves int
}

// LoadBook reads a Polyglot .bin file.
func LoadBook(path string) (*chesslib.PolyglotBook, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("polyglot book path required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open polyglot book %q: %w", path, err)
	}
	defer f.Close()
	return ReadBook(f)
}

func ReadBook(r io.Reader) (*chesslib.PolyglotBook, error) {
	book, err := chesslib.LoadFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("load polyglot book: %w", err)
	}
	return book, nil
}

// NewBook wraps inner (may be nil). maxMoves <= 0 uses DefaultBookMoves.
func NewBook(inner MoveCapability, book *chesslib.PolyglotBook, maxMoves int) *Book {
	if maxMoves <= 0 {
		maxMoves = DefaultBookMoves
	}
	return &Book{inner: inner, book: book, maxMoves: maxMoves}
}

func (b *Book) Name() string {
	if b.inner == nil {
		return "book"
	}
	return "book+" + b.inner.Name()
}

func (b *Book) SuggestMove(ctx context.Context, req MoveRequest) (MoveResponse, error) {
	if mv, ok := b.lookup(req.Position); ok {
		return MoveResponse{Move: mv}, nil
	}
	if b.inner == nil {
		return MoveResponse{}, fmt.Errorf("%w: position out of book", ErrUnavailable)
	}
	return b.inner.SuggestMove(ctx, req)
}

// Close closes the wrapped capability when it holds resources.
func (b *Book) Close() error {
	if c, ok := b.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (b *Book) lookup(fen string) (mv string, ok bool) {
	if b.book == nil || fullMoveNumber(fen) > b.maxMoves {
		return "", false
	}
	rules.Exclusive(func() { mv, ok = b.lookupLocked(fen) })
	return mv, ok
}

func (b *Book) lookupLocked(fen string) (string, bool) {
	key, err := bookKey(fen)
	if err != nil {
		return "", false
	}
	entries := b.book.FindMoves(key)
	if len(entries) == 0 {
		return "", false
	}
	decoded := chesslib.DecodeMove(entries[0].Move).ToMove()
	mv := decoded.String()

	opt, err := chesslib.FEN(fen)
	if err != nil {
		return "", false
	}
	game := chesslib.NewGame(opt)
	if err := game.PushNotationMove(mv, chesslib.UCINotation{}, nil); err != nil {
		// stale or colliding entry
		return "", false
	}
	return mv, true
}

func bookKey(fen string) (uint64, error) {
	hash, err := chesslib.NewZobristHasher().HashPosition(fen)
	if err != nil {
		return 0, fmt.Errorf("compute polyglot hash: %w", err)
	}
	return chesslib.ZobristHashToUint64(hash), nil
}

func fullMoveNumber(fen string) int {
	f := strings.Fields(fen)
	if len(f) < 6 {
		return 1
	}
	n, err := strconv.Atoi(f[5])
	if err != nil || n < 1 {
		return 1
	}
	return n
}
