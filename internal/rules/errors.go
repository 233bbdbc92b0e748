package rules

import "errors"

// Rejection classes for illegal moves. Handlers match these with
// errors.Is to pick a wire error code; the wrapped message carries the
// square or move that offended.
var (
	ErrOutOfTurn          = errors.New("piece does not belong to the side to move")
	ErrNoPieceAtOrigin    = errors.New("no piece at origin square")
	ErrPathBlocked        = errors.New("path is blocked")
	ErrIllegalDestination = errors.New("illegal destination square")
	ErrNotSlidingAligned  = errors.New("move must slide along one rank or file")
)
