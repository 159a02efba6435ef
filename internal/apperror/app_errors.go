package apperror

import "errors"

var (
	ErrGameFinished     = errors.New("game is already finished")
	ErrNotYourTurn      = errors.New("it's not your turn")
	ErrOutOfBounds      = errors.New("column is out of bounds")
	ErrColumnFull       = errors.New("column is already full")
	ErrProtocolTimeout  = errors.New("rendezvous wait timed out")
	ErrDocumentDeleted  = errors.New("watched document was deleted")
	ErrOpponentMismatch = errors.New("closed match names a different opponent")
	ErrMatchingFailed   = errors.New("matching failed")
	ErrConflict         = errors.New("concurrent update conflict")
)
