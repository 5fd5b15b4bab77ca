package checkout

import "errors"

var (
	ErrInvalidSession         = errors.New("payment session is invalid or unpaid")
	ErrTransientVerifier      = errors.New("payment session could not be verified, try again")
	ErrLedgerWriteConflict    = errors.New("purchases already recorded for this session")
	ErrLedgerWriteFailure     = errors.New("purchases could not be recorded")
	ErrCartClearFailure       = errors.New("cart could not be cleared")
	ErrFinalizationInProgress = errors.New("finalization already in progress")
)
