package services

import (
	"errors"
	"fmt"

	"community-campaigns/internal/repository"
)

// Error kinds returned by the campaign engine. Callers match them with
// errors.Is; the wrapped message carries the detail.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
)

// translateStoreError maps repository failures onto the engine's error kinds.
// Unknown errors pass through unchanged.
func translateStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, repository.ErrNameTaken),
		errors.Is(err, repository.ErrStatusMismatch),
		errors.Is(err, repository.ErrCreatorCannotJoin),
		errors.Is(err, repository.ErrAlreadyParticipant),
		errors.Is(err, repository.ErrCapacityReached),
		errors.Is(err, repository.ErrConcurrentUpdate):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return err
	}
}
