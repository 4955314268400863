package repository

import "errors"

var (
	ErrNotFound           = errors.New("record not found")
	ErrNameTaken          = errors.New("campaign name already taken")
	ErrStatusMismatch     = errors.New("campaign status does not allow this change")
	ErrCreatorCannotJoin  = errors.New("creator cannot join own campaign")
	ErrAlreadyParticipant = errors.New("user already joined campaign")
	ErrCapacityReached    = errors.New("campaign is full")
	ErrConcurrentUpdate   = errors.New("campaign was modified concurrently")
)
