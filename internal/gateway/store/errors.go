package store

import "errors"

var (
	ErrDeviceNotFound         = errors.New("device not found")
	ErrCardNotFound           = errors.New("card not found")
	ErrTemplateNotFound       = errors.New("biometric template not found")
	ErrCardExists             = errors.New("card already exists")
	ErrDuplicatePending       = errors.New("pending registration already exists for card")
	ErrRegistrationNotFound   = errors.New("registration not found")
	ErrRegistrationNotPending = errors.New("registration is no longer pending")
)
