package core

import "errors"

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrWalletAlreadyLinked = errors.New("wallet already linked to another user")
	ErrEmailAlreadyLinked  = errors.New("user with this email already has a wallet linked")
	ErrConflict            = errors.New("uniqueness constraint violated")
)
