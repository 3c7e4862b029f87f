package auth

import (
	"errors"
)

// Sentinel errors for token verification.
var (
	// ErrNoCredentials indicates that the request carried no bearer token.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrInvalidToken indicates that the token failed verification.
	ErrInvalidToken = errors.New("invalid token")

	// ErrMissingSubject indicates a verified token without a usable subject.
	ErrMissingSubject = errors.New("token has no subject")
)
