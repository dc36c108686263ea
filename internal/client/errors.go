package client

import "errors"

// AuthError signals a 401/403: the access token expired or the refresh token
// was revoked, depending on which call produced it.
type AuthError struct {
	Message    string
	StatusCode int
}

func (e *AuthError) Error() string {
	return e.Message
}

// BadRequestError signals a malformed batch the server will never accept.
type BadRequestError struct {
	Message    string
	StatusCode int
}

func (e *BadRequestError) Error() string {
	return e.Message
}

// TransientError signals a network or server failure worth retrying on the
// next trigger; queued entries stay put.
type TransientError struct {
	Message    string
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Message
}

// IsAuthError reports whether err is an *AuthError anywhere in its chain.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
