package models

import "errors"

// Application-wide standard errors
var (
	// Configuration
	ErrNotConfigured = errors.New("service is not configured")

	// Session & Conversation Errors
	ErrSessionNotFound    = errors.New("session not found")
	ErrStoryNotFound      = errors.New("no story has been generated yet")
	ErrVideoPrerequisites = errors.New("Please complete your drawing and generate a story first")
	ErrClipNotFound       = errors.New("audio clip not found")
	ErrNotNarratable      = errors.New("only assistant messages can be narrated")

	// Token Errors
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrTokenInvalid   = errors.New("token is invalid")
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenExpired   = errors.New("token has expired")

	// General Request/Server Errors
	ErrInternalServer = errors.New("internal server error")
	ErrInvalidInput   = errors.New("invalid input data")
)
