package services

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrSubscriberExists    = errors.New("subscriber already exists")
	ErrInvalidEmail        = errors.New("a valid email address is required")
	ErrSubscriberNotFound  = errors.New("subscriber not found")
	ErrProfileNotFound     = errors.New("profile not found")
	ErrProfileExists       = errors.New("profile already registered")
	ErrPlatformTaken       = errors.New("platform already registered for this subscriber")
	ErrInvalidUsername     = errors.New("username does not exist on platform")
	ErrPlatformRequired    = errors.New("both platform and username are required if either is provided")
	ErrUnknownPlatform     = errors.New("unknown platform")
	ErrPlatformUnavailable = errors.New("platform could not be reached, try again later")
	ErrInvalidDevice       = errors.New("device token and a platform of ios, android or web are required")

	ErrAlreadyInGroup     = errors.New("already in group")
	ErrGroupExists        = errors.New("group exists")
	ErrGroupNotFound      = errors.New("group not found")
	ErrNotInGroup         = errors.New("not in group")
	ErrGroupNameRequired  = errors.New("group name required")
	ErrUnknownGroupAction = errors.New("unknown action")
)

// RateLimitedError is returned when a refresh is throttled.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("You have been rate limited. Try again in %d seconds.", e.RetryAfterSeconds())
}

func (e *RateLimitedError) RetryAfterSeconds() int {
	secs := int(e.RetryAfter / time.Second)
	if e.RetryAfter%time.Second != 0 {
		secs++
	}
	return secs
}
