package persistence

import "errors"

var (
	ErrAutomationNotFound = errors.New("automation not found")
	ErrRunNotFound        = errors.New("run not found")
	ErrDelayedJobNotFound = errors.New("delayed job not found")
	ErrEventNotFound      = errors.New("event not found")
	ErrDealNotFound       = errors.New("deal not found")
)

// IsAutomationNotFound reports whether err wraps ErrAutomationNotFound.
func IsAutomationNotFound(err error) bool {
	return errors.Is(err, ErrAutomationNotFound)
}

// IsRunNotFound reports whether err wraps ErrRunNotFound.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}
