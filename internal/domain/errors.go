package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound marks an item that is deleted or otherwise unavailable.
	ErrNotFound = errors.New("item not found")

	// ErrNotParticipant means the credential has no access to the source
	// chat. Fatal to the whole batch.
	ErrNotParticipant = errors.New("not a participant of the source chat")

	// ErrStaleReference marks an expired media reference; retryable.
	ErrStaleReference = errors.New("file reference expired")

	// ErrInvalidCredential means the platform reports the saved session as
	// dead. Fatal to the whole batch; the stored credential must be
	// invalidated.
	ErrInvalidCredential = errors.New("session credential is invalid")

	// ErrNoSession means the user has no saved session at all.
	ErrNoSession = errors.New("no saved session")

	// ErrInviteExpired marks an invalid or expired invite link.
	ErrInviteExpired = errors.New("invite link is invalid or expired")

	// ErrCancelled is the distinct cancellation outcome. Not a failure.
	ErrCancelled = errors.New("cancelled by user")

	ErrTaskLimit         = errors.New("active task limit reached")
	ErrSharedSessionBusy = errors.New("shared session already serves another batch")
	ErrTaskNotFound      = errors.New("task not found")
)

// ThrottleError is the provider-imposed rate limit with a suggested wait.
type ThrottleError struct {
	Wait time.Duration
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("rate limited, wait %s", e.Wait)
}

// AsThrottle extracts the suggested wait when err is a throttle condition.
func AsThrottle(err error) (time.Duration, bool) {
	var te *ThrottleError
	if errors.As(err, &te) {
		return te.Wait, true
	}
	return 0, false
}
