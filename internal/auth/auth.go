// Package auth declares the capability check the messaging core consumes.
// Enforcement lives outside the core; the pipeline only asks yes or no.
package auth

type Authorizer interface {
	CanSend(userID, roomID string) bool
}

type AllowAll struct{}

func (AllowAll) CanSend(userID, roomID string) bool {
	return true
}
