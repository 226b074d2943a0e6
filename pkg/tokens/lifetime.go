package tokens

import "time"

// Lifetimes configures how long issued tokens live.
//
// Default applies to every token without a better source. User, when set,
// replaces Default for user tokens. MaxUser, when set, caps a transaction's
// own expiry so a user token never outlives now+MaxUser.
type Lifetimes struct {
	Default time.Duration
	User    time.Duration
	MaxUser time.Duration
}

// ExpiryFor computes the expiry of a token issued at now.
//
// With a transaction expiry the result is min(txExpiry, now+MaxUser) when a
// cap is configured, and txExpiry otherwise. Without one it is now+User for
// user tokens when User is set, and now+Default in every other case.
func (l Lifetimes) ExpiryFor(
	now time.Time,
	tokenType TokenType,
	transactionExpiry *time.Time,
) time.Time {
	if transactionExpiry != nil {
		expiry := transactionExpiry.UTC()
		if l.MaxUser > 0 {
			if capAt := now.Add(l.MaxUser); expiry.After(capAt) {
				expiry = capAt
			}
		}
		return expiry
	}

	if tokenType == TokenTypeUser && l.User > 0 {
		return now.Add(l.User)
	}
	return now.Add(l.Default)
}
