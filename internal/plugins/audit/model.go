// Package audit records security-relevant account activity: sign-ins,
// failed sign-in attempts, log-outs, and account creation. Entries are
// persisted to the auth_audit_log table and listed for admins.
//
// Recording never blocks the action being recorded: failures are logged and
// swallowed by the caller.
package audit

import "time"

// --- Action Constants ---
// Each action string follows the pattern "resource.verb" for consistent
// filtering.

const (
	ActionSignedIn       = "auth.signed_in"
	ActionSignInFailed   = "auth.sign_in_failed"
	ActionSignedOut      = "auth.signed_out"
	ActionUserCreated    = "user.created"
	ActionAdminBootstrap = "user.bootstrapped"
)

// Entry is a single recorded action.
type Entry struct {
	ID int64 `json:"id"`

	// UserID is the acting user. Empty for failed sign-ins, where the
	// account may not exist.
	UserID string `json:"user_id,omitempty"`

	Action string `json:"action"`

	// IP is the client address as resolved behind trusted proxies.
	IP string `json:"ip,omitempty"`

	// Details holds action-specific metadata such as the attempted email
	// or the created account's id.
	Details map[string]any `json:"details,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Page is one page of the admin activity listing.
type Page struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Page    int     `json:"page"`
	PerPage int     `json:"per_page"`
}
