package middleware

// contextKey defines a type for context keys to avoid collisions.
type contextKey string

// Defines context keys used within the application middleware and handlers.
const (
	// UserIDKey is the context key for the authenticated user's ID (string).
	UserIDKey contextKey = "userID"
	// UserEmailKey is the context key for the authenticated user's email
	// (string), used by the email-ownership rule (§4.4) and vote
	// withdrawal's authenticated-email path (§4.5).
	UserEmailKey contextKey = "userEmail"
	// UserRolesKey could be added here if roles are extracted during auth.
	// UserRolesKey contextKey = "userRoles"
	// AuthenticatedUserKey could hold the full user model.
	// AuthenticatedUserKey contextKey = "authenticatedUser"
)
