package types

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User is the minimal account record the poll engine needs: just enough
// to enforce the email-ownership rule (§4.4) and serve my-polls/shared-polls
// queries for an authenticated creator. Authentication itself (password
// hashing, OIDC login flow) is an external collaborator's job.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserResponse is the public-safe projection of User for API responses.
type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func CreateUserResponse(user *User) UserResponse {
	return UserResponse{ID: user.ID, Email: user.Email}
}

// JWTClaims is the subset of an externally-issued session token's claims
// the poll engine cares about: the subject (user id) and email. Embeds
// RegisteredClaims so it satisfies jwt.Claims for golang-jwt parsing.
type JWTClaims struct {
	UserID string `json:"sub"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}
