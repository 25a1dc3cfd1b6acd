package auth

import (
	"fmt"

	"github.com/pollrelay/pollengine/errors"
	"github.com/pollrelay/pollengine/types"
	"github.com/golang-jwt/jwt/v5"
)

// Common JWT error types.
var (
	ErrTokenExpired     = fmt.Errorf("token is expired")
	ErrTokenInvalid     = fmt.Errorf("token is invalid")
	ErrTokenMalformed   = fmt.Errorf("token is malformed")
	ErrSignatureInvalid = fmt.Errorf("token signature is invalid")
)

// ValidateAccessToken validates an HS256 session token issued by the
// external identity provider's local-password flow. Keycloak/OIDC-issued
// tokens are verified separately via JWKS (see middleware.JWTValidator).
func ValidateAccessToken(tokenString, secret string) (*types.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &types.JWTClaims{},
		func(token *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		})

	if err != nil {
		return nil, mapJWTError(err)
	}

	if !token.Valid {
		return nil, errors.Unauthorized("invalid_token", "Invalid access token")
	}

	claims, ok := token.Claims.(*types.JWTClaims)
	if !ok {
		return nil, errors.Unauthorized("invalid_claims", "Invalid token structure")
	}

	return claims, nil
}

func mapJWTError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case err.Error() == "token is expired":
		return errors.Unauthorized("token_expired", "Token has expired")
	case err.Error() == "signature is invalid":
		return errors.Unauthorized("invalid_signature", "Token signature is invalid")
	case err.Error() == "token contains an invalid number of segments":
		return errors.Unauthorized("malformed_token", "Token is malformed")
	default:
		return errors.Unauthorized("invalid_token", fmt.Sprintf("Token validation failed: %v", err))
	}
}
