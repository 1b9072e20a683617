package auth

import (
	"fmt"
	"strconv"
	"time"

	"groupchat/domain"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "groupchat"

// CustomClaims defines the data stored inside a resume token.
type CustomClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates resume tokens. A resume token lets a client
// re-authenticate after a dropped connection without sending its password.
type TokenIssuer struct {
	key      []byte
	duration time.Duration
}

func NewTokenIssuer(secret string, duration time.Duration) *TokenIssuer {
	return &TokenIssuer{key: []byte(secret), duration: duration}
}

// GenerateToken creates a signed HS256 JWT for a user.
func (t *TokenIssuer) GenerateToken(userID domain.UserID, username string) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.key)
}

// ValidateToken parses a token, checks signature, issuer and expiration,
// and returns the user it was issued for.
func (t *TokenIssuer) ValidateToken(tokenString string) (domain.UserID, string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return t.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return 0, "", err
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return 0, "", jwt.ErrSignatureInvalid
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid subject %q: %w", claims.Subject, err)
	}
	return domain.UserID(id), claims.Username, nil
}
