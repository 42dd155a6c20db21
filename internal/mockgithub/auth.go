package mockgithub

// auth.go checks the bearer token of requests - either a static token or a JWT

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

const issuer = "github.com/andrewwphillips/ghgql/mockgithub"

// ErrBadCredentials is returned when a request has no token or the token is not accepted
var ErrBadCredentials = errors.New("Bad credentials")

type authenticator struct {
	tokenHash []byte // bcrypt hash of the static token (nil if none)
	jwtSecret []byte // key for HS256 tokens (nil if JWTs are not accepted)
}

// check returns the login of the user that the Authorization header of the request authenticates
func (a *authenticator) check(r *http.Request, login string) (string, error) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || (!strings.EqualFold(scheme, "bearer") && !strings.EqualFold(scheme, "token")) || token == "" {
		return "", ErrBadCredentials
	}
	if len(r.Header.Values("Authorization")) > 1 {
		return "", fmt.Errorf("%w: more than one Authorization header", ErrBadCredentials)
	}

	if a.tokenHash != nil && bcrypt.CompareHashAndPassword(a.tokenHash, []byte(token)) == nil {
		return login, nil
	}
	if a.jwtSecret != nil {
		parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return a.jwtSecret, nil
		})
		if err == nil && parsed.Valid {
			if claims, ok := parsed.Claims.(jwt.MapClaims); ok && claims.VerifyIssuer(issuer, true) {
				if subject, _ := claims["sub"].(string); subject != "" {
					return subject, nil
				}
			}
		}
	}
	return "", ErrBadCredentials
}

// IssueToken returns a JWT for login, signed with secret, that expires after the duration
func IssueToken(secret []byte, login string, expiry time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": login,
		"iss": issuer,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(expiry).Unix(),
	})
	return token.SignedString(secret)
}
