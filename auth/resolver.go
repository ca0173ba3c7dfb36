// Package auth resolves opaque chat credentials into identities.
//
// Credentials are the blog's HMAC-signed JWTs; the claims carry the numeric
// user id and the users table supplies display name, avatar, and role.
// Resolution fails soft: any verification or lookup error yields an anonymous
// identity (nil), never an error to the caller.
package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned by verify when the token is malformed, has a
// wrong signature, or uses an unexpected signing method.
var ErrInvalidToken = errors.New("invalid token")

// Identity is a resolved, authenticated chat participant.
type Identity struct {
	UserID     int64
	Name       string
	Avatar     string
	Privileged bool
}

// User is the users-table row shape the resolver needs. The directory owns
// the lookup; the resolver owns role interpretation.
type User struct {
	ID     int64
	Name   string
	Avatar string
	Role   string
}

// UserDirectory looks up a user by id. Implementations return an error for
// both lookup failures and unknown ids; the resolver treats either as anonymous.
type UserDirectory interface {
	UserByID(ctx context.Context, id int64) (*User, error)
}

// Resolver verifies HS256-signed tokens and hydrates identities from the directory.
type Resolver struct {
	secret []byte
	users  UserDirectory
}

// NewResolver returns a Resolver. An empty secret disables verification
// entirely: every credential resolves anonymous.
func NewResolver(secret string, users UserDirectory) *Resolver {
	return &Resolver{secret: []byte(secret), users: users}
}

// claims mirrors the blog's token payload: the user id is carried in "id".
type claims struct {
	UserID int64 `json:"id"`
	jwt.RegisteredClaims
}

// Resolve turns a credential into an Identity, or nil for anonymous.
// Empty credentials, verification failures, and directory misses all
// resolve to nil; the reason is logged at debug level only.
func (r *Resolver) Resolve(ctx context.Context, credential string) *Identity {
	if credential == "" || len(r.secret) == 0 {
		return nil
	}

	c, err := r.verify(credential)
	if err != nil {
		slog.Debug("credential verification failed", slog.Any("err", err), slog.String("component", "auth"))
		return nil
	}

	u, err := r.users.UserByID(ctx, c.UserID)
	if err != nil {
		slog.Debug("user lookup failed for verified credential", slog.Int64("user_id", c.UserID), slog.Any("err", err), slog.String("component", "auth"))
		return nil
	}

	return &Identity{
		UserID:     u.ID,
		Name:       u.Name,
		Avatar:     u.Avatar,
		Privileged: u.Role == "ADMIN",
	}
}

func (r *Resolver) verify(credential string) (*claims, error) {
	token, err := jwt.ParseWithClaims(credential, &claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return r.secret, nil
	})
	if err != nil {
		return nil, err
	}
	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return c, nil
}
