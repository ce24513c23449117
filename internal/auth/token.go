// Package auth issues and verifies the HS256 tokens that identify an actor.
package auth

import (
	"errors"
	"time"

	"lapor-service/internal/apperror"
	"lapor-service/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type TokenService struct {
	secret     []byte
	expiration time.Duration
	now        func() time.Time
}

func NewTokenService(secret string, expiration time.Duration) *TokenService {
	if expiration <= 0 {
		expiration = 24 * time.Hour
	}
	return &TokenService{secret: []byte(secret), expiration: expiration, now: time.Now}
}

func (s *TokenService) Issue(actor model.Actor) (string, error) {
	if !actor.Role.Valid() {
		return "", apperror.Validation([]apperror.FieldError{{Field: "role", Message: "must be user or admin"}})
	}
	now := s.now()
	claims := jwt.MapClaims{
		"user_id": actor.ID.String(),
		"role":    string(actor.Role),
		"exp":     now.Add(s.expiration).Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Parse verifies the signature and expiry and returns the actor the token names.
func (s *TokenService) Parse(tokenString string) (*model.Actor, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())

	if err != nil || !token.Valid {
		return nil, apperror.Unauthorized("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperror.Unauthorized("invalid claims")
	}

	userID, _ := claims["user_id"].(string)
	role, _ := claims["role"].(string)
	return ParseActor(userID, role)
}

// ParseActor builds an actor from raw identity strings, as carried by claims or gateway headers.
func ParseActor(userID, role string) (*model.Actor, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, apperror.Unauthorized("invalid user id")
	}
	r := model.Role(role)
	if !r.Valid() {
		return nil, apperror.Unauthorized("invalid role")
	}
	return &model.Actor{ID: id, Role: r}, nil
}
