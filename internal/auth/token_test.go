package auth

import (
	"testing"
	"time"

	"lapor-service/internal/apperror"
	"lapor-service/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)
	actor := model.Actor{ID: uuid.New(), Role: model.RoleAdmin}

	token, err := svc.Issue(actor)
	require.NoError(t, err)

	got, err := svc.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, actor, *got)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := NewTokenService("one", time.Hour).Issue(model.Actor{ID: uuid.New(), Role: model.RoleUser})
	require.NoError(t, err)

	_, err = NewTokenService("two", time.Hour).Parse(token)
	assert.True(t, apperror.Is(err, apperror.CodeUnauthorized))
}

func TestParseRejectsExpired(t *testing.T) {
	svc := NewTokenService("secret", time.Minute)
	svc.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, err := svc.Issue(model.Actor{ID: uuid.New(), Role: model.RoleUser})
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.Parse(token)
	assert.True(t, apperror.Is(err, apperror.CodeUnauthorized))
}

func TestParseRejectsUnknownRole(t *testing.T) {
	claims := jwt.MapClaims{
		"user_id": uuid.NewString(),
		"role":    "admin_kebersihan",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewTokenService("secret", time.Hour).Parse(signed)
	assert.True(t, apperror.Is(err, apperror.CodeUnauthorized))
}

func TestParseRejectsNoneAlgorithm(t *testing.T) {
	claims := jwt.MapClaims{"user_id": uuid.NewString(), "role": "admin", "exp": time.Now().Add(time.Hour).Unix()}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewTokenService("secret", time.Hour).Parse(unsigned)
	assert.True(t, apperror.Is(err, apperror.CodeUnauthorized))
}

func TestIssueRejectsInvalidRole(t *testing.T) {
	_, err := NewTokenService("secret", time.Hour).Issue(model.Actor{ID: uuid.New(), Role: "root"})
	assert.True(t, apperror.Is(err, apperror.CodeValidation))
}

func TestParseActor(t *testing.T) {
	id := uuid.New()
	actor, err := ParseActor(id.String(), "user")
	require.NoError(t, err)
	assert.Equal(t, model.Actor{ID: id, Role: model.RoleUser}, *actor)

	_, err = ParseActor("not-a-uuid", "user")
	assert.True(t, apperror.Is(err, apperror.CodeUnauthorized))
}
