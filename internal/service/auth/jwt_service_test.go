package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/careminder/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-long-enough-for-testing"

func newTestJWTService(secret string, lifetime time.Duration, now func() time.Time) JWTService {
	return &hmacJWTService{
		signingKey:    []byte(secret),
		tokenLifetime: lifetime,
		timeFunc:      now,
		clockSkew:     2 * time.Minute,
	}
}

func TestNewJWTService(t *testing.T) {
	_, err := NewJWTService(config.AuthConfig{JWTSecret: "short"})
	assert.Error(t, err)

	svc, err := NewJWTService(config.AuthConfig{JWTSecret: testSecret})
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, svc.(*hmacJWTService).tokenLifetime)
}

func TestGenerateToken(t *testing.T) {
	t.Parallel()

	fixedTime := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	lifetime := time.Hour
	patientID := uuid.New()
	svc := newTestJWTService(testSecret, lifetime, func() time.Time { return fixedTime })

	token, err := svc.GenerateToken(context.Background(), patientID, ScopeNotesWrite)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, patientID, claims.PatientID)
	assert.Equal(t, []string{ScopeNotesWrite}, claims.Scopes)
	assert.True(t, claims.HasScope(ScopeNotesWrite))
	assert.Equal(t, fixedTime.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, fixedTime.Add(lifetime).Unix(), claims.ExpiresAt.Unix())
	assert.NotEmpty(t, claims.ID)

	plain, err := svc.GenerateToken(context.Background(), patientID)
	require.NoError(t, err)
	claims, err = svc.ValidateToken(context.Background(), plain)
	require.NoError(t, err)
	assert.Empty(t, claims.Scopes)
	assert.False(t, claims.HasScope(ScopeNotesWrite))
}

func TestValidateToken(t *testing.T) {
	t.Parallel()

	fixedTime := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	lifetime := time.Hour
	patientID := uuid.New()
	at := func(t time.Time) func() time.Time { return func() time.Time { return t } }
	issue := func(secret string, now time.Time) string {
		token, err := newTestJWTService(secret, lifetime, at(now)).GenerateToken(context.Background(), patientID)
		require.NoError(t, err)
		return token
	}
	sign := func(claims jwt.Claims, method jwt.SigningMethod, key any) string {
		token, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return token
	}

	tests := []struct {
		name    string
		token   string
		now     time.Time
		wantErr error
	}{
		{"valid token", issue(testSecret, fixedTime), fixedTime, nil},
		{"within clock skew", issue(testSecret, fixedTime), fixedTime.Add(lifetime + time.Minute), nil},
		{"expired token", issue(testSecret, fixedTime), fixedTime.Add(lifetime + time.Hour), ErrExpiredToken},
		{"invalid signature", issue("wrong-secret-that-is-long-enough-for-testing", fixedTime), fixedTime, ErrInvalidToken},
		{"malformed token", "this.is.not.a.valid.jwt.token", fixedTime, ErrInvalidToken},
		{
			name: "not yet valid",
			token: sign(jwtCustomClaims{RegisteredClaims: jwt.RegisteredClaims{
				Subject:   patientID.String(),
				NotBefore: jwt.NewNumericDate(fixedTime.Add(time.Hour)),
				ExpiresAt: jwt.NewNumericDate(fixedTime.Add(2 * time.Hour)),
			}}, jwt.SigningMethodHS256, []byte(testSecret)),
			now:     fixedTime,
			wantErr: ErrTokenNotYetValid,
		},
		{
			name: "subject is not a uuid",
			token: sign(jwtCustomClaims{RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "someone",
				ExpiresAt: jwt.NewNumericDate(fixedTime.Add(time.Hour)),
			}}, jwt.SigningMethodHS256, []byte(testSecret)),
			now:     fixedTime,
			wantErr: ErrInvalidToken,
		},
		{
			name: "no expiry",
			token: sign(jwtCustomClaims{RegisteredClaims: jwt.RegisteredClaims{
				Subject: patientID.String(),
			}}, jwt.SigningMethodHS256, []byte(testSecret)),
			now:     fixedTime,
			wantErr: ErrInvalidToken,
		},
		{
			name: "wrong signing method",
			token: sign(jwtCustomClaims{RegisteredClaims: jwt.RegisteredClaims{
				Subject:   patientID.String(),
				ExpiresAt: jwt.NewNumericDate(fixedTime.Add(time.Hour)),
			}}, jwt.SigningMethodHS512, []byte(testSecret)),
			now:     fixedTime,
			wantErr: ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestJWTService(testSecret, lifetime, at(tt.now))
			claims, err := svc.ValidateToken(context.Background(), tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, claims)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, patientID, claims.PatientID)
		})
	}
}
