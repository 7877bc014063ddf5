package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-jwt-signing-0123456789"

func signClaims(t *testing.T, method jwt.SigningMethod, claims CustomClaims, key any) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return token
}

func TestGenerateAndParseAccessToken(t *testing.T) {
	token, err := GenerateAccessToken("fleet-gateway", RoleOperator, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}

	if claims.Subject != "fleet-gateway" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "fleet-gateway")
	}
	if claims.Role != RoleOperator {
		t.Errorf("Role = %q, want %q", claims.Role, RoleOperator)
	}
	if claims.ID == "" {
		t.Error("JTI (ID) should not be empty")
	}
}

func TestGenerateAccessToken_UnknownRole(t *testing.T) {
	_, err := GenerateAccessToken("svc", Role("admin"), testSecret, time.Hour)
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("error = %v, want ErrTokenInvalid", err)
	}
}

func TestGenerateAccessToken_DefaultTTL(t *testing.T) {
	token, err := GenerateAccessToken("svc", RoleViewer, testSecret, 0)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}

	diff := claims.ExpiresAt.Time.Sub(time.Now().Add(defaultTTL))
	if diff < -time.Minute || diff > time.Minute {
		t.Errorf("default TTL should be ~24h, got expiry diff of %v", diff)
	}
}

func TestParseToken_Rejects(t *testing.T) {
	now := time.Now()
	valid := func() CustomClaims {
		return CustomClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "svc",
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
			Role: RoleOperator,
		}
	}

	expired := valid()
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))

	noExpiry := valid()
	noExpiry.ExpiresAt = nil

	noSubject := valid()
	noSubject.Subject = ""

	badRole := valid()
	badRole.Role = "owner"

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "not-a-valid-jwt"},
		{name: "wrong segments", token: "abc.def"},
		{name: "wrong secret", token: signClaims(t, jwt.SigningMethodHS256, valid(), []byte("another-secret"))},
		{name: "HS512", token: signClaims(t, jwt.SigningMethodHS512, valid(), []byte(testSecret))},
		{name: "alg none", token: signClaims(t, jwt.SigningMethodNone, valid(), jwt.UnsafeAllowNoneSignatureType)},
		{name: "expired", token: signClaims(t, jwt.SigningMethodHS256, expired, []byte(testSecret))},
		{name: "no expiry", token: signClaims(t, jwt.SigningMethodHS256, noExpiry, []byte(testSecret))},
		{name: "no subject", token: signClaims(t, jwt.SigningMethodHS256, noSubject, []byte(testSecret))},
		{name: "unknown role", token: signClaims(t, jwt.SigningMethodHS256, badRole, []byte(testSecret))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(tt.token, testSecret)
			if !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}
