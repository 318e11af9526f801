package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type signingFixture struct {
	key   *rsa.PrivateKey
	kid   string
	certs *httptest.Server
}

func newSigningFixture(t *testing.T) *signingFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	tpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "token-signer"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	pemCert := string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))

	kid := "test-key-1"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		json.NewEncoder(w).Encode(map[string]string{kid: pemCert})
	}))
	t.Cleanup(srv.Close)

	return &signingFixture{key: key, kid: kid, certs: srv}
}

func (f *signingFixture) token(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = f.kid
	signed, err := tok.SignedString(f.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func validClaims(project string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":   "https://securetoken.google.com/" + project,
		"aud":   project,
		"sub":   "user-123",
		"email": "student@example.com",
		"name":  "Student",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
}

func TestVerifyValidToken(t *testing.T) {
	f := newSigningFixture(t)
	v := NewVerifierWithCerts("demo-project", f.certs.URL)

	claims, err := v.Verify(context.Background(), f.token(t, validClaims("demo-project")))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UID != "user-123" || claims.Email != "student@example.com" {
		t.Errorf("unexpected claims %+v", claims)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	f := newSigningFixture(t)
	v := NewVerifierWithCerts("demo-project", f.certs.URL)

	c := validClaims("demo-project")
	c["exp"] = time.Now().Add(-time.Hour).Unix()
	if _, err := v.Verify(context.Background(), f.token(t, c)); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token: got %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsWrongAudience(t *testing.T) {
	f := newSigningFixture(t)
	v := NewVerifierWithCerts("demo-project", f.certs.URL)

	if _, err := v.Verify(context.Background(), f.token(t, validClaims("other-project"))); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong audience: got %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	f := newSigningFixture(t)
	v := NewVerifierWithCerts("demo-project", f.certs.URL)

	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := v.Verify(context.Background(), tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("token %q: got %v, want ErrInvalidToken", tok, err)
		}
	}
}

func TestVerifyCachesCertificates(t *testing.T) {
	f := newSigningFixture(t)
	v := NewVerifierWithCerts("demo-project", f.certs.URL)

	if _, err := v.Verify(context.Background(), f.token(t, validClaims("demo-project"))); err != nil {
		t.Fatalf("first verify: %v", err)
	}

	// kill the cert endpoint; the cached key must keep working
	f.certs.Close()
	if _, err := v.Verify(context.Background(), f.token(t, validClaims("demo-project"))); err != nil {
		t.Fatalf("verify with cached certs: %v", err)
	}
}
