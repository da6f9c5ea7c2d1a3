package identity_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/verichain/internal/identity"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestTokenIssuer(t *testing.T, ttl time.Duration) *identity.TokenIssuer {
	t.Helper()
	ti, err := identity.NewTokenIssuer(testSecret, "verichain-test", ttl)
	if err != nil {
		t.Fatal(err)
	}
	return ti
}

func TestNewTokenIssuer_shortSecret(t *testing.T) {
	if _, err := identity.NewTokenIssuer([]byte("short"), "x", time.Hour); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestTokenIssuer_IssueVerify(t *testing.T) {
	ti := newTestTokenIssuer(t, time.Hour)

	token, err := ti.Issue("ops@verichain", []string{identity.ScopeCertify})
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if parts := strings.Split(token, "."); len(parts) != 3 {
		t.Fatalf("expected 3-part JWT, got %d parts", len(parts))
	}

	claims, err := ti.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if claims.Subject != "ops@verichain" {
		t.Errorf("Subject: got %q", claims.Subject)
	}
	if !claims.HasScope(identity.ScopeCertify) {
		t.Errorf("expected certify scope, got %v", claims.Scopes)
	}
	if claims.ID == "" {
		t.Error("expected jti to be set")
	}
}

func TestTokenIssuer_Verify_expired(t *testing.T) {
	ti := newTestTokenIssuer(t, time.Nanosecond)
	token, err := ti.Issue("ops", []string{identity.ScopeCertify})
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(1100 * time.Millisecond)
	if _, err := ti.Verify(token); err == nil {
		t.Error("expected expired token to fail verification")
	}
}

func TestTokenIssuer_Verify_wrongSecret(t *testing.T) {
	ti := newTestTokenIssuer(t, time.Hour)
	other, _ := identity.NewTokenIssuer([]byte("ffffffffffffffffffffffffffffffff"), "verichain-test", time.Hour)

	token, _ := other.Issue("ops", []string{identity.ScopeCertify})
	if _, err := ti.Verify(token); err == nil {
		t.Error("expected token signed with another secret to fail")
	}
}

func TestTokenIssuer_Verify_wrongIssuer(t *testing.T) {
	ti := newTestTokenIssuer(t, time.Hour)
	other, _ := identity.NewTokenIssuer(testSecret, "someone-else", time.Hour)

	token, _ := other.Issue("ops", nil)
	if _, err := ti.Verify(token); err == nil {
		t.Error("expected token from another issuer to fail")
	}
}

func setupScopeRouter(t *testing.T, ti *identity.TokenIssuer) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/certify", identity.RequireScope(ti, identity.ScopeCertify), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sub": identity.ClaimsFromCtx(c).Subject})
	})
	return r
}

func TestRequireScope(t *testing.T) {
	ti := newTestTokenIssuer(t, time.Hour)
	router := setupScopeRouter(t, ti)

	good, _ := ti.Issue("ops", []string{identity.ScopeCertify})
	noScope, _ := ti.Issue("viewer", []string{"read"})

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"malformed token", "Bearer nope", http.StatusUnauthorized},
		{"missing scope", "Bearer " + noScope, http.StatusForbidden},
		{"valid", "Bearer " + good, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/certify", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Errorf("got %d, want %d: %s", w.Code, tc.want, w.Body.String())
			}
		})
	}
}
