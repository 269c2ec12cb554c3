package webserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zsprackett/editor-companion/internal/applog"
)

func TestTokenSignerRejects(t *testing.T) {
	signer := tokenSigner{key: []byte("k1"), ttl: time.Hour}

	expired, _ := tokenSigner{key: []byte("k1"), ttl: -time.Minute}.issue("alice")
	otherKey, _ := tokenSigner{key: []byte("k2"), ttl: time.Hour}.issue("alice")
	noIssuer, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("k1"))
	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:  tokenIssuer,
		Subject: "alice",
	}).SignedString([]byte("k1"))

	cases := map[string]string{
		"expired":   expired,
		"other key": otherKey,
		"no issuer": noIssuer,
		"no expiry": noExpiry,
		"garbage":   "not.a.jwt",
	}
	for name, tok := range cases {
		if user, err := signer.verify(tok); err == nil {
			t.Errorf("%s: accepted as %q", name, user)
		}
	}

	good, err := signer.issue("alice")
	if err != nil {
		t.Fatal(err)
	}
	if user, err := signer.verify(good); err != nil || user != "alice" {
		t.Errorf("verify = %q, %v", user, err)
	}
}

// serveThroughAuth runs requireAuth in front of a handler that records the user.
func serveThroughAuth(t *testing.T, signer tokenSigner, req *http.Request) (int, string) {
	t.Helper()
	s := &Server{signer: signer, logger: applog.Discard()}
	var user string
	h := s.requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user = Username(r.Context())
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Code, user
}

func TestRequireAuthPublicPaths(t *testing.T) {
	signer := tokenSigner{key: []byte("k"), ttl: time.Hour}
	cases := []struct {
		path string
		want int
	}{
		{"/", 200},
		{"/index.html", 200},
		{"/api/health", 200},
		{"/api/auth/login", 200},
		{"/assets/viewer.js", 200},
		{"/api/projects", 401},
		{"/api/healthz", 401},
		{"/index.html/x", 401},
		{"/ws/p1", 401},
		{"/mcp/p1", 401},
	}
	for _, tc := range cases {
		code, _ := serveThroughAuth(t, signer, httptest.NewRequest("GET", tc.path, nil))
		if code != tc.want {
			t.Errorf("%s: got %d want %d", tc.path, code, tc.want)
		}
	}
}

func TestRequireAuthSetsUsername(t *testing.T) {
	signer := tokenSigner{key: []byte("k"), ttl: time.Hour}
	tok, _ := signer.issue("alice")

	req := httptest.NewRequest("GET", "/api/projects", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	code, user := serveThroughAuth(t, signer, req)
	if code != 200 || user != "alice" {
		t.Errorf("bearer: code %d user %q", code, user)
	}

	code, user = serveThroughAuth(t, signer, httptest.NewRequest("GET", "/", nil))
	if code != 200 || user != "" {
		t.Errorf("public path: code %d user %q", code, user)
	}
}

func TestRequireAuthQueryTokenOnlyForWebsocket(t *testing.T) {
	signer := tokenSigner{key: []byte("k"), ttl: time.Hour}
	tok, _ := signer.issue("alice")

	code, user := serveThroughAuth(t, signer, httptest.NewRequest("GET", "/ws/p1?token="+tok, nil))
	if code != 200 || user != "alice" {
		t.Errorf("/ws/: code %d user %q", code, user)
	}
	if code, _ := serveThroughAuth(t, signer, httptest.NewRequest("GET", "/api/projects?token="+tok, nil)); code != 401 {
		t.Errorf("/api/: query token accepted, code %d", code)
	}
}
