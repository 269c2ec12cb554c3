package webserver

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/zsprackett/editor-companion/internal/db"
)

const tokenIssuer = "editor-companion"

// publicPaths skip authentication. An entry ending in "/" covers everything
// below it; the rest, "/" included, match only exactly.
var publicPaths = []string{"/", "/index.html", "/api/health", "/api/auth/", "/assets/"}

// tokenSigner issues and checks HS256 access tokens.
type tokenSigner struct {
	key []byte
	ttl time.Duration
}

func (ts tokenSigner) issue(username string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ts.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ts.key)
}

// verify returns the username a valid token was issued to.
func (ts tokenSigner) verify(raw string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return ts.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

type ctxKey struct{}

// Username returns the authenticated user of a request, if any.
func Username(ctx context.Context) string {
	u, _ := ctx.Value(ctxKey{}).(string)
	return u
}

func isPublic(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
		if p != "/" && strings.HasSuffix(p, "/") && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// requestToken reads the bearer token. Browsers cannot set headers on a
// websocket upgrade, so /ws/ requests may pass it as ?token= instead.
func requestToken(r *http.Request) string {
	if tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return tok
	}
	if strings.HasPrefix(r.URL.Path, "/ws/") {
		return r.URL.Query().Get("token")
	}
	return ""
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		tok := requestToken(r)
		if tok == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		username, err := s.signer.verify(tok)
		if err != nil {
			s.logger.Debug("webserver: rejected token", "path", r.URL.Path, "err", err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, username)))
	})
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) issueTokens(acc *db.Account) (tokenPair, error) {
	access, err := s.signer.issue(acc.Username)
	if err != nil {
		return tokenPair{}, err
	}
	refresh := rand.Text()
	now := time.Now()
	if err := s.store.SaveRefreshToken(db.RefreshToken{
		Token:     refresh,
		AccountID: acc.ID,
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}); err != nil {
		return tokenPair{}, err
	}
	return tokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	acc, err := s.store.GetAccountByUsername(body.Username)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			s.logger.Error("webserver: account lookup failed", "err", err)
		}
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(body.Password)) != nil {
		s.logger.Warn("webserver: failed login", "username", body.Username, "remote", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	pair, err := s.issueTokens(acc)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.logger.Info("webserver: login", "username", acc.Username)
	writeJSON(w, http.StatusOK, pair)
}

// handleRefresh rotates a refresh token: the presented one is consumed and a
// new pair is issued.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rt, err := s.store.GetRefreshToken(body.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	if err := s.store.DeleteRefreshToken(rt.Token); err != nil {
		s.writeStoreError(w, err)
		return
	}
	acc, err := s.store.GetAccountByID(rt.AccountID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	pair, err := s.issueTokens(acc)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.DeleteRefreshToken(body.RefreshToken); err != nil && !errors.Is(err, db.ErrNotFound) {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
