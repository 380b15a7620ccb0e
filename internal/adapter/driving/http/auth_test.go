package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueAndParseToken(t *testing.T) {
	t.Parallel()

	tok, err := IssueToken("s3cret", "alice", "r1", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	claims, err := ParseToken("s3cret", tok)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.ParticipantID != "alice" || claims.Room != "r1" {
		t.Fatalf("claims = %+v", claims)
	}

	if _, err := ParseToken("other", tok); err == nil {
		t.Fatal("ParseToken accepted a token signed with another secret")
	}

	expired, err := IssueToken("s3cret", "alice", "", -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := ParseToken("s3cret", expired); err == nil {
		t.Fatal("ParseToken accepted an expired token")
	}
}

func TestParseTokenRejectsNoneAlgorithm(t *testing.T) {
	t.Parallel()

	tok := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{ParticipantID: "mallory"})
	s, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	if _, err := ParseToken("s3cret", s); err == nil {
		t.Fatal("ParseToken accepted an unsigned token")
	}
}

func TestJWTAuthMiddleware(t *testing.T) {
	t.Parallel()

	valid, err := IssueToken("s3cret", "bob", "r9", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	var seen *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = claimsFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		secret string
		header string
		query  string
		want   int
	}{
		{name: "open server", secret: "", want: http.StatusNoContent},
		{name: "missing token", secret: "s3cret", want: http.StatusUnauthorized},
		{name: "bad header", secret: "s3cret", header: "Token " + valid, want: http.StatusUnauthorized},
		{name: "bearer header", secret: "s3cret", header: "Bearer " + valid, want: http.StatusNoContent},
		{name: "query token", secret: "s3cret", query: valid, want: http.StatusNoContent},
		{name: "garbage", secret: "s3cret", header: "Bearer abc", want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		if tt.query != "" {
			req.URL.RawQuery = "token=" + tt.query
		}
		rec := httptest.NewRecorder()
		JWTAuth(tt.secret)(next).ServeHTTP(rec, req)

		if rec.Code != tt.want {
			t.Fatalf("%s: status = %d, want %d", tt.name, rec.Code, tt.want)
		}
		if tt.want == http.StatusNoContent && tt.secret != "" && (seen == nil || seen.ParticipantID != "bob") {
			t.Fatalf("%s: claims not propagated: %+v", tt.name, seen)
		}
	}
}

func TestOriginFilter(t *testing.T) {
	t.Parallel()

	check := OriginFilter([]string{"http://localhost:5173"})
	for origin, want := range map[string]bool{
		"":                      true,
		"http://localhost:5173": true,
		"http://evil.example":   false,
	} {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		if got := check(req); got != want {
			t.Fatalf("origin %q allowed = %v, want %v", origin, got, want)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "http://anything")
	if !OriginFilter(nil)(req) {
		t.Fatal("empty allow list should accept every origin")
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	h := NewHandler(nil, "", nil, "")
	rec := httptest.NewRecorder()
	h.NewRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rec.Code, rec.Body.String())
	}
}
