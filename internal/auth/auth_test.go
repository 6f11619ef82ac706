package auth

import (
	"errors"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/maruel/insertd/internal/capability"
)

func signJWT(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestAuthenticator_Actor(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	secret := "jwt-secret"
	a := New([]Token{
		{Token: "test-bot", Actor: map[string]any{"bot": "test"}},
		{Hash: string(hash), Actor: map[string]any{"id": "ci"}},
	}, secret)

	future := time.Now().Add(time.Hour).Unix()
	tests := []struct {
		name    string
		header  string
		want    capability.Actor
		wantErr bool
	}{
		{name: "anonymous"},
		{name: "static token", header: "Bearer test-bot", want: capability.Actor{"bot": "test"}},
		{name: "lowercase scheme", header: "bearer test-bot", want: capability.Actor{"bot": "test"}},
		{name: "hashed token", header: "Bearer hashed-secret", want: capability.Actor{"id": "ci"}},
		{name: "unknown token", header: "Bearer nope", wantErr: true},
		{name: "basic auth", header: "Basic dXNlcjpwYXNz", wantErr: true},
		{name: "empty bearer", header: "Bearer ", wantErr: true},
		{
			name:   "jwt",
			header: "Bearer " + signJWT(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": "alice", "exp": future}),
			want:   capability.Actor{"id": "alice"},
		},
		{
			name: "jwt with actor claim",
			header: "Bearer " + signJWT(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
				"sub": "alice", "exp": future, "actor": map[string]any{"roles": []any{"writer"}},
			}),
			want: capability.Actor{"id": "alice", "roles": []any{"writer"}},
		},
		{
			name:    "jwt wrong secret",
			header:  "Bearer " + signJWT(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "alice"}),
			wantErr: true,
		},
		{
			name:    "jwt expired",
			header:  "Bearer " + signJWT(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": "alice", "exp": time.Now().Add(-time.Hour).Unix()}),
			wantErr: true,
		},
		{
			name:    "jwt without claims",
			header:  "Bearer " + signJWT(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"exp": future}),
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/-/insert/data/dogs", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, err := a.Actor(r)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Actor() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Actor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuthenticator_NoJWTSecret(t *testing.T) {
	a := New(nil, "")
	tok := signJWT(t, jwt.SigningMethodHS256, []byte("k"), jwt.MapClaims{"sub": "alice"})
	if _, err := a.Resolve(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Resolve() = %v, want ErrInvalidToken", err)
	}
}

func TestAuthenticator_ActorIsCopied(t *testing.T) {
	a := New([]Token{{Token: "t", Actor: map[string]any{"bot": "test"}}}, "")
	got, err := a.Resolve("t")
	if err != nil {
		t.Fatal(err)
	}
	got["bot"] = "changed"
	again, _ := a.Resolve("t")
	if again["bot"] != "test" {
		t.Errorf("configured actor was modified: %v", again)
	}
}

func TestAuthenticator_Swap(t *testing.T) {
	a := New([]Token{{Token: "old", Actor: map[string]any{"id": "a"}}}, "")
	a.Swap([]Token{{Token: "new", Actor: map[string]any{"id": "b"}}}, "")
	if _, err := a.Resolve("old"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Resolve(old) = %v, want ErrInvalidToken", err)
	}
	got, err := a.Resolve("new")
	if err != nil || got.ID() != "b" {
		t.Errorf("Resolve(new) = %v, %v, want actor b", got, err)
	}
}

func TestToken_Validate(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("x"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	actor := map[string]any{"id": "x"}
	tests := []struct {
		name    string
		token   Token
		wantErr bool
	}{
		{"plain", Token{Token: "x", Actor: actor}, false},
		{"hash", Token{Hash: string(hash), Actor: actor}, false},
		{"both", Token{Token: "x", Hash: string(hash), Actor: actor}, true},
		{"neither", Token{Actor: actor}, true},
		{"bad hash", Token{Hash: "not-bcrypt", Actor: actor}, true},
		{"no actor", Token{Token: "x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.token.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
