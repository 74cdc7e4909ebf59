package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/otogram/backend/internal/models"
)

func TestAuthHandlerRegister(t *testing.T) {
	env := newTestEnv(t)

	token, user := env.register("alice", "Alice@Example.com")

	if user.Role != models.RoleUser {
		t.Fatalf("expected default role user got %s", user.Role)
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("expected lowercased email got %s", user.Email)
	}
	if user.ProfileImage != models.DefaultProfileImage {
		t.Fatalf("expected default avatar got %s", user.ProfileImage)
	}

	identity, err := env.tokens.Verify(token)
	if err != nil {
		t.Fatalf("verify issued token: %v", err)
	}
	if identity.UserID != user.ID || identity.Role != models.RoleUser {
		t.Fatalf("token identity %+v does not match user %s", identity, user.ID)
	}

	stored, err := env.users.FindByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("expected user to be stored: %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("secret123")) != nil {
		t.Fatal("stored password is not hashed")
	}
}

func TestAuthHandlerRegisterConflicts(t *testing.T) {
	env := newTestEnv(t)
	env.register("alice", "alice@example.com")

	rec := env.doJSON(http.MethodPost, "/auth/register", "", map[string]string{
		"username": "alice2", "email": "ALICE@example.com", "password": "secret123",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate email got %d", rec.Code)
	}

	rec = env.doJSON(http.MethodPost, "/auth/register", "", map[string]string{
		"username": "alice", "email": "other@example.com", "password": "secret123",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate username got %d", rec.Code)
	}

	users, err := env.users.List(context.Background())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected a single stored user got %d", len(users))
	}
}

func TestAuthHandlerRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := map[string]map[string]string{
		"missing username": {"email": "a@example.com", "password": "secret123"},
		"short password":   {"username": "alice", "email": "a@example.com", "password": "123"},
		"bad email":        {"username": "alice", "email": "not-an-email", "password": "secret123"},
		"bad username":     {"username": "al ice", "email": "a@example.com", "password": "secret123"},
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			rec := env.doJSON(http.MethodPost, "/auth/register", "", payload)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}

	rec := env.do(http.MethodPost, "/auth/register", "", strings.NewReader("{"), "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body got %d", rec.Code)
	}
}

func TestAuthHandlerLogin(t *testing.T) {
	env := newTestEnv(t)
	_, user := env.register("alice", "alice@example.com")

	rec := env.doJSON(http.MethodPost, "/auth/login", "", map[string]string{"email": " ALICE@example.com ", "password": "secret123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[authResponse](t, rec)
	if resp.Token == "" || resp.User.ID != user.ID {
		t.Fatalf("unexpected login response %+v", resp)
	}

	rec = env.doJSON(http.MethodPost, "/auth/login", "", map[string]string{"email": "alice@example.com"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing password got %d", rec.Code)
	}
}

func TestAuthHandlerLoginDoesNotRevealAccounts(t *testing.T) {
	env := newTestEnv(t)
	env.register("alice", "alice@example.com")

	wrongPassword := env.doJSON(http.MethodPost, "/auth/login", "", map[string]string{"email": "alice@example.com", "password": "nope-nope"})
	unknownEmail := env.doJSON(http.MethodPost, "/auth/login", "", map[string]string{"email": "ghost@example.com", "password": "secret123"})

	if wrongPassword.Code != http.StatusUnauthorized || unknownEmail.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for both got %d and %d", wrongPassword.Code, unknownEmail.Code)
	}
	if wrongPassword.Body.String() != unknownEmail.Body.String() {
		t.Fatalf("expected identical bodies got %q and %q", wrongPassword.Body.String(), unknownEmail.Body.String())
	}
}

func TestAuthHandlerLoginHashesForUnknownEmail(t *testing.T) {
	env := newTestEnv(t)

	var compared [][]byte
	original := compareHashAndPassword
	compareHashAndPassword = func(hash, password []byte) error {
		compared = append(compared, hash)
		return original(hash, password)
	}
	t.Cleanup(func() { compareHashAndPassword = original })

	rec := env.doJSON(http.MethodPost, "/auth/login", "", map[string]string{"email": "ghost@example.com", "password": "secret123"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
	if len(compared) != 1 {
		t.Fatalf("expected one password comparison for an unknown email got %d", len(compared))
	}
	if cost, err := bcrypt.Cost(compared[0]); err != nil || cost != bcrypt.DefaultCost {
		t.Fatalf("expected a default-cost hash got cost %d err %v", cost, err)
	}
}

func TestAuthHandlerMe(t *testing.T) {
	env := newTestEnv(t)
	token, user := env.register("alice", "alice@example.com")

	rec := env.do(http.MethodGet, "/auth/me", token, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if got := decode[models.User](t, rec); got.ID != user.ID || got.Username != "alice" {
		t.Fatalf("unexpected user %+v", got)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatal("password hash must not be serialized")
	}

	rec = env.do(http.MethodGet, "/auth/me", "", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", rec.Code)
	}

	rec = env.do(http.MethodGet, "/auth/me", "garbage", nil, "")
	if rec.Code != http.StatusUnauthorized || errorMessage(t, rec) != "invalid token" {
		t.Fatalf("expected invalid token 401 got %d %s", rec.Code, rec.Body.String())
	}
}
