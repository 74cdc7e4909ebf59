package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/otogram/backend/internal/auth"
	"github.com/otogram/backend/internal/db"
	"github.com/otogram/backend/internal/feed"
	"github.com/otogram/backend/internal/media"
	"github.com/otogram/backend/internal/models"
	"github.com/otogram/backend/internal/repositories"
	"github.com/otogram/backend/internal/storage"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type sqlPinger struct{ db *sql.DB }

func (p sqlPinger) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

type testEnv struct {
	t      *testing.T
	router http.Handler
	users  *repositories.SQLiteUserRepository
	videos *repositories.SQLiteVideoRepository
	blobs  *storage.DiskBackend
	tokens *auth.TokenManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	conn, err := db.OpenSQLite(context.Background(), db.MemoryPath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	blobs, err := storage.NewDiskBackend(t.TempDir())
	if err != nil {
		t.Fatalf("disk backend: %v", err)
	}

	users := repositories.NewSQLiteUserRepository(conn)
	videos := repositories.NewSQLiteVideoRepository(conn)
	ingress := media.NewIngress(blobs)
	tokens := auth.NewTokenManager("test-secret", time.Hour)

	router := NewRouter(Dependencies{
		Users:          users,
		Tokens:         tokens,
		Feed:           feed.NewService(users, videos, ingress),
		Media:          ingress,
		Health:         sqlPinger{db: conn},
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		AllowedOrigins: []string{"http://localhost:5173"},
	})

	return &testEnv{t: t, router: router, users: users, videos: videos, blobs: blobs, tokens: tokens}
}

func (e *testEnv) do(method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	e.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) doJSON(method, path, token string, payload any) *httptest.ResponseRecorder {
	e.t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			e.t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	return e.do(method, path, token, body, "application/json")
}

// register creates an account and returns its token and user.
func (e *testEnv) register(username, email string) (string, models.User) {
	e.t.Helper()
	rec := e.doJSON(http.MethodPost, "/auth/register", "", map[string]string{
		"username": username,
		"email":    email,
		"password": "secret123",
	})
	if rec.Code != http.StatusCreated {
		e.t.Fatalf("register %s: expected 201 got %d: %s", username, rec.Code, rec.Body.String())
	}
	resp := decode[authResponse](e.t, rec)
	return resp.Token, resp.User
}

func (e *testEnv) login(email string) string {
	e.t.Helper()
	rec := e.doJSON(http.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": "secret123"})
	if rec.Code != http.StatusOK {
		e.t.Fatalf("login %s: expected 200 got %d: %s", email, rec.Code, rec.Body.String())
	}
	return decode[authResponse](e.t, rec).Token
}

// promote changes a stored role directly, bypassing the API.
func (e *testEnv) promote(userID string, role models.Role) {
	e.t.Helper()
	if _, err := e.users.UpdateRole(context.Background(), userID, role); err != nil {
		e.t.Fatalf("promote %s: %v", userID, err)
	}
}

type filePart struct {
	field       string
	contentType string
	body        []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...filePart) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, f := range files {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="%s.bin"`, f.field, f.field))
		header.Set("Content-Type", f.contentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(f.body); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

// uploadVideo posts a clip with a thumbnail to path.
func (e *testEnv) uploadVideo(path, token, description string) *httptest.ResponseRecorder {
	e.t.Helper()
	body, contentType := multipartBody(e.t, map[string]string{"description": description},
		filePart{field: "video", contentType: "video/mp4", body: []byte("fake mp4 bytes")},
		filePart{field: "thumbnail", contentType: "image/png", body: pngBytes},
	)
	return e.do(http.MethodPost, path, token, body, contentType)
}

func (e *testEnv) blobCount() int {
	e.t.Helper()
	blobs, err := e.blobs.List(context.Background())
	if err != nil {
		e.t.Fatalf("list blobs: %v", err)
	}
	return len(blobs)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]any](t, rec)["error"].(string)
}
