package gcs

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/spoolhub-backend/pkg/storage"
)

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeServer(t *testing.T) (*httptest.Server, *fakeBucket) {
	t.Helper()
	bucket := &fakeBucket{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		bucket.mu.Lock()
		defer bucket.mu.Unlock()
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/upload/storage/v1/b/spools/o":
			body, _ := io.ReadAll(r.Body)
			name := r.URL.Query().Get("name")
			bucket.objects[name] = body
			bucket.types[name] = r.Header.Get("Content-Type")
			_, _ = w.Write([]byte(`{}`))
		case r.Method == http.MethodGet && r.URL.Path == "/storage/v1/b/spools/o":
			_, _ = w.Write([]byte(`{"items":[]}`))
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/storage/v1/b/spools/o/"):
			name := strings.TrimPrefix(r.URL.Path, "/storage/v1/b/spools/o/")
			data, ok := bucket.objects[name]
			if !ok {
				http.Error(w, "no such object", http.StatusNotFound)
				return
			}
			_, _ = w.Write(data)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, bucket
}

func staticTokens() *tokenSource {
	return &tokenSource{fetch: func(context.Context) (string, time.Time, error) {
		return "test-token", time.Now().Add(time.Hour), nil
	}}
}

func TestStoreSaveAndRead(t *testing.T) {
	srv, bucket := newFakeServer(t)
	client := &Client{httpClient: srv.Client(), endpoint: srv.URL, defaultBucket: "spools", tokenSource: staticTokens()}
	store := NewStore(client)
	ctx := context.Background()

	if err := client.Ping(ctx); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}

	locator, err := store.Save(ctx, []byte("png-bytes"), "png")
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if !strings.HasPrefix(locator, "gs://spools/bulk/") {
		t.Fatalf("unexpected locator %q", locator)
	}
	name := strings.TrimPrefix(locator, "gs://spools/")
	if bucket.types[name] != "image/png" {
		t.Fatalf("unexpected content type %q", bucket.types[name])
	}

	data, err := store.Read(ctx, locator)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Fatalf("unexpected data %q", data)
	}
}

func TestStoreReadErrors(t *testing.T) {
	srv, _ := newFakeServer(t)
	store := NewStore(&Client{httpClient: srv.Client(), endpoint: srv.URL, defaultBucket: "spools", tokenSource: staticTokens()})

	for _, locator := range []string{"/uploads/a.jpg", "gs://spools", "gs://spools/bulk/missing.jpg"} {
		_, err := store.Read(context.Background(), locator)
		var storageErr *storage.Error
		if !errors.As(err, &storageErr) {
			t.Fatalf("%s: expected storage error, got %v", locator, err)
		}
	}
}

func TestServiceAccountTokenSource(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	calls := 0
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		parsed, err := jwt.Parse(r.PostForm.Get("assertion"), func(*jwt.Token) (any, error) {
			return &key.PublicKey, nil
		})
		if err != nil || !parsed.Valid {
			t.Errorf("invalid assertion: %v", err)
		}
		claims := parsed.Claims.(jwt.MapClaims)
		if claims["iss"] != "signer@example.com" || claims["scope"] != scope {
			t.Errorf("unexpected claims %v", claims)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "sa-token", "expires_in": 3600})
	}))
	defer tokenSrv.Close()

	creds, _ := json.Marshal(map[string]string{
		"client_email": "signer@example.com",
		"private_key":  string(pemKey),
		"token_uri":    tokenSrv.URL,
	})
	ts, err := newServiceAccountTokenSource(tokenSrv.Client(), string(creds))
	if err != nil {
		t.Fatalf("newServiceAccountTokenSource() error: %v", err)
	}

	for i := 0; i < 2; i++ {
		token, err := ts.Token(context.Background())
		if err != nil {
			t.Fatalf("Token() error: %v", err)
		}
		if token != "sa-token" {
			t.Fatalf("unexpected token %q", token)
		}
	}
	if calls != 1 {
		t.Fatalf("expected cached token, got %d exchanges", calls)
	}
}

func TestServiceAccountTokenSourceRejectsBadCredentials(t *testing.T) {
	if _, err := newServiceAccountTokenSource(http.DefaultClient, `{"client_email":""}`); err == nil {
		t.Fatal("expected missing email to fail")
	}
	if _, err := newServiceAccountTokenSource(http.DefaultClient, `{"client_email":"a","private_key":"nope"}`); err == nil {
		t.Fatal("expected malformed key to fail")
	}
}
