package remotefs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, "secret-token")
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresCredentials(t *testing.T) {
	if _, err := NewClient("", "token"); err == nil {
		t.Error("expected error for missing base URL")
	}
	if _, err := NewClient("http://example.com", ""); err == nil {
		t.Error("expected error for missing token")
	}
}

func TestBearerTokenOnEveryRequest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	})

	ctx := context.Background()
	_, err := c.DirExists(ctx, "drivers")
	require.NoError(t, err)
	require.NoError(t, c.MkdirAll(ctx, "drivers"))
	require.NoError(t, c.WriteFile(ctx, "drivers/readme", "hi"))
}

func TestDirExists(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/dirs/present" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	ctx := context.Background()
	exists, err := c.DirExists(ctx, "present")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = c.DirExists(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMkdirAllTreatsConflictAsSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	require.NoError(t, c.MkdirAll(context.Background(), "already/there"))
}

func TestWriteFileSendsContent(t *testing.T) {
	var gotBody string
	var gotMethod string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotMethod = r.Method
		w.WriteHeader(http.StatusCreated)
	})

	require.NoError(t, c.WriteFile(context.Background(), "drivers/driver.go", "package driver"))
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "package driver", gotBody)
}

func TestWriteFileSurfacesServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	})

	err := c.WriteFile(context.Background(), "x", "y")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "quota exceeded")
}
