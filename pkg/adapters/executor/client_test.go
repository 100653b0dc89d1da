package executor_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aretw0/strata/pkg/adapters/executor"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blurRequest(t *testing.T) ports.ExecRequest {
	t.Helper()
	op, err := domain.ParseOperation("blur", map[string]any{"radius": 3.0})
	require.NoError(t, err)
	return ports.ExecRequest{SessionID: "s1", Input: "in-1", Operation: op}
}

func TestClient_Execute_Success(t *testing.T) {
	var gotQuery map[string]string
	var gotParams map[string]any
	var gotSession string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/transform", r.URL.Path)
		gotQuery = map[string]string{"_uuid": r.URL.Query().Get("_uuid"), "op": r.URL.Query().Get("op")}
		gotSession = r.Header.Get(executor.SessionHeader)

		var body struct {
			Params map[string]any `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotParams = body.Params

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"transformation":"transform.blur","input_uuid":"in-1","output_uuid":"out-1"}`))
	}))
	defer srv.Close()

	out, err := executor.NewClient(srv.URL+"/").Execute(context.Background(), blurRequest(t))
	require.NoError(t, err)

	assert.Equal(t, domain.VersionID("out-1"), out)
	assert.Equal(t, map[string]string{"_uuid": "in-1", "op": "blur"}, gotQuery)
	assert.Equal(t, "s1", gotSession)
	assert.Equal(t, 3.0, gotParams["radius"])
	assert.Equal(t, "average", gotParams["kernel"], "defaults are sent to the executor")
}

func TestClient_Execute_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unsupported operation", http.StatusBadRequest, "Invalid Transformation Operation", domain.ErrUnsupportedOperation},
		{"input not found", http.StatusNotFound, "Input image not found in stack", domain.ErrInputNotFound},
		{"missing output id", http.StatusCreated, `{"status":"ok"}`, domain.ErrInvalidExecutorResponse},
		{"malformed body", http.StatusCreated, `not json`, domain.ErrInvalidExecutorResponse},
		{"unsafe output id", http.StatusCreated, `{"output_uuid":"../x"}`, domain.ErrInvalidExecutorResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := executor.NewClient(srv.URL).Execute(context.Background(), blurRequest(t))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClient_Execute_PassthroughError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("warming up"))
	}))
	defer srv.Close()

	_, err := executor.NewClient(srv.URL).Execute(context.Background(), blurRequest(t))

	var execErr *executor.Error
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, http.StatusServiceUnavailable, execErr.StatusCode)
	assert.Equal(t, "text/plain", execErr.ContentType)
	assert.Equal(t, "warming up", string(execErr.Body))
}

func TestClient_Execute_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := executor.NewClient(addr).Execute(context.Background(), blurRequest(t))
	assert.ErrorIs(t, err, domain.ErrExecutorUnavailable)
}

func TestClient_Execute_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := executor.NewClient(srv.URL).Execute(ctx, blurRequest(t))
	assert.ErrorIs(t, err, domain.ErrExecutorUnavailable)
}

func TestClient_Health(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	client := executor.NewClient(srv.URL)
	assert.NoError(t, client.Health(context.Background()))

	srv.Close()
	assert.ErrorIs(t, client.Health(context.Background()), domain.ErrExecutorUnavailable)
}
