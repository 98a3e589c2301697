package httpexec

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gqlclient/internal/config"
)

func newTestExecutor(t *testing.T, env config.Environment, attempts int) *Executor {
	t.Helper()
	store := config.NewStore(nil)
	require.NoError(t, store.AddEnvironment("test", env, true))
	return New(store, &config.Config{RetryMaxAttempts: attempts}, zerolog.Nop())
}

func replyWith(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func TestExecute_RequestShape(t *testing.T) {
	var got request
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"data":{"x":1}}`))
	}))
	defer srv.Close()

	exec := newTestExecutor(t, config.Environment{
		URL:     srv.URL,
		Headers: map[string]string{"Authorization": "Bearer t"},
	}, 1)

	resp, err := exec.Execute(context.Background(), "query { x }", map[string]any{"id": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, string(resp.Data))
	assert.JSONEq(t, `{"data":{"x":1}}`, string(resp.Raw))
	assert.Empty(t, resp.Errors)

	assert.Equal(t, "query { x }", got.Query)
	assert.EqualValues(t, 1, got.Variables["id"])
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
	assert.Equal(t, "application/json", headers.Get("Accept"))
	assert.Equal(t, "Bearer t", headers.Get("Authorization"))
}

func TestQuery_Flatten(t *testing.T) {
	srv := httptest.NewServer(replyWith(`{"data":{"authors":[{"id":1,"name":"a"}]}}`))
	defer srv.Close()
	exec := newTestExecutor(t, config.Environment{URL: srv.URL}, 1)
	ctx := context.Background()

	data, errs := exec.Query(ctx, "query { authors { id name } }", nil)
	assert.Empty(t, errs)
	assert.JSONEq(t, `[{"id":1,"name":"a"}]`, string(data))

	data, errs = exec.QueryOne(ctx, "query { authors { id name } }", nil)
	assert.Empty(t, errs)
	assert.JSONEq(t, `{"id":1,"name":"a"}`, string(data))

	data, errs = exec.Query(ctx, "query { authors { id name } }", nil, WithoutFlatten())
	assert.Empty(t, errs)
	assert.JSONEq(t, `{"data":{"authors":[{"id":1,"name":"a"}]}}`, string(data))
}

func TestQuery_ResponseErrors(t *testing.T) {
	srv := httptest.NewServer(replyWith(`{"data":null,"errors":[{"message":"boom","path":["authors",0]}]}`))
	defer srv.Close()
	exec := newTestExecutor(t, config.Environment{URL: srv.URL}, 1)

	data, errs := exec.Query(context.Background(), "query { authors { id } }", nil)
	require.Len(t, errs, 1)
	assert.Equal(t, "boom", errs[0].Message)
	assert.Equal(t, "null", string(data))
}

func TestMutate_Messages(t *testing.T) {
	srv := httptest.NewServer(replyWith(`{"data":{"createAuthor":{"successful":false,"messages":[{"field":"name","message":"has already been taken"}]}}}`))
	defer srv.Close()
	exec := newTestExecutor(t, config.Environment{URL: srv.URL}, 1)

	data, errs := exec.Mutate(context.Background(), `mutation { createAuthor(name: "a") { successful messages { field message } } }`, nil)
	assert.JSONEq(t, `{"successful":false,"messages":[{"field":"name","message":"has already been taken"}]}`, string(data))
	require.Len(t, errs, 1)
	assert.Equal(t, "has already been taken", errs[0].Message)
	assert.Equal(t, "name", errs[0].Extensions["field"])
}

func TestMutate_ErrorsDropData(t *testing.T) {
	srv := httptest.NewServer(replyWith(`{"data":{"createAuthor":{"id":1}},"errors":[{"message":"partial"}]}`))
	defer srv.Close()
	exec := newTestExecutor(t, config.Environment{URL: srv.URL}, 1)

	data, errs := exec.Mutate(context.Background(), `mutation { createAuthor { id } }`, nil, WithoutFlatten())
	assert.Nil(t, data)
	require.Len(t, errs, 1)
	assert.Equal(t, "partial", errs[0].Message)
}

func TestMutate_TransportError(t *testing.T) {
	srv := httptest.NewServer(replyWith(`{}`))
	srv.Close()
	exec := newTestExecutor(t, config.Environment{URL: srv.URL}, 1)

	data, errs := exec.Mutate(context.Background(), `mutation { x }`, nil)
	assert.Empty(t, data)
	require.Len(t, errs, 1)
	assert.NotEmpty(t, errs[0].Message)
	assert.Error(t, errs[0].Err)
}

func TestExecute_StatusNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad query"))
	}))
	defer srv.Close()
	exec := newTestExecutor(t, config.Environment{URL: srv.URL}, 3)

	_, err := exec.Execute(context.Background(), "query { x }", nil)
	var respErr *ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, http.StatusBadRequest, respErr.StatusCode)
	assert.Equal(t, "bad query", respErr.Body)
	assert.Equal(t, "query { x }", respErr.Query)
	assert.EqualValues(t, 1, calls.Load())
}

func TestExecute_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"x":1}}`))
	}))
	defer srv.Close()
	exec := newTestExecutor(t, config.Environment{URL: srv.URL}, 3)

	resp, err := exec.Execute(context.Background(), "query { x }", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, string(resp.Data))
	assert.EqualValues(t, 3, calls.Load())
}

func TestExecute_SingleAttemptByDefault(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	exec := newTestExecutor(t, config.Environment{URL: srv.URL}, 0)

	_, err := exec.Execute(context.Background(), "query { x }", nil)
	var respErr *ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.EqualValues(t, 1, calls.Load())
}

func TestExecute_PostTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()
	exec := newTestExecutor(t, config.Environment{URL: srv.URL, PostTimeout: 50}, 1)

	start := time.Now()
	_, err := exec.Execute(context.Background(), "query { x }", nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExecute_Endpoints(t *testing.T) {
	exec := New(config.NewStore(nil), nil, zerolog.Nop())
	_, err := exec.Execute(context.Background(), "query { x }", nil)
	assert.ErrorIs(t, err, config.ErrNoEnvironment)

	exec = newTestExecutor(t, config.Environment{WSS: "ws://localhost:1"}, 1)
	_, err = exec.Execute(context.Background(), "query { x }", nil)
	assert.ErrorIs(t, err, ErrNoQueryEndpoint)
}

func TestMessages(t *testing.T) {
	assert.Nil(t, Messages(nil))
	assert.Empty(t, Messages(json.RawMessage(`[1,2]`)))
	assert.Empty(t, Messages(json.RawMessage(`{"id":1}`)))

	errs := Messages(json.RawMessage(`{"messages":[{"message":"a"},"plain"]}`))
	require.Len(t, errs, 2)
	assert.Equal(t, "a", errs[0].Message)
	assert.Nil(t, errs[0].Extensions)
	assert.Equal(t, `"plain"`, errs[1].Message)
}
