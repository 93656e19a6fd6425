package parceiros

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal/config"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, payload any) *http.Response {
	blob, _ := json.Marshal(payload)
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(string(blob))),
		Header:     make(http.Header),
	}
}

func testConfig() config.Config {
	return config.Config{
		ParceirosBaseURL:     "https://partner.example.test/prod",
		ParceirosTimeoutMs:   1000,
		ParceirosTokenTTLMin: 10,
	}
}

func loginHandler(t *testing.T, logins *int32, token string) func(*http.Request) *http.Response {
	return func(r *http.Request) *http.Response {
		atomic.AddInt32(logins, 1)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user@x", body["usuario"])
		assert.Equal(t, "pw", body["senha"])
		return jsonResponse(http.StatusOK, map[string]string{"token": token})
	}
}

func TestLeadExistsUsesBearerToken(t *testing.T) {
	var logins int32
	login := loginHandler(t, &logins, "tok-1")
	client := newClient(context.Background(), testConfig(), "user@x", "pw", roundTripFunc(func(r *http.Request) (*http.Response, error) {
		switch r.URL.Path {
		case "/prod/login":
			return login(r), nil
		case "/prod/pendencia":
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			assert.Equal(t, "10", r.URL.Query().Get("tamanho_pagina"))
			if r.URL.Query().Get("cnj") == "0001234-56.2023.8.26.0100" {
				return jsonResponse(http.StatusOK, map[string]any{"body": map[string]any{
					"resultado": []map[string]any{{"cnj": "0001234-56.2023.8.26.0100", "negociador": "Ana"}},
				}}), nil
			}
			return jsonResponse(http.StatusOK, map[string]any{"resultado": []any{}}), nil
		}
		t.Fatalf("unexpected path %s", r.URL.Path)
		return nil, nil
	}), nil)

	ok, err := client.LeadExists(context.Background(), "0001234-56.2023.8.26.0100")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.LeadExists(context.Background(), "9999999-99.9999.9.99.9999")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int32(1), atomic.LoadInt32(&logins))
}

func TestLoginFailureIsTyped(t *testing.T) {
	client := newClient(context.Background(), testConfig(), "user@x", "pw", roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnauthorized, map[string]string{"message": "bad"}), nil
	}), nil)

	err := client.Authenticate(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthenticated))

	_, err = client.LeadExists(context.Background(), "x")
	assert.True(t, errors.Is(err, ErrUnauthenticated))
}

func TestExpiredTokenTriggersRelogin(t *testing.T) {
	var logins int32
	var pendencias int32
	client := newClient(context.Background(), testConfig(), "user@x", "pw", roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if r.URL.Path == "/prod/login" {
			n := atomic.AddInt32(&logins, 1)
			return jsonResponse(http.StatusOK, map[string]string{"token": "tok-" + strconv.Itoa(int(n))}), nil
		}
		atomic.AddInt32(&pendencias, 1)
		if r.Header.Get("Authorization") == "Bearer tok-1" {
			return jsonResponse(http.StatusUnauthorized, map[string]string{}), nil
		}
		return jsonResponse(http.StatusOK, map[string]any{"resultado": []map[string]any{{"cnj": "a"}}}), nil
	}), nil)

	leads, err := client.LeadsByCNJ(context.Background(), "a")
	require.NoError(t, err)
	assert.Len(t, leads, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&logins))
	assert.Equal(t, int32(2), atomic.LoadInt32(&pendencias))
}

func TestAllLeadsFetchesEveryPage(t *testing.T) {
	var logins int32
	login := loginHandler(t, &logins, "tok")
	var mu sync.Mutex
	seen := map[string]bool{}
	client := newClient(context.Background(), testConfig(), "user@x", "pw", roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if r.URL.Path == "/prod/login" {
			return login(r), nil
		}
		page := r.URL.Query().Get("numero_pagina")
		mu.Lock()
		seen[page] = true
		mu.Unlock()
		if page == "3" {
			return jsonResponse(http.StatusInternalServerError, map[string]string{}), nil
		}
		return jsonResponse(http.StatusOK, map[string]any{
			"resultado":  []map[string]any{{"cnj": "p" + page, "escritorio_responsavel": " Escritorio " + page + " "}},
			"informacao": map[string]any{"total_paginas": 4, "quantidade_itens": 4},
		}), nil
	}), nil)

	leads, err := client.AllLeads(context.Background())
	require.NoError(t, err)
	require.Len(t, leads, 3)
	assert.Equal(t, "p1", leads[0].CNJ)
	assert.Equal(t, "Escritorio 1", leads[0].EscritorioResponsavel)
	assert.Equal(t, "p2", leads[1].CNJ)
	assert.Equal(t, "p4", leads[2].CNJ)
	assert.Len(t, seen, 4)
}

func TestDecodePageStringBody(t *testing.T) {
	raw := `{"body":"{\"resultado\":[{\"cnj\":\"c1\"}],\"informacao\":{\"total_paginas\":1}}"}`
	page, err := decodePage([]byte(raw))
	require.NoError(t, err)
	require.Len(t, page.Leads, 1)
	assert.Equal(t, "c1", page.Leads[0].CNJ)
	assert.Equal(t, 1, page.TotalPages)
}
