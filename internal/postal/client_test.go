package postal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cep, err := Normalize("01001-000")
	require.NoError(t, err)
	assert.Equal(t, "01001000", cep)

	for _, raw := range []string{"", "0100100", "010010000", "abc"} {
		_, err := Normalize(raw)
		assert.ErrorIs(t, err, ErrInvalidCEP, raw)
	}
}

func TestLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws/01001000/json/", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"cep": "01001-000",
			"logradouro": "Praca da Se",
			"complemento": "lado impar",
			"bairro": "Se",
			"localidade": "Sao Paulo",
			"uf": "SP"
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/ws/", time.Second)
	addr, err := c.Lookup(context.Background(), "01001-000")
	require.NoError(t, err)
	assert.Equal(t, Address{
		CEP:          "01001-000",
		Street:       "Praca da Se",
		Neighborhood: "Se",
		City:         "Sao Paulo",
		State:        "SP",
		Complement:   "lado impar",
	}, addr)
}

func TestLookupNotFound(t *testing.T) {
	for _, body := range []string{`{"erro": true}`, `{"erro": "true"}`} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))

		_, err := NewClient(srv.URL, time.Second).Lookup(context.Background(), "99999999")
		assert.ErrorIs(t, err, ErrCEPNotFound, body)
		srv.Close()
	}
}

func TestLookupRejectsInvalidWithoutCalling(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Lookup(context.Background(), "123")
	assert.ErrorIs(t, err, ErrInvalidCEP)
	assert.Zero(t, calls.Load())
}

func TestLookupUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Lookup(context.Background(), "01001000")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCEPNotFound)
}
