package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/Darkness4/finch/finch"
	"github.com/Darkness4/finch/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayApply(t *testing.T) {
	newUpstream := func(body string) *httptest.Server {
		return httptest.NewServer(
			http.HandlerFunc(func(res http.ResponseWriter, _ *http.Request) {
				_, _ = res.Write([]byte(body))
			}),
		)
	}
	a := newUpstream(`{"data":{"from":"a"}}`)
	defer a.Close()
	b := newUpstream(`{"data":{"from":"b"}}`)
	defer b.Close()
	doc := graphql.MustParse(`query from { from }`)

	r, err := NewRelay(&Config{Upstream: UpstreamConfig{URL: a.URL}})
	require.NoError(t, err)
	resp, err := r.HandleMessage(context.Background(), finch.NewEnvelope(doc, nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":"a"}`, string(resp.Data))

	require.NoError(t, r.Apply(&Config{Upstream: UpstreamConfig{URL: b.URL}}))
	resp, err = r.HandleMessage(context.Background(), finch.NewEnvelope(doc, nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":"b"}`, string(resp.Data))

	env := finch.NewEnvelope(doc, nil)
	env.Type = "OTHER"
	_, err = r.HandleMessage(context.Background(), env)
	assert.ErrorIs(t, err, finch.ErrUnknownMessageKey)
}

func TestRelayTokenFile(t *testing.T) {
	var auth string
	server := httptest.NewServer(
		http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
			auth = req.Header.Get("Authorization")
			_, _ = res.Write([]byte(`{"data":{}}`))
		}),
	)
	defer server.Close()
	tokenFile := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(tokenFile, []byte("abc\n"), 0o600))

	r, err := NewRelay(&Config{Upstream: UpstreamConfig{URL: server.URL, TokenFile: tokenFile}})
	require.NoError(t, err)
	_, err = r.HandleMessage(
		context.Background(),
		finch.NewEnvelope(graphql.MustParse(`{ bar }`), nil),
	)
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", auth)

	// A broken token keeps the previous configuration.
	err = r.Apply(&Config{Upstream: UpstreamConfig{
		URL:       "http://unused",
		TokenFile: filepath.Join(t.TempDir(), "missing"),
	}})
	assert.Error(t, err)
	_, err = r.HandleMessage(
		context.Background(),
		finch.NewEnvelope(graphql.MustParse(`{ bar }`), nil),
	)
	assert.NoError(t, err)
}
