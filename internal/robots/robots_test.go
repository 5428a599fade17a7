package robots

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestFetch_Disallow(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
			return
		}
		http.NotFound(w, r)
	}))
	defer ts.Close()

	rules := Fetch(context.Background(), ts.Client(), ts.URL+"/start", "test", quietLogger())
	require.NotNil(t, rules)
	assert.False(t, rules.Allowed(ts.URL+"/private/page", "*"))
	assert.True(t, rules.Allowed(ts.URL+"/public/page", "*"))
	assert.True(t, rules.Allowed(ts.URL, "*"))
}

func TestFetch_MissingIsPermissive(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	rules := Fetch(context.Background(), ts.Client(), ts.URL, "test", quietLogger())
	assert.Nil(t, rules)
	assert.True(t, rules.Allowed(ts.URL+"/anything", "*"))
}

func TestFetch_ServerErrorIsPermissive(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	rules := Fetch(context.Background(), ts.Client(), ts.URL, "test", quietLogger())
	assert.True(t, rules.Allowed(ts.URL+"/private/x", "*"))
}

func TestFetch_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	addr := ts.URL
	ts.Close()

	rules := Fetch(context.Background(), http.DefaultClient, addr, "test", quietLogger())
	assert.Nil(t, rules)
}

func TestParse(t *testing.T) {
	rules, err := Parse([]byte("User-agent: *\nDisallow: /admin\n"))
	require.NoError(t, err)
	assert.False(t, rules.Allowed("https://ex.com/admin/users", "*"))
	assert.True(t, rules.Allowed("https://ex.com/docs", "*"))
}
