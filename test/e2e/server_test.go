// Package e2e contains end-to-end tests that drive a running annotation
// server over HTTP. Each test skips when the server is not reachable.
//
// Start the server, then run:
//
//	E2E_SERVER_URL=http://localhost:9000 go test -v -timeout=120s ./test/e2e/...
package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var client = &http.Client{Timeout: 10 * time.Second}

func serverURL() string {
	if v := os.Getenv("E2E_SERVER_URL"); v != "" {
		return strings.TrimRight(v, "/")
	}
	return "http://localhost:9000"
}

// post sends body to path and returns the status and response body,
// skipping the test if the server cannot be reached.
func post(t *testing.T, path, body string) (int, string) {
	t.Helper()
	resp, err := client.Post(serverURL()+path, "text/plain; charset=utf-8", strings.NewReader(body))
	if err != nil {
		t.Skipf("server unavailable: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestServerHealth(t *testing.T) {
	for _, path := range []string{"/ping", "/health/live", "/health/ready"} {
		t.Run(path, func(t *testing.T) {
			resp, err := client.Get(serverURL() + path)
			if err != nil {
				t.Skipf("server unavailable: %v", err)
			}
			defer resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		})
	}
}

func TestAnnotateJSON(t *testing.T) {
	props := url.QueryEscape(`{"annotators":"tokenize,ssplit,pos,lemma","outputFormat":"json"}`)
	status, body := post(t, "/?properties="+props, "The cats sat. They slept.")
	require.Equal(t, http.StatusOK, status, body)

	var doc struct {
		Sentences []struct {
			Tokens []struct {
				Word  string `json:"word"`
				Lemma string `json:"lemma"`
			} `json:"tokens"`
		} `json:"sentences"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &doc))
	require.Len(t, doc.Sentences, 2)
	assert.Equal(t, "cats", doc.Sentences[0].Tokens[1].Word)
	assert.Equal(t, "cat", doc.Sentences[0].Tokens[1].Lemma)
}

func TestTokensRegexAndSemgrex(t *testing.T) {
	status, body := post(t, "/tokensregex?pattern="+url.QueryEscape("[pos:/NN.*/]"), "The cat sat.")
	require.Equal(t, http.StatusOK, status, body)
	assert.Contains(t, body, `"text":"cat"`)

	status, body = post(t, "/semgrex?pattern="+url.QueryEscape("{pos:/VB.*/} >nsubj {}=subj"), "The cat sat.")
	require.Equal(t, http.StatusOK, status, body)
	assert.Contains(t, body, `"$subj"`)
}

func TestInvalidRequestsAreClientErrors(t *testing.T) {
	status, body := post(t, "/?properties="+url.QueryEscape(`{"annotators":"sentiment"}`), "Hello.")
	assert.Equal(t, http.StatusBadRequest, status, body)

	status, body = post(t, "/tokensregex", "Hello.")
	assert.Equal(t, http.StatusBadRequest, status, body)
}

func TestWrongShutdownKeyIsRefused(t *testing.T) {
	resp, err := client.Get(serverURL() + "/shutdown?key=not-the-key")
	if err != nil {
		t.Skipf("server unavailable: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Invalid shutdown key\n", string(body))
}
