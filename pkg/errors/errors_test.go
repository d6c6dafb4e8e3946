package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error", Invalidf(ErrInvalidInput, "bad"), http.StatusBadRequest},
		{"wrapped unknown annotator", fmt.Errorf("resolve: %w", ErrUnknownAnnotator), http.StatusBadRequest},
		{"pattern syntax", ErrPatternSyntax, http.StatusBadRequest},
		{"timeout", ErrTimeout, http.StatusInternalServerError},
		{"missing layer", Failf(ErrMissingLayer, "no pos"), http.StatusInternalServerError},
		{"plain", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestDiagnosticIsSingleLine(t *testing.T) {
	assert.Equal(t, "unknown annotator \"foo\"", Diagnostic(Invalidf(ErrUnknownAnnotator, "unknown annotator %q", "foo")))
	assert.Equal(t, "missing annotation layer: document has no pos layer", Diagnostic(Failf(ErrMissingLayer, "document has no\npos layer")))
	assert.Equal(t, "", Diagnostic(nil))
	assert.True(t, IsClientError(Invalidf(ErrMissingPattern, "Missing required parameter 'pattern'")))
	assert.False(t, IsClientError(ErrTimeout))
}
