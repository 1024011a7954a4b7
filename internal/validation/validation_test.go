package validation

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"premerge/internal/errors"
)

func TestValidateAnalyzeRequest(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "path only", body: `{"path":"a.go"}`},
		{name: "with branches and content", body: `{"path":"a.go","branches":["main"],"content":"x"}`},
		{name: "malformed", body: `{`, wantErr: true},
		{name: "missing path", body: `{"branches":["main"]}`, wantErr: true},
		{name: "blank branch", body: `{"path":"a.go","branches":[" "]}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/analyze", strings.NewReader(tt.body))
			got, err := ValidateAnalyzeRequest(req)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "a.go", got.Path)
		})
	}
}

func TestValidateDocumentEvent(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "edit with content", body: `{"path":"a.go","event":"edit","content":"x"}`},
		{name: "save without content", body: `{"path":"a.go","event":"save"}`},
		{name: "close", body: `{"path":"a.go","event":"close"}`},
		{name: "edit without content", body: `{"path":"a.go","event":"edit"}`, wantErr: true},
		{name: "unknown event", body: `{"path":"a.go","event":"rename"}`, wantErr: true},
		{name: "missing path", body: `{"event":"save"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/documents", strings.NewReader(tt.body))
			_, err := ValidateDocumentEvent(req)
			if tt.wantErr {
				assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
