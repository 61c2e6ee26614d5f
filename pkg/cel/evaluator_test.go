package cel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"junction/pkg/models"
)

func TestNewEvaluator(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)
	assert.NotNil(t, eval)
}

func TestCompile(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		expr      string
		wantError bool
	}{
		{name: "prefix match", expr: `address.startsWith("27")`},
		{name: "regex", expr: `to.matches("^\\*120\\*.*#$")`},
		{name: "metadata lookup", expr: `has(transport_metadata.session_id)`},
		{name: "invalid syntax", expr: `invalid syntax here!!!`, wantError: true},
		{name: "undefined variable", expr: `payload.status == "x"`, wantError: true},
		{name: "non bool", expr: `to + from`, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eval.Compile(tt.expr)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	content := "balance please"
	msg := models.NewMessage("chan-1", "*120*1#", "+27831234567", &content)
	msg.TransportMetadata = map[string]interface{}{"network": "mtn"}

	tests := []struct {
		expr string
		want bool
	}{
		{expr: `address == "*120*1#"`, want: true},
		{expr: `from.startsWith("+27")`, want: true},
		{expr: `content.contains("balance")`, want: true},
		{expr: `transport_metadata.network == "vodacom"`, want: false},
		{expr: `session_event == ""`, want: true},
		{expr: `size(helper_metadata) == 0`, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			p, err := eval.Compile(tt.expr)
			require.NoError(t, err)
			got, err := p.Match(context.Background(), msg.ToAddr, msg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchRuntimeError(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	p, err := eval.Compile(`transport_metadata.missing == "x"`)
	require.NoError(t, err)

	_, err = p.Match(context.Background(), "", models.Message{})
	assert.Error(t, err)
}
