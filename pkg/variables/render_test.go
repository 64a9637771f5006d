package variables

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderer_Render(t *testing.T) {
	data := map[string]any{
		"order": map[string]any{
			"number": "1042",
			"total":  59.9,
			"shipping": map[string]any{
				"city": "Rotterdam",
			},
		},
		"customer": map[string]any{
			"first_name": "Sam",
		},
	}

	renderer := NewRenderer(ContextResolver(data))

	testCases := []struct {
		name     string
		template string
		want     string
	}{
		{
			name:     "single token",
			template: "Order {{order.number}} confirmed",
			want:     "Order 1042 confirmed",
		},
		{
			name:     "multiple tokens",
			template: "Hi {{customer.first_name}}, order {{order.number}} ships to {{order.shipping.city}}",
			want:     "Hi Sam, order 1042 ships to Rotterdam",
		},
		{
			name:     "unresolvable token renders empty",
			template: "Total: {{order.discount}}",
			want:     "Total: ",
		},
		{
			name:     "malformed token renders empty",
			template: "Hello {{nodothere}}!",
			want:     "Hello !",
		},
		{
			name:     "excluded token renders empty here",
			template: "{{unsubscribe_url}}",
			want:     "",
		},
		{
			name:     "no tokens",
			template: "Plain text",
			want:     "Plain text",
		},
		{
			name:     "unclosed token is left as is",
			template: "broken {{order.number",
			want:     "broken {{order.number",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, renderer.Render(tc.template))
		})
	}
}

func TestRenderer_RenderSettings(t *testing.T) {
	data := map[string]any{
		"order": map[string]any{"number": "77"},
	}

	renderer := NewRenderer(ContextResolver(data))

	settings := map[string]string{
		"subject":  "Your order {{order.number}}",
		"template": "order-confirmation",
	}

	rendered := renderer.RenderSettings(settings)

	assert.Equal(t, "Your order 77", rendered["subject"])
	assert.Equal(t, "order-confirmation", rendered["template"])

	// Original map is untouched.
	assert.Equal(t, "Your order {{order.number}}", settings["subject"])

	assert.Nil(t, renderer.RenderSettings(nil))
}
