package carts

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCookie_ValidCart(t *testing.T) {
	raw := url.PathEscape(`[{"productId":"Y","quantity":2}]`)

	c := DecodeCookie(raw)
	assert.Equal(t, []CartItem{{ProductID: "Y", Quantity: 2}}, c.Items)
	assert.Equal(t, 2, ItemCount(c))
}

func TestDecodeCookie_UnescapedJSONAccepted(t *testing.T) {
	c := DecodeCookie(`[{"productId":"Y","quantity":2}]`)
	assert.Equal(t, []CartItem{{ProductID: "Y", Quantity: 2}}, c.Items)
}

func TestDecodeCookie_MalformedIsEmpty(t *testing.T) {
	cases := map[string]string{
		"missing":         "",
		"truncated":       `[{"productId":"Y","quan`,
		"not an array":    `{"productId":"Y","quantity":2}`,
		"zero quantity":   `[{"productId":"Y","quantity":0}]`,
		"negative":        `[{"productId":"Y","quantity":-3}]`,
		"too many":        `[{"productId":"Y","quantity":100}]`,
		"empty product":   `[{"productId":"","quantity":1}]`,
		"unknown field":   `[{"productId":"Y","quantity":1,"price":10}]`,
		"wrong type":      `[{"productId":7,"quantity":"2"}]`,
		"duplicate":       `[{"productId":"Y","quantity":1},{"productId":"Y","quantity":1}]`,
		"trailing data":   `[{"productId":"Y","quantity":1}] []`,
		"bad escape":      `%ZZ`,
		"oversized value": strings.Repeat("a", MaxCookieBytes+1),
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			c := DecodeCookie(raw)
			require.NotNil(t, c)
			assert.Empty(t, c.Items)
			assert.Equal(t, 0, ItemCount(c))
		})
	}
}

func TestEncodeCookie_RoundTrip(t *testing.T) {
	in := &Cart{Items: []CartItem{{ProductID: "A", Quantity: 2}, {ProductID: "B c/d", Quantity: 1}}}

	enc, err := EncodeCookie(in)
	require.NoError(t, err)
	assert.NotContains(t, enc, `"`)
	assert.NotContains(t, enc, ";")

	out := DecodeCookie(enc)
	assert.Equal(t, in.Items, out.Items)
}

func TestEncodeCookie_EmptyCart(t *testing.T) {
	enc, err := EncodeCookie(&Cart{})
	require.NoError(t, err)

	plain, err := url.PathUnescape(enc)
	require.NoError(t, err)
	assert.Equal(t, "[]", plain)
}
