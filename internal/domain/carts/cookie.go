package carts

import (
	"encoding/json"
	"errors"
	"io"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	CookieName     = "cart"
	MaxCookieBytes = 4096
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeCookie turns the client-held cart cookie into a Cart. The cookie is a
// URL-escaped JSON array of {productId, quantity}. Anything that does not match
// that schema decodes to an empty cart; it is never an error.
func DecodeCookie(raw string) *Cart {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > MaxCookieBytes {
		return &Cart{}
	}

	text, err := url.PathUnescape(raw)
	if err != nil {
		return &Cart{}
	}

	items, err := decodeItems(text)
	if err != nil {
		return &Cart{}
	}
	return &Cart{Items: items}
}

func decodeItems(text string) ([]CartItem, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()

	var items []CartItem
	if err := dec.Decode(&items); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after cart")
	}
	if len(items) > MaxItems {
		return nil, ErrCartTooLarge
	}

	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if err := validate.Struct(it); err != nil {
			return nil, err
		}
		if _, dup := seen[it.ProductID]; dup {
			return nil, errors.New("duplicate product in cart")
		}
		seen[it.ProductID] = struct{}{}
	}
	return items, nil
}

// EncodeCookie serializes the cart for the client. An empty cart encodes to
// an escaped "[]".
func EncodeCookie(c *Cart) (string, error) {
	items := []CartItem{}
	if c != nil && len(c.Items) > 0 {
		items = c.Items
	}

	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}

	out := url.PathEscape(string(b))
	if len(out) > MaxCookieBytes {
		return "", ErrCartTooLarge
	}
	return out, nil
}
