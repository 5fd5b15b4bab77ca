package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"tosho/internal/auth"
	"tosho/internal/domain/carts"

	"github.com/go-chi/chi/v5"
)

type cartView struct {
	Items         []carts.CartItem `json:"items"`
	Count         int              `json:"count"`
	Authenticated bool             `json:"authenticated"`
	Version       int64            `json:"version,omitempty"`
}

func newCartView(c *carts.Cart, id *auth.Identity) cartView {
	v := cartView{
		Items:         []carts.CartItem{},
		Count:         carts.ItemCount(c),
		Authenticated: id != nil,
	}
	if c != nil {
		if len(c.Items) > 0 {
			v.Items = c.Items
		}
		v.Version = c.Version
	}
	return v
}

// GetCart godoc
//
//	@Summary		Get cart
//	@Description	Returns the server cart for a signed-in user, or the cookie cart otherwise. A malformed cookie reads as an empty cart.
//	@Tags			Cart
//	@Produce		json
//	@Success		200	{object}	cartView	"Cart retrieved successfully"
//	@Failure		401	{object}	error		"Invalid bearer token"
//	@Failure		500	{object}	error		"Internal Server Error"
//	@Security		ApiKeyAuth
//	@Router			/cart [get]
func (app *application) getCartHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id := auth.FromContext(ctx)
	cart, err := app.carts.Read(ctx, id, app.cartCookie(r))
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, newCartView(cart, id))
}

// CartCount godoc
//
//	@Summary		Cart item count
//	@Description	Sum of quantities across the cart lines, for the header badge.
//	@Tags			Cart
//	@Produce		json
//	@Success		200	{object}	map[string]int	"count"
//	@Failure		500	{object}	error			"Internal Server Error"
//	@Security		ApiKeyAuth
//	@Router			/cart/count [get]
func (app *application) cartCountHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	cart, err := app.carts.Read(ctx, auth.FromContext(ctx), app.cartCookie(r))
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, map[string]int{"count": carts.ItemCount(cart)})
}

type addCartItemPayload struct {
	ProductID string `json:"product_id" validate:"required,max=64"`
	Quantity  int    `json:"quantity" validate:"required,min=1,max=99"`
}

// AddCartItem godoc
//
//	@Summary		Add item to cart
//	@Description	Adds quantity to the product line, creating it when absent.
//	@Tags			Cart
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		addCartItemPayload	true	"Product and quantity"
//	@Success		201		{object}	cartView			"Updated cart"
//	@Failure		400		{object}	error				"Bad Request"
//	@Failure		500		{object}	error				"Internal Server Error"
//	@Security		ApiKeyAuth
//	@Router			/cart/items [post]
func (app *application) addCartItemHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var in addCartItemPayload
	if err := readJSON(w, r, &in); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(in); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	id := auth.FromContext(ctx)
	res, err := app.carts.AddItem(ctx, id, app.cartCookie(r), in.ProductID, in.Quantity)
	if err != nil {
		app.cartErrorResponse(w, r, err)
		return
	}

	app.writeCartResult(w, http.StatusCreated, res, id)
}

type updateCartItemPayload struct {
	Quantity *int `json:"quantity" validate:"required,max=99"`
}

// UpdateCartItem godoc
//
//	@Summary		Set item quantity
//	@Description	Replaces the quantity of a cart line. A quantity of zero or less removes the line.
//	@Tags			Cart
//	@Accept			json
//	@Produce		json
//	@Param			productID	path		string					true	"Product ID"
//	@Param			payload		body		updateCartItemPayload	true	"New quantity"
//	@Success		200			{object}	cartView				"Updated cart"
//	@Failure		400			{object}	error					"Bad Request"
//	@Failure		500			{object}	error					"Internal Server Error"
//	@Security		ApiKeyAuth
//	@Router			/cart/items/{productID} [put]
func (app *application) updateCartItemHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var in updateCartItemPayload
	if err := readJSON(w, r, &in); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(in); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	id := auth.FromContext(ctx)
	res, err := app.carts.SetQuantity(ctx, id, app.cartCookie(r), chi.URLParam(r, "productID"), *in.Quantity)
	if err != nil {
		app.cartErrorResponse(w, r, err)
		return
	}

	app.writeCartResult(w, http.StatusOK, res, id)
}

// RemoveCartItem godoc
//
//	@Summary		Remove item from cart
//	@Tags			Cart
//	@Produce		json
//	@Param			productID	path		string		true	"Product ID"
//	@Success		200			{object}	cartView	"Updated cart"
//	@Failure		400			{object}	error		"Bad Request"
//	@Failure		500			{object}	error		"Internal Server Error"
//	@Security		ApiKeyAuth
//	@Router			/cart/items/{productID} [delete]
func (app *application) removeCartItemHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id := auth.FromContext(ctx)
	res, err := app.carts.RemoveItem(ctx, id, app.cartCookie(r), chi.URLParam(r, "productID"))
	if err != nil {
		app.cartErrorResponse(w, r, err)
		return
	}

	app.writeCartResult(w, http.StatusOK, res, id)
}

// ClearCart godoc
//
//	@Summary		Clear cart
//	@Tags			Cart
//	@Produce		json
//	@Success		200	{object}	cartView	"Empty cart"
//	@Failure		500	{object}	error		"Internal Server Error"
//	@Security		ApiKeyAuth
//	@Router			/cart [delete]
func (app *application) clearCartHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id := auth.FromContext(ctx)
	res, err := app.carts.Clear(ctx, id, app.cartCookie(r))
	if err != nil {
		app.cartErrorResponse(w, r, err)
		return
	}

	app.writeCartResult(w, http.StatusOK, res, id)
}

// MergeCart godoc
//
//	@Summary		Merge cookie cart
//	@Description	Folds the anonymous cookie cart into the signed-in cart by summing quantities, then expires the cookie.
//	@Tags			Cart
//	@Produce		json
//	@Success		200	{object}	cartView	"Merged cart"
//	@Failure		401	{object}	error		"Unauthorized"
//	@Failure		500	{object}	error		"Internal Server Error"
//	@Security		ApiKeyAuth
//	@Router			/cart/merge [post]
func (app *application) mergeCartHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id := auth.FromContext(ctx)
	cart, err := app.carts.Merge(ctx, id, app.cartCookie(r))
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	app.expireCartCookie(w)
	app.jsonResponse(w, http.StatusOK, newCartView(cart, id))
}

func (app *application) writeCartResult(w http.ResponseWriter, status int, res *carts.Result, id *auth.Identity) {
	if res.Cookie != nil {
		app.setCartCookie(w, *res.Cookie)
	}
	app.jsonResponse(w, status, newCartView(res.Cart, id))
}

func (app *application) cartErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, carts.ErrInvalidQuantity),
		errors.Is(err, carts.ErrInvalidProduct),
		errors.Is(err, carts.ErrCartTooLarge):
		app.badRequestResponse(w, r, err)
	default:
		app.internalServerError(w, r, err)
	}
}
