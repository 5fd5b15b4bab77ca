package main

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"strconv"
	"time"

	"tosho/internal/auth"
	"tosho/internal/checkout"
	"tosho/internal/domain/finalization"

	"github.com/go-chi/chi/v5"
)

var finalizeOutcomes = expvar.NewMap("checkout_finalize_outcomes")

type finalizePayload struct {
	SessionID string `json:"session_id" validate:"max=255"`
}

// FinalizeCheckout godoc
//
//	@Summary		Finalize checkout
//	@Description	Verifies the payment session and records its purchases exactly once. Safe to repeat.
//	@Tags			Checkout
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		finalizePayload	true	"Payment session"
//	@Success		200		{object}	checkout.Result	"Completed, or nothing to do"
//	@Failure		400		{object}	error			"Bad Request"
//	@Failure		402		{object}	error			"Payment session not paid or invalid"
//	@Failure		409		{object}	error			"Finalization in progress, retry later"
//	@Failure		500		{object}	error			"Purchases could not be recorded"
//	@Failure		503		{object}	error			"Payment provider unavailable"
//	@Security		ApiKeyAuth
//	@Router			/checkout/finalize [post]
func (app *application) finalizeCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	var in finalizePayload
	if err := readJSON(w, r, &in); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(in); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	app.finalize(w, r, in.SessionID)
}

// CheckoutSuccess godoc
//
//	@Summary		Payment provider return
//	@Description	Same as finalize, for the redirect the payment provider sends the buyer back to.
//	@Tags			Checkout
//	@Produce		json
//	@Param			session_id	query		string			false	"Payment session id"
//	@Success		200			{object}	checkout.Result	"Completed, or nothing to do"
//	@Failure		402			{object}	error			"Payment session not paid or invalid"
//	@Failure		409			{object}	error			"Finalization in progress, retry later"
//	@Failure		503			{object}	error			"Payment provider unavailable"
//	@Security		ApiKeyAuth
//	@Router			/checkout/success [get]
func (app *application) checkoutSuccessHandler(w http.ResponseWriter, r *http.Request) {
	app.finalize(w, r, r.URL.Query().Get("session_id"))
}

func (app *application) finalize(w http.ResponseWriter, r *http.Request, sessionID string) {
	// Covers waiting on a concurrent attempt; the attempt itself is detached.
	ctx, cancel := context.WithTimeout(r.Context(), app.config.checkout.waitTimeout+5*time.Second)
	defer cancel()

	res, err := app.checkout.Finalize(ctx, sessionID, auth.FromContext(ctx))
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	finalizeOutcomes.Add(string(res.Outcome), 1)

	if res.ClearCartCookie {
		app.expireCartCookie(w)
	}

	status := http.StatusOK
	switch res.Outcome {
	case checkout.OutcomeFailed:
		status = http.StatusPaymentRequired
		if errors.Is(res.Err, checkout.ErrLedgerWriteFailure) {
			app.logger.Errorw("checkout finalization needs attention", "session_id", res.SessionID, "error", res.Err)
			status = http.StatusInternalServerError
		}
	case checkout.OutcomeRetry:
		status = http.StatusServiceUnavailable
		if errors.Is(res.Err, checkout.ErrFinalizationInProgress) {
			status = http.StatusConflict
		}
		w.Header().Set("Retry-After", strconv.Itoa(1))
	}

	app.jsonResponse(w, status, res)
}

// FinalizationStatus godoc
//
//	@Summary		Finalization status
//	@Description	The checkout-completion view of a session: processing, success or error.
//	@Tags			Checkout
//	@Produce		json
//	@Param			sessionID	path		string				true	"Payment session id"
//	@Success		200			{object}	checkout.StatusView	"Status view"
//	@Failure		404			{object}	error				"Session never finalized"
//	@Failure		500			{object}	error				"Internal Server Error"
//	@Router			/checkout/finalizations/{sessionID} [get]
func (app *application) finalizationStatusHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	view, err := app.checkout.Status(ctx, chi.URLParam(r, "sessionID"))
	if err != nil {
		if errors.Is(err, finalization.ErrNotFound) {
			app.notFoundResponse(w, r, err)
			return
		}
		app.internalServerError(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, view)
}
