package main

import (
	"context"
	"net/http"
	"time"

	"tosho/internal/auth"
	"tosho/internal/domain/purchases"
	"tosho/internal/params"
)

// ListPurchases godoc
//
//	@Summary		List my purchases
//	@Description	Returns a paginated list of purchase records for the authenticated user, newest first.
//	@Tags			Purchases
//	@Produce		json
//	@Param			page	query		int				false	"Page number (default: 1)"				minimum(1)
//	@Param			limit	query		int				false	"Items per page (default: 20, max: 100)"	minimum(1)	maximum(100)
//	@Success		200		{object}	map[string]any	"purchases list + pagination"
//	@Failure		401		{object}	error			"Unauthorized"
//	@Failure		500		{object}	error			"Internal Server Error"
//	@Security		ApiKeyAuth
//	@Router			/purchases [get]
func (app *application) listPurchasesHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id := auth.FromContext(ctx)
	p := params.ParsePagination(r.URL.Query())

	records, total, err := app.purchases.ListByUser(ctx, id.UserID, p.Limit, p.Offset)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	if records == nil {
		records = []purchases.PurchaseRecord{}
	}
	p.ComputeMeta(total)

	app.jsonResponse(w, http.StatusOK, map[string]any{
		"purchases":  records,
		"pagination": p,
	})
}
