package main

import (
	"net/http"
	"time"
)

func (app *application) cartCookie(r *http.Request) string {
	c, err := r.Cookie(app.config.cookie.name)
	if err != nil {
		return ""
	}
	return c.Value
}

func (app *application) setCartCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     app.config.cookie.name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(app.config.cookie.maxAge / time.Second),
		HttpOnly: true,
		Secure:   app.config.cookie.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (app *application) expireCartCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     app.config.cookie.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   app.config.cookie.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
