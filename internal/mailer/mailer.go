package mailer

import "embed"

const (
	FromName                = "Tosho"
	maxRetires              = 3
	PurchaseReceiptTemplate = "purchase_receipt.tmpl"
)

//go:embed "templates"
var FS embed.FS

type Client interface {
	Send(templateFile, username, email string, data any) (int, error)
}
