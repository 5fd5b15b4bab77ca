package mailer

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "gopkg.in/mail.v2"
)

type receiptVars struct {
	StoreName string
	Username  string
	SessionID string
	Lines     []struct {
		ProductID string
		Quantity  int
		UnitPrice string
	}
	Total string
}

func testVars() receiptVars {
	v := receiptVars{StoreName: "Tosho", Username: "Ada", SessionID: "sess_1", Total: "USD 30.00"}
	v.Lines = append(v.Lines, struct {
		ProductID string
		Quantity  int
		UnitPrice string
	}{"X", 2, "USD 15.00"})
	return v
}

func TestRender_PurchaseReceipt(t *testing.T) {
	subject, body, err := render(PurchaseReceiptTemplate, testVars())
	require.NoError(t, err)

	assert.Equal(t, "Your Tosho order is confirmed", strings.TrimSpace(subject))
	assert.Contains(t, body, "sess_1")
	assert.Contains(t, body, "Hi Ada")
	assert.Contains(t, body, "USD 30.00")
}

func TestSMTPClient_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	c := &SMTPClient{
		fromEmail: "shop@example.com",
		send: func(m ...*gomail.Message) error {
			calls++
			if calls < 2 {
				return errors.New("421 try later")
			}
			assert.Equal(t, []string{"Your Tosho order is confirmed"}, m[0].GetHeader("Subject"))
			return nil
		},
	}

	status, err := c.Send(PurchaseReceiptTemplate, "Ada", "ada@example.com", testVars())
	require.NoError(t, err)
	assert.Equal(t, 250, status)
	assert.Equal(t, 2, calls)
}

func TestSMTPClient_GivesUp(t *testing.T) {
	calls := 0
	c := &SMTPClient{
		fromEmail: "shop@example.com",
		send: func(...*gomail.Message) error {
			calls++
			return errors.New("connection refused")
		},
	}

	_, err := c.Send(PurchaseReceiptTemplate, "Ada", "ada@example.com", testVars())
	assert.Error(t, err)
	assert.Equal(t, maxRetires, calls)
}

func TestNewSMTPClient_RequiresHost(t *testing.T) {
	_, err := NewSMTPClient("", 587, "", "", "shop@example.com")
	assert.Error(t, err)
}
