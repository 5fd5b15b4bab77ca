package mailer

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"time"

	gomail "gopkg.in/mail.v2"
)

type SMTPClient struct {
	fromEmail string
	send      func(m ...*gomail.Message) error
	backoff   time.Duration
}

func NewSMTPClient(host string, port int, username, password, fromEmail string) (*SMTPClient, error) {
	if host == "" {
		return nil, errors.New("smtp host is required")
	}
	if fromEmail == "" {
		return nil, errors.New("from email is required")
	}

	d := gomail.NewDialer(host, port, username, password)
	d.Timeout = 10 * time.Second

	return &SMTPClient{
		fromEmail: fromEmail,
		send:      d.DialAndSend,
		backoff:   time.Second,
	}, nil
}

// Send renders templateFile and delivers it, retrying with linear backoff.
// The returned int mirrors an SMTP status: 250 on success.
func (c *SMTPClient) Send(templateFile, username, email string, data any) (int, error) {
	subject, body, err := render(templateFile, data)
	if err != nil {
		return -1, err
	}

	message := gomail.NewMessage()
	message.SetAddressHeader("From", c.fromEmail, FromName)
	message.SetAddressHeader("To", email, username)
	message.SetHeader("Subject", subject)
	message.SetBody("text/html", body)

	var retryErr error
	for i := 0; i < maxRetires; i++ {
		retryErr = c.send(message)
		if retryErr == nil {
			return 250, nil
		}
		if i < maxRetires-1 {
			time.Sleep(c.backoff * time.Duration(i+1))
		}
	}

	return -1, fmt.Errorf("failed to send email after %d attempts, error: %v", maxRetires, retryErr)
}

func render(templateFile string, data any) (string, string, error) {
	tmpl, err := template.ParseFS(FS, "templates/"+templateFile)
	if err != nil {
		return "", "", err
	}

	subject := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(subject, "subject", data); err != nil {
		return "", "", err
	}

	body := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(body, "body", data); err != nil {
		return "", "", err
	}

	return subject.String(), body.String(), nil
}
