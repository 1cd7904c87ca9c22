package notify

import (
	"context"
	"fmt"
	"html"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const emailSubject = "RentGuru notification"

type mailSender func(ctx context.Context, m *mail.SGMailV3) (status int, body string, err error)

// Email sends notifications through SendGrid to the user's address.
type Email struct {
	Directory Directory
	FromEmail string
	FromName  string
	BaseURL   string
	send      mailSender
}

func NewEmail(apiKey, fromEmail, baseURL string, dir Directory) *Email {
	client := sendgrid.NewSendClient(apiKey)
	return &Email{
		Directory: dir,
		FromEmail: fromEmail,
		FromName:  "RentGuru",
		BaseURL:   baseURL,
		send: func(ctx context.Context, m *mail.SGMailV3) (int, string, error) {
			res, err := client.SendWithContext(ctx, m)
			if err != nil {
				return 0, "", err
			}
			return res.StatusCode, res.Body, nil
		},
	}
}

func (e *Email) Notify(ctx context.Context, userID, text, link string) error {
	contact, ok, err := e.Directory.Contact(ctx, userID)
	if err != nil {
		return err
	}
	if !ok || contact.Email == "" {
		return nil
	}
	url := absolute(e.BaseURL, link)
	plain := text
	htmlBody := "<p>" + html.EscapeString(text) + "</p>"
	if url != "" {
		plain += "\n\n" + url
		htmlBody += fmt.Sprintf(`<p><a href="%s">Open</a></p>`, html.EscapeString(url))
	}
	msg := mail.NewSingleEmail(
		mail.NewEmail(e.FromName, e.FromEmail),
		emailSubject,
		mail.NewEmail(contact.Name, contact.Email),
		plain,
		htmlBody,
	)
	status, body, err := e.send(ctx, msg)
	if err != nil {
		return fmt.Errorf("notify: send email: %w", err)
	}
	if status >= 400 {
		return fmt.Errorf("notify: sendgrid status %d: %s", status, body)
	}
	return nil
}
