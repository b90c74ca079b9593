package email

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/keighl/postmark"
)

// Sender delivers one HTML message.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SMTPSender talks plain SMTP, typically to a local relay such as MailHog.
type SMTPSender struct {
	host     string
	port     string
	from     string
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(host, port, from string) *SMTPSender {
	return &SMTPSender{host: host, port: port, from: from, sendMail: smtp.SendMail}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, subject, htmlBody)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	return s.sendMail(addr, nil, s.from, []string{to}, []byte(msg))
}

type postmarkClient interface {
	SendEmail(email postmark.Email) (postmark.EmailResponse, error)
}

// PostmarkSender sends through the Postmark API.
type PostmarkSender struct {
	client postmarkClient
	from   string
}

func NewPostmarkSender(serverToken, from string) *PostmarkSender {
	return &PostmarkSender{client: postmark.NewClient(serverToken, ""), from: from}
}

func (s *PostmarkSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.client.SendEmail(postmark.Email{
		From:     s.from,
		To:       to,
		Subject:  subject,
		HtmlBody: htmlBody,
		Tag:      "order-notification",
	})
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// Service renders and sends the customer notifications.
type Service struct {
	sender Sender
}

func NewService(sender Sender) *Service {
	return &Service{sender: sender}
}

// SendOrderConfirmation mails the receipt for a placement.
func (s *Service) SendOrderConfirmation(ctx context.Context, to string, items []OrderItem) error {
	subject := fmt.Sprintf("Order confirmation: %d item(s) received", len(items))
	return s.sender.Send(ctx, to, subject, BuildOrderConfirmationBody(items))
}

// SendOutForDelivery tells the customer their orders are in transit.
func (s *Service) SendOutForDelivery(ctx context.Context, to string, orderIDs []int64) error {
	subject := "Your groceries are on their way"
	return s.sender.Send(ctx, to, subject, BuildOutForDeliveryBody(orderIDs))
}
