package notification

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPProvider struct {
	cfg Config
}

func NewSMTP(cfg Config) *SMTPProvider {
	return &SMTPProvider{cfg: cfg}
}

func (p *SMTPProvider) SendBookingConfirmation(ctx context.Context, confirmation BookingConfirmation) error {
	subject := "Your booking is confirmed"
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>Your appointment on %s from %s to %s is booked.</p><p>Services: %s</p><p>Total: %s</p>",
		confirmation.RecipientName,
		confirmation.StartTime.Format("Monday, 2 January 2006"),
		confirmation.StartTime.Format("15:04"),
		confirmation.EndTime.Format("15:04"),
		strings.Join(confirmation.ServiceNames, ", "),
		formatAmount(confirmation.TotalCents, confirmation.Currency),
	)
	return p.send(ctx, confirmation.RecipientEmail, subject, body)
}

func (p *SMTPProvider) SendPaymentReceipt(ctx context.Context, receipt PaymentReceipt) error {
	subject := "Payment received"
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>We received your payment of %s on %s. Thank you!</p>",
		receipt.RecipientName,
		formatAmount(receipt.AmountCents, receipt.Currency),
		receipt.PaidAt.Format("2 January 2006 15:04"),
	)
	return p.send(ctx, receipt.RecipientEmail, subject, body)
}

func (p *SMTPProvider) send(_ context.Context, to string, subject string, htmlBody string) error {
	auth := smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)

	mime := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n"
	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\n%s\r\n%s", to, subject, mime, htmlBody))

	return smtp.SendMail(addr, auth, p.cfg.From, []string{to}, msg)
}

func formatAmount(cents int64, currency string) string {
	return fmt.Sprintf("%.2f %s", float64(cents)/100, strings.ToUpper(currency))
}
