package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"net/url"
	"strings"
	"time"
)

// SMTPSender envia correos via SMTP.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string
	fromName string
	useTLS   bool
	baseURL  string
}

func NewSMTPSender(host string, port int, username, password, from, fromName string, useTLS bool, baseURL string) (*SMTPSender, error) {
	if strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("smtp from is required")
	}
	if port == 0 {
		port = 587
	}
	return &SMTPSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		fromName: fromName,
		useTLS:   useTLS,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}, nil
}

func (s *SMTPSender) SendVerification(_ context.Context, toEmail, token string, expiresAt time.Time) error {
	body := fmt.Sprintf(
		"Conferma il tuo indirizzo email aprendo questo link:\n%s/verify-email?token=%s\n\nIl link scade il %s UTC.\n",
		s.baseURL,
		url.QueryEscape(token),
		expiresAt.UTC().Format(time.RFC3339),
	)
	return s.send(toEmail, "Conferma il tuo indirizzo email", body)
}

func (s *SMTPSender) SendDeletionConfirmation(_ context.Context, toEmail, token string, expiresAt time.Time) error {
	body := fmt.Sprintf(
		"Abbiamo ricevuto una richiesta di cancellazione dell'account.\nPer confermare apri questo link:\n%s/account/delete/confirm?token=%s\n\nIl link scade il %s UTC. Se non sei stato tu, ignora questo messaggio.\n",
		s.baseURL,
		url.QueryEscape(token),
		expiresAt.UTC().Format(time.RFC3339),
	)
	return s.send(toEmail, "Conferma la cancellazione dell'account", body)
}

func (s *SMTPSender) SendFounderReceipt(_ context.Context, toEmail, firstName string) error {
	body := fmt.Sprintf("Ciao %s,\ngrazie per il tuo sostegno: ora sei un socio fondatore.\n", firstName)
	return s.send(toEmail, "Benvenuto tra i soci fondatori", body)
}

func (s *SMTPSender) send(toEmail, subject, body string) error {
	if strings.TrimSpace(toEmail) == "" {
		return fmt.Errorf("to email is required")
	}

	msg := buildMessage(s.from, s.fromName, toEmail, subject, body)
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	if s.useTLS {
		conn, err := tls.Dial("tcp", addr, &tls.Config{
			ServerName: s.host,
		})
		if err != nil {
			return err
		}
		defer conn.Close()

		client, err := smtp.NewClient(conn, s.host)
		if err != nil {
			return err
		}
		defer client.Quit()

		if auth != nil {
			if err := client.Auth(auth); err != nil {
				return err
			}
		}
		if err := client.Mail(s.from); err != nil {
			return err
		}
		if err := client.Rcpt(toEmail); err != nil {
			return err
		}
		writer, err := client.Data()
		if err != nil {
			return err
		}
		if _, err := writer.Write([]byte(msg)); err != nil {
			_ = writer.Close()
			return err
		}
		return writer.Close()
	}

	return smtp.SendMail(addr, auth, s.from, []string{toEmail}, []byte(msg))
}

func buildMessage(from, fromName, to, subject, body string) string {
	fromHeader := from
	if strings.TrimSpace(fromName) != "" {
		fromHeader = fmt.Sprintf("%s <%s>", fromName, from)
	}

	headers := []string{
		fmt.Sprintf("From: %s", fromHeader),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
	}

	return strings.Join(headers, "\r\n") + "\r\n\r\n" + body
}
