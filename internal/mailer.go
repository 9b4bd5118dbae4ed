package internal

import (
	"fmt"
	"paybox/config"
	"strconv"

	"github.com/wneessen/go-mail"
)

// Mailer sends plain text messages through an SMTP relay.
type Mailer struct {
	host string
	port int
	user string
	pass string
	from string
	send func(msg *mail.Msg) error
}

func NewMailer(conf *config.Config) *Mailer {
	from := conf.Mail.From
	if from == "" {
		from = conf.Mail.User
	}
	port, err := strconv.Atoi(conf.Mail.SmtpPort)
	if err != nil || port == 0 {
		port = mail.DefaultPortTLS
	}
	m := &Mailer{
		host: conf.Mail.SmtpHost,
		port: port,
		user: conf.Mail.User,
		pass: conf.Mail.Password,
		from: from,
	}
	m.send = m.dialAndSend
	return m
}

func (m *Mailer) Send(to, subject, body string) error {
	if m.host == "" {
		return fmt.Errorf("smtp host not configured")
	}
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("mail from %s: %w", m.from, err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("mail to %s: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return m.send(msg)
}

func (m *Mailer) dialAndSend(msg *mail.Msg) error {
	options := []mail.Option{
		mail.WithPort(m.port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if m.user != "" {
		options = append(options,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.user),
			mail.WithPassword(m.pass),
		)
	}
	client, err := mail.NewClient(m.host, options...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSend(msg)
}
