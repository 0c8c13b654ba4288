// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package alerter

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/buffalogs/buffalogs/internal/config"
	"github.com/buffalogs/buffalogs/internal/logging"
	"github.com/buffalogs/buffalogs/internal/models"
)

type emailConfig struct {
	Host                string                `json:"host"`
	Port                int                   `json:"port"`
	Username            string                `json:"username,omitempty"`
	Password            string                `json:"password,omitempty"`
	UseTLS              bool                  `json:"use_tls,omitempty"`
	Sender              string                `json:"sender"`
	RecipientListAdmins []string              `json:"recipient_list_admins"`
	RecipientListUsers  map[string][]string   `json:"recipient_list_users,omitempty"`
	Options             config.ChannelOptions `json:"options,omitempty"`
}

// emailChannel sends two messages per alert: one to the SOC admin list
// and, when the user has mapped addresses, one to the user. The alert is
// delivered only when every applicable message was accepted.
type emailChannel struct {
	cfg  emailConfig
	send func(ctx context.Context, to []string, subject, body string) error
}

func newEmail(cfg *config.AlertingConfig) (*emailChannel, error) {
	var c emailConfig
	if err := cfg.ChannelConfig(ChannelEmail, &c); err != nil {
		return nil, err
	}
	if c.Host == "" || c.Port <= 0 {
		return nil, fmt.Errorf("%w: email: host and port are required", models.ErrConfig)
	}
	if c.Sender == "" {
		return nil, fmt.Errorf("%w: email: sender is required", models.ErrConfig)
	}
	if len(c.RecipientListAdmins) == 0 {
		return nil, fmt.Errorf("%w: email: recipient_list_admins is required", models.ErrConfig)
	}
	ch := &emailChannel{cfg: c}
	ch.send = ch.sendSMTP
	return ch, nil
}

func (c *emailChannel) Name() string { return ChannelEmail }

func (c *emailChannel) Notify(ctx context.Context, alerts []*models.Alert) ([]*models.Alert, error) {
	var delivered []*models.Alert
	for _, alert := range alerts {
		title, description := FormatAlert(alert)

		if err := c.send(ctx, c.cfg.RecipientListAdmins, title, description); err != nil {
			logging.Ctx(ctx).Error().Err(err).Int64("alert_id", alert.ID).Msg("email delivery to admins failed")
			return delivered, err
		}
		if userRcpts := c.cfg.RecipientListUsers[alert.Username]; len(userRcpts) > 0 {
			userBody := fmt.Sprintf(
				"Dear %s,\n\nan anomalous login was detected on your account.\n\n%s\n\nIf this was you, no action is needed.",
				alert.Username, description)
			if err := c.send(ctx, userRcpts, title, userBody); err != nil {
				logging.Ctx(ctx).Error().Err(err).Int64("alert_id", alert.ID).Msg("email delivery to user failed")
				return delivered, err
			}
		}
		delivered = append(delivered, alert)
	}
	return delivered, nil
}

// SendText delivers a free-form message to the admin list, used for
// scheduled summaries.
func (c *emailChannel) SendText(ctx context.Context, title, text string) error {
	return c.send(ctx, c.cfg.RecipientListAdmins, title, text)
}

func (c *emailChannel) sendSMTP(ctx context.Context, to []string, subject, body string) error {
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	msg := buildMIMEMessage(c.cfg.Sender, to, subject, body)

	var auth smtp.Auth
	if c.cfg.Username != "" {
		auth = smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)
	}

	var err error
	if c.cfg.UseTLS {
		err = c.sendImplicitTLS(ctx, addr, auth, to, msg)
	} else {
		err = smtp.SendMail(addr, auth, c.cfg.Sender, to, msg)
	}
	if err != nil {
		return fmt.Errorf("%w: email: %v", models.ErrDispatch, err)
	}
	return nil
}

// sendImplicitTLS handles servers that expect TLS from the first byte
// (typically port 465), which smtp.SendMail cannot do.
func (c *emailChannel) sendImplicitTLS(ctx context.Context, addr string, auth smtp.Auth, to []string, msg []byte) error {
	dialer := &tls.Dialer{Config: &tls.Config{ServerName: c.cfg.Host, MinVersion: tls.VersionTLS12}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	client, err := smtp.NewClient(conn, c.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer func() { _ = client.Close() }()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return err
		}
	}
	if err := client.Mail(c.cfg.Sender); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func buildMIMEMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}
