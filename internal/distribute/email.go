package distribute

import (
	"context"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/wneessen/go-mail"
)

// ErrEmailNotConfigured indicates SMTP credentials are missing.
var ErrEmailNotConfigured = errors.New("email not configured")

// EmailConfig describes the SMTP relay and the report recipients. UseSSL
// selects implicit TLS (SMTPS); otherwise STARTTLS is attempted.
type EmailConfig struct {
	Server     string        `yaml:"server"`
	Port       int           `yaml:"port"`
	User       string        `yaml:"user"`
	Password   string        `yaml:"-"`
	FromEmail  string        `yaml:"from_email"`
	FromName   string        `yaml:"from_name"`
	Recipients []string      `yaml:"recipients"`
	UseSSL     bool          `yaml:"use_ssl"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Enabled reports whether credentials are present.
func (c EmailConfig) Enabled() bool {
	return c.User != "" && c.Password != ""
}

// ParseRecipients splits a comma-separated address list, dropping blanks.
func ParseRecipients(s string) []string {
	var out []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

type mailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Notifier emails the HTML report as an attachment.
type Notifier struct {
	cfg    EmailConfig
	sender mailSender
	logger *slog.Logger
	now    func() time.Time
}

// NewNotifier builds an SMTP client for cfg. No connection is made until Send.
func NewNotifier(cfg EmailConfig, logger *slog.Logger) (*Notifier, error) {
	if !cfg.Enabled() {
		return nil, ErrEmailNotConfigured
	}
	if cfg.FromEmail == "" {
		cfg.FromEmail = cfg.User
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.User),
		mail.WithPassword(cfg.Password),
	}
	if cfg.UseSSL {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}

	client, err := mail.NewClient(cfg.Server, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return newNotifier(cfg, client, logger), nil
}

func newNotifier(cfg EmailConfig, sender mailSender, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		cfg:    cfg,
		sender: sender,
		logger: logger.With("component", "notifier"),
		now:    time.Now,
	}
}

// Send emails the report at htmlPath to recipients. It returns false without
// error when there is nothing to send: no recipients or no report file.
func (n *Notifier) Send(ctx context.Context, recipients []string, htmlPath string) (bool, error) {
	if len(recipients) == 0 {
		n.logger.Warn("no recipients configured, skipping email")
		return false, nil
	}
	fi, err := os.Stat(htmlPath)
	if err != nil {
		n.logger.Warn("report not found, skipping email", "path", htmlPath, "error", err)
		return false, nil
	}

	msg, err := n.buildMessage(recipients, htmlPath, fi.Size())
	if err != nil {
		return false, err
	}

	if err := n.sender.DialAndSendWithContext(ctx, msg); err != nil {
		return false, fmt.Errorf("send report email: %w", err)
	}
	n.logger.Info("report emailed", "recipients", len(recipients), "attachment", filepath.Base(htmlPath))
	return true, nil
}

type emailData struct {
	Date       string
	Attachment string
	SizeMB     string
}

func (n *Notifier) buildMessage(recipients []string, htmlPath string, size int64) (*mail.Msg, error) {
	date := n.now().Format("2006-01-02")

	m := mail.NewMsg()
	fromName := n.cfg.FromName
	if fromName == "" {
		fromName = "Sistema de Auditoría"
	}
	if err := m.FromFormat(fromName, n.cfg.FromEmail); err != nil {
		return nil, fmt.Errorf("invalid sender: %w", err)
	}
	if err := m.To(recipients...); err != nil {
		return nil, fmt.Errorf("invalid recipients: %w", err)
	}
	m.Subject("Reporte de Auditoria de Urgencias - " + date)

	data := emailData{
		Date:       date,
		Attachment: filepath.Base(htmlPath),
		SizeMB:     fmt.Sprintf("%.2f", float64(size)/(1024*1024)),
	}
	if err := m.SetBodyTextTemplate(textBody, data); err != nil {
		return nil, fmt.Errorf("render text body: %w", err)
	}
	if err := m.AddAlternativeHTMLTemplate(htmlBody, data); err != nil {
		return nil, fmt.Errorf("render html body: %w", err)
	}
	m.AttachFile(htmlPath)
	return m, nil
}

var textBody = texttemplate.Must(texttemplate.New("text").Parse(`Reporte de Auditoria de Urgencias - {{.Date}}

Se completó la auditoría automatizada de las atenciones de urgencias.

Archivo adjunto: {{.Attachment}} ({{.SizeMB}} MB)
Abra el archivo HTML en su navegador para ver el reporte completo con filtros por médico.

Los archivos JSONL, el ledger y los logs están disponibles en el almacenamiento de objetos.

--
Sistema de Auditoría Automatizada
Este es un correo automático, no responder.
`))

var htmlBody = htmltemplate.Must(htmltemplate.New("html").Parse(`<!DOCTYPE html>
<html lang="es">
<head><meta charset="UTF-8"><title>Reporte de Auditoria</title></head>
<body style="font-family: Arial, sans-serif; background: #f3f4f6; margin: 0; padding: 20px;">
  <div style="max-width: 600px; margin: 0 auto; background: #fff; border-radius: 12px; overflow: hidden;">
    <div style="background: #0f766e; color: #fff; text-align: center; padding: 24px;">
      <h1 style="margin: 0; font-size: 22px;">Reporte de Auditoria de Urgencias</h1>
      <p style="margin: 8px 0 0 0;">{{.Date}}</p>
    </div>
    <div style="padding: 24px; color: #374151;">
      <p>Se completó la auditoría médica automatizada de las atenciones de <strong>urgencias</strong> del día <strong>{{.Date}}</strong>.</p>
      <p>Descargue el archivo adjunto <strong>{{.Attachment}}</strong> ({{.SizeMB}} MB) y ábralo en su navegador.</p>
      <ul>
        <li>Evaluación según guías clínicas internacionales (WHO, AHA, NICE, ERC, ACEP, ACS)</li>
        <li>Score de calidad (0-100) por atención</li>
        <li>Criterios cumplidos y no cumplidos</li>
        <li>Hallazgos críticos y recomendaciones</li>
        <li>Resumen por médico</li>
      </ul>
    </div>
    <div style="background: #f9fafb; text-align: center; padding: 16px; color: #6b7280; font-size: 13px;">
      Sistema de Auditoría Automatizada &middot; Este es un correo automático, no responder
    </div>
  </div>
</body>
</html>
`))
