package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"time"

	"golang.org/x/oauth2"
	gomail "gopkg.in/mail.v2"

	"KabuSentinel/internal/report"
)

const googleTokenURL = "https://oauth2.googleapis.com/token"

// EmailConfig holds SMTP configuration for sending emails. When OAuth has a
// refresh token the server is authenticated with XOAUTH2 instead of SMTPPass.
type EmailConfig struct {
	SMTPServer string
	SMTPPort   int
	SMTPUser   string
	SMTPPass   string
	FromEmail  string
	ToEmail    []string
	OAuth      OAuthConfig
}

// OAuthConfig is an installed-app client with a long-lived refresh token.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	TokenURL     string
}

// EmailNotifier delivers messages via SMTP.
type EmailNotifier struct {
	cfg    EmailConfig
	tokens oauth2.TokenSource
}

// NewEmailNotifier creates a notifier. The token source, if any, caches and
// refreshes access tokens across sends.
func NewEmailNotifier(cfg EmailConfig) (*EmailNotifier, error) {
	if cfg.SMTPServer == "" || cfg.FromEmail == "" || len(cfg.ToEmail) == 0 {
		return nil, errors.New("email: server, sender and recipient are required")
	}
	n := &EmailNotifier{cfg: cfg}
	if cfg.OAuth.RefreshToken != "" {
		tokenURL := cfg.OAuth.TokenURL
		if tokenURL == "" {
			tokenURL = googleTokenURL
		}
		oc := &oauth2.Config{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
			Scopes:       []string{"https://mail.google.com/"},
		}
		n.tokens = oc.TokenSource(context.Background(), &oauth2.Token{RefreshToken: cfg.OAuth.RefreshToken})
	}
	return n, nil
}

func (e *EmailNotifier) Name() string { return "email" }

// Send delivers an email with HTML body and plain text fallback.
func (e *EmailNotifier) Send(ctx context.Context, msg *report.Message) error {
	m := gomail.NewMessage()
	m.SetHeader("From", e.cfg.FromEmail)
	m.SetHeader("To", e.cfg.ToEmail...)
	m.SetHeader("Subject", msg.Subject)

	if msg.HTML != "" && msg.Text != "" {
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	} else if msg.HTML != "" {
		m.SetBody("text/html", msg.HTML)
	} else {
		m.SetBody("text/plain", msg.Text)
	}

	dialer := gomail.NewDialer(e.cfg.SMTPServer, e.cfg.SMTPPort, e.cfg.SMTPUser, e.cfg.SMTPPass)
	dialer.Timeout = 10 * time.Second
	if e.tokens != nil {
		dialer.Auth = &xoauth2Auth{user: e.cfg.SMTPUser, tokens: e.tokens}
	}

	done := make(chan error, 1)
	go func() { done <- dialer.DialAndSend(m) }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send email %q: %w", msg.Subject, err)
		}
		return nil
	}
}

// xoauth2Auth implements the SASL XOAUTH2 mechanism used by Gmail.
type xoauth2Auth struct {
	user   string
	tokens oauth2.TokenSource
}

func (a *xoauth2Auth) Start(_ *smtp.ServerInfo) (string, []byte, error) {
	tok, err := a.tokens.Token()
	if err != nil {
		return "", nil, fmt.Errorf("xoauth2 token: %w", err)
	}
	if tok == nil || tok.AccessToken == "" {
		return "", nil, errors.New("xoauth2 token: empty access token")
	}
	return "XOAUTH2", xoauth2Response(a.user, tok.AccessToken), nil
}

func (a *xoauth2Auth) Next(fromServer []byte, more bool) ([]byte, error) {
	if more {
		// the server sends its error details as a challenge
		return nil, fmt.Errorf("xoauth2 rejected: %s", fromServer)
	}
	return nil, nil
}

func xoauth2Response(user, accessToken string) []byte {
	return []byte("user=" + user + "\x01auth=Bearer " + accessToken + "\x01\x01")
}
