package notifier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"KabuSentinel/internal/report"
)

type recordingNotifier struct {
	name string
	err  error
	got  []*report.Message
}

func (r *recordingNotifier) Name() string { return r.name }

func (r *recordingNotifier) Send(_ context.Context, msg *report.Message) error {
	r.got = append(r.got, msg)
	return r.err
}

func TestMulti_JoinsErrors(t *testing.T) {
	ok := &recordingNotifier{name: "ok"}
	bad := &recordingNotifier{name: "bad", err: errors.New("smtp down")}
	msg := &report.Message{Subject: "s", Alert: true}

	err := Multi{bad, ok}.Send(context.Background(), msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: smtp down")
	assert.Len(t, ok.got, 1, "a failing notifier does not stop the others")
}

func TestAlertsOnly(t *testing.T) {
	inner := &recordingNotifier{name: "email"}
	n := AlertsOnly(inner)

	require.NoError(t, n.Send(context.Background(), &report.Message{Subject: "quiet"}))
	require.NoError(t, n.Send(context.Background(), &report.Message{Subject: "loud", Alert: true}))
	require.Len(t, inner.got, 1)
	assert.Equal(t, "loud", inner.got[0].Subject)
	assert.Equal(t, "email", n.Name())
}

func TestFileNotifier(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	f := &FileNotifier{Dir: dir}

	msg := &report.Message{Name: "lowcheck", Subject: "[安値チェック]!! (2025-06-30)", HTML: "<pre>x</pre>", Alert: true}
	require.NoError(t, f.Send(context.Background(), msg))

	read := func(name string) string {
		b, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		return string(b)
	}
	assert.Equal(t, "<pre>x</pre>", read("lowcheck.html"))
	assert.Equal(t, "[安値チェック]!! (2025-06-30)", read("lowcheck_subject.txt"))
	assert.Equal(t, "1", read("lowcheck_flag.txt"))

	msg.Alert = false
	require.NoError(t, f.Send(context.Background(), msg))
	assert.Equal(t, "0", read("lowcheck_flag.txt"))
}

func TestTelegram_SendAndRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "42", payload["chat_id"])
		assert.Equal(t, "HTML", payload["parse_mode"])
		assert.True(t, strings.HasPrefix(payload["text"], "<b>[配当アラート]"))
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, `{"ok":false}`, http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegramNotifier("TOKEN", "42", "")
	tg.APIBase = srv.URL
	err := tg.Send(context.Background(), &report.Message{Subject: "[配当アラート] 高配当銘柄 1件 (2025-06-30)", Text: "a < b"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestTelegram_RetryHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	tg := NewTelegramNotifier("TOKEN", "42", "")
	tg.APIBase = srv.URL
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := tg.SendWithRetry(ctx, "hi", 3)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFormatTelegram_Truncates(t *testing.T) {
	long := strings.Repeat("安値 & ", 2000)
	text := FormatTelegram(&report.Message{Subject: "s", Text: long})
	assert.LessOrEqual(t, len(text), telegramMaxText)
	assert.True(t, strings.HasSuffix(text, "</pre>"))
	assert.NotContains(t, text[len(text)-20:], "&am\n")
}

func TestNewEmailNotifier_Validates(t *testing.T) {
	_, err := NewEmailNotifier(EmailConfig{SMTPServer: "smtp.gmail.com"})
	assert.Error(t, err)

	n, err := NewEmailNotifier(EmailConfig{SMTPServer: "smtp.gmail.com", SMTPPort: 587, FromEmail: "a@example.com", ToEmail: []string{"b@example.com"}})
	require.NoError(t, err)
	assert.Nil(t, n.tokens)
}

func TestXOAUTH2_UsesRefreshedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "RT", r.Form.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"AT","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	n, err := NewEmailNotifier(EmailConfig{
		SMTPServer: "smtp.gmail.com", SMTPPort: 587, SMTPUser: "me@example.com",
		FromEmail: "me@example.com", ToEmail: []string{"you@example.com"},
		OAuth: OAuthConfig{ClientID: "id", ClientSecret: "secret", RefreshToken: "RT", TokenURL: srv.URL},
	})
	require.NoError(t, err)
	require.NotNil(t, n.tokens)

	auth := &xoauth2Auth{user: "me@example.com", tokens: n.tokens}
	mech, resp, err := auth.Start(nil)
	require.NoError(t, err)
	assert.Equal(t, "XOAUTH2", mech)
	assert.Equal(t, "user=me@example.com\x01auth=Bearer AT\x01\x01", string(resp))

	_, err = auth.Next([]byte(base64.StdEncoding.EncodeToString([]byte(`{"status":"400"}`))), true)
	assert.Error(t, err)
}

func TestXOAUTH2_TokenError(t *testing.T) {
	auth := &xoauth2Auth{user: "u", tokens: oauth2.StaticTokenSource(nil)}
	_, _, err := auth.Start(nil)
	assert.Error(t, err)
}
