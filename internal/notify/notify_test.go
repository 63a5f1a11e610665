package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dailyworker/newsroom/internal/model"
	"github.com/dailyworker/newsroom/internal/resilience"
	"github.com/dailyworker/newsroom/internal/store"
)

type captureSender struct {
	msgs []Message
	err  error
}

func (c *captureSender) Send(_ context.Context, msg Message) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

func newLogStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "notify.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestRender_AllTypes(t *testing.T) {
	for _, typ := range []model.EmailType{
		model.EmailWelcome, model.EmailPaymentReceipt, model.EmailPaymentFailed,
		model.EmailPlanChanged, model.EmailCancellationScheduled, model.EmailSubscriptionEnded,
	} {
		subject, body, err := Render(typ, map[string]string{"tier": "supporter", "tier_name": "Supporter"})
		require.NoError(t, err, typ)
		assert.NotEmpty(t, subject, typ)
		assert.NotEmpty(t, body, typ)
	}

	_, body, err := Render(model.EmailCancellationScheduled, map[string]string{"period_end": "November 1, 2026"})
	require.NoError(t, err)
	assert.Contains(t, body, "on November 1, 2026")

	_, _, err = Render("newsletter", nil)
	assert.Error(t, err)
}

func TestMailer_QuotaDefersAndLogs(t *testing.T) {
	ctx := context.Background()
	st := newLogStore(t)
	sender := &captureSender{}
	m := NewMailer(st, sender, "news@dailyworker.example", 2)
	m.now = func() time.Time { return time.Now().UTC() }

	for i := 0; i < 2; i++ {
		require.NoError(t, m.Notify(ctx, model.EmailWelcome, "reader@example.org", nil))
	}
	err := m.Notify(ctx, model.EmailWelcome, "late@example.org", nil)
	require.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Len(t, sender.msgs, 2)
	assert.Equal(t, "news@dailyworker.example", sender.msgs[0].From)

	sent, quota, err := m.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, 2, quota)

	deferred, err := st.CountEmailsSince(ctx, startOfDay(time.Now()), model.EmailDeferred)
	require.NoError(t, err)
	assert.Equal(t, 1, deferred)
}

func TestMailer_FailedSendDoesNotCount(t *testing.T) {
	ctx := context.Background()
	st := newLogStore(t)
	m := NewMailer(st, &captureSender{err: eris.New("email: status 400: bad sender")}, "news@dailyworker.example", 1)

	require.Error(t, m.Notify(ctx, model.EmailPaymentFailed, "reader@example.org", nil))
	sent, _, err := m.Usage(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)

	failed, err := st.CountEmailsSince(ctx, startOfDay(time.Now()), model.EmailFailed)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)
}

func TestMailer_DefaultQuota(t *testing.T) {
	m := NewMailer(nil, nil, "", 0)
	assert.Equal(t, DefaultDailyQuota, m.quota)
}

func TestSendGridSender_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	var got sgRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		assert.Equal(t, "Bearer sg-key", r.Header.Get("Authorization"))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	policy := resilience.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, Multiplier: 2}
	s := NewSendGridSender("sg-key", srv.URL, nil, policy)
	err := s.Send(context.Background(), Message{From: "a@x.example", To: "b@y.example", Subject: "Hi", Body: "Body"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "b@y.example", got.Personalizations[0].To[0].Email)
	assert.Equal(t, "Hi", got.Subject)
}

func TestSendGridSender_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad from"}]}`))
	}))
	defer srv.Close()

	policy := resilience.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, Multiplier: 2}
	err := NewSendGridSender("k", srv.URL, nil, policy).Send(context.Background(), Message{To: "b@y.example"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), calls.Load())
}
