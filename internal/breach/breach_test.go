package breach

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upstream struct {
	srv *httptest.Server

	hibp, hudson, nova, status atomic.Int32

	hibpStatus  int
	hibpBody    string
	hudsonBody  string
	novaBody    string
	statusCode  int
	delay       time.Duration
	lastKey     atomic.Value
	lastHudsonQ atomic.Value
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()

	u := &upstream{hibpStatus: http.StatusOK, statusCode: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/hibp/", func(w http.ResponseWriter, r *http.Request) {
		u.hibp.Add(1)
		u.lastKey.Store(r.Header.Get("hibp-api-key"))
		time.Sleep(u.delay)
		w.WriteHeader(u.hibpStatus)
		_, _ = w.Write([]byte(u.hibpBody))
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		u.status.Add(1)
		u.lastKey.Store(r.Header.Get("hibp-api-key"))
		w.WriteHeader(u.statusCode)
	})
	mux.HandleFunc("/hudson", func(w http.ResponseWriter, r *http.Request) {
		u.hudson.Add(1)
		u.lastHudsonQ.Store(r.URL.Query().Get("email"))
		time.Sleep(u.delay)
		_, _ = w.Write([]byte(u.hudsonBody))
	})
	mux.HandleFunc("/nova", func(w http.ResponseWriter, r *http.Request) {
		u.nova.Add(1)
		_, _ = w.Write([]byte(u.novaBody))
	})
	u.srv = httptest.NewServer(mux)
	t.Cleanup(u.srv.Close)
	return u
}

func (u *upstream) config(key string) Config {
	return Config{
		APIKey: key,
		Endpoints: Endpoints{
			HIBP:       u.srv.URL + "/hibp/" + emailPlaceholder,
			HIBPStatus: u.srv.URL + "/status",
			HudsonRock: u.srv.URL + "/hudson?email=" + emailPlaceholder,
			ProxyNova:  u.srv.URL + "/nova?query=" + emailPlaceholder,
		},
		Timeout: time.Second,
	}
}

func (u *upstream) chain(t *testing.T, key string) *Chain {
	log, _ := test.NewNullLogger()
	return New(u.srv.Client(), u.config(key), log)
}

func TestHIBPBreached(t *testing.T) {
	t.Parallel()

	u := newUpstream(t)
	u.hibpBody = `[{"Name":"Adobe"},{"Name":"LinkedIn"},{"Name":"Dropbox"}]`
	u.novaBody = `{"count":3,"lines":["a@b.com:hunter2","a@b.com: hunter2 ","a@b.com:","x@b.com:nope","a@b.com:s3cret"]}`

	f := u.chain(t, "k3y").Check(context.Background(), "a@b.com")
	assert.True(t, f.Breached)
	assert.Equal(t, 3, f.Count)
	assert.Equal(t, []string{"hunter2", "s3cret"}, f.Passwords)
	assert.Equal(t, "k3y", u.lastKey.Load())
	assert.Zero(t, u.hudson.Load())
}

func TestHIBPNotFoundIsAuthoritative(t *testing.T) {
	t.Parallel()

	u := newUpstream(t)
	u.hibpStatus = http.StatusNotFound
	u.hudsonBody = `{"message":"This email address is associated with a computer that was infected"}`

	f := u.chain(t, "k3y").Check(context.Background(), "a@b.com")
	assert.False(t, f.Breached)
	assert.Zero(t, f.Count)
	assert.Zero(t, u.hudson.Load())
	assert.Zero(t, u.nova.Load())
}

func TestHIBPNonArray(t *testing.T) {
	t.Parallel()

	u := newUpstream(t)
	u.hibpBody = `{"statusCode":200}`

	f := u.chain(t, "k3y").Check(context.Background(), "a@b.com")
	assert.False(t, f.Breached)
}

func TestHudsonRock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		breached bool
	}{
		{"infected", `{"message":"This email address is associated with a computer that was infected by an info-stealer"}`, true},
		{"clean", `{"message":"This email address is not associated with a computer that was infected by an info-stealer"}`, false},
		{"unknown message", `{"message":"rate limited"}`, false},
		{"garbage", `<html>`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			u := newUpstream(t)
			u.hudsonBody = tt.body
			u.novaBody = `{"lines":["a+b@c.com:pw"]}`

			f := u.chain(t, "").Check(context.Background(), "a+b@c.com")
			assert.Equal(t, tt.breached, f.Breached)
			assert.Equal(t, "a+b@c.com", u.lastHudsonQ.Load())
			assert.Zero(t, u.hibp.Load())
			if tt.breached {
				assert.Equal(t, []string{"pw"}, f.Passwords)
			} else {
				assert.Empty(t, f.Passwords)
				assert.Zero(t, u.nova.Load())
			}
		})
	}
}

func TestNetworkFailureDegrades(t *testing.T) {
	t.Parallel()

	u := newUpstream(t)
	cfg := u.config("")
	u.srv.Close()

	f := New(http.DefaultClient, cfg, nil).Check(context.Background(), "a@b.com")
	assert.Equal(t, Finding{}, f)
}

func TestCheckMemoizedUnderConcurrency(t *testing.T) {
	t.Parallel()

	u := newUpstream(t)
	u.delay = 50 * time.Millisecond
	u.hudsonBody = `{"message":"is associated with a computer that was infected"}`
	u.novaBody = `{"lines":["a@b.com:pw"]}`
	c := u.chain(t, "")

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f := c.Check(context.Background(), "A@B.com")
			assert.True(t, f.Breached)
		}()
	}
	wg.Wait()

	c.Check(context.Background(), "a@b.com")
	assert.Equal(t, int32(1), u.hudson.Load())
	assert.Equal(t, int32(1), u.nova.Load())
}

func TestVerifyKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"valid", http.StatusOK, nil},
		{"invalid", http.StatusUnauthorized, ErrInvalidAPIKey},
		{"rate limited", http.StatusTooManyRequests, ErrKeyUnverified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			u := newUpstream(t)
			u.statusCode = tt.status

			err := VerifyKey(context.Background(), u.srv.Client(), u.config("k3y"))
			if tt.want == nil {
				require.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
			assert.Equal(t, "k3y", u.lastKey.Load())
		})
	}
}

func TestVerifyKeyUnreachable(t *testing.T) {
	t.Parallel()

	u := newUpstream(t)
	cfg := u.config("k3y")
	u.srv.Close()

	assert.ErrorIs(t, VerifyKey(context.Background(), http.DefaultClient, cfg), ErrKeyUnverified)
}
