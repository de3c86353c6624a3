package sender

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/paktel/notify-gateway/internal/model"
)

func TestClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool // IsPermanent
	}{
		{"permanent", Permanentf("bad recipient"), true},
		{"transient", Transientf("503"), false},
		{"wrapped permanent", Permanent(errors.New("rejected")), true},
		{"plain error defaults transient", errors.New("dial tcp: refused"), false},
		{"context deadline defaults transient", context.DeadlineExceeded, false},
	}
	for _, tt := range tests {
		if got := IsPermanent(tt.err); got != tt.want {
			t.Errorf("%s: IsPermanent = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestHTTPSender_StatusCodes(t *testing.T) {
	tests := []struct {
		status        int
		wantErr       bool
		wantPermanent bool
	}{
		{200, false, false},
		{202, false, false},
		{400, true, true},
		{404, true, true},
		{429, true, true}, // provider said no; 4xx is terminal here
		{500, true, false},
		{503, true, false},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		s := NewHTTPSender(HTTPSenderOpts{
			Channel: model.ChannelSMS,
			BaseURL: srv.URL,
			Path:    "/send",
		})
		_, err := s.Send(context.Background(), "+15551234567", "hello")
		srv.Close()

		if (err != nil) != tt.wantErr {
			t.Errorf("status %d: err = %v, wantErr %v", tt.status, err, tt.wantErr)
			continue
		}
		if err != nil && IsPermanent(err) != tt.wantPermanent {
			t.Errorf("status %d: IsPermanent = %v, want %v", tt.status, IsPermanent(err), tt.wantPermanent)
		}
	}
}

func TestHTTPSender_AsyncFlag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewHTTPSender(HTTPSenderOpts{Channel: model.ChannelWhatsApp, BaseURL: srv.URL, Path: "/send", Async: true})
	res, err := s.Send(context.Background(), "+15551234567", "hi")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !res.AwaitsConfirmation {
		t.Fatal("async sender must report AwaitsConfirmation")
	}
}

func TestMicroBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewMicroBreaker(2, time.Hour)

	if !b.TryAcquire() {
		t.Fatal("closed breaker must acquire")
	}
	b.OnFailure()
	b.OnFailure()

	if b.TryAcquire() {
		t.Fatal("breaker must be open after 2 consecutive failures")
	}
}

func TestMicroBreaker_HalfOpenProbe(t *testing.T) {
	b := NewMicroBreaker(1, 10*time.Millisecond)
	b.OnFailure()

	if b.TryAcquire() {
		t.Fatal("breaker should be open immediately after tripping")
	}

	time.Sleep(20 * time.Millisecond)

	if !b.TryAcquire() {
		t.Fatal("expected a probe after the open window")
	}
	// Second concurrent probe is refused.
	if b.TryAcquire() {
		t.Fatal("only one probe may be in flight")
	}

	b.OnSuccess()
	if !b.TryAcquire() {
		t.Fatal("breaker must close after a successful probe")
	}
}

func TestHTTPSender_BreakerShortCircuits(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewHTTPSender(HTTPSenderOpts{
		Channel:       model.ChannelEmail,
		BaseURL:       srv.URL,
		Path:          "/send",
		FailThreshold: 2,
		OpenForMs:     60000,
	})

	for i := 0; i < 5; i++ {
		_, _ = s.Send(context.Background(), "a@b.c", "x")
	}
	if hits != 2 {
		t.Fatalf("provider hit %d times, want 2 (breaker short-circuits the rest)", hits)
	}
}

func TestRegistry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	email := NewHTTPSender(HTTPSenderOpts{Channel: model.ChannelEmail, BaseURL: srv.URL})
	sms := NewHTTPSender(HTTPSenderOpts{Channel: model.ChannelSMS, BaseURL: srv.URL})
	r := NewRegistry(email, sms)

	if _, ok := r.ForChannel(model.ChannelEmail); !ok {
		t.Fatal("email sender missing")
	}
	if _, ok := r.ForChannel(model.ChannelInApp); ok {
		t.Fatal("inapp sender should be absent")
	}
	if len(r.Channels()) != 2 {
		t.Fatalf("Channels() = %v, want 2 entries", r.Channels())
	}
}
