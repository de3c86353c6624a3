package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/paktel/notify-gateway/internal/model"
)

// HTTPSender posts rendered messages to a provider endpoint for one
// channel. Status classification: 2xx ok, 4xx permanent, anything else
// (5xx, network, timeout) transient.
type HTTPSender struct {
	channel model.Channel
	baseURL string
	path    string
	async   bool
	client  *http.Client
	br      *MicroBreaker
}

type HTTPSenderOpts struct {
	Channel       model.Channel
	BaseURL       string
	Path          string
	TimeoutMs     int
	Async         bool // provider confirms delivery via webhook later
	FailThreshold int
	OpenForMs     int
}

func NewHTTPSender(opts HTTPSenderOpts) *HTTPSender {
	if opts.TimeoutMs <= 0 {
		opts.TimeoutMs = 5000
	}
	return &HTTPSender{
		channel: opts.Channel,
		baseURL: opts.BaseURL,
		path:    opts.Path,
		async:   opts.Async,
		client:  &http.Client{Timeout: time.Duration(opts.TimeoutMs) * time.Millisecond},
		br:      NewMicroBreaker(opts.FailThreshold, time.Duration(opts.OpenForMs)*time.Millisecond),
	}
}

func (s *HTTPSender) Channel() model.Channel { return s.channel }

type sendPayload struct {
	Channel   string `json:"channel"`
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

func (s *HTTPSender) Send(ctx context.Context, recipientContact, message string) (Result, error) {
	if !s.br.TryAcquire() {
		return Result{}, Transientf("provider circuit open for channel %s", s.channel)
	}

	err := s.post(ctx, recipientContact, message)
	if err == nil {
		s.br.OnSuccess()
		return Result{AwaitsConfirmation: s.async}, nil
	}

	// Permanent rejections mean the provider is healthy; only transient
	// failures feed the breaker.
	if IsPermanent(err) {
		s.br.OnSuccess()
	} else {
		s.br.OnFailure()
	}
	return Result{}, err
}

func (s *HTTPSender) post(ctx context.Context, recipient, message string) error {
	b, _ := json.Marshal(sendPayload{
		Channel:   s.channel.String(),
		Recipient: recipient,
		Message:   message,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+s.path, bytes.NewReader(b))
	if err != nil {
		return Permanent(err)
	}

	req.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return Transient(err)
	}

	defer res.Body.Close()

	switch {
	case res.StatusCode/100 == 2:
		return nil
	case res.StatusCode/100 == 4:
		return Permanentf("provider rejected send: channel=%s status=%d", s.channel, res.StatusCode)
	default:
		return Transientf("provider error: channel=%s status=%d", s.channel, res.StatusCode)
	}
}
