// Package speech calls the text-to-speech backend that voices queue
// call-outs.  Synthesis is best effort: every failure degrades to an empty
// result and a log line.
package speech

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/iliyamo/clinic-queue-booking/internal/config"
)

// maxAudioBytes bounds the response body read from the backend.
const maxAudioBytes = 4 << 20

// Client posts announcement texts to the synthesis URL.  Requests are
// throttled by a token bucket shared by every feed session of the
// process.
type Client struct {
	cfg     config.SpeechConfig
	http    *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// New builds a client from cfg.  A non-positive rate disables throttling.
func New(cfg config.SpeechConfig, log zerolog.Logger) *Client {
	limit := rate.Inf
	if cfg.RatePerS > 0 {
		limit = rate.Limit(cfg.RatePerS)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		log:     log.With().Str("component", "speech").Logger(),
	}
}

// Synthesize voices the call-out of one patient and returns the audio
// base64 encoded.  It returns "" when synthesis is disabled, throttled
// past ctx, or fails for any reason.
func (c *Client) Synthesize(ctx context.Context, patientName, ticket, cabinet string) string {
	if !c.cfg.Enabled() {
		return ""
	}
	if err := c.limiter.Wait(ctx); err != nil {
		c.log.Warn().Err(err).Msg("synthesis throttled")
		return ""
	}

	form := url.Values{}
	form.Set("text", AnnouncementText(patientName, ticket, cabinet))
	form.Set("lang", c.cfg.Lang)
	form.Set("voice", c.cfg.Voice)
	form.Set("speed", strconv.FormatFloat(c.cfg.Speed, 'f', -1, 64))
	if c.cfg.Format != "" {
		form.Set("format", c.cfg.Format)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, strings.NewReader(form.Encode()))
	if err != nil {
		c.log.Warn().Err(err).Msg("build synthesis request")
		return ""
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Api-Key "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("ticket", ticket).Msg("synthesis request failed")
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		ev := c.log.Warn().Int("status", resp.StatusCode).Str("body", string(snippet))
		if resp.StatusCode == http.StatusUnauthorized {
			ev = ev.Bool("check_api_key", true)
		}
		ev.Msg("synthesis rejected")
		return ""
	}
	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		c.log.Warn().Err(err).Msg("read synthesis response")
		return ""
	}
	c.log.Debug().Str("ticket", ticket).Int("bytes", len(audio)).Msg("announcement synthesized")
	return base64.StdEncoding.EncodeToString(audio)
}

// AnnouncementText is the call-out phrase.  The ticket is spelled as its
// letter and its digits with pauses in between, e.g. "sil<[2]> A sil<[3]> 01".
func AnnouncementText(patientName, ticket, cabinet string) string {
	switch {
	case ticket == "" && cabinet == "":
		return fmt.Sprintf("Уважаемый %s! Пожалуйста подойдите к врачу.", patientName)
	case ticket == "":
		return fmt.Sprintf("Уважаемый %s! Пожалуйста подойдите в кабинет %s.", patientName, cabinet)
	case cabinet != "":
		return fmt.Sprintf("Уважаемый %s! Ваш талон номер %s, при+ём в кабинете sil<[2]> %s.", patientName, spellTicket(ticket), cabinet)
	default:
		return fmt.Sprintf("Уважаемый %s! Ваш талон номер %s, пожалуйста подойдите к врачу.", patientName, spellTicket(ticket))
	}
}

func spellTicket(ticket string) string {
	r := []rune(ticket)
	return fmt.Sprintf("sil<[2]> %s sil<[3]> %s", string(r[:1]), string(r[1:]))
}
