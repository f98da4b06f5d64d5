// Package feed runs the queue change feed: a per-connection loop that
// polls a clinic's bookings of the day, diffs their statuses against the
// session's snapshot and emits update batches with voiced call-outs.
package feed

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/clinic-queue-booking/internal/config"
	"github.com/iliyamo/clinic-queue-booking/internal/model"
)

// Lister reads all bookings of a clinic on a day ordered by start time.
type Lister interface {
	ListByClinicDay(ctx context.Context, clinicID uint64, day time.Time) ([]model.Booking, error)
}

// Synthesizer voices a call-out.  An empty result means no audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, patientName, ticket, cabinet string) string
}

// EmitFunc delivers one event to the client.  An error ends the session.
type EmitFunc func(Event) error

// Feed starts sessions.  It is safe for concurrent use; all per-session
// state lives inside Run.
type Feed struct {
	store    Lister
	synth    Synthesizer
	registry *Registry
	cfg      config.FeedConfig
	today    func() time.Time
	log      zerolog.Logger
}

// New returns a feed.  today yields the clinic's current calendar day.
func New(store Lister, synth Synthesizer, registry *Registry, cfg config.FeedConfig, today func() time.Time, log zerolog.Logger) *Feed {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Feed{store: store, synth: synth, registry: registry, cfg: cfg, today: today, log: log}
}

// Registry exposes the open sessions.
func (f *Feed) Registry() *Registry { return f.registry }

// Run serves one session of clinicID until ctx is done or emit fails.  It
// emits connected, then initial with the day's list, then one update per
// poll interval.  A failed read is reported as an error event and ends
// the session with that error.  A closed client returns nil.
func (f *Feed) Run(ctx context.Context, clinicID, userID uint64, emit EmitFunc) error {
	sess := f.registry.Register(clinicID, userID)
	defer f.registry.Deregister(sess)
	log := f.log.With().Str("session", sess.ID).Uint64("clinic_id", clinicID).Logger()
	log.Info().Int("viewers", f.registry.Count(clinicID)).Msg("feed session opened")
	defer func() { log.Info().Msg("feed session closed") }()

	day := f.today()
	if err := emit(Event{Type: EventConnected, ClinicID: clinicID}); err != nil {
		return nil
	}

	list, err := f.store.ListByClinicDay(ctx, clinicID, day)
	if err != nil {
		return f.fail(ctx, log, emit, err)
	}
	snap := NewSnapshot(f.cfg.AnnounceNewInvited)
	snap.Seed(list)
	if err := emit(Event{Type: EventInitial, Appointments: list}); err != nil {
		return nil
	}

	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		list, err := f.store.ListByClinicDay(ctx, clinicID, day)
		if err != nil {
			return f.fail(ctx, log, emit, err)
		}
		ev := Event{Type: EventUpdate, Appointments: list, Announcements: f.diff(ctx, log, snap, list)}
		if err := emit(ev); err != nil {
			return nil
		}
	}
}

// diff walks the list in order, updating snap and voicing every booking
// that has just entered invited.  A call-out whose synthesis returns
// nothing is dropped; its status is still recorded.
func (f *Feed) diff(ctx context.Context, log zerolog.Logger, snap *Snapshot, list []model.Booking) []Announcement {
	var out []Announcement
	for _, b := range list {
		if !snap.Observe(b.ID, b.Status) {
			continue
		}
		ticket := b.Ticket()
		audio := ""
		if f.synth != nil {
			audio = f.synth.Synthesize(ctx, b.PatientFullName, ticket, b.DoctorCabinet)
		}
		if audio == "" {
			log.Warn().Uint64("booking_id", b.ID).Str("ticket", ticket).Msg("call-out without audio")
			continue
		}
		label := ticket
		if label == "" {
			label = b.TimeStart.String()
		}
		out = append(out, Announcement{
			AppointmentID: b.ID,
			AudioBase64:   audio,
			NumberCoupon:  label,
			PatientName:   b.PatientFullName,
			CabinetNumber: b.DoctorCabinet,
		})
		log.Info().Uint64("booking_id", b.ID).Str("ticket", label).Msg("call-out voiced")
	}
	return out
}

func (f *Feed) fail(ctx context.Context, log zerolog.Logger, emit EmitFunc, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return nil
	}
	log.Error().Err(err).Msg("feed tick failed")
	_ = emit(Event{Type: EventError, Message: err.Error()})
	return err
}
