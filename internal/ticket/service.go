// Package ticket bridges the REST start endpoint and the websocket handshake
// with short-lived single-use credentials.
package ticket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/metrics"
	"github.com/dkeye/opentalk/internal/storage"
)

var (
	// ErrSessionRunning is returned when a resumption token resolves to a
	// participant id that a live runner still holds.
	ErrSessionRunning = errors.New("session_running")
	ErrInvalidTicket  = errors.New("invalid ticket")
)

type Options struct {
	TicketTTL     time.Duration
	ResumptionTTL time.Duration
}

var DefaultOptions = Options{
	TicketTTL:     30 * time.Second,
	ResumptionTTL: 120 * time.Second,
}

type Service struct {
	store storage.Backend
	opts  Options
}

func NewService(store storage.Backend, opts Options) *Service {
	if opts.TicketTTL <= 0 {
		opts.TicketTTL = DefaultOptions.TicketTTL
	}
	if opts.ResumptionTTL <= 0 {
		opts.ResumptionTTL = DefaultOptions.ResumptionTTL
	}
	return &Service{store: store, opts: opts}
}

// Start describes who wants a session and where.
type Start struct {
	Participant domain.Participant
	Room        domain.RoomID
	Breakout    domain.BreakoutRoomID
	Resumption  *domain.ResumptionToken
}

// Issued is what the REST layer hands back to the client.
type Issued struct {
	Ticket        domain.TicketToken     `json:"ticket"`
	Resumption    domain.ResumptionToken `json:"resumption"`
	ParticipantID domain.ParticipantID   `json:"-"`
	Resuming      bool                   `json:"-"`
}

// StartOrContinue issues a ticket, reusing the participant id of a valid
// resumption token when there is one.
func (s *Service) StartOrContinue(ctx context.Context, req Start) (Issued, error) {
	logger := log.With().Str("module", "ticket").Str("room", string(req.Room)).Logger()

	var (
		id       domain.ParticipantID
		resuming bool
	)
	if req.Resumption != nil {
		reused, err := s.resume(ctx, req, *req.Resumption)
		if err != nil {
			return Issued{}, err
		}
		if reused != "" {
			id, resuming = reused, true
			logger.Debug().Str("participant", string(id)).Msg("resuming participant id")
		}
	}
	if id == "" {
		id = domain.NewParticipantID()
	}

	resumption := NewResumptionToken()
	ok, err := storage.SetNXJSON(ctx, s.store, storage.ResumptionKey(resumption), domain.ResumptionData{
		ParticipantID: id,
		Participant:   req.Participant,
		Room:          req.Room,
		Breakout:      req.Breakout,
	}, s.opts.ResumptionTTL)
	if err != nil {
		return Issued{}, fmt.Errorf("store resumption: %w", err)
	}
	if !ok {
		return Issued{}, fmt.Errorf("store resumption: %w", storage.ErrConflict)
	}

	ticket := NewTicketToken()
	if err := storage.SetJSON(ctx, s.store, storage.TicketKey(ticket), domain.TicketData{
		ParticipantID:   id,
		Resuming:        resuming,
		Participant:     req.Participant,
		Room:            req.Room,
		Breakout:        req.Breakout,
		ResumptionToken: resumption,
	}, s.opts.TicketTTL); err != nil {
		return Issued{}, fmt.Errorf("store ticket: %w", err)
	}

	metrics.TicketsIssued.WithLabelValues(string(req.Participant.Kind)).Inc()
	return Issued{Ticket: ticket, Resumption: resumption, ParticipantID: id, Resuming: resuming}, nil
}

// resume returns the participant id to reuse, or "" when the token is unknown
// or belongs to another room or principal.
func (s *Service) resume(ctx context.Context, req Start, token domain.ResumptionToken) (domain.ParticipantID, error) {
	key := storage.ResumptionKey(token)
	raw, err := s.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load resumption: %w", err)
	}

	data, found, err := decodeResumption(raw)
	if err != nil || !found {
		log.Warn().Err(err).Str("module", "ticket").Msg("dropping unreadable resumption entry")
		return "", nil
	}
	// A different room or principal, kind included, is treated as unknown.
	if data.Room != req.Room || !data.Participant.Equal(req.Participant) {
		return "", nil
	}

	held, err := storage.RunnerLockHeld(ctx, s.store, data.ParticipantID)
	if err != nil {
		return "", fmt.Errorf("check runner lock: %w", err)
	}
	if held {
		return "", ErrSessionRunning
	}

	deleted, err := s.store.CompareAndDelete(ctx, key, raw)
	if err != nil {
		return "", fmt.Errorf("consume resumption: %w", err)
	}
	if !deleted {
		// Another start consumed it first.
		return "", nil
	}
	return data.ParticipantID, nil
}

// TakeTicket redeems a ticket. It succeeds at most once per token.
func (s *Service) TakeTicket(ctx context.Context, token domain.TicketToken) (domain.TicketData, error) {
	data, found, err := storage.GetDelJSON[domain.TicketData](ctx, s.store, storage.TicketKey(token))
	if err != nil {
		return domain.TicketData{}, fmt.Errorf("take ticket: %w", err)
	}
	if !found {
		return domain.TicketData{}, ErrInvalidTicket
	}
	return data, nil
}

// RefreshResumption extends a live session's resumption entry.
func (s *Service) RefreshResumption(ctx context.Context, token domain.ResumptionToken) error {
	_, err := s.store.Expire(ctx, storage.ResumptionKey(token), s.opts.ResumptionTTL)
	return err
}

func (s *Service) ResumptionTTL() time.Duration { return s.opts.ResumptionTTL }
