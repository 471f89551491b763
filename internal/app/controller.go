package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"voice_review/internal/adapters/observability"
	"voice_review/internal/domain"
)

// Deps are the stores and collaborators the controller drives.
// Cache and VoiceNotes are optional.
type Deps struct {
	Sessions    domain.SessionStore
	Catalog     domain.VenueCatalog
	Cache       domain.Cache
	VoiceNotes  domain.VoiceNoteLog
	Transcriber domain.Transcriber
	Extractor   domain.Extractor
	Synthesizer domain.Synthesizer
	Verifier    domain.VenueVerifier
	Messenger   domain.Messenger
}

type Options struct {
	ApprovalWindow time.Duration
	SessionTimeout time.Duration
	LocationDelay  time.Duration
	SweepWorkers   int
	Now            func() time.Time
}

func DefaultOptions() Options {
	return Options{
		ApprovalWindow: 15 * time.Second,
		SessionTimeout: 5 * time.Minute,
		LocationDelay:  1500 * time.Millisecond,
		SweepWorkers:   4,
		Now:            time.Now,
	}
}

// Controller is the per-sender review state machine. All reads and writes of
// one sender's session happen under that sender's lock, whether they come
// from an inbound turn, the approval timer or the sweep.
type Controller struct {
	d    Deps
	opts Options

	senders *keyedMutex
	venues  *keyedMutex

	mu     sync.Mutex
	timers map[string]*time.Timer
	queues map[string][]domain.InboundEvent
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

func NewController(d Deps, o Options) *Controller {
	def := DefaultOptions()
	if o.ApprovalWindow <= 0 {
		o.ApprovalWindow = def.ApprovalWindow
	}
	if o.SessionTimeout <= 0 {
		o.SessionTimeout = def.SessionTimeout
	}
	if o.LocationDelay < 0 {
		o.LocationDelay = 0
	}
	if o.SweepWorkers <= 0 {
		o.SweepWorkers = def.SweepWorkers
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		d:       d,
		opts:    o,
		senders: newKeyedMutex(),
		venues:  newKeyedMutex(),
		timers:  make(map[string]*time.Timer),
		queues:  make(map[string][]domain.InboundEvent),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Dispatch queues evt behind earlier events from the same sender and returns
// at once. Each sender's events are handled in arrival order by one drain
// goroutine, so transports never block on collaborators.
func (c *Controller) Dispatch(evt domain.InboundEvent) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	q, draining := c.queues[evt.Sender]
	c.queues[evt.Sender] = append(q, evt)
	c.mu.Unlock()

	if !draining {
		c.spawn(func(ctx context.Context) { c.drain(ctx, evt.Sender) })
	}
}

// drain handles queued events for sender until the queue is empty.
func (c *Controller) drain(ctx context.Context, sender string) {
	for {
		c.mu.Lock()
		q := c.queues[sender]
		if len(q) == 0 || c.closed {
			delete(c.queues, sender)
			c.mu.Unlock()
			return
		}
		evt := q[0]
		c.queues[sender] = q[1:]
		c.mu.Unlock()

		switch evt.Kind {
		case domain.TurnVoice:
			c.IngestVoiceTurn(ctx, evt.Sender, evt.AudioRef, evt.Timestamp)
		default:
			c.IngestTextTurn(ctx, evt.Sender, evt.Text, evt.Timestamp)
		}
	}
}

// Close stops pending timers and deferred sends, then waits for in-flight work.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	for k, t := range c.timers {
		t.Stop()
		delete(c.timers, k)
	}
	c.mu.Unlock()

	c.wg.Wait()
	c.cancel()
}

// IngestVoiceTurn transcribes audioRef and feeds the text into the sender's
// session, creating one when the turn looks like a review.
func (c *Controller) IngestVoiceTurn(ctx context.Context, sender, audioRef string, ts time.Time) {
	noteID := c.recordVoiceNote(ctx, sender, audioRef, ts)

	text, err := c.d.Transcriber.Transcribe(ctx, audioRef)
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		log.Warn().Err(err).Str("sender", observability.MaskSender(sender)).Msg("transcription failed, voice turn dropped")
		c.updateVoiceNote(ctx, noteID, domain.VoiceNoteFailed, "")
		return
	}
	c.updateVoiceNote(ctx, noteID, domain.VoiceNoteTranscribed, text)

	c.handleTurn(ctx, sender, text, ts, true)
}

// IngestTextTurn continues an existing session; without one it is a no-op.
func (c *Controller) IngestTextTurn(ctx context.Context, sender, text string, ts time.Time) {
	if strings.TrimSpace(text) == "" {
		return
	}
	c.handleTurn(ctx, sender, text, ts, false)
}

func (c *Controller) handleTurn(ctx context.Context, sender, text string, at time.Time, voice bool) {
	unlock := c.senders.Lock(sender)
	defer unlock()

	s, err := c.load(ctx, sender)
	if err != nil {
		log.Error().Err(err).Str("sender", observability.MaskSender(sender)).Msg("session load failed")
		return
	}
	if s == nil && !voice {
		return
	}
	if s != nil && s.AwaitingApproval {
		c.handleApprovalReply(ctx, s, text, at)
		return
	}
	c.collect(ctx, sender, s, text, at)
}

func (c *Controller) collect(ctx context.Context, sender string, s *domain.ReviewSession, text string, at time.Time) {
	ext, err := c.d.Extractor.ExtractReviewFields(ctx, text, s)
	if err != nil {
		log.Warn().Err(err).Str("sender", observability.MaskSender(sender)).Msg("extraction failed, turn dropped")
		return
	}

	if s == nil {
		if !ext.IsReview {
			log.Debug().Str("sender", observability.MaskSender(sender)).Msg("not a review, ignoring")
			return
		}
		s = &domain.ReviewSession{Sender: sender, State: domain.StateCollecting}
		observability.ObserveTransition(string(domain.StateCollecting))
		log.Info().Str("sender", observability.MaskSender(sender)).Msg("review session started")
	}

	s = Merge(s, ext, text, at)
	s.State = domain.StateCollecting
	c.advance(ctx, s)
}

// advance decides the next step for a COLLECTING session after a merge.
func (c *Controller) advance(ctx context.Context, s *domain.ReviewSession) {
	if s.VenueName == nil {
		if err := c.save(ctx, s); err != nil {
			return
		}
		c.notify(ctx, s.Sender, askVenueQuestion)
		return
	}

	missing := missingItems(s)
	if len(missing) > 0 && s.QuestionsAsked < domain.MaxQuestions {
		s.QuestionsAsked++
		if err := c.save(ctx, s); err != nil {
			return
		}
		log.Info().
			Str("sender", observability.MaskSender(s.Sender)).
			Int("missing", len(missing)).
			Int("questions", s.QuestionsAsked).
			Msg("asking follow-up")
		c.notify(ctx, s.Sender, followUpQuestion(*s.VenueName, missing))
		return
	}

	c.requestApproval(ctx, s)
}

func (c *Controller) requestApproval(ctx context.Context, s *domain.ReviewSession) {
	cleaned := c.synthesize(ctx, s.Transcripts)
	deadline := c.opts.Now().Add(c.opts.ApprovalWindow)

	s.CleanedReview = &cleaned
	s.AwaitingApproval = true
	s.ApprovalDeadline = &deadline
	s.State = domain.StateAwaitingApproval
	if err := c.save(ctx, s); err != nil {
		return
	}
	observability.ObserveTransition(string(domain.StateAwaitingApproval))

	c.armApprovalTimer(s.Sender, deadline)
	c.notify(ctx, s.Sender, approvalPrompt(cleaned))
}

func (c *Controller) synthesize(ctx context.Context, transcripts []string) string {
	out, err := c.d.Synthesizer.SynthesizeCleanedReview(ctx, transcripts)
	if err != nil || strings.TrimSpace(out) == "" {
		log.Warn().Err(err).Int("transcripts", len(transcripts)).Msg("synthesis failed, using raw transcripts")
		return strings.Join(transcripts, " ")
	}
	return strings.TrimSpace(out)
}

func (c *Controller) handleApprovalReply(ctx context.Context, s *domain.ReviewSession, text string, at time.Time) {
	switch parseApprovalReply(text) {
	case replyYes:
		c.resolveApproval(ctx, s, true, at)
	case replyNo:
		c.resolveApproval(ctx, s, false, at)
	default:
		c.notify(ctx, s.Sender, approvalReprompt)
	}
}

// resolveApproval must be called with the sender lock held and
// s.AwaitingApproval still true. The flag is cleared before anything else.
func (c *Controller) resolveApproval(ctx context.Context, s *domain.ReviewSession, approved bool, at time.Time) {
	s.AwaitingApproval = false
	c.stopTimer(s.Sender)
	_ = c.save(ctx, s)

	if !approved {
		log.Info().Str("sender", observability.MaskSender(s.Sender)).Msg("review rejected by sender")
		c.notify(ctx, s.Sender, "No problem! Your review was not saved. Send a new voice message to start a fresh review.")
		c.finish(ctx, s, domain.StateAbandoned)
		return
	}

	switch c.finalize(ctx, s, at, false) {
	case finalizeSaved:
		c.finish(ctx, s, domain.StateCompleted)
	case finalizeRetry:
		s.State = domain.StateCollecting
		s.ApprovalDeadline = nil
		if err := c.save(ctx, s); err == nil {
			observability.ObserveTransition(string(domain.StateCollecting))
		}
	case finalizeAbandoned:
		c.finish(ctx, s, domain.StateAbandoned)
	}
}

func (c *Controller) onApprovalTimeout(ctx context.Context, sender string, deadline time.Time) {
	unlock := c.senders.Lock(sender)
	defer unlock()

	s, err := c.load(ctx, sender)
	if err != nil || s == nil || !s.AwaitingApproval {
		return
	}
	if s.ApprovalDeadline == nil || !s.ApprovalDeadline.Equal(deadline) {
		return
	}
	log.Info().Str("sender", observability.MaskSender(sender)).Msg("approval window elapsed, auto-approving")
	c.resolveApproval(ctx, s, true, s.LastActivity)
}

// finish moves s to a terminal state and removes it from the store.
func (c *Controller) finish(ctx context.Context, s *domain.ReviewSession, state domain.SessionState) {
	s.State = state
	observability.ObserveTransition(string(state))
	c.stopTimer(s.Sender)
	if err := c.d.Sessions.Delete(ctx, s.Sender); err != nil {
		log.Error().Err(err).Str("sender", observability.MaskSender(s.Sender)).Msg("session delete failed")
	}
	log.Info().Str("sender", observability.MaskSender(s.Sender)).Str("state", string(state)).Msg("review session closed")
}

// ---- timers & background work ----

func (c *Controller) armApprovalTimer(sender string, deadline time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if t := c.timers[sender]; t != nil {
		t.Stop()
	}
	c.timers[sender] = time.AfterFunc(c.opts.ApprovalWindow, func() {
		if !c.acquire() {
			return
		}
		defer c.wg.Done()
		c.onApprovalTimeout(c.ctx, sender, deadline)
	})
}

func (c *Controller) stopTimer(sender string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t := c.timers[sender]; t != nil {
		t.Stop()
		delete(c.timers, sender)
	}
}

// acquire registers one unit of background work unless the controller is closed.
func (c *Controller) acquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.wg.Add(1)
	return true
}

func (c *Controller) spawn(fn func(ctx context.Context)) {
	if !c.acquire() {
		return
	}
	go func() {
		defer c.wg.Done()
		fn(c.ctx)
	}()
}

// after runs fn once after d unless the controller closes first.
func (c *Controller) after(d time.Duration, fn func(ctx context.Context)) {
	if !c.acquire() {
		return
	}
	go func() {
		defer c.wg.Done()
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			fn(c.ctx)
		case <-c.done:
		}
	}()
}

// ---- store & messaging helpers ----

func (c *Controller) load(ctx context.Context, sender string) (*domain.ReviewSession, error) {
	s, err := c.d.Sessions.Get(ctx, sender)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return s, err
}

func (c *Controller) save(ctx context.Context, s *domain.ReviewSession) error {
	if err := c.d.Sessions.Put(ctx, s); err != nil {
		log.Error().Err(err).Str("sender", observability.MaskSender(s.Sender)).Msg("session save failed")
		return err
	}
	return nil
}

func (c *Controller) notify(ctx context.Context, to, text string) {
	if err := c.d.Messenger.SendMessage(ctx, to, text); err != nil {
		log.Warn().Err(err).Str("to", observability.MaskSender(to)).Msg("outbound message failed")
	}
}

func (c *Controller) recordVoiceNote(ctx context.Context, sender, audioRef string, ts time.Time) string {
	if c.d.VoiceNotes == nil {
		return ""
	}
	id := uuid.NewString()
	n := domain.VoiceNote{ID: id, Sender: sender, AudioRef: audioRef, Status: domain.VoiceNotePending, Timestamp: ts}
	if err := c.d.VoiceNotes.Record(ctx, n); err != nil {
		log.Warn().Err(err).Str("sender", observability.MaskSender(sender)).Msg("voice note record failed")
	}
	return id
}

func (c *Controller) updateVoiceNote(ctx context.Context, id string, status domain.VoiceNoteStatus, transcript string) {
	if c.d.VoiceNotes == nil || id == "" {
		return
	}
	if err := c.d.VoiceNotes.Update(ctx, id, status, transcript); err != nil {
		log.Warn().Err(err).Str("id", id).Msg("voice note update failed")
	}
}
