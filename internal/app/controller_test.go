package app_test

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"voice_review/internal/app"
	"voice_review/internal/domain"
	"voice_review/internal/storage/memory"
)

const sender = "447700900001"

// ---- fakes ----

type fakeTranscriber struct {
	texts map[string]string
	gate  chan struct{} // when set, Transcribe waits for it to close
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioRef string) (string, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	t, ok := f.texts[audioRef]
	if !ok {
		return "", errors.New("media unavailable")
	}
	return t, nil
}

type fakeExtractor struct {
	mu    sync.Mutex
	out   map[string]domain.Extraction
	calls int
}

func (f *fakeExtractor) ExtractReviewFields(ctx context.Context, text string, prior *domain.ReviewSession) (domain.Extraction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	e, ok := f.out[text]
	if !ok {
		return domain.Extraction{}, errors.New("model unavailable")
	}
	return e, nil
}

type fakeSynth struct {
	err error
}

func (f fakeSynth) SynthesizeCleanedReview(ctx context.Context, transcripts []string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "Cleaned: " + strings.Join(transcripts, " / "), nil
}

type fakeVerifier struct {
	mu    sync.Mutex
	fn    func(name, city string) domain.VenueVerification
	names []string
}

func (f *fakeVerifier) VerifyVenue(ctx context.Context, name, city string) (domain.VenueVerification, error) {
	f.mu.Lock()
	f.names = append(f.names, name)
	fn := f.fn
	f.mu.Unlock()
	return fn(name, city), nil
}

func (f *fakeVerifier) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.names)
}

func existsWithCoords(name, _ string) domain.VenueVerification {
	addr := "1 Harbour Road"
	return domain.VenueVerification{
		Exists:        true,
		CanonicalName: name,
		Description:   "Seaside hotel.",
		Location:      "Brighton, UK",
		Address:       &addr,
		Coords:        &domain.Coords{Lat: 50.82, Lon: -0.14},
		Category:      "resort",
	}
}

type fakeMessenger struct {
	mu   sync.Mutex
	msgs []string
	locs []domain.LocationPin
}

func (f *fakeMessenger) SendMessage(ctx context.Context, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, text)
	return nil
}

func (f *fakeMessenger) SendLocation(ctx context.Context, to string, pin domain.LocationPin) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locs = append(f.locs, pin)
	return nil
}

func (f *fakeMessenger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func (f *fakeMessenger) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		return ""
	}
	return f.msgs[len(f.msgs)-1]
}

func (f *fakeMessenger) locations() []domain.LocationPin {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.LocationPin(nil), f.locs...)
}

type harness struct {
	ctrl     *app.Controller
	sessions *memory.Sessions
	catalog  *memory.Catalog
	notes    *memory.VoiceNotes
	trans    *fakeTranscriber
	extract  *fakeExtractor
	verify   *fakeVerifier
	msgr     *fakeMessenger
}

func newHarness(t *testing.T, o app.Options, synth domain.Synthesizer) *harness {
	t.Helper()
	if synth == nil {
		synth = fakeSynth{}
	}
	h := &harness{
		sessions: memory.NewSessions(),
		catalog:  memory.NewCatalog(),
		notes:    memory.NewVoiceNotes(),
		trans:    &fakeTranscriber{texts: map[string]string{}},
		extract:  &fakeExtractor{out: map[string]domain.Extraction{}},
		verify:   &fakeVerifier{fn: existsWithCoords},
		msgr:     &fakeMessenger{},
	}
	h.ctrl = app.NewController(app.Deps{
		Sessions:    h.sessions,
		Catalog:     h.catalog,
		VoiceNotes:  h.notes,
		Transcriber: h.trans,
		Extractor:   h.extract,
		Synthesizer: synth,
		Verifier:    h.verify,
		Messenger:   h.msgr,
	}, o)
	t.Cleanup(h.ctrl.Close)
	return h
}

func quietOptions() app.Options {
	o := app.DefaultOptions()
	o.ApprovalWindow = time.Hour
	o.LocationDelay = 10 * time.Millisecond
	return o
}

func (h *harness) session(t *testing.T) *domain.ReviewSession {
	t.Helper()
	s, err := h.sessions.Get(context.Background(), sender)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	require.NoError(t, err)
	return s
}

func (h *harness) voice(t *testing.T, audio, text string) {
	t.Helper()
	h.trans.texts[audio] = text
	h.ctrl.IngestVoiceTurn(context.Background(), sender, audio, time.Now())
}

func (h *harness) text(text string) {
	h.ctrl.IngestTextTurn(context.Background(), sender, text, time.Now())
}

// awaiting seeds a complete session waiting for a yes/no reply.
func (h *harness) awaiting(t *testing.T, venue string, mutate func(s *domain.ReviewSession)) {
	t.Helper()
	deadline := time.Now().Add(time.Hour)
	s := &domain.ReviewSession{
		Sender:           sender,
		VenueName:        str(venue),
		ReviewerName:     str("Sam"),
		Food:             &domain.Aspect{Summary: "great", Score: score(5)},
		Amenities:        &domain.Aspect{Summary: "nice pool", Score: score(4)},
		Location:         &domain.Aspect{Summary: "far", Score: score(2)},
		Service:          &domain.Aspect{Summary: "fine", Score: score(3)},
		Transcripts:      []string{"raw"},
		CleanedReview:    str("Great food, nice pool."),
		AwaitingApproval: true,
		ApprovalDeadline: &deadline,
		LastActivity:     time.Now(),
		State:            domain.StateAwaitingApproval,
	}
	if mutate != nil {
		mutate(s)
	}
	require.NoError(t, h.sessions.Put(context.Background(), s))
}

const (
	firstTurn  = "The Grand, loved the food and pool, terrible location"
	secondTurn = "I'm Sam, service was fine"
)

// scriptTwoTurns wires the extraction results for the two-turn review.
func (h *harness) scriptTwoTurns() {
	h.extract.out[firstTurn] = domain.Extraction{
		IsReview:  true,
		VenueName: str("The Grand"),
		Food:      &domain.Aspect{Summary: "loved the food", Score: score(5)},
		Amenities: &domain.Aspect{Summary: "loved the pool", Score: score(4)},
		Location:  &domain.Aspect{Summary: "terrible location", Score: score(1)},
	}
	h.extract.out[secondTurn] = domain.Extraction{
		IsReview:     true,
		ReviewerName: str("Sam"),
		Service:      &domain.Aspect{Summary: "service was fine", Score: score(3)},
	}
}

// ---- tests ----

func TestController_TwoTurnReviewReachesApproval(t *testing.T) {
	h := newHarness(t, quietOptions(), nil)
	h.scriptTwoTurns()

	h.voice(t, "audio-1", firstTurn)

	s := h.session(t)
	require.NotNil(t, s)
	require.Equal(t, domain.StateCollecting, s.State)
	require.Equal(t, 1, s.QuestionsAsked)
	require.Equal(t, 1, h.msgr.count())
	require.Contains(t, h.msgr.last(), "your name")
	require.Contains(t, h.msgr.last(), "service")

	h.text(secondTurn)

	s = h.session(t)
	require.Equal(t, domain.StateAwaitingApproval, s.State)
	require.True(t, s.AwaitingApproval)
	require.NotNil(t, s.ApprovalDeadline)
	require.Equal(t, "Sam", *s.ReviewerName)
	require.Equal(t, []string{firstTurn, secondTurn}, s.Transcripts)
	require.Equal(t, "Cleaned: "+firstTurn+" / "+secondTurn, *s.CleanedReview)
	require.Contains(t, h.msgr.last(), *s.CleanedReview)
	require.Contains(t, h.msgr.last(), "Yes or No")

	notes, err := h.notes.List(context.Background())
	require.NoError(t, err)
	require.Len(t, notes[sender], 1)
	require.Equal(t, domain.VoiceNoteTranscribed, notes[sender][0].Status)
}

func TestController_ApproveSavesReviewAndSendsLocation(t *testing.T) {
	h := newHarness(t, quietOptions(), nil)
	h.scriptTwoTurns()
	h.voice(t, "audio-1", firstTurn)
	h.text(secondTurn)

	h.text("Yes")

	require.Nil(t, h.session(t), "completed sessions are removed")
	v, err := h.catalog.GetVenue(context.Background(), "the-grand")
	require.NoError(t, err)
	require.Equal(t, "The Grand", v.Name)
	require.Equal(t, "resort", v.Category)
	require.Len(t, v.Reviews, 1)

	r := v.Reviews[0]
	require.Equal(t, "Sam", r.ReviewerName)
	require.Equal(t, sender, r.Sender)
	require.InDelta(t, 3.3, r.RatingExact, 1e-9)
	require.Equal(t, 3, r.Rating)
	require.Equal(t, []string{firstTurn, secondTurn}, r.Transcripts)

	require.Contains(t, h.msgr.last(), "Thank you, Sam!")
	require.Contains(t, h.msgr.last(), "(3/5 stars)")

	require.Eventually(t, func() bool { return len(h.msgr.locations()) == 1 }, time.Second, 5*time.Millisecond)
	pin := h.msgr.locations()[0]
	require.Equal(t, "1 Harbour Road", pin.Address)
	require.InDelta(t, 50.82, pin.Coords.Lat, 1e-9)
}

func TestController_RejectDiscardsSession(t *testing.T) {
	h := newHarness(t, quietOptions(), nil)
	h.awaiting(t, "The Grand", nil)

	h.text("nope")

	require.Nil(t, h.session(t))
	require.Contains(t, h.msgr.last(), "not saved")
	require.Zero(t, h.verify.calls())
	list, err := h.catalog.ListVenues(context.Background())
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestController_AmbiguousReplyReprompts(t *testing.T) {
	h := newHarness(t, quietOptions(), nil)
	h.awaiting(t, "The Grand", nil)
	before := h.session(t)

	h.text("hmm, maybe later")

	after := h.session(t)
	require.Equal(t, before, after, "session is untouched")
	require.Contains(t, h.msgr.last(), "reply Yes")
	require.Zero(t, h.extract.calls)
}

func TestController_ApprovalTimeoutFiresOnce(t *testing.T) {
	o := quietOptions()
	o.ApprovalWindow = 30 * time.Millisecond
	h := newHarness(t, o, nil)
	h.scriptTwoTurns()
	h.voice(t, "audio-1", firstTurn)
	h.text(secondTurn)

	require.Eventually(t, func() bool { return h.session(t) == nil }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 1, h.verify.calls())

	sent := h.msgr.count()
	h.text("yes")
	require.Equal(t, sent, h.msgr.count(), "late reply is a no-op")

	v, err := h.catalog.GetVenue(context.Background(), "the-grand")
	require.NoError(t, err)
	require.Len(t, v.Reviews, 1)
}

func TestController_ExplicitReplyBeatsTimer(t *testing.T) {
	o := quietOptions()
	o.ApprovalWindow = 40 * time.Millisecond
	h := newHarness(t, o, nil)
	h.scriptTwoTurns()
	h.voice(t, "audio-1", firstTurn)
	h.text(secondTurn)
	h.text("no")

	time.Sleep(80 * time.Millisecond)
	require.Zero(t, h.verify.calls(), "timer does not finalize a rejected review")
	require.Nil(t, h.session(t))
}

func TestController_SameNameFailingTwiceAbandons(t *testing.T) {
	h := newHarness(t, quietOptions(), nil)
	h.verify.fn = func(string, string) domain.VenueVerification { return domain.VenueVerification{} }
	h.awaiting(t, "The Grnad", nil)
	h.extract.out["it's the grnad"] = domain.Extraction{IsReview: true, VenueName: str("the GRNAD")}

	h.text("yes")

	s := h.session(t)
	require.NotNil(t, s)
	require.Nil(t, s.VenueName)
	require.False(t, s.AwaitingApproval)
	require.Equal(t, domain.StateCollecting, s.State)
	require.Equal(t, 1, s.FailedVerificationCount)
	require.Contains(t, h.msgr.last(), "say the hotel name again")

	h.text("it's the grnad")
	require.True(t, h.session(t).AwaitingApproval)

	h.text("yes")
	require.Nil(t, h.session(t))
	require.Equal(t, 2, h.verify.calls(), "no third attempt")
	require.Contains(t, h.msgr.last(), "was not saved")
}

func TestController_RetryRelaysSuggestion(t *testing.T) {
	h := newHarness(t, quietOptions(), nil)
	h.verify.fn = func(string, string) domain.VenueVerification {
		return domain.VenueVerification{Suggestion: str("Hotel Lutetia")}
	}
	h.awaiting(t, "Hotel Lutecia", nil)

	h.text("y")

	require.Contains(t, h.msgr.last(), "Did you mean Hotel Lutetia?")
	s := h.session(t)
	require.Equal(t, "Hotel Lutecia", *s.LastFailedVenueName)
	require.Equal(t, "Sam", *s.ReviewerName, "only the venue name is cleared")
}

func TestController_ThirdFailureAbandons(t *testing.T) {
	h := newHarness(t, quietOptions(), nil)
	h.verify.fn = func(string, string) domain.VenueVerification { return domain.VenueVerification{} }
	h.awaiting(t, "Third Try Inn", func(s *domain.ReviewSession) {
		s.FailedVerificationCount = 2
		s.LastFailedVenueName = str("Second Try Inn")
	})

	h.text("ok")

	require.Nil(t, h.session(t))
	require.Contains(t, h.msgr.last(), "could not verify")
}

func TestController_ExistingVenueSkipsVerification(t *testing.T) {
	h := newHarness(t, quietOptions(), nil)
	ctx := context.Background()
	require.NoError(t, h.catalog.CreateVenue(ctx, domain.VenueProfile{ID: "the-grand", Name: "The Grand", Reviews: []domain.Review{}}))
	h.awaiting(t, "the grand!", func(s *domain.ReviewSession) { s.ReviewerName = nil })

	h.text("yes")

	require.Zero(t, h.verify.calls())
	v, err := h.catalog.GetVenue(ctx, "the-grand")
	require.NoError(t, err)
	require.Len(t, v.Reviews, 1)
	require.Equal(t, "Guest 1", v.Reviews[0].ReviewerName)
	require.Empty(t, h.msgr.locations(), "no coordinates, no location message")
}

func TestController_TextTurnWithoutSessionIsNoop(t *testing.T) {
	h := newHarness(t, quietOptions(), nil)
	h.scriptTwoTurns()

	h.text(firstTurn)

	require.Nil(t, h.session(t))
	require.Zero(t, h.extract.calls)
	require.Zero(t, h.msgr.count())
}

func TestController_CollaboratorFailuresLeaveSessionUntouched(t *testing.T) {
	h := newHarness(t, quietOptions(), nil)

	h.ctrl.IngestVoiceTurn(context.Background(), sender, "missing-audio", time.Now())
	require.Nil(t, h.session(t))
	require.Zero(t, h.extract.calls)
	notes, err := h.notes.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.VoiceNoteFailed, notes[sender][0].Status)

	h.scriptTwoTurns()
	h.voice(t, "audio-1", firstTurn)
	before := h.session(t)

	h.text("unscripted turn makes extraction fail")
	require.Equal(t, before, h.session(t))
	require.Equal(t, 1, h.msgr.count())
}

func TestController_NonReviewVoiceTurnIgnored(t *testing.T) {
	h := newHarness(t, quietOptions(), nil)
	h.extract.out["what time is checkout?"] = domain.Extraction{IsReview: false}

	h.voice(t, "audio-q", "what time is checkout?")

	require.Nil(t, h.session(t))
	require.Zero(t, h.msgr.count())
}

func TestController_VenueQuestionDoesNotCount(t *testing.T) {
	h := newHarness(t, quietOptions(), nil)
	h.extract.out["the breakfast was amazing"] = domain.Extraction{
		IsReview: true,
		Food:     &domain.Aspect{Summary: "amazing breakfast", Score: score(5)},
	}

	h.voice(t, "audio-1", "the breakfast was amazing")

	s := h.session(t)
	require.NotNil(t, s)
	require.Zero(t, s.QuestionsAsked)
	require.False(t, s.AwaitingApproval)
	require.Contains(t, h.msgr.last(), "which hotel")
}

func TestController_QuestionBudget(t *testing.T) {
	h := newHarness(t, quietOptions(), fakeSynth{err: errors.New("quota")})
	h.extract.out["stayed at the ritz"] = domain.Extraction{IsReview: true, VenueName: str("The Ritz")}
	h.extract.out["nothing more"] = domain.Extraction{IsReview: true}

	h.voice(t, "a1", "stayed at the ritz")
	for i := 2; i <= 3; i++ {
		h.voice(t, "a"+strconv.Itoa(i), "nothing more")
		require.Equal(t, i, h.session(t).QuestionsAsked)
	}

	h.voice(t, "a4", "nothing more")
	s := h.session(t)
	require.Equal(t, domain.MaxQuestions, s.QuestionsAsked)
	require.True(t, s.AwaitingApproval)
	require.Nil(t, s.Food)
	require.Equal(t, "stayed at the ritz nothing more nothing more nothing more", *s.CleanedReview, "synthesis failure falls back to joined transcripts")
}

func TestController_ConcurrentFirstReviewsCreateOneVenue(t *testing.T) {
	h := newHarness(t, quietOptions(), nil)
	ctx := context.Background()
	senders := []string{"447700900010", "447700900011", "447700900012", "447700900013"}
	for _, snd := range senders {
		deadline := time.Now().Add(time.Hour)
		require.NoError(t, h.sessions.Put(ctx, &domain.ReviewSession{
			Sender:           snd,
			VenueName:        str("Hotel Lux"),
			Transcripts:      []string{"lovely"},
			CleanedReview:    str("Lovely."),
			AwaitingApproval: true,
			ApprovalDeadline: &deadline,
			State:            domain.StateAwaitingApproval,
		}))
	}

	var wg sync.WaitGroup
	for _, snd := range senders {
		wg.Add(1)
		go func(snd string) {
			defer wg.Done()
			h.ctrl.IngestTextTurn(ctx, snd, "yes", time.Now())
		}(snd)
	}
	wg.Wait()

	require.Equal(t, 1, h.verify.calls())
	v, err := h.catalog.GetVenue(ctx, "hotel-lux")
	require.NoError(t, err)
	require.Len(t, v.Reviews, len(senders))

	guests := map[string]bool{}
	for _, r := range v.Reviews {
		guests[r.ReviewerName] = true
	}
	require.Len(t, guests, len(senders), "guest numbers are never reused")
}

func TestController_DispatchSerializesPerSender(t *testing.T) {
	h := newHarness(t, quietOptions(), nil)
	h.extract.out["stayed at the ritz"] = domain.Extraction{IsReview: true, VenueName: str("The Ritz")}
	h.extract.out["more"] = domain.Extraction{IsReview: true}
	h.voice(t, "a1", "stayed at the ritz")

	for i := 0; i < 2; i++ {
		h.ctrl.Dispatch(domain.InboundEvent{Sender: sender, Kind: domain.TurnText, Text: "more", Timestamp: time.Now()})
	}

	require.Eventually(t, func() bool {
		s := h.session(t)
		return s != nil && len(s.Transcripts) == 3
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 3, h.session(t).QuestionsAsked)
}

func TestController_DispatchKeepsArrivalOrder(t *testing.T) {
	h := newHarness(t, quietOptions(), nil)
	h.extract.out["stayed at the ritz"] = domain.Extraction{IsReview: true, VenueName: str("The Ritz")}
	h.extract.out["more"] = domain.Extraction{IsReview: true}
	h.trans.texts["a1"] = "stayed at the ritz"
	h.trans.gate = make(chan struct{})

	h.ctrl.Dispatch(domain.InboundEvent{Sender: sender, Kind: domain.TurnVoice, AudioRef: "a1", Timestamp: time.Now()})
	h.ctrl.Dispatch(domain.InboundEvent{Sender: sender, Kind: domain.TurnText, Text: "more", Timestamp: time.Now()})

	// The text turn must wait for the slow voice turn that opens the session.
	time.Sleep(30 * time.Millisecond)
	require.Nil(t, h.session(t))
	close(h.trans.gate)

	require.Eventually(t, func() bool {
		s := h.session(t)
		return s != nil && len(s.Transcripts) == 2
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"stayed at the ritz", "more"}, h.session(t).Transcripts)
}

func TestController_NonLatinVenueNameIsVerified(t *testing.T) {
	h := newHarness(t, quietOptions(), nil)
	h.awaiting(t, "מלון דן", nil)

	h.text("yes")

	require.Equal(t, 1, h.verify.calls())
	require.Nil(t, h.session(t))
	v, err := h.catalog.GetVenue(context.Background(), "מלון-דן")
	require.NoError(t, err)
	require.Equal(t, "מלון דן", v.Name)
	require.Len(t, v.Reviews, 1)
	require.Contains(t, h.msgr.last(), "Thank you, Sam!")
}
