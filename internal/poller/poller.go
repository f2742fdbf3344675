package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/linkfeed/internal/linkextract"
	"github.com/nhle/linkfeed/internal/mailbox"
	"github.com/nhle/linkfeed/internal/metrics"
	"github.com/nhle/linkfeed/internal/model"
)

// State represents where the poller is in its cycle.
type State int

const (
	Idle State = iota
	Connecting
	Fetching
	Processing
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Fetching:
		return "fetching"
	case Processing:
		return "processing"
	default:
		return "idle"
	}
}

// Status is a snapshot of the poller for health reporting.
type Status struct {
	State     string    `json:"state"`
	LastCycle time.Time `json:"last_cycle,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Cycles    int64     `json:"cycles"`
	Processed int64     `json:"processed"`
	Stored    int64     `json:"stored"`
}

// Session is an open mailbox connection with the inbox selected.
type Session interface {
	UnseenUIDs(ctx context.Context) ([]uint32, error)
	FetchRaw(ctx context.Context, uid uint32) ([]byte, error)
	Close() error
}

// Mailbox opens sessions. Open returns a *mailbox.ConnectError when
// the server cannot be reached or rejects the credentials.
type Mailbox interface {
	Open(ctx context.Context) (Session, error)
}

// RecordWriter persists feed records with insert-or-ignore semantics.
type RecordWriter interface {
	InsertIfAbsent(ctx context.Context, rec model.FeedLinkRecord) (bool, error)
}

// Config controls poll timing.
type Config struct {
	// Interval is the sleep between cycles, and after a connect failure.
	Interval time.Duration
	// Backoff is the sleep after a cycle aborted mid-way.
	Backoff time.Duration
	// CycleTimeout bounds connecting and listing unseen mail; zero means
	// no limit. Fetching and processing are not bounded by it.
	CycleTimeout time.Duration
}

// ConfigFrom builds a Config from mailbox settings.
func ConfigFrom(c model.MailboxConfig) Config {
	return Config{
		Interval:     c.PollInterval(),
		Backoff:      c.Backoff(),
		CycleTimeout: c.FetchTimeout(),
	}
}

// Poller periodically drains unseen mail into feed records. Cycles run
// strictly one at a time.
type Poller struct {
	mailbox   Mailbox
	store     RecordWriter
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
	triggerCh chan struct{}

	mu     sync.Mutex
	status Status
	state  State
}

// New creates a Poller.
func New(mb Mailbox, w RecordWriter, cfg Config, logger *zap.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 60 * time.Second
	}
	return &Poller{
		mailbox:   mb,
		store:     w,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		triggerCh: make(chan struct{}, 1),
		status:    Status{State: Idle.String()},
	}
}

// Run loops until ctx is cancelled. A connect failure waits one interval;
// any other cycle failure waits the longer backoff. Run never returns on a
// transient failure.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller started",
		zap.Duration("interval", p.cfg.Interval),
		zap.Duration("backoff", p.cfg.Backoff),
	)

	for {
		n, err := p.Cycle(ctx)
		if ctx.Err() != nil {
			p.logger.Info("poller stopped")
			return nil
		}

		wait := p.cfg.Interval
		switch {
		case err == nil:
			metrics.RecordPollCycle(metrics.CycleOK)
			p.logger.Debug("poll cycle complete", zap.Int("stored", n))
		case mailbox.IsConnectError(err):
			metrics.RecordPollCycle(metrics.CycleConnectError)
			p.logger.Warn("mailbox unavailable, retrying next cycle", zap.Error(err))
		default:
			metrics.RecordPollCycle(metrics.CycleError)
			wait = p.cfg.Backoff
			p.logger.Error("poll cycle failed, backing off",
				zap.Error(err), zap.Duration("backoff", wait))
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.logger.Info("poller stopped")
			return nil
		case <-p.triggerCh:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Trigger wakes a sleeping Run loop so the next cycle starts immediately.
// It never blocks; a pending trigger absorbs further calls.
func (p *Poller) Trigger() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

// Cycle runs one connect, fetch, process, disconnect pass and returns how
// many new records were stored. A message that fails to fetch, parse or
// store is logged and skipped. Errors returned abort the whole cycle: the
// mailbox could not be opened or searched, or the session was lost.
func (p *Poller) Cycle(ctx context.Context) (stored int, err error) {
	defer func() {
		p.finishCycle(err)
	}()

	// CycleTimeout bounds connecting and the unseen search only, so a long
	// backlog drains in one cycle. The session lives until ctx ends.
	sessCtx, cancelSess := context.WithCancel(ctx)
	defer cancelSess()
	stopWatchdog := func() bool { return true }
	if p.cfg.CycleTimeout > 0 {
		setupCtx, cancelSetup := context.WithTimeout(ctx, p.cfg.CycleTimeout)
		defer cancelSetup()
		stopWatchdog = context.AfterFunc(setupCtx, func() {
			if errors.Is(setupCtx.Err(), context.DeadlineExceeded) {
				cancelSess()
			}
		})
	}

	p.setState(Connecting)
	sess, err := p.mailbox.Open(sessCtx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			p.logger.Debug("closing mailbox session", zap.Error(cerr))
		}
	}()

	p.setState(Fetching)
	uids, err := sess.UnseenUIDs(sessCtx)
	if !stopWatchdog() && ctx.Err() == nil {
		return 0, fmt.Errorf("connecting and listing unseen messages: timed out after %s", p.cfg.CycleTimeout)
	}
	if err != nil {
		return 0, fmt.Errorf("listing unseen messages: %w", err)
	}
	if len(uids) == 0 {
		return 0, nil
	}

	p.logger.Info("processing unseen messages", zap.Int("count", len(uids)))
	p.setState(Processing)

	for _, uid := range uids {
		if err := ctx.Err(); err != nil {
			return stored, err
		}

		raw, err := sess.FetchRaw(sessCtx, uid)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stored, ctxErr
			}
			metrics.RecordMessage(metrics.MessageFetchError)
			p.addProcessed(false)
			p.logger.Warn("fetching message, skipping",
				zap.Uint32("uid", uid), zap.Error(err))

			// A failed fetch is usually one bad message; a failed search
			// means the connection itself is gone.
			if _, lerr := sess.UnseenUIDs(sessCtx); lerr != nil {
				return stored, fmt.Errorf("mailbox session lost after fetching message %d: %w", uid, lerr)
			}
			continue
		}

		if p.processMessage(sessCtx, uid, raw) {
			stored++
		}
	}

	return stored, nil
}

// processMessage turns one raw message into at most one feed record. A
// panic is contained to the message.
func (p *Poller) processMessage(ctx context.Context, uid uint32, raw []byte) (inserted bool) {
	log := p.logger.With(zap.Uint32("uid", uid))

	defer func() {
		if r := recover(); r != nil {
			metrics.RecordMessage(metrics.MessagePanic)
			log.Error("panic processing message", zap.Any("panic", r), zap.Stack("stack"))
			inserted = false
		}
		p.addProcessed(inserted)
	}()

	msg, err := mailbox.ParseMessage(raw)
	if err != nil {
		metrics.RecordMessage(metrics.MessageParseError)
		log.Warn("parsing message", zap.Error(err))
		return false
	}
	if msg.Sender == "" {
		metrics.RecordMessage(metrics.MessageParseError)
		log.Warn("message has no sender")
		return false
	}

	link, ok := linkextract.PrimaryLink(msg.TextBody, msg.HTMLBody)
	if !ok {
		metrics.RecordMessage(metrics.MessageNoLink)
		log.Debug("no link found", zap.String("sender", msg.Sender))
		return false
	}

	now := p.now().UTC()
	rec := model.FeedLinkRecord{
		SenderEmail:    msg.Sender,
		CoreLink:       link,
		ReceivedAt:     msg.ReceivedAt.UTC(),
		ReceivedHeader: msg.Date,
		ProcessedAt:    now,
	}
	if msg.ReceivedAt.IsZero() {
		rec.ReceivedAt = now
		// An unparseable Date still identifies the message by its text.
		rec.KeyedByHeader = msg.Date != ""
	}

	// The write completes even if shutdown begins mid-insert.
	inserted, err = p.store.InsertIfAbsent(context.WithoutCancel(ctx), rec)
	if err != nil {
		metrics.RecordMessage(metrics.MessageStoreError)
		log.Error("storing feed link", zap.String("sender", rec.SenderEmail), zap.Error(err))
		return false
	}

	if !inserted {
		metrics.RecordMessage(metrics.MessageDuplicate)
		log.Debug("feed link already recorded",
			zap.String("sender", rec.SenderEmail), zap.String("link", link))
		return false
	}

	metrics.RecordMessage(metrics.MessageStored)
	log.Info("feed link stored",
		zap.String("sender", rec.SenderEmail), zap.String("link", link))
	return true
}

// Status returns a snapshot of the poller state.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.status
	s.State = p.state.String()
	return s
}

func (p *Poller) setState(state State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = state
}

func (p *Poller) addProcessed(inserted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.Processed++
	if inserted {
		p.status.Stored++
	}
}

func (p *Poller) finishCycle(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = Idle
	p.status.Cycles++
	p.status.LastCycle = p.now().UTC()
	p.status.LastError = ""
	if err != nil {
		p.status.LastError = err.Error()
	}
}
