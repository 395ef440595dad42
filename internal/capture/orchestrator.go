package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/banshee-data/signature.capture/internal/db"
	"github.com/banshee-data/signature.capture/internal/imaging"
)

// Transport is the link to the pad as seen by the orchestrator.
type Transport interface {
	LineSource
	SendCommand(command string) error
	// Drain discards pending lines; with quiet > 0 it waits until the line
	// has been silent for quiet.
	Drain(ctx context.Context, quiet time.Duration) (int, error)
}

// Saver persists a finished bitmap and returns where it was written.
type Saver interface {
	Save(img image.Image, serial string) (string, error)
}

// Ledger records the outcome of every round.
type Ledger interface {
	RecordCapture(ctx context.Context, c db.Capture) error
}

// Reporter is told about every finished round.
type Reporter interface {
	Report(Result)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Result)

func (f ReporterFunc) Report(r Result) { f(r) }

// Mode selects how many rounds Run drives.
type Mode int

const (
	// ModeSingle runs exactly one round.
	ModeSingle Mode = iota
	// ModeInteractive asks a Continuer before every round.
	ModeInteractive
)

// DefaultSettleTime is how long the line must stay silent before a round
// that follows a broken frame sends its trigger.
const DefaultSettleTime = 200 * time.Millisecond

// Options are the per-run protocol settings.
type Options struct {
	DefaultWidth  int
	DefaultHeight int
	LineTimeout   time.Duration
	SettleTime    time.Duration
}

// Result describes one finished round.
type Result struct {
	RoundID    string
	Serial     string
	Width      int
	Height     int
	Samples    int
	Path       string
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

// Summary totals the rounds of a Run.
type Summary struct {
	Rounds      int
	Saved       int
	Failed      int
	Paths       []string
	Interrupted bool
}

// Orchestrator drives capture rounds over a Transport it does not own: the
// caller opens the transport once and closes it once after Run returns.
type Orchestrator struct {
	transport Transport
	saver     Saver
	pipeline  *imaging.Pipeline
	ledger    Ledger
	reporter  Reporter
	clock     clockwork.Clock
	opts      Options

	// set when the last round may have left part of a frame on the line
	unsettled bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPipeline replaces the default render pipeline.
func WithPipeline(p *imaging.Pipeline) Option {
	return func(o *Orchestrator) { o.pipeline = p }
}

// WithLedger records every round in l.
func WithLedger(l Ledger) Option {
	return func(o *Orchestrator) { o.ledger = l }
}

// WithReporter sends every finished round to r.
func WithReporter(r Reporter) Option {
	return func(o *Orchestrator) { o.reporter = r }
}

// WithClock sets the clock used for round timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// NewOrchestrator returns an Orchestrator using t for the protocol and s for
// persistence.
func NewOrchestrator(t Transport, s Saver, opts Options, options ...Option) *Orchestrator {
	if opts.LineTimeout <= 0 {
		opts.LineTimeout = DefaultLineTimeout
	}
	if opts.SettleTime <= 0 {
		opts.SettleTime = DefaultSettleTime
	}
	o := &Orchestrator{
		transport: t,
		saver:     s,
		pipeline:  imaging.NewPipeline(),
		clock:     clockwork.NewRealClock(),
		opts:      opts,
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// RunOnce triggers one capture, renders it and saves it. Protocol and
// persistence failures come back as *Error; an interrupt comes back as the
// context error.
func (o *Orchestrator) RunOnce(ctx context.Context) (Result, error) {
	res := Result{
		RoundID:   uuid.NewString(),
		StartedAt: o.clock.Now(),
	}
	logger := log.With().Str("round", res.RoundID).Logger()

	path, err := o.round(ctx, &res)
	switch KindOf(err) {
	case KindTimeout, KindInvalidData:
		o.unsettled = true
	}
	res.Path = path
	res.Err = err
	res.FinishedAt = o.clock.Now()

	if err != nil {
		logger.Error().Err(err).
			Str("kind", KindOf(err).String()).
			Str("serial", res.Serial).
			Msg("capture round failed")
	} else {
		logger.Info().
			Str("serial", res.Serial).
			Str("path", path).
			Int("samples", res.Samples).
			Dur("elapsed", res.FinishedAt.Sub(res.StartedAt)).
			Msg("signature saved")
	}

	o.record(ctx, res)
	if o.reporter != nil {
		o.reporter.Report(res)
	}
	return res, err
}

func (o *Orchestrator) round(ctx context.Context, res *Result) (string, error) {
	var quiet time.Duration
	if o.unsettled {
		quiet = o.opts.SettleTime
	}
	n, err := o.transport.Drain(ctx, quiet)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", newError(KindConnection, "drain", err)
	}
	if n > 0 {
		log.Debug().Int("lines", n).Msg("drained lines left from previous round")
	}
	o.unsettled = false

	if err := o.transport.SendCommand(TriggerCommand); err != nil {
		return "", newError(KindConnection, "trigger", err)
	}
	log.Debug().Msg("capture command sent")

	session := NewSession(o.opts.DefaultWidth, o.opts.DefaultHeight)
	frame, err := Receive(ctx, o.transport, session, o.opts.LineTimeout)
	res.Serial = session.frame.Serial
	if err != nil {
		return "", err
	}
	res.Width, res.Height, res.Samples = frame.Width, frame.Height, len(frame.Samples)

	img, err := o.pipeline.Render(frame.Width, frame.Height, frame.Samples)
	switch {
	case errors.Is(err, imaging.ErrBlank):
		return "", newError(KindEmptySignature, "render", err)
	case err != nil:
		return "", newError(KindInvalidData, "render", err)
	}

	path, err := o.saver.Save(img, frame.Serial)
	if err != nil {
		return "", newError(KindSaveImage, "save", err)
	}
	return path, nil
}

func (o *Orchestrator) record(ctx context.Context, res Result) {
	if o.ledger == nil {
		return
	}
	c := db.Capture{
		RoundID:    res.RoundID,
		Serial:     res.Serial,
		Status:     db.StatusSaved,
		Path:       res.Path,
		Width:      res.Width,
		Height:     res.Height,
		Samples:    res.Samples,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}
	if res.Err != nil {
		c.Status = db.StatusFailed
		c.ErrorKind = KindOf(res.Err).String()
		c.ErrorMessage = res.Err.Error()
		if errors.Is(res.Err, context.Canceled) {
			c.Status = db.StatusInterrupted
		}
	}
	// an interrupted round is still recorded
	if err := o.ledger.RecordCapture(context.WithoutCancel(ctx), c); err != nil {
		log.Warn().Err(err).Str("round", res.RoundID).Msg("failed to record capture")
	}
}

// Run drives rounds according to mode. In ModeSingle the round's error is
// returned. In ModeInteractive per-round protocol and save failures are
// reported and the loop goes on until cont declines or ctx is cancelled;
// connection failures and unclassified errors end the loop and are returned.
// Cancellation is a clean stop, not an error.
func (o *Orchestrator) Run(ctx context.Context, mode Mode, cont Continuer) (Summary, error) {
	var sum Summary

	if mode == ModeSingle {
		res, err := o.RunOnce(ctx)
		sum.add(res)
		if err != nil && ctx.Err() != nil {
			sum.Interrupted = true
		}
		return sum, err
	}

	if cont == nil {
		return sum, fmt.Errorf("interactive mode requires a continuer")
	}

	for {
		ok, err := cont.Continue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				sum.Interrupted = true
				return sum, nil
			}
			return sum, fmt.Errorf("failed to read continuation: %w", err)
		}
		if !ok {
			log.Info().Int("rounds", sum.Rounds).Msg("capture loop stopped by user")
			return sum, nil
		}

		res, err := o.RunOnce(ctx)
		sum.add(res)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			log.Warn().Msg("capture interrupted")
			sum.Interrupted = true
			return sum, nil
		}
		switch KindOf(err) {
		case KindTimeout, KindInvalidData, KindEmptySignature, KindSaveImage:
			continue
		default:
			return sum, err
		}
	}
}

func (s *Summary) add(r Result) {
	s.Rounds++
	if r.Err != nil {
		s.Failed++
		return
	}
	s.Saved++
	s.Paths = append(s.Paths, r.Path)
}
