// Submission pipeline: takes an accepted medicine record, derives its
// ledger representation, and drives the external client to a terminal
// outcome — without ever touching the request path that triggered it.
//
// Containment is the point of this type. By the time Submit is called the
// record is already cached and broadcast and the HTTP caller has its 200;
// nothing that happens here (ledger rejection, network failure, confirmation
// timeout, journal write error) may propagate out. Outcomes are observable
// only through logs, metrics, the journal, and the optional hook.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/arnavsinghal09/medtrack-server/internal/domain"
	"github.com/arnavsinghal09/medtrack-server/internal/validate"
)

var (
	// ledgerSubmissions counts terminal pipeline outcomes by status.
	ledgerSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_submissions_total",
			Help: "Total number of ledger submission attempts by terminal status.",
		},
		[]string{"status"},
	)

	// ledgerLatency records wall time from submission start to terminal
	// outcome. Buckets are wide: confirmation rides on block times.
	ledgerLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledger_submission_duration_seconds",
		Help:    "Duration of ledger submissions from start to terminal outcome.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})
)

func init() {
	prometheus.MustRegister(ledgerSubmissions, ledgerLatency)
}

// Journal persists submission attempts and their outcomes. Implementations
// must tolerate concurrent writers; errors are logged and swallowed by the
// pipeline (the journal is observability, not a dependency).
type Journal interface {
	// CreateSubmission inserts a pending journal row before the write.
	CreateSubmission(ctx context.Context, sub *domain.LedgerSubmission) error
	// RecordOutcome marks a journal row confirmed or failed.
	RecordOutcome(ctx context.Context, id string, outcome domain.SubmissionOutcome) error
}

// Pipeline submits validated medicine records to the ledger asynchronously.
//
// Each Submit spawns one detached task; tasks share no mutable state and
// complete independently, so a failure for one record cannot delay or alter
// the outcome of another, and confirmations may land out of submission
// order. There is no cancellation: an in-flight submission runs to its
// terminal outcome regardless of later cache overwrites.
type Pipeline struct {
	client  Client
	journal Journal // nil disables journaling
	log     zerolog.Logger

	// ConfirmTimeout bounds one whole submission (write + confirmation
	// wait). On expiry the attempt is recorded as failed; the transaction
	// may still be mined later, which is accepted.
	ConfirmTimeout time.Duration

	// OnOutcome, when set, is invoked with every terminal outcome. Used by
	// tests and by operators wanting custom signaling; must not block.
	OnOutcome func(domain.SubmissionOutcome)

	// spawn is the task-spawning seam; tests replace it to run inline.
	spawn func(task func())
	wg    sync.WaitGroup
}

// NewPipeline builds a pipeline over the given client. journal may be nil.
func NewPipeline(client Client, journal Journal, log zerolog.Logger) *Pipeline {
	p := &Pipeline{
		client:         client,
		journal:        journal,
		log:            log.With().Str("component", "ledger").Logger(),
		ConfirmTimeout: 2 * time.Minute,
	}
	p.spawn = func(task func()) {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			task()
		}()
	}
	return p
}

// Submit enqueues one detached submission for rec and returns immediately.
// The caller gets no outcome; see the type comment for how outcomes surface.
func (p *Pipeline) Submit(rec *domain.MedicineRecord) {
	p.spawn(func() { p.run(rec) })
}

// Wait blocks until all in-flight submissions reach a terminal outcome.
// Used for graceful shutdown and by tests.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// run executes the five pipeline steps for one record and records the
// terminal outcome. It never returns an error and never panics outward.
func (p *Pipeline) run(rec *domain.MedicineRecord) {
	start := time.Now()

	// Step 1: defensive re-validation. Upstream should have validated, but
	// the pipeline does not assume it; an invalid record fails silently.
	if err := validate.Record(rec); err != nil {
		p.finish(nil, domain.SubmissionOutcome{
			BatchID: batchID(rec),
			Status:  domain.SubmissionFailed,
			Reason:  err.Error(),
		}, start)
		return
	}

	// Step 2: calendar dates to truncated epoch seconds.
	mfg, _ := validate.ParseDate(rec.ManufacturingDate)
	exp, _ := validate.ParseDate(rec.ExpiryDate)
	args := RecordArgs{
		BatchID:         rec.BatchID,
		Name:            rec.Name,
		Manufacturer:    rec.Manufacturer,
		ManufacturingAt: mfg.Unix(),
		ExpiryAt:        exp.Unix(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.ConfirmTimeout)
	defer cancel()

	sub := p.journalStart(ctx, args)

	// Step 3: the ledger write.
	pending, err := p.client.RegisterRecord(ctx, args)
	if err != nil {
		p.finish(sub, domain.SubmissionOutcome{
			BatchID: args.BatchID,
			Status:  domain.SubmissionFailed,
			Reason:  err.Error(),
		}, start)
		return
	}

	// Step 4: wait for durable inclusion.
	ref, err := p.client.AwaitConfirmation(ctx, pending)
	if err != nil {
		p.finish(sub, domain.SubmissionOutcome{
			BatchID:   args.BatchID,
			Status:    domain.SubmissionFailed,
			Reference: pending.Ref,
			Reason:    err.Error(),
		}, start)
		return
	}

	// Step 5: terminal success.
	p.finish(sub, domain.SubmissionOutcome{
		BatchID:   args.BatchID,
		Status:    domain.SubmissionConfirmed,
		Reference: ref,
	}, start)
}

// journalStart inserts the pending journal row. Best effort: on failure the
// submission proceeds unjournaled.
func (p *Pipeline) journalStart(ctx context.Context, args RecordArgs) *domain.LedgerSubmission {
	if p.journal == nil {
		return nil
	}
	sub := &domain.LedgerSubmission{
		ID:              uuid.NewString(),
		BatchID:         args.BatchID,
		Name:            args.Name,
		Manufacturer:    args.Manufacturer,
		ManufacturingAt: args.ManufacturingAt,
		ExpiryAt:        args.ExpiryAt,
		Status:          string(domain.SubmissionPending),
	}
	if err := p.journal.CreateSubmission(ctx, sub); err != nil {
		p.log.Warn().Err(err).Str("batch_id", args.BatchID).Msg("journal insert failed")
		return nil
	}
	return sub
}

// finish records the terminal outcome everywhere it is observable: journal,
// metrics, logs, and the hook.
func (p *Pipeline) finish(sub *domain.LedgerSubmission, out domain.SubmissionOutcome, start time.Time) {
	elapsed := time.Since(start)
	ledgerSubmissions.WithLabelValues(string(out.Status)).Inc()
	ledgerLatency.Observe(elapsed.Seconds())

	if sub != nil && p.journal != nil {
		// Outcome persistence gets its own deadline; the submission context
		// may already be expired when we get here.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := p.journal.RecordOutcome(ctx, sub.ID, out); err != nil {
			p.log.Warn().Err(err).Str("batch_id", out.BatchID).Msg("journal outcome update failed")
		}
		cancel()
	}

	ev := p.log.Info()
	if out.Status == domain.SubmissionFailed {
		ev = p.log.Error()
	}
	ev.Str("batch_id", out.BatchID).
		Str("status", string(out.Status)).
		Str("reference", out.Reference).
		Str("reason", out.Reason).
		Dur("elapsed", elapsed).
		Msg("ledger submission finished")

	if p.OnOutcome != nil {
		p.OnOutcome(out)
	}
}

// batchID tolerates the nil record that a defensive validation failure can
// hand us.
func batchID(rec *domain.MedicineRecord) string {
	if rec == nil {
		return ""
	}
	return rec.BatchID
}
