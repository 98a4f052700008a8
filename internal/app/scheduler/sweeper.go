package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/billcraft/billcraft/internal/models"
	"github.com/billcraft/billcraft/internal/services"
	apperrors "github.com/billcraft/billcraft/pkg/errors"
	"github.com/billcraft/billcraft/pkg/logger"
	"github.com/billcraft/billcraft/pkg/metrics"
)

const defaultSweepSpec = "@every 1m"

// Sweeper drives the recurring-invoice schedule: each pass collects due
// templates, emits one invoice per due occurrence, and flags overdue invoices.
// One failing template never blocks the rest of the pass.
type Sweeper struct {
	recurring *services.RecurringService
	invoices  *services.InvoiceService

	cron *cron.Cron
	spec string
	now  func() time.Time
	log  *zap.Logger

	// Overlap guard: a pass that starts while another is still running is
	// skipped rather than queued.
	running atomic.Bool
}

// Option customises the Sweeper.
type Option func(*Sweeper)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Sweeper) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithNow overrides the clock used to decide which templates are due.
func WithNow(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSpec overrides the cron specification for sweep passes.
func WithSpec(spec string) Option {
	return func(s *Sweeper) {
		if spec != "" {
			s.spec = spec
		}
	}
}

// NewSweeper constructs a Sweeper with sensible defaults.
func NewSweeper(recurring *services.RecurringService, invoices *services.InvoiceService, opts ...Option) (*Sweeper, error) {
	if recurring == nil {
		return nil, errors.New("sweeper: recurring service is required")
	}

	sweeper := &Sweeper{
		recurring: recurring,
		invoices:  invoices,
		spec:      defaultSweepSpec,
		now:       time.Now,
		log:       logger.WithModule("sweeper"),
	}

	for _, opt := range opts {
		opt(sweeper)
	}

	if sweeper.cron == nil {
		sweeper.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return sweeper, nil
}

// Start registers the sweep job and launches the scheduler.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.spec, func() {
		if err := s.RunOnce(context.Background()); err != nil {
			s.log.Warn("sweep pass finished with errors", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("sweeper: register job: %w", err)
	}

	s.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for a running pass to complete.
func (s *Sweeper) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// RunOnce executes a single sweep pass. If another pass is still in flight
// the call is a no-op. Template failures are isolated: each failing template
// is logged and the pass continues; the combined error is returned at the end.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if !s.running.CompareAndSwap(false, true) {
		s.log.Debug("sweep pass skipped, previous pass still running")
		metrics.SweepRuns.WithLabelValues("skipped").Inc()
		return nil
	}
	defer s.running.Store(false)

	asOf := s.now()

	due, err := s.recurring.ListDue(ctx, asOf)
	if err != nil {
		metrics.SweepRuns.WithLabelValues("partial").Inc()
		return fmt.Errorf("sweeper: list due templates: %w", err)
	}

	var errs error
	generated := 0
	for _, template := range due {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}

		invoice, err := s.recurring.RunTemplate(ctx, template.ID)
		if err != nil {
			// Another pass or a manual run got there first; nothing to redo.
			if errors.Is(err, services.ErrTemplateAdvanced) {
				continue
			}
			s.log.Warn("template run failed",
				zap.String("template_id", template.ID),
				zap.String("workspace_id", template.WorkspaceID),
				zap.Error(err),
			)
			errs = multierr.Append(errs, fmt.Errorf("template %s: %w", template.ID, err))
			continue
		}

		generated++
		s.log.Info("invoice generated",
			zap.String("template_id", template.ID),
			zap.String("invoice_id", invoice.ID),
			zap.String("number", invoice.Number),
		)
	}

	if s.invoices != nil {
		flipped, err := s.invoices.MarkOverdue(ctx, asOf)
		if err != nil {
			errs = multierr.Append(errs, err)
		} else if flipped > 0 {
			s.log.Info("invoices marked overdue", zap.Int64("count", flipped))
		}
	}

	if errs != nil {
		metrics.SweepRuns.WithLabelValues("partial").Inc()
	} else {
		metrics.SweepRuns.WithLabelValues("success").Inc()
	}

	if generated > 0 || errs != nil {
		s.log.Info("sweep pass complete",
			zap.Int("due", len(due)),
			zap.Int("generated", generated),
			zap.Bool("had_errors", errs != nil),
		)
	}

	return errs
}

// RunTemplateNow triggers a single template outside the schedule, used by the
// manual run endpoint. Inactive templates are rejected before any work.
func (s *Sweeper) RunTemplateNow(ctx context.Context, workspaceID, templateID string) (*models.Invoice, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	template, err := s.recurring.Get(ctx, workspaceID, templateID)
	if err != nil {
		return nil, err
	}
	if template.Status != models.RecurringActive {
		return nil, apperrors.ErrInvalidState.WithMessage("template is not active")
	}

	return s.recurring.RunTemplate(ctx, template.ID)
}
