package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jupyterlite/piplite/internal/domain"
	"github.com/jupyterlite/piplite/internal/logger"
	"github.com/jupyterlite/piplite/internal/repository"
	"github.com/sethvargo/go-retry"
)

// SagaStep represents a single step in the saga workflow
type SagaStep struct {
	Name       string
	Type       domain.OperationType
	Execute    func(ctx context.Context) (rollbackData map[string]any, err error)
	Compensate func(ctx context.Context, rollbackData map[string]any) error
	// Retry re-runs Execute with exponential backoff on failure.
	Retry bool
}

// StepError reports the step that failed a saga and, when compensation
// failed too, the rollback error.
type StepError struct {
	Step        string
	Err         error
	RollbackErr error
}

func (e *StepError) Error() string {
	if e.RollbackErr != nil {
		return fmt.Sprintf("step '%s' failed: %v, rollback also failed: %v", e.Step, e.Err, e.RollbackErr)
	}
	return fmt.Sprintf("step '%s' failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// SagaExecutor manages the execution of saga workflows with rollback support
type SagaExecutor struct {
	txRepo         repository.TransactionRepository
	tx             *domain.Transaction
	steps          []SagaStep
	enableRollback bool
	retryCount     uint64
	retryDelay     time.Duration
}

// NewSagaExecutor creates a new saga executor with a fresh transaction id
func NewSagaExecutor(txRepo repository.TransactionRepository, enableRollback bool) *SagaExecutor {
	return &SagaExecutor{
		txRepo:         txRepo,
		tx:             domain.NewTransaction(uuid.New().String()),
		steps:          []SagaStep{},
		enableRollback: enableRollback,
		retryCount:     DefaultRetryCount,
		retryDelay:     DefaultRetryDelay,
	}
}

// SetRetry changes how often retryable steps and compensations are retried
// and the initial backoff between attempts. A non-positive delay keeps the
// current one.
func (s *SagaExecutor) SetRetry(count uint64, delay time.Duration) {
	s.retryCount = count
	if delay > 0 {
		s.retryDelay = delay
	}
}

// AddStep adds a step to the saga
func (s *SagaExecutor) AddStep(step SagaStep) {
	s.steps = append(s.steps, step)
	s.tx.AddOperation(step.Type)
}

// Execute runs the saga workflow with automatic rollback on failure
func (s *SagaExecutor) Execute(ctx context.Context) error {
	ctx = logger.WithKV(ctx, "transaction", s.tx.ID)
	if s.enableRollback {
		if err := s.saveState(ctx); err != nil {
			return fmt.Errorf("failed to save initial state: %w", err)
		}
	}
	s.tx.Status = domain.TransactionStatusRunning
	for _, step := range s.steps {
		if err := s.executeStep(ctx, step); err != nil {
			s.tx.MarkOperationFailed(step.Type, err)
			if s.enableRollback {
				s.saveStateBestEffort(ctx, "before rollback")
				// Create separate context for rollback to ensure it completes
				rollbackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), RollbackTimeout)
				rollbackErr := s.rollback(rollbackCtx)
				cancel()
				if rollbackErr != nil {
					return &StepError{Step: step.Name, Err: err, RollbackErr: rollbackErr}
				}
			}
			return &StepError{Step: step.Name, Err: err}
		}
	}
	s.tx.Status = domain.TransactionStatusCompleted
	if s.enableRollback {
		s.saveStateBestEffort(ctx, "at completion")
	}
	return nil
}

// executeStep executes a single saga step, retrying it when the step allows
func (s *SagaExecutor) executeStep(ctx context.Context, step SagaStep) error {
	s.tx.MarkOperationStarted(step.Type)
	if s.enableRollback {
		s.saveStateBestEffort(ctx, "after marking operation started")
	}
	logger.DebugKV(ctx, "running step", "step", step.Name)
	var rollbackData map[string]any
	attempts := uint64(0)
	if step.Retry {
		attempts = s.retryCount
	}
	retryStrategy := retry.WithMaxRetries(attempts, retry.NewExponential(s.retryDelay))
	err := retry.Do(ctx, retryStrategy, func(retryCtx context.Context) error {
		// Check if context is canceled before executing
		select {
		case <-retryCtx.Done():
			return retryCtx.Err()
		default:
		}
		data, execErr := step.Execute(retryCtx)
		if execErr != nil {
			return retry.RetryableError(execErr)
		}
		rollbackData = data
		return nil
	})
	if err != nil {
		return err
	}
	s.tx.MarkOperationCompleted(step.Type, rollbackData)
	if s.enableRollback {
		s.saveStateBestEffort(ctx, "after marking operation completed")
	}
	return nil
}

// Rollback executes compensating actions for completed operations
func (s *SagaExecutor) Rollback(ctx context.Context) error {
	return s.rollback(ctx)
}

// rollback internal implementation
func (s *SagaExecutor) rollback(ctx context.Context) error {
	completedOps := s.tx.CompletedOperations()
	if len(completedOps) == 0 {
		logger.DebugKV(ctx, "no operations to roll back")
		return nil
	}
	logger.InfoKV(ctx, "rolling back transaction", "operations", len(completedOps))
	for _, op := range completedOps {
		// Check context cancellation
		select {
		case <-ctx.Done():
			return fmt.Errorf("rollback canceled: %w", ctx.Err())
		default:
		}
		step := s.findStepByType(op.Type)
		if step == nil || step.Compensate == nil {
			continue
		}
		logger.InfoKV(ctx, "rolling back step", "step", step.Name)
		if err := s.executeCompensation(ctx, step, op.RollbackData); err != nil {
			logger.ErrorKV(ctx, "failed to roll back step", "step", step.Name, "error", err)
			return fmt.Errorf("rollback failed for %s: %w", step.Name, err)
		}
		s.tx.MarkOperationRolledBack(op.Type)
		if s.enableRollback {
			s.saveStateBestEffort(ctx, "during rollback")
		}
	}
	s.tx.Status = domain.TransactionStatusRolledBack
	if s.enableRollback {
		s.saveStateBestEffort(ctx, "after rollback")
	}
	logger.InfoKV(ctx, "rollback completed")
	return nil
}

// executeCompensation executes a compensating action with retry
func (s *SagaExecutor) executeCompensation(ctx context.Context, step *SagaStep, rollbackData map[string]any) error {
	retryStrategy := retry.WithMaxRetries(s.retryCount, retry.NewExponential(s.retryDelay))
	return retry.Do(ctx, retryStrategy, func(retryCtx context.Context) error {
		// Check if context is canceled
		select {
		case <-retryCtx.Done():
			return retryCtx.Err()
		default:
		}
		if err := step.Compensate(retryCtx, rollbackData); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// findStepByType finds a saga step by operation type
func (s *SagaExecutor) findStepByType(opType domain.OperationType) *SagaStep {
	for i := range s.steps {
		if s.steps[i].Type == opType {
			return &s.steps[i]
		}
	}
	return nil
}

// saveState persists the current state
func (s *SagaExecutor) saveState(ctx context.Context) error {
	s.tx.UpdatedAt = timeNow()
	return s.txRepo.Save(ctx, s.tx)
}

func (s *SagaExecutor) saveStateBestEffort(ctx context.Context, when string) {
	if err := s.saveState(ctx); err != nil {
		// Log but don't fail - best effort save
		logger.WarnKV(ctx, "failed to save transaction state", "when", when, "error", err)
	}
}

// Transaction returns the transaction driven by the saga
func (s *SagaExecutor) Transaction() *domain.Transaction {
	return s.tx
}

// SetRequirements records the requested requirement strings
func (s *SagaExecutor) SetRequirements(reqs []string) {
	s.tx.Requirements = append([]string(nil), reqs...)
}

// SetPackages records the packages selected by resolution
func (s *SagaExecutor) SetPackages(pkgs []string) {
	s.tx.Packages = pkgs
}
