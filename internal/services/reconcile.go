package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"connection-chat/internal/repositories"
)

// Reconciler recomputes connection unread counters from the messages table.
type Reconciler struct {
	connections repositories.ConnectionRepository
	settings
}

// NewReconciler builds a Reconciler.
func NewReconciler(connections repositories.ConnectionRepository, opts ...Option) *Reconciler {
	return &Reconciler{
		connections: connections,
		settings:    newSettings(opts),
	}
}

// Reconcile overwrites both counters of a connection with the true unread
// counts. The store recomputes and writes them atomically.
func (r *Reconciler) Reconcile(ctx context.Context, connectionID string) error {
	doctorUnread, patientUnread, err := r.connections.RecomputeUnread(ctx, connectionID)
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", connectionID, err)
	}
	r.logger.Debug("unread counters recomputed",
		zap.String("connection_id", connectionID),
		zap.Int("doctor_unread", doctorUnread),
		zap.Int("patient_unread", patientUnread),
	)
	return nil
}

// ReconcileAll walks every active connection and returns how many were processed.
func (r *Reconciler) ReconcileAll(ctx context.Context) (int, error) {
	ids, err := r.connections.ListActiveConnectionIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active connections: %w", err)
	}
	var errs []error
	done := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := r.Reconcile(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		done++
	}
	return done, errors.Join(errs...)
}

// Run reconciles every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			done, err := r.ReconcileAll(ctx)
			if err != nil {
				r.logger.Warn("unread reconciliation incomplete", zap.Int("reconciled", done), zap.Error(err))
				continue
			}
			r.logger.Debug("unread reconciliation finished", zap.Int("reconciled", done))
		}
	}
}
