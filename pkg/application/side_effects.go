package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vlinder/social-grant/pkg/credential"
	"github.com/vlinder/social-grant/pkg/notice"
	"github.com/vlinder/social-grant/pkg/outbox"
)

type credentialTask struct {
	NationalID    string `json:"nationalId"`
	FullName      string `json:"fullName"`
	ApplicationID string `json:"applicationId"`
}

type approvalTask struct {
	Email         string `json:"email"`
	FullName      string `json:"fullName"`
	ApplicationID string `json:"applicationId"`
	NationalID    string `json:"nationalId"`
}

type purchaseTask struct {
	Email            string    `json:"email"`
	FullName         string    `json:"fullName"`
	TransactionID    string    `json:"transactionId"`
	ProductName      string    `json:"productName"`
	AmountDeducted   float64   `json:"amountDeducted"`
	RemainingBalance string    `json:"remainingBalance"`
	Currency         string    `json:"currency"`
	PurchaseDate     time.Time `json:"purchaseDate"`
}

func (t purchaseTask) context() notice.PurchaseContext {
	return notice.PurchaseContext{
		Email:            t.Email,
		FullName:         t.FullName,
		TransactionID:    t.TransactionID,
		ProductName:      t.ProductName,
		AmountDeducted:   t.AmountDeducted,
		RemainingBalance: t.RemainingBalance,
		Currency:         t.Currency,
		PurchaseDate:     t.PurchaseDate,
	}
}

// issueCredential appends the citizen to the credential feed and returns the stored row
func (s *ApplicationService) issueCredential(ctx context.Context, app *Application) (bool, *credential.Record) {
	if s.feed == nil {
		return false, nil
	}

	result, err := s.feed.Append(ctx, app.NationalID, app.FullName)
	if err != nil || !result.Success {
		if err == nil {
			err = fmt.Errorf("credential feed rejected append: %s", result.Message)
		}
		slog.Error("Credential feed update failed", "applicationId", app.ApplicationID, "err", err)
		s.deferTask(ctx, outbox.KindCredentialAppend, credentialTask{
			NationalID:    app.NationalID,
			FullName:      app.FullName,
			ApplicationID: app.ApplicationID,
		})
		return false, nil
	}
	slog.Info("Credential feed updated", "applicationId", app.ApplicationID, "message", result.Message)

	record, err := s.feed.Get(ctx, app.NationalID)
	if err != nil {
		slog.Warn("Failed to read credential info", "nationalId", app.NationalID, "err", err)
	}
	return true, record
}

func (s *ApplicationService) sendApproval(ctx context.Context, task approvalTask, record *credential.Record) bool {
	if s.notifier == nil {
		return false
	}
	err := s.notifier.SendApproval(ctx, notice.ApprovalContext{
		Email:         task.Email,
		FullName:      task.FullName,
		ApplicationID: task.ApplicationID,
		NationalID:    task.NationalID,
		Credential:    record,
	})
	if err != nil {
		slog.Error("Email sending failed", "applicationId", task.ApplicationID, "err", err)
		s.deferTask(ctx, outbox.KindApprovalEmail, task)
		return false
	}
	slog.Info("Approval email sent", "to", task.Email, "applicationId", task.ApplicationID)
	return true
}

func (s *ApplicationService) sendPurchaseConfirmation(ctx context.Context, task purchaseTask) bool {
	if s.notifier == nil {
		return false
	}
	if err := s.notifier.SendPurchaseConfirmation(ctx, task.context()); err != nil {
		slog.Error("Purchase confirmation email failed (non-blocking)", "transactionId", task.TransactionID, "err", err)
		s.deferTask(ctx, outbox.KindPurchaseEmail, task)
		return false
	}
	slog.Info("Purchase confirmation email sent", "to", task.Email, "transactionId", task.TransactionID)
	return true
}

// deferTask counts the failure and hands the side effect to the outbox, when one is configured
func (s *ApplicationService) deferTask(ctx context.Context, kind string, payload interface{}) {
	if s.metrics != nil {
		s.metrics.ObserveSideEffectFailure(kind)
	}
	if s.outbox == nil {
		return
	}
	task, err := outbox.NewTask(kind, payload)
	if err != nil {
		slog.Error("Failed to build outbox task", "kind", kind, "err", err)
		return
	}
	if _, err := s.outbox.Enqueue(ctx, task); err != nil {
		slog.Error("Failed to enqueue outbox task", "kind", kind, "err", err)
		return
	}
	slog.Info("Side effect queued for retry", "kind", kind)
}

// HandlerRegistrar is satisfied by *outbox.Dispatcher
type HandlerRegistrar interface {
	Register(kind string, handler outbox.Handler)
}

// RegisterOutboxHandlers wires the retry handlers for every task kind the service enqueues
func (s *ApplicationService) RegisterOutboxHandlers(r HandlerRegistrar) {
	r.Register(outbox.KindCredentialAppend, func(ctx context.Context, task outbox.Task) error {
		var p credentialTask
		if err := task.Decode(&p); err != nil {
			return err
		}
		if s.feed == nil {
			return fmt.Errorf("credential feed is not configured")
		}
		result, err := s.feed.Append(ctx, p.NationalID, p.FullName)
		if err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("credential feed rejected append: %s", result.Message)
		}
		return nil
	})

	r.Register(outbox.KindApprovalEmail, func(ctx context.Context, task outbox.Task) error {
		var p approvalTask
		if err := task.Decode(&p); err != nil {
			return err
		}
		if s.notifier == nil {
			return fmt.Errorf("notifier is not configured")
		}
		var record *credential.Record
		if s.feed != nil {
			record, _ = s.feed.Get(ctx, p.NationalID)
		}
		return s.notifier.SendApproval(ctx, notice.ApprovalContext{
			Email:         p.Email,
			FullName:      p.FullName,
			ApplicationID: p.ApplicationID,
			NationalID:    p.NationalID,
			Credential:    record,
		})
	})

	r.Register(outbox.KindPurchaseEmail, func(ctx context.Context, task outbox.Task) error {
		var p purchaseTask
		if err := task.Decode(&p); err != nil {
			return err
		}
		if s.notifier == nil {
			return fmt.Errorf("notifier is not configured")
		}
		return s.notifier.SendPurchaseConfirmation(ctx, p.context())
	})
}
