package domain

import (
	"time"
)

// TransactionStatus represents the overall status of an install transaction
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusRunning    TransactionStatus = "running"
	TransactionStatusCompleted  TransactionStatus = "completed"
	TransactionStatusFailed     TransactionStatus = "failed"
	TransactionStatusRolledBack TransactionStatus = "rolled_back"
)

// OperationStatus represents the status of an individual operation
type OperationStatus string

const (
	OperationStatusPending    OperationStatus = "pending"
	OperationStatusRunning    OperationStatus = "running"
	OperationStatusCompleted  OperationStatus = "completed"
	OperationStatusFailed     OperationStatus = "failed"
	OperationStatusRolledBack OperationStatus = "rolled_back"
)

// OperationType identifies the type of operation
type OperationType string

const (
	OperationTypeResolve   OperationType = "resolve"
	OperationTypeFetch     OperationType = "fetch"
	OperationTypeExtract   OperationType = "extract"
	OperationTypeRecord    OperationType = "record"
	OperationTypeUninstall OperationType = "uninstall"
)

// Transaction records one install or uninstall run so that it can be inspected
// and compensated after a failure.
type Transaction struct {
	ID           string            `json:"id"`
	StartedAt    time.Time         `json:"started_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	Requirements []string          `json:"requirements,omitempty"`
	Packages     []string          `json:"packages,omitempty"`
	Operations   []OperationRecord `json:"operations"`
	Status       TransactionStatus `json:"status"`
	Error        string            `json:"error,omitempty"`
}

// OperationRecord represents a single operation in the transaction
type OperationRecord struct {
	ID           string          `json:"id"`
	Type         OperationType   `json:"type"`
	Status       OperationStatus `json:"status"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	RollbackData map[string]any  `json:"rollback_data,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// NewTransaction creates a new pending transaction
func NewTransaction(id string) *Transaction {
	now := time.Now()
	return &Transaction{
		ID:         id,
		StartedAt:  now,
		UpdatedAt:  now,
		Operations: []OperationRecord{},
		Status:     TransactionStatusPending,
	}
}

// AddOperation adds a new operation record to the transaction
func (t *Transaction) AddOperation(opType OperationType) *OperationRecord {
	op := OperationRecord{
		ID:        generateOperationID(opType),
		Type:      opType,
		Status:    OperationStatusPending,
		StartedAt: time.Now(),
	}
	t.Operations = append(t.Operations, op)
	t.UpdatedAt = time.Now()
	return &t.Operations[len(t.Operations)-1]
}

// LastOperation returns the most recent operation
func (t *Transaction) LastOperation() *OperationRecord {
	if len(t.Operations) == 0 {
		return nil
	}
	return &t.Operations[len(t.Operations)-1]
}

// CompletedOperations returns all successfully completed operations in reverse order
func (t *Transaction) CompletedOperations() []OperationRecord {
	var completed []OperationRecord
	for i := len(t.Operations) - 1; i >= 0; i-- {
		if t.Operations[i].Status == OperationStatusCompleted {
			completed = append(completed, t.Operations[i])
		}
	}
	return completed
}

// MarkOperationStarted marks an operation as started
func (t *Transaction) MarkOperationStarted(opType OperationType) {
	for i := range t.Operations {
		if t.Operations[i].Type == opType && t.Operations[i].Status == OperationStatusPending {
			t.Operations[i].Status = OperationStatusRunning
			t.Operations[i].StartedAt = time.Now()
			t.UpdatedAt = time.Now()
			break
		}
	}
}

// MarkOperationCompleted marks an operation as completed with rollback data
func (t *Transaction) MarkOperationCompleted(opType OperationType, rollbackData map[string]any) {
	now := time.Now()
	for i := range t.Operations {
		if t.Operations[i].Type == opType && t.Operations[i].Status == OperationStatusRunning {
			t.Operations[i].Status = OperationStatusCompleted
			t.Operations[i].CompletedAt = &now
			t.Operations[i].RollbackData = rollbackData
			t.UpdatedAt = now
			break
		}
	}
}

// MarkOperationRolledBack marks a completed operation as compensated
func (t *Transaction) MarkOperationRolledBack(opType OperationType) {
	for i := range t.Operations {
		if t.Operations[i].Type == opType && t.Operations[i].Status == OperationStatusCompleted {
			t.Operations[i].Status = OperationStatusRolledBack
			t.UpdatedAt = time.Now()
			break
		}
	}
}

// MarkOperationFailed marks an operation as failed
func (t *Transaction) MarkOperationFailed(opType OperationType, err error) {
	now := time.Now()
	for i := range t.Operations {
		if t.Operations[i].Type == opType && t.Operations[i].Status == OperationStatusRunning {
			t.Operations[i].Status = OperationStatusFailed
			t.Operations[i].CompletedAt = &now
			t.Operations[i].Error = err.Error()
			t.UpdatedAt = now
			break
		}
	}
	t.Status = TransactionStatusFailed
	t.Error = err.Error()
}

// generateOperationID creates a unique ID for an operation
func generateOperationID(opType OperationType) string {
	return string(opType) + "_" + time.Now().Format("20060102150405")
}
