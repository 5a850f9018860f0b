// Package repository provides data access for import-related entities.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/collections-portal/internal/domain/import/mapping"
)

var (
	ErrBatchNotFound         = errors.New("import batch not found")
	ErrTemplateNotFound      = errors.New("mapping template not found")
	ErrTemplateExists        = errors.New("a template with this name already exists for the client")
	ErrAccountNumberConflict = errors.New("account number already exists")
	ErrUnknownClient         = errors.New("client does not exist")
)

// RollbackRejectedError is returned when the rollback_import function itself
// raised an error. Message is the database's text, unmodified.
type RollbackRejectedError struct {
	Message string
	Err     error
}

func (e *RollbackRejectedError) Error() string { return "rollback rejected: " + e.Message }
func (e *RollbackRejectedError) Unwrap() error { return e.Err }

// ImportBatch is one completed import and the accounts it created.
type ImportBatch struct {
	ID           uuid.UUID   `db:"id" json:"id"`
	ClientID     uuid.UUID   `db:"client_id" json:"client_id"`
	ClientName   string      `db:"client_name" json:"client_name"`
	AccountCount int         `db:"account_count" json:"account_count"`
	AccountIDs   []uuid.UUID `db:"account_ids" json:"account_ids"`
	PhoneCount   int         `db:"-" json:"phone_count"`
	CreatedBy    *uuid.UUID  `db:"created_by" json:"created_by,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
}

// MappingTemplate is a saved header mapping, matched to new uploads by
// header fingerprint.
type MappingTemplate struct {
	ID          uuid.UUID             `json:"id"`
	ClientID    uuid.UUID             `json:"client_id"`
	Name        string                `json:"name"`
	Fingerprint string                `json:"fingerprint"`
	Mapping     mapping.HeaderMapping `json:"mapping"`
	CreatedAt   time.Time             `json:"created_at"`
}

// ImportRepository defines data access operations for imports
type ImportRepository interface {
	// InsertBatch writes accounts, their phone numbers and the history row
	// in one transaction.
	InsertBatch(ctx context.Context, batch *mapping.Batch, clientID uuid.UUID, createdBy *uuid.UUID) (*ImportBatch, error)
	// RollbackImport deletes the batch's accounts and history row atomically
	// and returns the number of accounts removed.
	RollbackImport(ctx context.Context, batchID uuid.UUID) (int, error)
	ListBatches(ctx context.Context, clientID *uuid.UUID, limit int) ([]*ImportBatch, error)
	GetBatch(ctx context.Context, batchID uuid.UUID) (*ImportBatch, error)

	// Mapping templates
	CreateTemplate(ctx context.Context, t *MappingTemplate) error
	ListTemplates(ctx context.Context, clientID uuid.UUID) ([]*MappingTemplate, error)
	GetTemplateByFingerprint(ctx context.Context, clientID *uuid.UUID, fingerprint string) (*MappingTemplate, error)
	DeleteTemplate(ctx context.Context, clientID *uuid.UUID, id uuid.UUID) error
}
