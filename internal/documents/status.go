package documents

import (
	"fmt"

	"github.com/odyssey-erp/tally/internal/platform/httpx"
)

// Status is a workflow state. Each kind accepts its own subset.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSent      Status = "SENT"
	StatusReceived  Status = "RECEIVED"
	StatusCancelled Status = "CANCELLED"
	StatusAccepted  Status = "ACCEPTED"
	StatusRejected  Status = "REJECTED"
	StatusExpired   Status = "EXPIRED"
	StatusConverted Status = "CONVERTED"
	StatusIssued    Status = "ISSUED"
	StatusPaid      Status = "PAID"
	StatusVoid      Status = "VOID"
	StatusCompleted Status = "COMPLETED"
	StatusRefunded  Status = "REFUNDED"
)

// ErrInvalidStatus indicates a transition the workflow does not allow.
var ErrInvalidStatus = fmt.Errorf("invalid status transition: %w", httpx.ErrConflict)

var transitions = map[Kind]map[Status][]Status{
	KindPurchaseOrder: {
		StatusDraft: {StatusSent, StatusCancelled},
		StatusSent:  {StatusReceived, StatusCancelled},
	},
	KindQuotation: {
		StatusDraft:    {StatusSent},
		StatusSent:     {StatusAccepted, StatusRejected, StatusExpired},
		StatusAccepted: {StatusConverted},
	},
	KindInvoice: {
		StatusDraft:  {StatusIssued, StatusVoid},
		StatusIssued: {StatusPaid, StatusVoid},
	},
	KindPOSSale: {
		StatusDraft:     {StatusCompleted, StatusCancelled},
		StatusCompleted: {StatusRefunded},
	},
}

// CanTransition reports whether a document of kind may move from one status to another.
func CanTransition(kind Kind, from, to Status) bool {
	for _, next := range transitions[kind][from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidStatus reports whether status belongs to the workflow of kind.
func ValidStatus(kind Kind, status Status) bool {
	if status == StatusDraft {
		return kind.Valid()
	}
	for _, targets := range transitions[kind] {
		for _, s := range targets {
			if s == status {
				return true
			}
		}
	}
	return false
}
