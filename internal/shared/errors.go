package shared

import (
	"errors"
	"fmt"

	"github.com/odyssey-erp/tally/internal/platform/httpx"
)

var (
	// ErrNoTenant indicates the session is not bound to a company.
	ErrNoTenant = fmt.Errorf("no tenant bound to session: %w", httpx.ErrUnauthorized)
	// ErrSessionInvalid occurs when a session cannot be bound.
	ErrSessionInvalid = errors.New("session: invalid tenant or user")
)
