package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuditLogValidate(t *testing.T) {
	valid := AuditLog{CompanyID: 1, ActorID: 2, Action: "document.create", Entity: "document", EntityID: "9"}
	require.NoError(t, valid.validate())

	missingCompany := valid
	missingCompany.CompanyID = 0
	require.Error(t, missingCompany.validate())

	missingEntity := valid
	missingEntity.EntityID = ""
	require.Error(t, missingEntity.validate())
}

func TestAuditLoggerNil(t *testing.T) {
	var logger *AuditLogger
	require.Error(t, logger.Record(context.Background(), AuditLog{}))
}
