package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyStatuses(t *testing.T) {
	want := map[Code]int{
		CodeValidation:    http.StatusBadRequest,
		CodeUnauthorized:  http.StatusUnauthorized,
		CodeForbidden:     http.StatusForbidden,
		CodeNotFound:      http.StatusNotFound,
		CodeConflict:      http.StatusConflict,
		CodeStateConflict: http.StatusUnprocessableEntity,
		CodeOrderBlocked:  http.StatusUnprocessableEntity,
		CodeRateLimit:     http.StatusTooManyRequests,
		CodeDataIntegrity: http.StatusInternalServerError,
		CodeInternal:      http.StatusInternalServerError,
		CodeDependency:    http.StatusServiceUnavailable,
	}
	require.Len(t, policies, len(want))
	for code, status := range want {
		p := code.Policy()
		assert.Equal(t, status, p.Status, code)
		assert.NotEmpty(t, p.Fallback, code)
	}
}

func TestServerSideCodesHideTheirMessages(t *testing.T) {
	for code, p := range policies {
		if p.Status >= http.StatusInternalServerError {
			assert.False(t, p.Public, "%s must not expose its message", code)
		}
	}
}

func TestUnknownCodeFallsBackToInternal(t *testing.T) {
	assert.Equal(t, CodeInternal.Policy(), Code("SOMETHING_ELSE").Policy())
}

func TestWrapKeepsCauseAndDetails(t *testing.T) {
	cause := stdErrors.New("connection reset")
	err := Wrap(CodeDependency, cause, "zinc order status").WithDetails(map[string]string{"request_id": "zr_1"})

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, CodeDependency, err.Code())
	assert.Equal(t, "zinc order status", err.Message())
	assert.Equal(t, map[string]string{"request_id": "zr_1"}, err.Details())
	assert.Equal(t, "DEPENDENCY_ERROR: zinc order status: connection reset", err.Error())
	assert.Equal(t, "VALIDATION_ERROR", New(CodeValidation, "").Error())
}

func TestNilErrorIsSafe(t *testing.T) {
	var e *Error
	assert.Equal(t, CodeInternal, e.Code())
	assert.Empty(t, e.Message())
	assert.Nil(t, e.Details())
	assert.Nil(t, e.Unwrap())
	assert.Nil(t, e.WithDetails("x"))
}

func TestClassificationThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("submit order: %w", Wrap(CodeDependency, stdErrors.New("timeout"), "marketplace request"))

	require.NotNil(t, As(wrapped))
	assert.Nil(t, As(nil))
	assert.Nil(t, As(stdErrors.New("plain")))

	assert.True(t, IsCode(wrapped, CodeDependency))
	assert.False(t, IsCode(wrapped, CodeValidation))
	assert.False(t, IsCode(nil, CodeInternal))

	assert.False(t, IsPermanent(wrapped))
	assert.True(t, IsPermanent(New(CodeDataIntegrity, "no order for session")))
	assert.False(t, IsPermanent(stdErrors.New("plain")), "untyped errors are treated as transient")
}

func TestDumpReadsPgxErrors(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "orders_marketplace_order_id_key", TableName: "orders", Message: "duplicate key value"}
	dump := Dump(Wrap(CodeConflict, pgErr, "persist marketplace id"))

	assert.Equal(t, CodeConflict, dump.Code)
	require.NotNil(t, dump.Postgres)
	assert.Equal(t, "23505", dump.Postgres.Code)
	assert.Equal(t, "orders", dump.Postgres.Table)
	assert.GreaterOrEqual(t, len(dump.Chain), 2)
	assert.Equal(t, "orders_marketplace_order_id_key", dump.Fields()["pg_constraint"])
}

func TestDumpReadsLibPQErrors(t *testing.T) {
	dump := Dump(fmt.Errorf("insert: %w", &pq.Error{Code: "23503", Table: "verification_audits", Message: "foreign key violation"}))

	require.NotNil(t, dump.Postgres)
	assert.Equal(t, "23503", dump.Postgres.Code)
	assert.Equal(t, "verification_audits", dump.Postgres.Table)
	assert.Contains(t, dump.Fields(), "error_code")
}

func TestDumpOmitsPostgresFieldsForOtherErrors(t *testing.T) {
	assert.NotContains(t, Dump(New(CodeValidation, "bad")).Fields(), "pg_code")
	assert.Equal(t, ErrorDump{}, Dump(nil))
}
