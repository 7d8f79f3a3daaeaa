package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kimberlite/internal/ids"
	"kimberlite/internal/ioengine"
	"kimberlite/internal/kernel"
	"kimberlite/internal/migrate"
	"kimberlite/internal/policy"
	"kimberlite/internal/query"
	"kimberlite/internal/ratelimit"
	"kimberlite/internal/schema"
)

func newTestRuntime() *Runtime {
	return New(Config{BaseDir: "/sim", Backend: ioengine.NewSimBackend()})
}

const tenant42 = ids.TenantId(42)

func TestSubmitCreateStreamAndAppend(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime()

	_, err := rt.CreateStream(ctx, tenant42, kernel.CreateStreamWithAutoId{
		Name:      "events",
		DataClass: schema.DataClassPublic,
		Placement: schema.GlobalPlacement(),
	})
	require.NoError(t, err)

	streamId := ids.NewStreamId(tenant42, 1)
	effects, err := rt.AppendBatch(ctx, tenant42, kernel.AppendBatch{
		StreamId:       streamId,
		Events:         [][]byte{[]byte("e1"), []byte("e2"), []byte("e3")},
		ExpectedOffset: 0,
	})
	require.NoError(t, err)
	assert.Len(t, effects, 3) // StorageAppend, WakeProjection, AuditLogAppend

	meta, ok := rt.State().Streams.Get(streamId)
	require.True(t, ok)
	assert.EqualValues(t, 3, meta.CurrentOffset)
}

func TestExecuteDDLAndWriteRoundTrip(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime()

	_, _, err := rt.ExecuteDDL(ctx, tenant42, `CREATE TABLE users (id BIGINT PRIMARY KEY, name TEXT NOT NULL, ssn TEXT, tenant_id BIGINT NOT NULL)`, false)
	require.NoError(t, err)

	_, _, err = rt.ExecuteWrite(ctx, tenant42, `INSERT INTO users (id, name, ssn, tenant_id) VALUES (1, 'Alice', '111-2222', 42)`, nil, false)
	require.NoError(t, err)
	_, _, err = rt.ExecuteWrite(ctx, tenant42, `INSERT INTO users (id, name, ssn, tenant_id) VALUES (2, 'Bob', '333-4444', 41)`, nil, false)
	require.NoError(t, err)

	rows, err := rt.Query(policy.AccessPolicy{Role: policy.RoleAdmin}, `SELECT id, name FROM users`, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestQueryHonorsRbacRewrite(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime()

	_, _, err := rt.ExecuteDDL(ctx, tenant42, `CREATE TABLE users (id BIGINT PRIMARY KEY, name TEXT NOT NULL, ssn TEXT, tenant_id BIGINT NOT NULL)`, false)
	require.NoError(t, err)
	_, _, err = rt.ExecuteWrite(ctx, tenant42, `INSERT INTO users (id, name, ssn, tenant_id) VALUES (1, 'Alice', '111', 42)`, nil, false)
	require.NoError(t, err)
	_, _, err = rt.ExecuteWrite(ctx, tenant42, `INSERT INTO users (id, name, ssn, tenant_id) VALUES (2, 'Bob', '222', 41)`, nil, false)
	require.NoError(t, err)
	_, _, err = rt.ExecuteWrite(ctx, tenant42, `INSERT INTO users (id, name, ssn, tenant_id) VALUES (3, 'Carl', '333', 43)`, nil, false)
	require.NoError(t, err)

	tenant := ids.TenantId(42)
	ap := policy.AccessPolicy{Role: policy.RoleUser, Tenant: &tenant, DenyColumns: []string{"ssn"}}
	rows, err := rt.Query(ap, `SELECT id, name, tenant_id FROM users`, nil)
	require.NoError(t, err)
	if assert.Len(t, rows, 1) {
		assert.Equal(t, int64(1), rows[0]["id"])
		_, hasSSN := rows[0]["ssn"]
		assert.False(t, hasSSN)
	}
}

func TestExecuteDDLRefusesDropTableWithoutUnsafe(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime()

	_, _, err := rt.ExecuteDDL(ctx, tenant42, `CREATE TABLE users (id BIGINT PRIMARY KEY)`, false)
	require.NoError(t, err)

	_, warnings, err := rt.ExecuteDDL(ctx, tenant42, `DROP TABLE users`, false)
	assert.Error(t, err)
	if assert.Len(t, warnings, 1) {
		assert.Equal(t, "DANGER", string(warnings[0].Level))
	}

	_, _, err = rt.ExecuteDDL(ctx, tenant42, `DROP TABLE users`, true)
	assert.NoError(t, err)
}

func TestQueryAtReturnsPointInTimeView(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime()

	_, _, err := rt.ExecuteDDL(ctx, tenant42, `CREATE TABLE users (id BIGINT PRIMARY KEY, name TEXT NOT NULL)`, false)
	require.NoError(t, err)

	_, _, err = rt.ExecuteWrite(ctx, tenant42, `INSERT INTO users (id, name) VALUES (1, 'Alice')`, nil, false)
	require.NoError(t, err)
	_, _, err = rt.ExecuteWrite(ctx, tenant42, `INSERT INTO users (id, name) VALUES (2, 'Bob')`, nil, false)
	require.NoError(t, err)

	tableId, ok := rt.State().TableNameIndex.Get("users")
	require.True(t, ok)
	applied, ok := rt.Store().AppliedPosition(tableId)
	require.True(t, ok)

	rowsBeforeBob, err := rt.QueryAt(policy.AccessPolicy{Role: policy.RoleAdmin}, `SELECT id FROM users`, nil, applied-1)
	require.NoError(t, err)
	assert.Len(t, rowsBeforeBob, 1)

	rowsAtHead, err := rt.QueryAt(policy.AccessPolicy{Role: policy.RoleAdmin}, `SELECT id FROM users`, nil, applied)
	require.NoError(t, err)
	assert.Len(t, rowsAtHead, 2)
}

func TestSubmitRateLimitedPerTenant(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMock()
	rt := New(Config{
		BaseDir:        "/sim",
		Backend:        ioengine.NewSimBackend(),
		RateLimit:      &ratelimit.Config{MaxRequests: 2, Window: time.Minute},
		RateLimitClock: mock,
	})

	createStream := func(name string) error {
		_, err := rt.CreateStream(ctx, tenant42, kernel.CreateStreamWithAutoId{
			Name:      name,
			DataClass: schema.DataClassPublic,
			Placement: schema.GlobalPlacement(),
		})
		return err
	}
	require.NoError(t, createStream("a"))
	require.NoError(t, createStream("b"))
	require.ErrorIs(t, createStream("c"), ratelimit.ErrLimited)

	// Another tenant has its own bucket.
	_, err := rt.CreateStream(ctx, ids.TenantId(7), kernel.CreateStreamWithAutoId{
		Name:      "other",
		DataClass: schema.DataClassPublic,
		Placement: schema.GlobalPlacement(),
	})
	assert.NoError(t, err)

	// The bucket refills from the wall clock.
	mock.Add(time.Minute)
	assert.NoError(t, createStream("c"))
}

func TestQueryWithDeadlineTimesOut(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMock()
	rt := New(Config{BaseDir: "/sim", Backend: ioengine.NewSimBackend(), Clock: mock})

	_, _, err := rt.ExecuteDDL(ctx, tenant42, `CREATE TABLE users (id BIGINT PRIMARY KEY)`, false)
	require.NoError(t, err)

	_, err = rt.QueryWithDeadline(policy.AccessPolicy{Role: policy.RoleAdmin},
		`SELECT id FROM users`, nil, mock.Now().Add(-time.Second))
	require.Error(t, err)
	assert.IsType(t, &query.QueryTimeoutError{}, err)

	rows, err := rt.QueryWithDeadline(policy.AccessPolicy{Role: policy.RoleAdmin},
		`SELECT id FROM users`, nil, mock.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMigratePlanAppliesThroughRuntime(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime()

	_, _, err := rt.ExecuteDDL(ctx, tenant42,
		`CREATE TABLE patients (id BIGINT PRIMARY KEY, name TEXT NOT NULL, legacy_flag BOOLEAN)`, false)
	require.NoError(t, err)
	_, _, err = rt.ExecuteWrite(ctx, tenant42,
		`INSERT INTO patients (id, name, legacy_flag) VALUES (1, 'Alice', true)`, nil, false)
	require.NoError(t, err)

	tableId, ok := rt.State().TableNameIndex.Get("patients")
	require.True(t, ok)
	current, ok := rt.State().Tables.Get(tableId)
	require.True(t, ok)

	desired := current
	desired.Columns = nil
	for _, col := range current.Columns {
		if col.Name != "legacy_flag" {
			desired.Columns = append(desired.Columns, col)
		}
	}
	desired.Columns = append(desired.Columns, schema.ColumnDef{
		Name: "mrn", Type: schema.DataTypeText, Nullable: true,
	})

	plan, err := migrate.Diff(&current, &desired)
	require.NoError(t, err)
	assert.Equal(t, []string{"mrn"}, plan.AddedNames)
	assert.Equal(t, []string{"legacy_flag"}, plan.DroppedNames)

	_, err = rt.Submit(ctx, tenant42, plan.Command())
	require.NoError(t, err)

	altered, ok := rt.State().Tables.Get(tableId)
	require.True(t, ok)
	names := make([]string, len(altered.Columns))
	for i, col := range altered.Columns {
		names[i] = col.Name
	}
	assert.Equal(t, []string{"id", "name", "mrn"}, names)

	// Rows appended after the migration decode against the new shape.
	_, _, err = rt.ExecuteWrite(ctx, tenant42,
		`INSERT INTO patients (id, name, mrn) VALUES (2, 'Bob', 'MRN-0002')`, nil, false)
	require.NoError(t, err)

	rows, err := rt.Query(policy.AccessPolicy{Role: policy.RoleAdmin},
		`SELECT id, mrn FROM patients WHERE id = $1`, []any{int64(2)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "MRN-0002", rows[0]["mrn"])
}

func TestValidateConsentGatesMarketingPurpose(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime()

	_, _, err := rt.ExecuteDDL(ctx, tenant42, `CREATE TABLE patients (id BIGINT PRIMARY KEY)`, false)
	require.NoError(t, err)

	err = rt.ValidateConsent("patients", "subject-1", policy.PurposeMarketing)
	assert.Error(t, err) // PHI is never valid for Marketing, per the fixed matrix

	err = rt.ValidateConsent("patients", "subject-1", policy.PurposeContractual)
	assert.NoError(t, err)
}
