package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"kimberlite/internal/policy"
)

// snapshotCmd inserts two rows, deletes one,
// and show that a point-in-time query sees exactly the rows that were
// visible and not yet tombstoned at that offset.
func snapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Insert, delete, and query a table at three points in time",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runSnapshot()
		},
	}
}

func runSnapshot() error {
	ctx := context.Background()
	rt, err := newSimRuntime()
	if err != nil {
		return err
	}

	if _, _, err := rt.ExecuteDDL(ctx, demoTenant, `CREATE TABLE users (id BIGINT PRIMARY KEY, name TEXT NOT NULL)`, false); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	tableId, ok := rt.State().TableNameIndex.Get("users")
	if !ok {
		return fmt.Errorf("table users missing from catalog right after create")
	}

	if _, _, err := rt.ExecuteWrite(ctx, demoTenant, `INSERT INTO users (id, name) VALUES (1, 'Alice')`, nil, false); err != nil {
		return fmt.Errorf("insert alice: %w", err)
	}
	afterAlice, ok := rt.Store().AppliedPosition(tableId)
	if !ok {
		return fmt.Errorf("no applied position for users after inserting alice")
	}

	if _, _, err := rt.ExecuteWrite(ctx, demoTenant, `INSERT INTO users (id, name) VALUES (2, 'Bob')`, nil, false); err != nil {
		return fmt.Errorf("insert bob: %w", err)
	}
	afterBob, ok := rt.Store().AppliedPosition(tableId)
	if !ok {
		return fmt.Errorf("no applied position for users after inserting bob")
	}

	if _, _, err := rt.ExecuteWrite(ctx, demoTenant, `DELETE FROM users WHERE id = 1`, nil, false); err != nil {
		return fmt.Errorf("delete alice: %w", err)
	}
	afterDelete, ok := rt.Store().AppliedPosition(tableId)
	if !ok {
		return fmt.Errorf("no applied position for users after deleting alice")
	}

	admin := policy.AccessPolicy{Role: policy.RoleAdmin}

	beforeBob, err := rt.QueryAt(admin, `SELECT id, name FROM users`, nil, afterAlice)
	if err != nil {
		return fmt.Errorf("query at afterAlice: %w", err)
	}
	fmt.Printf("snapshot after inserting alice: %v\n", beforeBob)

	bothRows, err := rt.QueryAt(admin, `SELECT id, name FROM users`, nil, afterBob)
	if err != nil {
		return fmt.Errorf("query at afterBob: %w", err)
	}
	fmt.Printf("snapshot after inserting bob: %v\n", bothRows)

	onlyBob, err := rt.QueryAt(admin, `SELECT id, name FROM users`, nil, afterDelete)
	if err != nil {
		return fmt.Errorf("query at afterDelete: %w", err)
	}
	fmt.Printf("snapshot after deleting alice: %v\n", onlyBob)

	if len(beforeBob) != 1 || len(bothRows) != 2 || len(onlyBob) != 1 {
		return fmt.Errorf("unexpected row counts across snapshots: %d, %d, %d", len(beforeBob), len(bothRows), len(onlyBob))
	}
	return nil
}
