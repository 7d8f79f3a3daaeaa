package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"kimberlite/internal/ids"
	"kimberlite/internal/kernel"
	"kimberlite/internal/schema"
)

// offsetGuardCmd shows an AppendBatch with a
// stale ExpectedOffset is rejected without effect, and state is
// unchanged.
func offsetGuardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "offset-guard",
		Short: "Demonstrate the optimistic offset check rejecting a stale append",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runOffsetGuard()
		},
	}
}

func runOffsetGuard() error {
	ctx := context.Background()
	rt, err := newSimRuntime()
	if err != nil {
		return err
	}

	if _, err := rt.CreateStream(ctx, demoTenant, kernel.CreateStreamWithAutoId{
		Name:      "events",
		DataClass: schema.DataClassPublic,
		Placement: schema.GlobalPlacement(),
	}); err != nil {
		return fmt.Errorf("create stream: %w", err)
	}

	streamId := ids.NewStreamId(demoTenant, 1)
	if _, err := rt.AppendBatch(ctx, demoTenant, kernel.AppendBatch{
		StreamId:       streamId,
		Events:         [][]byte{[]byte("e1"), []byte("e2"), []byte("e3")},
		ExpectedOffset: 0,
	}); err != nil {
		return fmt.Errorf("append batch: %w", err)
	}

	before := rt.State()
	_, err = rt.AppendBatch(ctx, demoTenant, kernel.AppendBatch{
		StreamId:       streamId,
		Events:         [][]byte{[]byte("x")},
		ExpectedOffset: 2,
	})
	if err == nil {
		return fmt.Errorf("expected stale-offset append to be rejected, it succeeded")
	}
	fmt.Printf("stale append rejected as expected: %v\n", err)

	after := rt.State()
	if before != after {
		return fmt.Errorf("state pointer changed after a rejected command")
	}
	fmt.Println("state unchanged")
	return nil
}
