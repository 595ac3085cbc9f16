package cache

import (
	"context"
	"testing"
)

func TestConditionalUpdateSuccessPath(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	mr.HSet("entry", "status", "pending", "attempts", "2")

	res, err := c.ConditionalUpdate(ctx, "entry", []Step{{
		Conditions: []Condition{
			{Field: "status", Op: OpEq, Value: "pending"},
			{Field: "attempts", Op: OpLt, Value: "5"},
		},
		OnSuccess: []Action{{Field: "status", Op: ActSet, Value: "done"}},
		OnFailure: []Action{{Field: "attempts", Op: ActIncr, Value: "1"}},
	}}, "status", "attempts")
	if err != nil {
		t.Fatalf("ConditionalUpdate: %v", err)
	}

	if !res.Passed(0) {
		t.Fatal("step should have passed")
	}
	if got, _ := res.Field("status"); got != "done" {
		t.Fatalf("status = %q, want done", got)
	}
	if got, _ := res.Field("attempts"); got != "2" {
		t.Fatalf("attempts = %q, want 2 (untouched)", got)
	}
	if got := mr.HGet("entry", "status"); got != "done" {
		t.Fatalf("stored status = %q, want done", got)
	}
}

func TestConditionalUpdateFailureActionsRun(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	mr.HSet("entry", "status", "pending", "attempts", "4")

	res, err := c.ConditionalUpdate(ctx, "entry", []Step{{
		Conditions: []Condition{{Field: "status", Op: OpEq, Value: "verified"}},
		OnSuccess:  []Action{{Field: "status", Op: ActSet, Value: "done"}},
		OnFailure:  []Action{{Field: "attempts", Op: ActIncr, Value: "1"}},
	}}, "attempts")
	if err != nil {
		t.Fatalf("ConditionalUpdate: %v", err)
	}

	if res.Passed(0) {
		t.Fatal("step should have failed")
	}
	if got, _ := res.Field("attempts"); got != "5" {
		t.Fatalf("attempts = %q, want 5 (incremented)", got)
	}
	if got := mr.HGet("entry", "status"); got != "pending" {
		t.Fatalf("stored status = %q, want pending", got)
	}
}

func TestConditionalUpdateHaltSkipsLaterSteps(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	// Key absent: the existence probe fails and halts, so the second
	// step's failure increment must not create a stray hash.
	res, err := c.ConditionalUpdate(ctx, "absent", []Step{
		{
			Conditions: []Condition{{Field: "status", Op: OpNe, Value: ""}},
			Halt:       true,
		},
		{
			Conditions: []Condition{{Field: "status", Op: OpEq, Value: "pending"}},
			OnFailure:  []Action{{Field: "attempts", Op: ActIncr, Value: "1"}},
		},
	})
	if err != nil {
		t.Fatalf("ConditionalUpdate: %v", err)
	}

	if res.Passed(0) || res.Passed(1) {
		t.Fatal("no step should report passed")
	}
	if mr.Exists("absent") {
		t.Fatal("halted step list must not touch the key")
	}
}

func TestConditionalUpdateReadsSnapshotNotIntermediateWrites(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	// Step 1 writes status=done; step 2's condition still sees the
	// original snapshot where status was absent.
	res, err := c.ConditionalUpdate(ctx, "fresh", []Step{
		{
			OnSuccess: []Action{{Field: "status", Op: ActSet, Value: "done"}},
		},
		{
			Conditions: []Condition{{Field: "status", Op: OpEq, Value: "done"}},
		},
	}, "status")
	if err != nil {
		t.Fatalf("ConditionalUpdate: %v", err)
	}

	if !res.Passed(0) {
		t.Fatal("unconditional step should pass")
	}
	if res.Passed(1) {
		t.Fatal("step 2 must evaluate against the entry snapshot")
	}
	if got, _ := res.Field("status"); got != "done" {
		t.Fatalf("returned status = %q, want post-action value done", got)
	}
}

func TestConditionalUpdateExpireAndDeleteActions(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	mr.HSet("expiring", "v", "1")
	_, err := c.ConditionalUpdate(ctx, "expiring", []Step{{
		OnSuccess: []Action{{Op: ActExpire, Value: "600"}},
	}})
	if err != nil {
		t.Fatalf("ConditionalUpdate: %v", err)
	}
	if ttl := mr.TTL("expiring"); ttl <= 0 {
		t.Fatalf("TTL = %v, want positive", ttl)
	}

	mr.HSet("doomed", "v", "1")
	_, err = c.ConditionalUpdate(ctx, "doomed", []Step{{
		OnSuccess: []Action{{Op: ActDel}},
	}})
	if err != nil {
		t.Fatalf("ConditionalUpdate: %v", err)
	}
	if mr.Exists("doomed") {
		t.Fatal("del action should remove the key")
	}
}

func TestConditionalUpdateNumericComparisonOnMissingField(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	mr.HSet("counters", "other", "x")

	// A missing numeric field reads as 0.
	res, err := c.ConditionalUpdate(ctx, "counters", []Step{{
		Conditions: []Condition{{Field: "hits", Op: OpLt, Value: "5"}},
		OnSuccess:  []Action{{Field: "hits", Op: ActIncr, Value: "1"}},
	}}, "hits")
	if err != nil {
		t.Fatalf("ConditionalUpdate: %v", err)
	}
	if !res.Passed(0) {
		t.Fatal("missing field should compare as 0")
	}
	if got, _ := res.Field("hits"); got != "1" {
		t.Fatalf("hits = %q, want 1", got)
	}
}

func TestConditionalUpdateToleratesOmittedLists(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	mr.HSet("entry", "status", "pending")

	// No return fields, and each step leaves at least one of its
	// condition/action lists nil. The call must still run.
	res, err := c.ConditionalUpdate(ctx, "entry", []Step{
		{
			Conditions: []Condition{{Field: "status", Op: OpNe, Value: ""}},
			Halt:       true,
		},
		{
			OnSuccess: []Action{{Field: "status", Op: ActSet, Value: "verified"}},
		},
	})
	if err != nil {
		t.Fatalf("ConditionalUpdate: %v", err)
	}
	if !res.Passed(0) || !res.Passed(1) {
		t.Fatal("both steps should pass")
	}
	if got := mr.HGet("entry", "status"); got != "verified" {
		t.Fatalf("stored status = %q, want verified", got)
	}
}
