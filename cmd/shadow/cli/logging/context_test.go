package logging

import (
	"context"
	"testing"
)

func TestContextValues_RoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = WithTask(ctx, "t-1")
	ctx = WithComponent(ctx, "lifecycle")
	ctx = WithWorkspace(ctx, "/work/a")

	if got := TaskIDFromContext(ctx); got != "t-1" {
		t.Errorf("TaskIDFromContext() = %q, want t-1", got)
	}
	if got := ComponentFromContext(ctx); got != "lifecycle" {
		t.Errorf("ComponentFromContext() = %q, want lifecycle", got)
	}
	if got := WorkspaceFromContext(ctx); got != "/work/a" {
		t.Errorf("WorkspaceFromContext() = %q, want /work/a", got)
	}
}

func TestContextValues_Missing(t *testing.T) {
	ctx := context.Background()
	if TaskIDFromContext(ctx) != "" || ComponentFromContext(ctx) != "" || WorkspaceFromContext(ctx) != "" {
		t.Error("expected empty values from a bare context")
	}
}

func TestAttrsFromContext_SkipsTaskWhenGlobalSet(t *testing.T) {
	ctx := WithTask(context.Background(), "ctx-task")

	attrs := attrsFromContext(ctx, "global-task")
	for _, a := range attrs {
		if a.Key == "task_id" {
			t.Errorf("task_id should not be duplicated, got %v", a.Value)
		}
	}

	attrs = attrsFromContext(ctx, "")
	if len(attrs) != 1 || attrs[0].Value.String() != "ctx-task" {
		t.Errorf("attrsFromContext() = %v, want task_id=ctx-task", attrs)
	}
}
