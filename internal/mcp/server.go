// Package mcp exposes the timer, pipeline and attention operations as MCP
// tools over stdio.
package mcp

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"stageline/internal/engine"
)

// DefaultActor attributes tool calls when the caller gives no actor.
const DefaultActor = "mcp"

// NewServer creates an MCP server with all stageline tools registered.
func NewServer(version string, e engine.Engine, actorID string) *mcp.Server {
	if actorID == "" {
		actorID = DefaultActor
	}
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "stageline",
		Version: version,
	}, nil)
	registerTools(server, tools{engine: e, actor: actorID})
	return server
}

type tools struct {
	engine engine.Engine
	actor  string
}

func boolPtr(b bool) *bool {
	return &b
}

func readOnlyAnnotations() *mcp.ToolAnnotations {
	return &mcp.ToolAnnotations{
		ReadOnlyHint:   true,
		IdempotentHint: true,
		OpenWorldHint:  boolPtr(false),
	}
}

func writeAnnotations() *mcp.ToolAnnotations {
	return &mcp.ToolAnnotations{
		DestructiveHint: boolPtr(false),
		OpenWorldHint:   boolPtr(false),
	}
}

func registerTools(server *mcp.Server, t tools) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "start_timer",
		Description: "Start a timer on a work item. Any timer already running, on any item, is stopped first.",
		Annotations: writeAnnotations(),
	}, t.handleStartTimer)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "stop_timer",
		Description: "Stop a running time entry. Without entry_id the currently running timer is stopped.",
		Annotations: writeAnnotations(),
	}, t.handleStopTimer)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "running_timer",
		Description: "Show the running timer, if any.",
		Annotations: readOnlyAnnotations(),
	}, t.handleRunningTimer)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "log_time",
		Description: "Record completed time on a work item without running a timer.",
		Annotations: writeAnnotations(),
	}, t.handleLogTime)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_items",
		Description: "List work items in pipeline order, optionally filtered by stage.",
		Annotations: readOnlyAnnotations(),
	}, t.handleListItems)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "move_stage",
		Description: "Move a work item to a pipeline stage and position.",
		Annotations: writeAnnotations(),
	}, t.handleMoveStage)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_hold",
		Description: "Put a work item on hold with a reason, or resume it.",
		Annotations: writeAnnotations(),
	}, t.handleSetHold)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "item_stats",
		Description: "Time totals, actual hours and billable amount for a work item.",
		Annotations: readOnlyAnnotations(),
	}, t.handleItemStats)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "attention",
		Description: "Items that have sat in their stage past the warning or danger threshold, plus items on hold.",
		Annotations: readOnlyAnnotations(),
	}, t.handleAttention)
}
