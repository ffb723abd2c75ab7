package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/LLManager/internal/domain/decision"
	"github.com/Strob0t/LLManager/internal/domain/review"
	"github.com/Strob0t/LLManager/internal/domain/workflow"
	"github.com/Strob0t/LLManager/internal/logger"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.requestDecisionTool(),
		s.getRunTool(),
		s.resolveReviewTool(),
		s.listPendingReviewsTool(),
	)
}

func assistantIDParam() mcplib.ToolOption {
	return mcplib.WithString("assistant_id",
		mcplib.Required(),
		mcplib.Description("Tenant whose examples and reflections ground the decision"),
	)
}

func (s *Server) requestDecisionTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("request_decision",
		mcplib.WithDescription("Reason about a request and propose approve or reject. The run then waits for human review."),
		assistantIDParam(),
		mcplib.WithString("query", mcplib.Required(), mcplib.Description("The request to decide")),
		mcplib.WithString("thread_id", mcplib.Description("Optional conversation thread id")),
		mcplib.WithString("approval_criteria", mcplib.Description("Criteria for approving, this run only")),
		mcplib.WithString("rejection_criteria", mcplib.Description("Criteria for rejecting, this run only")),
		mcplib.WithString("model_id", mcplib.Description("Model to use, this run only")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleRequestDecision}
}

func (s *Server) getRunTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_run",
		mcplib.WithDescription("Get a decision run by id"),
		assistantIDParam(),
		mcplib.WithString("run_id", mcplib.Required(), mcplib.Description("The run ID to look up")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGetRun}
}

func (s *Server) resolveReviewTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("resolve_review",
		mcplib.WithDescription("Accept, ignore or edit the decision proposed by a run awaiting review"),
		assistantIDParam(),
		mcplib.WithString("run_id", mcplib.Required(), mcplib.Description("The suspended run")),
		mcplib.WithString("type",
			mcplib.Required(),
			mcplib.Enum(string(review.ResponseAccept), string(review.ResponseIgnore), string(review.ResponseEdit)),
			mcplib.Description("The reviewer verdict"),
		),
		mcplib.WithString("status",
			mcplib.Enum(string(decision.StatusApproved), string(decision.StatusRejected)),
			mcplib.Description("Corrected status, required for edit"),
		),
		mcplib.WithString("explanation", mcplib.Description("Corrected explanation, required for edit")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleResolveReview}
}

func (s *Server) listPendingReviewsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_pending_reviews",
		mcplib.WithDescription("List runs waiting for human review"),
		assistantIDParam(),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleListPendingReviews}
}

func stringArg(req mcplib.CallToolRequest, name string) string { //nolint:gocritic // hugeParam: mcp-go handler signature
	v, _ := req.GetArguments()[name].(string)
	return v
}

// tenantContext reads the required assistant_id and scopes ctx to it.
func tenantContext(ctx context.Context, req mcplib.CallToolRequest) (context.Context, string, *mcplib.CallToolResult) { //nolint:gocritic // hugeParam: mcp-go handler signature
	tid := stringArg(req, "assistant_id")
	if tid == "" {
		return ctx, "", mcplib.NewToolResultError("assistant_id is required")
	}
	return logger.WithTenant(ctx, tid), tid, nil
}

func jsonResult(v any, what string) *mcplib.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal "+what, err)
	}
	return toolResultJSON(string(data))
}

func (s *Server) handleRequestDecision(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Workflow == nil {
		return mcplib.NewToolResultError("workflow not configured"), nil
	}
	ctx, tid, bad := tenantContext(ctx, req)
	if bad != nil {
		return bad, nil
	}
	run, err := s.deps.Workflow.Start(ctx, workflow.StartRequest{
		TenantID: tid,
		ThreadID: stringArg(req, "thread_id"),
		Query:    stringArg(req, "query"),
		Config: decision.Criteria{
			ApprovalCriteria:  stringArg(req, "approval_criteria"),
			RejectionCriteria: stringArg(req, "rejection_criteria"),
			ModelID:           stringArg(req, "model_id"),
		},
	})
	if err != nil {
		msg := "decision request failed"
		if run != nil {
			msg = fmt.Sprintf("run %s failed", run.ID)
		}
		return mcplib.NewToolResultErrorFromErr(msg, err), nil
	}
	return jsonResult(run, "run"), nil
}

func (s *Server) handleGetRun(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Workflow == nil {
		return mcplib.NewToolResultError("workflow not configured"), nil
	}
	ctx, tid, bad := tenantContext(ctx, req)
	if bad != nil {
		return bad, nil
	}
	runID := stringArg(req, "run_id")
	if runID == "" {
		return mcplib.NewToolResultError("run_id is required"), nil
	}
	run, err := s.deps.Workflow.Get(ctx, tid, runID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to get run %s", runID), err), nil
	}
	return jsonResult(run, "run"), nil
}

func (s *Server) handleResolveReview(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Workflow == nil {
		return mcplib.NewToolResultError("workflow not configured"), nil
	}
	ctx, tid, bad := tenantContext(ctx, req)
	if bad != nil {
		return bad, nil
	}
	runID := stringArg(req, "run_id")
	if runID == "" {
		return mcplib.NewToolResultError("run_id is required"), nil
	}

	resp := review.Response{Type: review.ResponseType(stringArg(req, "type"))}
	status, explanation := stringArg(req, "status"), stringArg(req, "explanation")
	if status != "" || explanation != "" {
		resp.Args = &review.Args{Status: decision.Status(status), Explanation: explanation}
	}

	run, err := s.deps.Workflow.Resume(ctx, tid, runID, resp)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to resolve run %s", runID), err), nil
	}
	return jsonResult(run, "run"), nil
}

// pendingReview is the reviewer-facing view of a suspended run.
type pendingReview struct {
	RunID     string            `json:"run_id"`
	Query     string            `json:"query"`
	Interrupt *review.Interrupt `json:"interrupt"`
}

func (s *Server) handleListPendingReviews(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Workflow == nil {
		return mcplib.NewToolResultError("workflow not configured"), nil
	}
	ctx, tid, bad := tenantContext(ctx, req)
	if bad != nil {
		return bad, nil
	}
	runs, err := s.deps.Workflow.ListPending(ctx, tid)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list pending reviews", err), nil
	}
	return jsonResult(pendingReviews(runs), "pending reviews"), nil
}

func pendingReviews(runs []workflow.Run) []pendingReview {
	out := make([]pendingReview, 0, len(runs))
	for i := range runs {
		out = append(out, pendingReview{RunID: runs[i].ID, Query: runs[i].Query, Interrupt: runs[i].Interrupt})
	}
	return out
}
