package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

const (
	reviewsURIPrefix = "llmanager://tenants/"
	reviewsURISuffix = "/reviews"
)

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			reviewsURIPrefix+"{assistant_id}"+reviewsURISuffix,
			"Pending Reviews",
			mcplib.WithTemplateDescription("Runs of a tenant waiting for human review"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleReviewsResource,
	)
}

// tenantFromReviewsURI extracts the tenant of llmanager://tenants/{id}/reviews.
func tenantFromReviewsURI(uri string) (string, error) {
	if !strings.HasPrefix(uri, reviewsURIPrefix) || !strings.HasSuffix(uri, reviewsURISuffix) {
		return "", fmt.Errorf("unexpected resource uri %q", uri)
	}
	tid := strings.TrimSuffix(strings.TrimPrefix(uri, reviewsURIPrefix), reviewsURISuffix)
	if tid == "" || strings.Contains(tid, "/") {
		return "", fmt.Errorf("resource uri %q has no assistant id", uri)
	}
	return tid, nil
}

func (s *Server) handleReviewsResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Workflow == nil {
		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     `{"error":"workflow not configured"}`,
			},
		}, nil
	}
	tid, err := tenantFromReviewsURI(req.Params.URI)
	if err != nil {
		return nil, err
	}
	runs, err := s.deps.Workflow.ListPending(ctx, tid)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(pendingReviews(runs))
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
