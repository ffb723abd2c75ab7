package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/Strob0t/LLManager/internal/domain/decision"
	"github.com/Strob0t/LLManager/internal/domain/review"
	"github.com/Strob0t/LLManager/internal/domain/workflow"
	"github.com/Strob0t/LLManager/internal/middleware"
)

// apiClient talks to a running llmanager server on behalf of one tenant.
type apiClient struct {
	base     string
	tenantID string
	apiKey   string
	http     *http.Client
}

// clientFlags registers the connection flags shared by the client commands.
func clientFlags(fs *flag.FlagSet) func() (*apiClient, error) {
	server := fs.String("server", envOr("LLMANAGER_SERVER", "http://localhost:8080"), "server base URL")
	tenant := fs.String("assistant-id", os.Getenv("LLMANAGER_ASSISTANT_ID"), "tenant (X-Assistant-ID)")
	key := fs.String("api-key", os.Getenv("LLMANAGER_API_KEY"), "API key when auth is enabled") //nolint:gosec // CLI flag
	return func() (*apiClient, error) {
		if *tenant == "" {
			return nil, errors.New("--assistant-id is required")
		}
		return &apiClient{
			base:     strings.TrimRight(*server, "/"),
			tenantID: *tenant,
			apiKey:   *key,
			http:     &http.Client{Timeout: 5 * time.Minute},
		}, nil
	}
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

// do sends body as JSON and decodes a 2xx response into out.
func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderAssistantID, c.tenantID)
	if c.apiKey != "" {
		req.Header.Set(middleware.HeaderAPIKey, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func (c *apiClient) startRun(ctx context.Context, req workflow.StartRequest) (*workflow.Run, error) {
	var run workflow.Run
	if err := c.do(ctx, http.MethodPost, "/api/v1/runs", req, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (c *apiClient) pending(ctx context.Context) ([]workflow.Run, error) {
	var runs []workflow.Run
	err := c.do(ctx, http.MethodGet, "/api/v1/reviews", nil, &runs)
	return runs, err
}

func (c *apiClient) resume(ctx context.Context, runID string, resp review.Response) (*workflow.Run, error) {
	var run workflow.Run
	if err := c.do(ctx, http.MethodPost, "/api/v1/runs/"+runID+"/resume", resp, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// --- decide ---

func runDecide(args []string) error {
	fs := flag.NewFlagSet("decide", flag.ContinueOnError)
	connect := clientFlags(fs)
	approval := fs.String("approval-criteria", "", "approval criteria for this run")
	rejection := fs.String("rejection-criteria", "", "rejection criteria for this run")
	model := fs.String("model", "", "model id for this run")
	if err := fs.Parse(args); err != nil {
		return err
	}

	query := strings.Join(fs.Args(), " ")
	if query == "" || query == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read query: %w", err)
		}
		query = strings.TrimSpace(string(data))
	}

	c, err := connect()
	if err != nil {
		return err
	}
	run, err := c.startRun(context.Background(), workflow.StartRequest{
		Query: query,
		Config: decision.Criteria{
			ApprovalCriteria:  *approval,
			RejectionCriteria: *rejection,
			ModelID:           *model,
		},
	})
	if err != nil {
		return fmt.Errorf("decide: %w", err)
	}
	printRun(os.Stdout, run)
	return nil
}

func printRun(w io.Writer, run *workflow.Run) {
	_, _ = fmt.Fprintf(w, "run %s: %s\n", run.ID, run.State)
	if run.Interrupt != nil && run.State == workflow.StateAwaitingReview {
		_, _ = fmt.Fprintf(w, "\n%s\n", run.Interrupt.Description)
	}
	if run.Error != "" {
		_, _ = fmt.Fprintf(w, "error: %s\n", run.Error)
	}
}

// --- pending ---

func runPending(args []string) error {
	fs := flag.NewFlagSet("pending", flag.ContinueOnError)
	connect := clientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, err := connect()
	if err != nil {
		return err
	}
	runs, err := c.pending(context.Background())
	if err != nil {
		return fmt.Errorf("pending: %w", err)
	}
	return printPending(os.Stdout, runs)
}

func printPending(out io.Writer, runs []workflow.Run) error {
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(out, "No pending reviews.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN_ID\tPROPOSED\tCREATED\tQUERY")
	for i := range runs {
		proposed := ""
		if runs[i].Proposed != nil {
			proposed = string(runs[i].Proposed.Status)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			runs[i].ID, proposed, runs[i].CreatedAt.Format(time.RFC3339), truncate(runs[i].Query, 60))
	}
	return w.Flush()
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// --- review ---

func runReview(args []string) error {
	fs := flag.NewFlagSet("review", flag.ContinueOnError)
	connect := clientFlags(fs)
	runID := fs.String("run", "", "review only this run")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !term.IsTerminal(int(syscall.Stdin)) { //nolint:unconvert // int conversion needed on some platforms
		return errors.New("review needs an interactive terminal; use the HTTP API or MCP resolve_review instead")
	}
	c, err := connect()
	if err != nil {
		return err
	}
	return reviewLoop(context.Background(), c, *runID, os.Stdin, os.Stdout)
}

// reviewLoop walks the pending runs and resolves each with a verdict read
// from in.
func reviewLoop(ctx context.Context, c *apiClient, only string, in io.Reader, out io.Writer) error {
	runs, err := c.pending(ctx)
	if err != nil {
		return fmt.Errorf("pending: %w", err)
	}
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(out, "No pending reviews.")
		return nil
	}

	lines := bufio.NewScanner(in)
	for i := range runs {
		run := &runs[i]
		if only != "" && run.ID != only {
			continue
		}
		_, _ = fmt.Fprintf(out, "\n=== run %s ===\n", run.ID)
		if run.Interrupt != nil {
			_, _ = fmt.Fprintln(out, run.Interrupt.Description)
		}

		resp, quit, err := promptVerdict(lines, out, run)
		if err != nil {
			return err
		}
		if quit {
			return nil
		}
		if resp == nil {
			continue
		}
		done, err := c.resume(ctx, run.ID, *resp)
		if err != nil {
			_, _ = fmt.Fprintf(out, "resolve failed: %v\n", err)
			continue
		}
		_, _ = fmt.Fprintf(out, "run %s: %s\n", done.ID, done.State)
	}
	return nil
}

// promptVerdict asks for accept, edit, ignore, skip or quit. A nil response
// without quit means skip.
func promptVerdict(lines *bufio.Scanner, out io.Writer, run *workflow.Run) (*review.Response, bool, error) {
	for {
		answer, ok := ask(lines, out, "[a]ccept, [e]dit, [i]gnore, [s]kip, [q]uit: ")
		if !ok {
			return nil, true, nil
		}
		switch strings.ToLower(answer) {
		case "a", "accept":
			return &review.Response{Type: review.ResponseAccept}, false, nil
		case "i", "ignore":
			return &review.Response{Type: review.ResponseIgnore}, false, nil
		case "s", "skip":
			return nil, false, nil
		case "q", "quit":
			return nil, true, nil
		case "e", "edit":
			resp, err := promptEdit(lines, out, run)
			if err != nil {
				_, _ = fmt.Fprintln(out, err)
				continue
			}
			return resp, false, nil
		}
	}
}

func promptEdit(lines *bufio.Scanner, out io.Writer, run *workflow.Run) (*review.Response, error) {
	current := decision.StatusApproved
	if run.Proposed != nil {
		current = run.Proposed.Status
	}
	status, ok := ask(lines, out, fmt.Sprintf("Status (approved/rejected) [%s]: ", current))
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	if status == "" {
		status = string(current)
	}
	explanation, ok := ask(lines, out, "Explanation: ")
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}

	resp := &review.Response{
		Type: review.ResponseEdit,
		Args: &review.Args{Status: decision.Status(status), Explanation: explanation},
	}
	if _, err := resp.Validate(); err != nil {
		return nil, err
	}
	return resp, nil
}

func ask(lines *bufio.Scanner, out io.Writer, prompt string) (string, bool) {
	_, _ = fmt.Fprint(out, prompt)
	if !lines.Scan() {
		return "", false
	}
	return strings.TrimSpace(lines.Text()), true
}

// --- hash-key ---

func runHashKey(args []string) error {
	fs := flag.NewFlagSet("hash-key", flag.ContinueOnError)
	key := fs.String("key", "", "API key (prompted if not provided)") //nolint:gosec // CLI flag
	if err := fs.Parse(args); err != nil {
		return err
	}

	plain := *key
	if plain == "" {
		var err error
		plain, err = promptSecret("API key: ")
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		confirm, err := promptSecret("Confirm API key: ")
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		if plain != confirm {
			return errors.New("keys do not match")
		}
	}
	if plain == "" {
		return errors.New("empty key")
	}

	hash, err := middleware.HashAPIKey(plain)
	if err != nil {
		return fmt.Errorf("hash key: %w", err)
	}
	fmt.Println(hash)
	return nil
}

// promptSecret reads a secret from the terminal without echoing.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)                         // newline after input
	if err != nil {
		return "", err
	}
	return string(b), nil
}
