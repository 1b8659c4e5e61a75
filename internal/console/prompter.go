package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
)

// resolver is the slice of the approval broker the prompter needs.
type resolver interface {
	Resolve(requestID string, approved bool, actor, note string) bool
}

// approvalPrompter shows approval requests inline and reads the decision
// from the terminal. The broker owns the clock: silence past the timeout
// denies, and the prompter only reports what the user typed.
type approvalPrompter struct {
	in      *bufio.Reader
	out     *printer
	resolve resolver

	headColor *color.Color
	warnColor *color.Color
	noteColor *color.Color

	mu      sync.Mutex
	pending map[string]bool
}

func newApprovalPrompter(in io.Reader, out *printer, resolve resolver, plain bool) *approvalPrompter {
	if in == nil {
		in = os.Stdin
	}
	p := &approvalPrompter{
		in:        bufio.NewReader(in),
		out:       out,
		resolve:   resolve,
		headColor: color.New(color.FgYellow, color.Bold),
		warnColor: color.New(color.FgYellow),
		noteColor: color.New(color.Faint),
		pending:   map[string]bool{},
	}
	if plain {
		p.headColor.DisableColor()
		p.warnColor.DisableColor()
		p.noteColor.DisableColor()
	}
	return p
}

// Name implements approval.Prompter.
func (p *approvalPrompter) Name() string { return "console" }

// PromptApproval implements approval.Prompter. The read loop runs on its
// own goroutine because the turn is blocked inside the broker until a
// decision or the timeout arrives.
func (p *approvalPrompter) PromptApproval(ctx context.Context, request ports.ApprovalRequest) error {
	p.mu.Lock()
	p.pending[request.ID] = true
	p.mu.Unlock()

	p.out.print(p.formatRequest(request))
	go p.readDecision(request.ID)
	return nil
}

func (p *approvalPrompter) formatRequest(request ports.ApprovalRequest) string {
	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(p.headColor.Sprint("Approval required"))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "  Tool: %s\n", request.ToolName)
	if request.Summary != "" {
		fmt.Fprintf(&sb, "  Action: %s\n", request.Summary)
	}
	for _, warning := range request.Warnings {
		fmt.Fprintf(&sb, "  %s\n", p.warnColor.Sprint("! "+warning))
	}
	sb.WriteString("Approve? [y/N]: ")
	return sb.String()
}

// readDecision reads input lines until one parses or the request settles
// elsewhere. A line arriving after the broker already timed the request out
// resolves nothing and is dropped.
func (p *approvalPrompter) readDecision(requestID string) {
	for {
		line, err := p.in.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		if !p.isPending(requestID) {
			return
		}
		approved, ok := parseDecision(line)
		if !ok {
			p.out.print("Please answer y or n. Approve? [y/N]: ")
			continue
		}
		p.resolve.Resolve(requestID, approved, "console", "")
		return
	}
}

func (p *approvalPrompter) isPending(requestID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending[requestID]
}

// parseDecision maps terminal input to a decision. Enter alone denies,
// matching the deny-by-default gate.
func parseDecision(line string) (approved, ok bool) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, true
	case "", "n", "no":
		return false, true
	default:
		return false, false
	}
}

// ApprovalResolved implements approval.Prompter.
func (p *approvalPrompter) ApprovalResolved(ctx context.Context, request ports.ApprovalRequest, decision ports.ApprovalDecision) {
	p.mu.Lock()
	known := p.pending[request.ID]
	delete(p.pending, request.ID)
	p.mu.Unlock()
	if !known {
		return
	}
	p.out.println(p.noteColor.Sprint(resolutionNote(decision)))
}

func resolutionNote(decision ports.ApprovalDecision) string {
	switch {
	case decision.Approved:
		return "approved by " + decision.Actor
	case decision.Actor == "timeout":
		return "no answer in time, denied"
	case decision.Actor == "cancelled":
		return "cancelled, denied"
	default:
		return "denied by " + decision.Actor
	}
}
