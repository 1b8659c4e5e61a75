package builtin

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
)

// Subprocess wall clocks. Defaults apply when the call omits a timeout; the
// caps bound what the model may ask for.
const (
	defaultTerminalTimeout = 30 * time.Second
	maxTerminalTimeout     = 2 * time.Minute
	defaultCodeTimeout     = 60 * time.Second
	maxCodeTimeout         = 5 * time.Minute

	maxExecOutputChars = 10000
)

type execRule struct {
	pattern *regexp.Regexp
	reason  string
}

// denyRules block outright: no approval prompt, no subprocess.
var denyRules = []execRule{
	{regexp.MustCompile(`\brm\s+(?:-\S+\s+)+/(?:\*)?\s*$`), "deletes the filesystem root"},
	{regexp.MustCompile(`--no-preserve-root\b`), "deletes the filesystem root"},
	{regexp.MustCompile(`\bmkfs\b`), "formats a filesystem"},
	{regexp.MustCompile(`\bdd\s+[^|;]*of=/dev/`), "writes raw bytes to a device"},
	{regexp.MustCompile(`>\s*/dev/(sd|nvme|hd|vd)`), "overwrites a block device"},
	{regexp.MustCompile(`:\(\)\s*\{`), "fork bomb"},
	{regexp.MustCompile(`\b(sudo|doas)\b`), "privilege escalation"},
	{regexp.MustCompile(`\bsu\s+(-|root)\b`), "privilege escalation"},
	{regexp.MustCompile(`\b(shutdown|reboot|poweroff|halt)\b`), "halts the host"},
}

// warnRules pass but surface in the approval prompt.
var warnRules = []execRule{
	{regexp.MustCompile(`\brm\s+-\S*[rR]`), "recursive delete"},
	{regexp.MustCompile(`\b(curl|wget)\b[^|;]*\|\s*(ba|z)?sh\b`), "pipes a download into a shell"},
	{regexp.MustCompile(`\bchmod\s+\S*777\b`), "world-writable permissions"},
	{regexp.MustCompile(`\bgit\s+push\s+\S*\s*(--force|-f)\b`), "force push"},
	{regexp.MustCompile(`\bkill\s+(-9|-KILL)\b`), "force kill"},
	{regexp.MustCompile(`(?i)\bdrop\s+(table|database)\b`), "drops database objects"},
}

// validateExecText runs the static block-list over command or code text.
func validateExecText(field, text string) ([]string, error) {
	for _, rule := range denyRules {
		if rule.pattern.MatchString(text) {
			return nil, errors.NewValidation(field, fmt.Sprintf("refused: %s", rule.reason))
		}
	}
	var warnings []string
	for _, rule := range warnRules {
		if rule.pattern.MatchString(text) {
			warnings = append(warnings, rule.reason)
		}
	}
	return warnings, nil
}

// sanitizedEnv is the subprocess environment whitelist.
func sanitizedEnv() []string {
	env := make([]string, 0, 4)
	for _, key := range []string{"PATH", "LANG", "HOME", "TMPDIR"} {
		if v := os.Getenv(key); v != "" {
			env = append(env, key+"="+v)
		}
	}
	return env
}

// writeTempScript writes content to a crypto-random owner-only file under the
// temp dir. The caller removes it when the subprocess exits.
func writeTempScript(suffix string, content string) (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	path := filepath.Join(os.TempDir(), "optimaizer-"+hex.EncodeToString(buf)+suffix)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

func clampTimeout(call ports.ToolCall, def, max time.Duration) time.Duration {
	secs, ok := call.IntParam("timeout")
	if !ok || secs <= 0 {
		return def
	}
	d := time.Duration(secs) * time.Second
	if d > max {
		return max
	}
	return d
}

// mergeOutput combines stdout and stderr the way a terminal shows them,
// stdout first.
func mergeOutput(stdout, stderr string) string {
	out := strings.TrimSpace(stdout)
	errText := strings.TrimSpace(stderr)
	switch {
	case out == "":
		return errText
	case errText == "":
		return out
	default:
		return out + "\n" + errText
	}
}

func truncateOutput(text string) string {
	if len(text) <= maxExecOutputChars {
		return text
	}
	return text[:maxExecOutputChars] + "\n... [output truncated]"
}

type runTerminalCommand struct {
	binding Binding
	workDir string
}

// NewRunTerminalCommand builds the shell tool. workDir is the subprocess
// working directory; empty inherits the process directory.
func NewRunTerminalCommand(binding Binding, workDir string) ports.ToolExecutor {
	return &runTerminalCommand{binding: binding.withDefaults(), workDir: workDir}
}

func (t *runTerminalCommand) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "run_terminal_command",
		Description: "Run a shell command on the host. Requires user approval; destructive commands are refused.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"command": {Type: "string", Description: "Shell command to run"},
				"reason":  {Type: "string", Description: "Why the command is needed; shown in the approval prompt"},
				"timeout": {Type: "integer", Description: "Seconds before the process is killed; default 30, max 120"},
			},
			Required: []string{"command"},
		},
		SideEffect: ports.SideEffectMutating,
	}
}

func (t *runTerminalCommand) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryTerminal, Critical: true}
}

// Preflight is the static stage of the two-stage gate: refusals block before
// any approval prompt, warnings ride along into it.
func (t *runTerminalCommand) Preflight(call ports.ToolCall) ([]string, error) {
	return validateExecText("command", call.StringParam("command"))
}

func (t *runTerminalCommand) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	command := call.StringParam("command")
	if _, err := validateExecText("command", command); err != nil {
		return nil, err
	}

	script, err := writeTempScript(".sh", command)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer func() { _ = os.Remove(script) }()

	timeout := clampTimeout(call, defaultTerminalTimeout, maxTerminalTimeout)
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "bash", script)
	cmd.Dir = t.workDir
	cmd.Env = sanitizedEnv()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := t.binding.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	output := truncateOutput(mergeOutput(stdout.String(), stderr.String()))
	recordUndo(ctx, t.binding, call.Name, call.Params, nil)

	if execCtx.Err() == context.DeadlineExceeded {
		return &ports.ToolResult{
			CallID:  call.ID,
			Content: output,
			Error:   fmt.Errorf("command killed after %s timeout", timeout),
		}, nil
	}
	if runErr != nil {
		exitCode := -1
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		if output == "" {
			output = fmt.Sprintf("exit code %d (no output)", exitCode)
		}
		return &ports.ToolResult{
			CallID:  call.ID,
			Content: output,
			Error:   fmt.Errorf("exit code %d", exitCode),
		}, nil
	}

	if output == "" {
		output = fmt.Sprintf("Completed in %s with no output.", elapsed.Round(time.Millisecond))
	}
	return textResult(call, "%s", output), nil
}

type executeCode struct {
	binding Binding
}

// NewExecuteCode builds the code snippet runner.
func NewExecuteCode(binding Binding) ports.ToolExecutor {
	return &executeCode{binding: binding.withDefaults()}
}

func (t *executeCode) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "execute_code",
		Description: "Run a code snippet in python, javascript, or bash and return its output. Requires user approval.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"language": {Type: "string", Description: "Snippet language", Enum: []string{"python", "javascript", "js", "bash"}},
				"code":     {Type: "string", Description: "Source code to run"},
				"timeout":  {Type: "integer", Description: "Seconds before the process is killed; default 60, max 300"},
			},
			Required: []string{"language", "code"},
		},
		SideEffect: ports.SideEffectMutating,
	}
}

func (t *executeCode) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryCode, Critical: true}
}

func (t *executeCode) Preflight(call ports.ToolCall) ([]string, error) {
	return validateExecText("code", call.StringParam("code"))
}

func (t *executeCode) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	code := call.StringParam("code")
	if _, err := validateExecText("code", code); err != nil {
		return nil, err
	}

	language := call.StringParam("language")
	if language == "js" {
		language = "javascript"
	}

	var interpreter string
	var suffix string
	switch language {
	case "python":
		interpreter, suffix = "python3", ".py"
	case "javascript":
		interpreter, suffix = "node", ".js"
	case "bash":
		interpreter, suffix = "bash", ".sh"
	default:
		return nil, errors.NewValidation("language", fmt.Sprintf("unsupported language %q", language))
	}

	script, err := writeTempScript(suffix, code)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer func() { _ = os.Remove(script) }()

	timeout := clampTimeout(call, defaultCodeTimeout, maxCodeTimeout)
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, interpreter, script)
	cmd.Env = sanitizedEnv()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := t.binding.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	output := truncateOutput(mergeOutput(stdout.String(), stderr.String()))
	recordUndo(ctx, t.binding, call.Name, call.Params, nil)

	if execCtx.Err() == context.DeadlineExceeded {
		return &ports.ToolResult{
			CallID:  call.ID,
			Content: output,
			Error:   fmt.Errorf("%s killed after %s timeout", language, timeout),
		}, nil
	}
	if runErr != nil {
		if output == "" {
			output = runErr.Error()
		}
		return &ports.ToolResult{
			CallID:  call.ID,
			Content: output,
			Error:   fmt.Errorf("%s execution failed", language),
		}, nil
	}

	if output == "" {
		output = fmt.Sprintf("Completed in %s with no output.", elapsed.Round(time.Millisecond))
	}
	return textResult(call, "%s", output), nil
}
