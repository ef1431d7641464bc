package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os/exec"
	"strings"
	"testing"
)

func requireBash(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("bash")
	if err != nil {
		t.Skip("bash not found in PATH")
	}
	return path
}

// isolateHome points config.Load (via $HOME) at an empty directory for the
// duration of the test, so loadConfig always sees zero-value defaults
// regardless of the machine running the test.
func isolateHome(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
}

func readResponses(t *testing.T, out *bytes.Buffer, n int) []response {
	t.Helper()
	scanner := bufio.NewScanner(out)
	var got []response
	for i := 0; i < n && scanner.Scan(); i++ {
		var r response
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			t.Fatalf("unmarshal response %d (%q): %v", i, scanner.Text(), err)
		}
		got = append(got, r)
	}
	if len(got) != n {
		t.Fatalf("got %d responses, want %d (buffered: %q)", len(got), n, out.String())
	}
	return got
}

// TestRunServe_StartSession drives one start_session request through the
// stdio protocol and checks the JSON response envelope, including the
// request_id toolserver.reply stamps on every successful result.
func TestRunServe_StartSession(t *testing.T) {
	isolateHome(t)
	bash := requireBash(t)

	req := `{"op":"start_session","args":{"command":"` + bash + `"}}` + "\n"
	var out bytes.Buffer
	if err := runServe(strings.NewReader(req), &out); err != nil {
		t.Fatalf("runServe: %v", err)
	}
	resp := readResponses(t, &out, 1)[0]
	if !resp.OK {
		t.Fatalf("start_session failed: %s", resp.Error)
	}
	if id, _ := resp.Result["session_id"].(string); id == "" {
		t.Errorf("result missing session_id: %+v", resp.Result)
	}
	if rid, _ := resp.Result["request_id"].(string); rid == "" {
		t.Errorf("result missing request_id: %+v", resp.Result)
	}
}

// TestRunServe_MalformedAndUnknownOp exercises the dispatch loop's error
// paths: invalid JSON and an op name with no registered handler.
func TestRunServe_MalformedAndUnknownOp(t *testing.T) {
	isolateHome(t)

	reqs := strings.Join([]string{
		`not json at all`,
		`{"op":"no_such_op","args":{}}`,
	}, "\n") + "\n"
	var out bytes.Buffer
	if err := runServe(strings.NewReader(reqs), &out); err != nil {
		t.Fatalf("runServe: %v", err)
	}
	resps := readResponses(t, &out, 2)
	if resps[0].OK || !strings.Contains(resps[0].Error, "malformed request") {
		t.Errorf("response 0 = %+v, want a malformed-request error", resps[0])
	}
	if resps[1].OK || !strings.Contains(resps[1].Error, "unknown op") {
		t.Errorf("response 1 = %+v, want an unknown-op error", resps[1])
	}
}

func TestAuditPath(t *testing.T) {
	if got := auditPath(""); got != "" {
		t.Errorf("auditPath(\"\") = %q, want empty", got)
	}
	if got := auditPath("/tmp/logs"); got != "/tmp/logs/audit.jsonl" {
		t.Errorf("auditPath = %q, want /tmp/logs/audit.jsonl", got)
	}
}
