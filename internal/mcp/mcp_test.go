package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"repofetch/internal/clonecache"
	"repofetch/internal/config"
	"repofetch/internal/errors"
	"repofetch/internal/fetch"
	"repofetch/internal/gitexec"
	"repofetch/internal/identity"
	"repofetch/internal/logging"
	"repofetch/internal/notify"
	"repofetch/internal/remote"
)

var testFiles = map[string]string{
	"main.py":       "print('hello')\n",
	"util.py":       "def add(a, b):\n    return a + b\n",
	"lib/helper.py": "HELPER = True\n",
	"notes.txt":     "one\ntwo\nthree\n",
}

type fakeRemote struct {
	mu           sync.Mutex
	tree         []string
	files        map[string]string
	contentCalls int
}

func newFakeRemote() *fakeRemote {
	tree := make([]string, 0, len(testFiles))
	for p := range testFiles {
		tree = append(tree, p)
	}
	sort.Strings(tree)
	return &fakeRemote{tree: tree, files: testFiles}
}

func (f *fakeRemote) RepositoryInfo(ctx context.Context, id identity.Identity) (*remote.RepoInfo, error) {
	return &remote.RepoInfo{FullName: id.FullName(), DefaultBranch: "main", SizeBytes: 1024}, nil
}

func (f *fakeRemote) ListTree(ctx context.Context, id identity.Identity) ([]string, error) {
	return f.tree, nil
}

func (f *fakeRemote) GetFileContent(ctx context.Context, id identity.Identity, path string) ([]byte, error) {
	f.mu.Lock()
	f.contentCalls++
	f.mu.Unlock()
	content, ok := f.files[path]
	if !ok {
		return nil, errors.New(errors.RemoteNotFound, "no such file").WithPath(path)
	}
	return []byte(content), nil
}

func (f *fakeRemote) CloneURL(id identity.Identity) string {
	return "https://example.test/" + id.FullName() + ".git"
}

func (f *fakeRemote) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contentCalls
}

type fakeCloner struct {
	files map[string]string
}

func (f *fakeCloner) Clone(ctx context.Context, opts gitexec.CloneOptions) error {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return err
	}
	for name, content := range f.files {
		path := filepath.Join(opts.Dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func newTestServer(t *testing.T) (*Server, *fakeRemote) {
	t.Helper()

	rem := newFakeRemote()

	cfg := config.DefaultConfig()
	cfg.CacheRoot = filepath.Join(t.TempDir(), "clones")
	cfg.Fetch.Concurrency = 4
	cfg.Fetch.FileTimeoutSec = 5

	manager, err := clonecache.NewManager(clonecache.Options{
		Root:   cfg.CacheRoot,
		Quota:  cfg.Quota,
		Remote: rem,
		Cloner: &fakeCloner{files: testFiles},
	})
	if err != nil {
		t.Fatal(err)
	}

	orch, err := fetch.New(rem, manager, cfg, logging.Nop(), notify.Nop())
	if err != nil {
		t.Fatal(err)
	}

	server, err := NewServer(Options{
		Version:      "1.2.3",
		Orchestrator: orch,
		Clones:       manager,
		DefaultOrg:   "acme",
		Aliases: map[string]identity.Identity{
			"widgets": {Org: "acme", Repo: "widgets"},
		},
		Logger: logging.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return server, rem
}

// sendRequest round-trips the request through JSON so params arrive
// the way the wire delivers them, then dispatches it.
func sendRequest(t *testing.T, s *Server, method string, id int, params interface{}) *Message {
	t.Helper()

	raw, err := json.Marshal(&Message{Jsonrpc: "2.0", Id: id, Method: method, Params: params})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}

	return s.handleMessage(context.Background(), &msg)
}

// callTool invokes one tool and returns its text payload and whether
// the result was flagged as an error.
func callTool(t *testing.T, s *Server, name string, args map[string]interface{}) (string, bool) {
	t.Helper()

	resp := sendRequest(t, s, "tools/call", 1, map[string]interface{}{
		"name":      name,
		"arguments": args,
	})
	if resp == nil {
		t.Fatal("tools/call produced no response")
	}
	if resp.Error != nil {
		t.Fatalf("tools/call rpc error: %v", resp.Error)
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("result type = %T, want map", resp.Result)
	}
	content, ok := result["content"].([]map[string]interface{})
	if !ok || len(content) == 0 {
		t.Fatalf("result content = %#v", result["content"])
	}
	text, _ := content[0]["text"].(string)
	isError, _ := result["isError"].(bool)
	return text, isError
}

func TestInitialize(t *testing.T) {
	server, _ := newTestServer(t)

	resp := sendRequest(t, server, "initialize", 1, map[string]interface{}{
		"protocolVersion": "2024-11-05",
		"clientInfo":      map[string]interface{}{"name": "test-client"},
	})
	if resp == nil || resp.Error != nil {
		t.Fatalf("initialize response = %+v", resp)
	}

	result, ok := resp.Result.(*InitializeResult)
	if !ok {
		t.Fatalf("result type = %T, want *InitializeResult", resp.Result)
	}
	if result.ProtocolVersion == "" {
		t.Error("protocolVersion is empty")
	}
	if got := result.ServerInfo.Name; got != "repofetch" {
		t.Errorf("serverInfo.name = %q, want repofetch", got)
	}
	if got := result.ServerInfo.Version; got != "1.2.3" {
		t.Errorf("serverInfo.version = %q, want 1.2.3", got)
	}
}

func TestToolsList(t *testing.T) {
	server, _ := newTestServer(t)

	resp := sendRequest(t, server, "tools/list", 1, nil)
	if resp == nil || resp.Error != nil {
		t.Fatalf("tools/list response = %+v", resp)
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("result type = %T, want map", resp.Result)
	}
	tools, ok := result["tools"].([]Tool)
	if !ok {
		t.Fatalf("tools type = %T, want []Tool", result["tools"])
	}

	want := []string{"fetch_files", "get_snippets", "get_files_bulk", "resolve_patterns", "clone_status", "cleanup_clone"}
	if len(tools) != len(want) {
		t.Fatalf("tool count = %d, want %d", len(tools), len(want))
	}
	for i, name := range want {
		if tools[i].Name != name {
			t.Errorf("tools[%d].Name = %q, want %q", i, tools[i].Name, name)
		}
		if tools[i].Description == "" {
			t.Errorf("tools[%d] has no description", i)
		}
		if tools[i].InputSchema == nil {
			t.Errorf("tools[%d] has no input schema", i)
		}
	}
}

func TestUnknownMethod(t *testing.T) {
	server, _ := newTestServer(t)

	resp := sendRequest(t, server, "tools/expand", 1, nil)
	if resp == nil || resp.Error == nil {
		t.Fatalf("response = %+v, want error", resp)
	}
	if resp.Error.Code != MethodNotFound {
		t.Errorf("error code = %d, want %d", resp.Error.Code, MethodNotFound)
	}
}

func TestUnknownToolIsProtocolError(t *testing.T) {
	server, _ := newTestServer(t)

	resp := sendRequest(t, server, "tools/call", 1, map[string]interface{}{
		"name": "explode",
	})
	if resp == nil || resp.Error == nil {
		t.Fatalf("response = %+v, want rpc error", resp)
	}
	if resp.Error.Code != InvalidParams {
		t.Errorf("error code = %d, want %d", resp.Error.Code, InvalidParams)
	}
}

func TestFetchFilesTool(t *testing.T) {
	server, _ := newTestServer(t)

	text, isError := callTool(t, server, "fetch_files", map[string]interface{}{
		"repository": "acme/widgets",
		"files":      []string{"*.py", "notes.txt:2"},
	})
	if isError {
		t.Fatalf("fetch_files flagged error: %s", text)
	}

	for _, want := range []string{
		"Repository: acme/widgets",
		"Branch: main",
		"```python",
		"print('hello')",
		"(line 2)",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestFetchFilesToolDomainErrorIsResult(t *testing.T) {
	server, _ := newTestServer(t)

	text, isError := callTool(t, server, "fetch_files", map[string]interface{}{
		"files": []string{"main.py"},
	})
	if !isError {
		t.Fatalf("missing repository should flag isError, got: %s", text)
	}
	if !strings.Contains(text, string(errors.InvalidParameter)) {
		t.Errorf("error text = %q, want kind %s", text, errors.InvalidParameter)
	}
}

func TestGetSnippetsToolUsesAPI(t *testing.T) {
	server, rem := newTestServer(t)

	text, isError := callTool(t, server, "get_snippets", map[string]interface{}{
		"repository": "acme/widgets",
		"snippets":   []string{"notes.txt:2"},
	})
	if isError {
		t.Fatalf("get_snippets flagged error: %s", text)
	}
	if !strings.Contains(text, "two") {
		t.Errorf("output missing snippet content:\n%s", text)
	}
	if rem.calls() != 1 {
		t.Errorf("remote content calls = %d, want 1 (snippets never clone)", rem.calls())
	}
}

func TestGetFilesBulkTool(t *testing.T) {
	server, _ := newTestServer(t)

	text, isError := callTool(t, server, "get_files_bulk", map[string]interface{}{
		"repository": "widgets",
		"files":      []string{"*.py", "missing.py"},
	})
	if isError {
		t.Fatalf("get_files_bulk flagged error: %s", text)
	}

	var result fetch.Result
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if result.Repository != "acme/widgets" {
		t.Errorf("repository = %q, want acme/widgets (alias resolved)", result.Repository)
	}
	if len(result.Files) != 3 {
		t.Fatalf("records = %d, want 3", len(result.Files))
	}
	if result.Files[2].Error == nil || result.Files[2].Error.Kind != errors.RemoteNotFound {
		t.Errorf("missing.py record = %+v, want REMOTE_NOT_FOUND", result.Files[2])
	}
}

func TestResolvePatternsTool(t *testing.T) {
	server, _ := newTestServer(t)

	text, isError := callTool(t, server, "resolve_patterns", map[string]interface{}{
		"repository": "acme/widgets",
		"patterns":   []string{"**/*.py"},
	})
	if isError {
		t.Fatalf("resolve_patterns flagged error: %s", text)
	}

	var result struct {
		Repository string   `json:"repository"`
		Count      int      `json:"count"`
		Files      []string `json:"files"`
	}
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	want := []string{"lib/helper.py", "main.py", "util.py"}
	if result.Count != len(want) {
		t.Fatalf("count = %d, want %d (files %v)", result.Count, len(want), result.Files)
	}
	for i, p := range want {
		if result.Files[i] != p {
			t.Errorf("files[%d] = %q, want %q", i, result.Files[i], p)
		}
	}
}

func TestCloneLifecycleTools(t *testing.T) {
	server, rem := newTestServer(t)

	text, isError := callTool(t, server, "fetch_files", map[string]interface{}{
		"repository": "acme/widgets",
		"files":      []string{"main.py"},
		"mode":       "clone",
	})
	if isError {
		t.Fatalf("fetch_files in clone mode flagged error: %s", text)
	}
	if rem.calls() != 0 {
		t.Errorf("remote content calls = %d, want 0 in clone mode", rem.calls())
	}

	statusText, isError := callTool(t, server, "clone_status", nil)
	if isError {
		t.Fatalf("clone_status flagged error: %s", statusText)
	}
	var report clonecache.Report
	if err := json.Unmarshal([]byte(statusText), &report); err != nil {
		t.Fatalf("status is not JSON: %v", err)
	}
	if len(report.Clones) != 1 {
		t.Fatalf("cached clones = %d, want 1", len(report.Clones))
	}
	if report.Clones[0].Repository != "acme/widgets" {
		t.Errorf("clone repository = %q", report.Clones[0].Repository)
	}

	cleanupText, isError := callTool(t, server, "cleanup_clone", map[string]interface{}{
		"repository": "acme/widgets",
	})
	if isError {
		t.Fatalf("cleanup_clone flagged error: %s", cleanupText)
	}
	var cleanup struct {
		Removed int `json:"removed"`
	}
	if err := json.Unmarshal([]byte(cleanupText), &cleanup); err != nil {
		t.Fatalf("cleanup result is not JSON: %v", err)
	}
	if cleanup.Removed != 1 {
		t.Errorf("removed = %d, want 1", cleanup.Removed)
	}

	statusText, _ = callTool(t, server, "clone_status", nil)
	if err := json.Unmarshal([]byte(statusText), &report); err != nil {
		t.Fatalf("status is not JSON: %v", err)
	}
	if len(report.Clones) != 0 {
		t.Errorf("cached clones after cleanup = %d, want 0", len(report.Clones))
	}
}

func TestResourcesList(t *testing.T) {
	server, _ := newTestServer(t)

	resp := sendRequest(t, server, "resources/list", 1, nil)
	if resp == nil || resp.Error != nil {
		t.Fatalf("resources/list response = %+v", resp)
	}

	result := resp.Result.(map[string]interface{})
	resources, ok := result["resources"].([]Resource)
	if !ok || len(resources) != 1 {
		t.Fatalf("resources = %#v, want one entry", result["resources"])
	}
	if resources[0].URI != clonesResourceURI {
		t.Errorf("resource uri = %q, want %q", resources[0].URI, clonesResourceURI)
	}
}

func TestReadClonesResource(t *testing.T) {
	server, _ := newTestServer(t)

	resp := sendRequest(t, server, "resources/read", 1, map[string]interface{}{
		"uri": clonesResourceURI,
	})
	if resp == nil || resp.Error != nil {
		t.Fatalf("resources/read response = %+v", resp)
	}

	result := resp.Result.(map[string]interface{})
	contents, ok := result["contents"].([]map[string]interface{})
	if !ok || len(contents) != 1 {
		t.Fatalf("contents = %#v", result["contents"])
	}

	text, _ := contents[0]["text"].(string)
	var report clonecache.Report
	if err := json.Unmarshal([]byte(text), &report); err != nil {
		t.Fatalf("resource text is not JSON: %v", err)
	}
	if report.Root == "" {
		t.Error("report root is empty")
	}
}

func TestReadUnknownResource(t *testing.T) {
	server, _ := newTestServer(t)

	resp := sendRequest(t, server, "resources/read", 1, map[string]interface{}{
		"uri": "repofetch://nope",
	})
	if resp == nil || resp.Error == nil {
		t.Fatalf("response = %+v, want rpc error", resp)
	}
	if resp.Error.Code != InvalidParams {
		t.Errorf("error code = %d, want %d", resp.Error.Code, InvalidParams)
	}
}

func TestNotificationProducesNoResponse(t *testing.T) {
	server, _ := newTestServer(t)

	resp := server.handleMessage(context.Background(), &Message{
		Jsonrpc: "2.0",
		Method:  "notifications/initialized",
	})
	if resp != nil {
		t.Errorf("notification response = %+v, want nil", resp)
	}
}

func TestResolveRepository(t *testing.T) {
	server, _ := newTestServer(t)

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"full identity", "acme/widgets@dev", "acme/widgets", false},
		{"alias", "widgets", "acme/widgets", false},
		{"bare name gets default org", "gadgets", "acme/gadgets", false},
		{"invalid name", "bad name!", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := server.resolveRepository(map[string]interface{}{"repository": tt.input})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("resolveRepository(%q) = %v, want error", tt.input, id)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveRepository(%q) error = %v", tt.input, err)
			}
			if got := id.FullName(); got != tt.want {
				t.Errorf("FullName() = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := server.resolveRepository(map[string]interface{}{}); !errors.HasKind(err, errors.InvalidParameter) {
		t.Errorf("missing repository error = %v, want INVALID_PARAMETER", err)
	}
}

func TestStartLoopRoundTrip(t *testing.T) {
	server, _ := newTestServer(t)

	var stdin bytes.Buffer
	write := func(msg *Message) {
		data, err := json.Marshal(msg)
		if err != nil {
			t.Fatal(err)
		}
		stdin.Write(data)
		stdin.WriteByte('\n')
	}
	write(&Message{Jsonrpc: "2.0", Id: 1, Method: "initialize"})
	stdin.WriteString("this is not json\n")
	write(&Message{Jsonrpc: "2.0", Method: "notifications/initialized"})
	write(&Message{Jsonrpc: "2.0", Id: 2, Method: "tools/list"})

	var stdout bytes.Buffer
	server.SetStdin(&stdin)
	server.SetStdout(&stdout)

	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("responses = %d, want 3 (the notification answers nothing):\n%s", len(lines), stdout.String())
	}

	var responses []Message
	for _, line := range lines {
		var msg Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			t.Fatalf("response line is not JSON: %v", err)
		}
		responses = append(responses, msg)
	}

	if responses[0].Id != float64(1) || responses[0].Result == nil {
		t.Errorf("first response = %+v, want result for id 1", responses[0])
	}
	if responses[1].Error == nil || responses[1].Error.Code != ParseError {
		t.Errorf("second response = %+v, want parse error", responses[1])
	}
	if responses[2].Id != float64(2) || responses[2].Result == nil {
		t.Errorf("third response = %+v, want result for id 2", responses[2])
	}
}

func TestMessagePredicates(t *testing.T) {
	tests := []struct {
		name         string
		msg          Message
		request      bool
		notification bool
		response     bool
	}{
		{"request", Message{Jsonrpc: "2.0", Id: float64(1), Method: "tools/list"}, true, false, false},
		{"notification", Message{Jsonrpc: "2.0", Method: "notifications/initialized"}, false, true, false},
		{"response", Message{Jsonrpc: "2.0", Id: float64(1), Result: "ok"}, false, false, true},
		{"error response", Message{Jsonrpc: "2.0", Id: float64(1), Error: &RPCError{Code: ParseError}}, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.IsRequest(); got != tt.request {
				t.Errorf("IsRequest() = %v, want %v", got, tt.request)
			}
			if got := tt.msg.IsNotification(); got != tt.notification {
				t.Errorf("IsNotification() = %v, want %v", got, tt.notification)
			}
			if got := tt.msg.IsResponse(); got != tt.response {
				t.Errorf("IsResponse() = %v, want %v", got, tt.response)
			}
		})
	}
}
