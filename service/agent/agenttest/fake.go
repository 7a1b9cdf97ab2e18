package agenttest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/viant/buildfarm/model/status"
	"github.com/viant/buildfarm/service/agent"
)

// Method names recorded by Fake besides the RPC ones.
const (
	MethodGetFile = "getFile"
	MethodResume  = "resume"
)

// FakeCall is one recorded Fake invocation.
type FakeCall struct {
	Method string
	Args   []any
}

// Fake is an in-memory agent.Agent recording every call.
type Fake struct {
	BaseURL string
	// Report is returned by Status.
	Report status.Report
	// Errors fails the named method.
	Errors map[string]error
	// Unavailable lists URLs EnsurePresent cannot fetch.
	Unavailable map[string]bool
	// Files holds downloadable content by digest.
	Files map[string][]byte
	// ResumeStdout is returned by a successful Resume.
	ResumeStdout string
	// OnCall observes every call before it is handled.
	OnCall func(method string)

	mux   sync.Mutex
	calls []FakeCall
}

var _ agent.Agent = (*Fake)(nil)

// NewFake creates an idle fake agent.
func NewFake(baseURL string) *Fake {
	return &Fake{
		BaseURL:     baseURL,
		Report:      status.Report{BuilderStatus: string(status.BuilderIdle)},
		Errors:      map[string]error{},
		Unavailable: map[string]bool{},
		Files:       map[string][]byte{},
	}
}

func (f *Fake) record(method string, args ...any) error {
	f.mux.Lock()
	f.calls = append(f.calls, FakeCall{Method: method, Args: args})
	onCall := f.OnCall
	err := f.Errors[method]
	f.mux.Unlock()
	if onCall != nil {
		onCall(method)
	}
	return err
}

// Calls returns recorded calls in order.
func (f *Fake) Calls() []FakeCall {
	f.mux.Lock()
	defer f.mux.Unlock()
	return append([]FakeCall(nil), f.calls...)
}

// Methods returns the recorded method names in order.
func (f *Fake) Methods() []string {
	var ret []string
	for _, call := range f.Calls() {
		ret = append(ret, call.Method)
	}
	return ret
}

// Count returns how many times method was called.
func (f *Fake) Count(method string) int {
	count := 0
	for _, call := range f.Calls() {
		if call.Method == method {
			count++
		}
	}
	return count
}

func (f *Fake) URL() string { return f.BaseURL }

func (f *Fake) Abort(context.Context) error { return f.record(agent.MethodAbort) }

func (f *Fake) Clean(context.Context) error { return f.record(agent.MethodClean) }

func (f *Fake) Echo(_ context.Context, args ...string) ([]string, error) {
	if err := f.record(agent.MethodEcho, toAny(args)...); err != nil {
		return nil, err
	}
	return args, nil
}

func (f *Fake) Info(context.Context) (*agent.Info, error) {
	if err := f.record(agent.MethodInfo); err != nil {
		return nil, err
	}
	return &agent.Info{Version: "fake"}, nil
}

func (f *Fake) Status(context.Context) (*status.Report, error) {
	if err := f.record(agent.MethodStatus); err != nil {
		return nil, err
	}
	f.mux.Lock()
	defer f.mux.Unlock()
	report := f.Report
	return &report, nil
}

func (f *Fake) EnsurePresent(_ context.Context, digest, url, user, password string) (bool, string, error) {
	if err := f.record(agent.MethodEnsurePresent, digest, url, user, password); err != nil {
		return false, "", err
	}
	if f.Unavailable[url] {
		return false, "unavailable", &agent.CannotFetchFileError{URL: url, Info: "unavailable"}
	}
	return true, "Cache", nil
}

func (f *Fake) GetFile(_ context.Context, digest, dest string) error {
	if err := f.record(MethodGetFile, digest, dest); err != nil {
		return err
	}
	f.mux.Lock()
	content, ok := f.Files[digest]
	f.mux.Unlock()
	if !ok {
		return &agent.Fault{Code: 404, Message: fmt.Sprintf("%s not found", digest)}
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, content, 0o644)
}

func (f *Fake) GetFiles(ctx context.Context, files []agent.FileRequest) error {
	var firstErr error
	for _, file := range files {
		if err := f.GetFile(ctx, file.Digest, file.Dest); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f *Fake) Resume(context.Context) (string, string, error) {
	if err := f.record(MethodResume); err != nil {
		return "", "", err
	}
	return f.ResumeStdout, "", nil
}

func (f *Fake) Build(_ context.Context, buildID, builderType, chrootDigest string, fileMap map[string]string, args map[string]any) error {
	return f.record(agent.MethodBuild, buildID, builderType, chrootDigest, fileMap, args)
}

func toAny(args []string) []any {
	ret := make([]any, len(args))
	for i, arg := range args {
		ret[i] = arg
	}
	return ret
}
