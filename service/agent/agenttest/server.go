// Package agenttest provides an in-process builder agent for tests.
package agenttest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/viant/buildfarm/model/status"
	"github.com/viant/buildfarm/service/agent"
)

// Call is one recorded RPC.
type Call struct {
	Method string
	Body   []byte
	Codec  agent.Codec
}

// Decode decodes the call parameters into v.
func (c Call) Decode(v any) error {
	return c.Codec.Unmarshal(c.Body, v)
}

// Server is a scriptable fake agent serving the RPC and file cache routes.
type Server struct {
	*httptest.Server
	mux         sync.Mutex
	report      status.Report
	buildReply  status.BuilderStatus
	faults      map[string]*agent.Fault
	httpStatus  map[string]int
	delays      map[string]time.Duration
	files       map[string][]byte
	truncated   map[string]bool
	unavailable map[string]string
	calls       []Call
}

// New starts a server reporting an idle builder.
func New() *Server {
	ret := &Server{
		report:      status.Report{BuilderStatus: string(status.BuilderIdle)},
		buildReply:  status.BuilderBuilding,
		faults:      map[string]*agent.Fault{},
		httpStatus:  map[string]int{},
		delays:      map[string]time.Duration{},
		files:       map[string][]byte{},
		truncated:   map[string]bool{},
		unavailable: map[string]string{},
	}
	router := chi.NewRouter()
	router.Post("/rpc/{method}", ret.handleRPC)
	router.Get("/filecache/{digest}", ret.handleFile)
	ret.Server = httptest.NewServer(router)
	return ret
}

// SetStatus sets the status report returned by the status method.
func (s *Server) SetStatus(report status.Report) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.report = report
}

// SetBuildReply sets the builder status replied to build.
func (s *Server) SetBuildReply(reply status.BuilderStatus) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.buildReply = reply
}

// SetFault makes method reply with fault.
func (s *Server) SetFault(method string, fault *agent.Fault) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.faults[method] = fault
}

// SetHTTPStatus makes method fail with an HTTP status code.
func (s *Server) SetHTTPStatus(method string, code int) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.httpStatus[method] = code
}

// SetDelay delays replies to method, or to file downloads for "getFile".
func (s *Server) SetDelay(method string, delay time.Duration) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.delays[method] = delay
}

// AddFile serves content under digest.
func (s *Server) AddFile(digest string, content []byte) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.files[digest] = content
}

// TruncateFile makes the download of digest stop half way.
func (s *Server) TruncateFile(digest string) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.truncated[digest] = true
}

// SetUnavailable makes ensurepresent report url as not fetchable.
func (s *Server) SetUnavailable(url, info string) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.unavailable[url] = info
}

// Calls returns recorded RPCs in arrival order.
func (s *Server) Calls() []Call {
	s.mux.Lock()
	defer s.mux.Unlock()
	return append([]Call(nil), s.calls...)
}

// Count returns how many times method was called.
func (s *Server) Count(method string) int {
	count := 0
	for _, call := range s.Calls() {
		if call.Method == method {
			count++
		}
	}
	return count
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	method := chi.URLParam(r, "method")
	codec := agent.CodecForContentType(r.Header.Get("Content-Type"))
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	call := Call{Method: method, Body: body, Codec: codec}

	s.mux.Lock()
	s.calls = append(s.calls, call)
	delay := s.delays[method]
	fault := s.faults[method]
	code := s.httpStatus[method]
	s.mux.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if code != 0 {
		http.Error(w, http.StatusText(code), code)
		return
	}
	if fault != nil {
		s.reply(w, codec, &agent.Response[any]{Fault: fault})
		return
	}
	result, err := s.result(call)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.reply(w, codec, &agent.Response[any]{Result: result})
}

func (s *Server) result(call Call) (any, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	switch call.Method {
	case agent.MethodStatus:
		report := s.report
		return &report, nil
	case agent.MethodEcho:
		params := &agent.EchoParams{}
		if err := call.Decode(params); err != nil {
			return nil, err
		}
		return params.Args, nil
	case agent.MethodInfo:
		return &agent.Info{Version: "test", Architectures: []string{"amd64"}, Builders: []string{"binarypackage", "sourcepackagerecipe"}}, nil
	case agent.MethodEnsurePresent:
		params := &agent.EnsurePresentParams{}
		if err := call.Decode(params); err != nil {
			return nil, err
		}
		if info, ok := s.unavailable[params.URL]; ok {
			return &agent.EnsurePresentResult{Present: false, Info: info}, nil
		}
		return &agent.EnsurePresentResult{Present: true, Info: "Cache"}, nil
	case agent.MethodBuild:
		params := &agent.BuildParams{}
		if err := call.Decode(params); err != nil {
			return nil, err
		}
		return &agent.BuildResult{BuilderStatus: string(s.buildReply), BuildID: params.BuildID}, nil
	case agent.MethodAbort:
		return string(status.BuilderAborting), nil
	case agent.MethodClean:
		return string(status.BuilderIdle), nil
	}
	return nil, &agent.Fault{Code: 404, Message: "unknown method " + call.Method}
}

func (s *Server) reply(w http.ResponseWriter, codec agent.Codec, response *agent.Response[any]) {
	data, err := codec.Marshal(response)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", codec.ContentType())
	_, _ = w.Write(data)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	digest := chi.URLParam(r, "digest")
	s.mux.Lock()
	content, ok := s.files[digest]
	truncated := s.truncated[digest]
	delay := s.delays["getFile"]
	s.mux.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	if truncated {
		_, _ = w.Write(content[:len(content)/2])
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
		panic(http.ErrAbortHandler)
	}
	_, _ = w.Write(content)
}
