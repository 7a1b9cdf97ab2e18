package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/viant/buildfarm/model/status"
	"github.com/viant/buildfarm/tracing"
)

// RPC method names, served at <base>/rpc/<method>.
const (
	MethodAbort         = "abort"
	MethodClean         = "clean"
	MethodEcho          = "echo"
	MethodInfo          = "info"
	MethodStatus        = "status"
	MethodEnsurePresent = "ensurepresent"
	MethodBuild         = "build"
)

// EchoParams are the echo arguments.
type EchoParams struct {
	Args []string `json:"args" cbor:"args"`
}

// EnsurePresentParams are the ensurepresent arguments.
type EnsurePresentParams struct {
	Digest   string `json:"digest" cbor:"digest"`
	URL      string `json:"url" cbor:"url"`
	Username string `json:"username,omitempty" cbor:"username,omitempty"`
	Password string `json:"password,omitempty" cbor:"password,omitempty"`
}

// EnsurePresentResult is the ensurepresent reply.
type EnsurePresentResult struct {
	Present bool   `json:"present" cbor:"present"`
	Info    string `json:"info" cbor:"info"`
}

// BuildParams are the build arguments.
type BuildParams struct {
	BuildID      string            `json:"build_id" cbor:"build_id"`
	BuilderType  string            `json:"builder_type" cbor:"builder_type"`
	ChrootDigest string            `json:"chroot_digest" cbor:"chroot_digest"`
	FileMap      map[string]string `json:"filemap" cbor:"filemap"`
	Args         map[string]any    `json:"args" cbor:"args"`
}

// BuildResult is the build reply.
type BuildResult struct {
	BuilderStatus string `json:"builder_status" cbor:"builder_status"`
	BuildID       string `json:"build_id,omitempty" cbor:"build_id,omitempty"`
}

// Response is the reply envelope; exactly one of Result and Fault is set.
type Response[T any] struct {
	Result T      `json:"result,omitempty" cbor:"result,omitempty"`
	Fault  *Fault `json:"fault,omitempty" cbor:"fault,omitempty"`
}

func (c *Client) Abort(ctx context.Context) error {
	_, err := call[string](ctx, c, MethodAbort, c.timeout(), struct{}{})
	return err
}

func (c *Client) Clean(ctx context.Context) error {
	_, err := call[string](ctx, c, MethodClean, c.timeout(), struct{}{})
	return err
}

func (c *Client) Echo(ctx context.Context, args ...string) ([]string, error) {
	return call[[]string](ctx, c, MethodEcho, c.timeout(), &EchoParams{Args: args})
}

func (c *Client) Info(ctx context.Context) (*Info, error) {
	return call[*Info](ctx, c, MethodInfo, c.timeout(), struct{}{})
}

func (c *Client) Status(ctx context.Context) (*status.Report, error) {
	reply, err := call[*status.Report](ctx, c, MethodStatus, c.timeout(), struct{}{})
	if err == nil && reply == nil {
		reply = &status.Report{}
	}
	return reply, err
}

func (c *Client) EnsurePresent(ctx context.Context, digest, url, user, password string) (bool, string, error) {
	params := &EnsurePresentParams{Digest: digest, URL: url, Username: user, Password: password}
	reply, err := call[EnsurePresentResult](ctx, c, MethodEnsurePresent, c.longTimeout(), params)
	if err != nil {
		return false, "", err
	}
	if !reply.Present {
		return false, reply.Info, &CannotFetchFileError{URL: url, Info: reply.Info}
	}
	return true, reply.Info, nil
}

func (c *Client) Build(ctx context.Context, buildID, builderType, chrootDigest string, fileMap map[string]string, args map[string]any) error {
	params := &BuildParams{
		BuildID:      buildID,
		BuilderType:  builderType,
		ChrootDigest: chrootDigest,
		FileMap:      fileMap,
		Args:         args,
	}
	reply, err := call[BuildResult](ctx, c, MethodBuild, c.timeout(), params)
	if err != nil {
		return err
	}
	if status.BuilderStatus(reply.BuilderStatus) != status.BuilderBuilding {
		return &Fault{Code: FaultBuildRejected, Message: fmt.Sprintf("build %s not started: %s", buildID, reply.BuilderStatus)}
	}
	return nil
}

// call posts params to method and returns the envelope result.
func call[T any](ctx context.Context, c *Client, method string, timeout time.Duration, params any) (result T, err error) {
	ctx, span := tracing.StartSpan(ctx, "agent."+method, tracing.KindClient)
	span.WithAttributes(map[string]string{"builder.url": c.baseURL})
	defer func() { tracing.EndSpan(span, err) }()

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	result, err = roundTrip[T](callCtx, c, method, params)
	if err != nil {
		err = classify(ctx, callCtx, method, timeout, err)
		c.logger.Debug("agent call failed", "builder_url", c.baseURL, "method", method, "error", err)
	}
	return result, err
}

func roundTrip[T any](ctx context.Context, c *Client, method string, params any) (T, error) {
	var zero T
	body, err := c.codec.Marshal(params)
	if err != nil {
		return zero, fmt.Errorf("agent: encode %s: %w", method, err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc/"+method, bytes.NewReader(body))
	if err != nil {
		return zero, err
	}
	request.Header.Set("Content-Type", c.codec.ContentType())
	request.Header.Set("Accept", c.codec.ContentType())
	response, err := c.httpClient.Do(request)
	if err != nil {
		return zero, err
	}
	defer response.Body.Close()
	data, err := io.ReadAll(response.Body)
	if err != nil {
		return zero, err
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return zero, &Fault{Code: response.StatusCode, Message: string(bytes.TrimSpace(data))}
	}
	envelope := &Response[T]{}
	codec := CodecForContentType(response.Header.Get("Content-Type"))
	if err := codec.Unmarshal(data, envelope); err != nil {
		return zero, fmt.Errorf("agent: decode %s reply: %w", method, err)
	}
	if envelope.Fault != nil {
		return zero, envelope.Fault
	}
	return envelope.Result, nil
}

// classify maps our own deadline to *TimeoutError and parent cancellation to
// the parent's error.
func classify(parent, callCtx context.Context, method string, timeout time.Duration, err error) error {
	if parentErr := parent.Err(); parentErr != nil {
		return parentErr
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Method: method, After: timeout}
	}
	return err
}
