package agent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/viant/afs/file"
	"github.com/viant/buildfarm/internal/idgen"
	"github.com/viant/buildfarm/tracing"
	"golang.org/x/sync/errgroup"
)

const methodGetFile = "getFile"

// GetFile streams the file to a hidden temporary file next to dest and moves
// it into place only once the whole body has been received. A failed
// transfer leaves nothing at dest and removes the temporary file.
func (c *Client) GetFile(ctx context.Context, digest, dest string) (err error) {
	ctx, span := tracing.StartSpan(ctx, "agent."+methodGetFile, tracing.KindClient)
	span.WithAttributes(map[string]string{"builder.url": c.baseURL, "file.digest": digest})
	defer func() { tracing.EndSpan(span, err) }()

	timeout := c.longTimeout()
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err = c.download(callCtx, digest, dest); err != nil {
		err = classify(ctx, callCtx, methodGetFile, timeout, err)
		c.logger.Warn("file download failed", "builder_url", c.baseURL, "digest", digest, "dest", dest, "error", err)
	}
	return err
}

func (c *Client) download(ctx context.Context, digest, dest string) error {
	conn, err := c.pool.Acquire(ctx, c.hostKey)
	if err != nil {
		return err
	}
	defer func() { _ = c.pool.Release(conn) }()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/filecache/"+digest, nil)
	if err != nil {
		return err
	}
	response, err := conn.Client().Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		message, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return &Fault{Code: response.StatusCode, Message: string(message)}
	}

	dir := filepath.Dir(dest)
	if ok, _ := c.fs.Exists(ctx, dir); !ok {
		if err := c.fs.Create(ctx, dir, file.DefaultDirOsMode, true); err != nil {
			return fmt.Errorf("agent: create %s: %w", dir, err)
		}
	}
	// afs moves into a directory when the extensions differ, so the temp
	// name ends with the destination's base name.
	temp := filepath.Join(dir, "."+idgen.New()+"-"+filepath.Base(dest))
	body := &countingReader{reader: response.Body}
	err = c.fs.Upload(ctx, temp, file.DefaultFileOsMode, body)
	if err == nil && response.ContentLength >= 0 && body.count != response.ContentLength {
		err = fmt.Errorf("agent: %s: received %d of %d bytes: %w", digest, body.count, response.ContentLength, io.ErrUnexpectedEOF)
	}
	if err == nil {
		err = c.fs.Move(ctx, temp, dest)
	}
	if err != nil {
		if ok, _ := c.fs.Exists(context.Background(), temp); ok {
			_ = c.fs.Delete(context.Background(), temp)
		}
		return err
	}
	return nil
}

// GetFiles downloads every file concurrently, bounded by the connection
// pool, and returns the first error once all transfers have settled.
func (c *Client) GetFiles(ctx context.Context, files []FileRequest) error {
	var group errgroup.Group
	for _, f := range files {
		group.Go(func() error {
			return c.GetFile(ctx, f.Digest, f.Dest)
		})
	}
	return group.Wait()
}

type countingReader struct {
	reader io.Reader
	count  int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.count += int64(n)
	return n, err
}
