package agent

import (
	"context"
	"errors"
	"os"

	"github.com/viant/buildfarm/service/hostexec"
	"github.com/viant/buildfarm/tracing"
)

const methodResume = "resume"

// ResumeCommand expands the resume template for this agent.
func (c *Client) ResumeCommand() string {
	name := BuilderName(c.baseURL)
	return os.Expand(c.config.ResumeCommand, func(key string) string {
		switch key {
		case "vm_host":
			return c.vmHost
		case "buildd_name":
			return name
		}
		return ""
	})
}

func (c *Client) Resume(ctx context.Context) (stdout, stderr string, err error) {
	ctx, span := tracing.StartSpan(ctx, "agent."+methodResume, tracing.KindClient)
	span.WithAttributes(map[string]string{"builder.url": c.baseURL, "vm.host": c.vmHost})
	defer func() { tracing.EndSpan(span, err) }()
	if c.vmHost == "" {
		return "", "", ErrNoVMHost
	}

	timeout := c.timeout()
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	command := c.ResumeCommand()
	result, err := c.runner.Run(callCtx, command, timeout)
	if err != nil {
		if errors.Is(err, hostexec.ErrTimeout) {
			return "", "", &TimeoutError{Method: methodResume, After: timeout}
		}
		return "", "", classify(ctx, callCtx, methodResume, timeout, err)
	}
	if result.Status != 0 {
		return result.Stdout, result.Stderr, &ResumeError{
			Command: command,
			Stdout:  result.Stdout,
			Stderr:  result.Stderr,
			Status:  result.Status,
		}
	}
	c.logger.Info("builder resumed", "builder_url", c.baseURL, "vm_host", c.vmHost)
	return result.Stdout, result.Stderr, nil
}
