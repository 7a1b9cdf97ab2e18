package behaviour

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/viant/buildfarm/internal/clock"
	"github.com/viant/buildfarm/model/builder"
	"github.com/viant/buildfarm/model/queue"
	"github.com/viant/buildfarm/model/status"
	"github.com/viant/buildfarm/service/agent"
)

// Base implements the terminal status handling common to all build kinds.
type Base struct {
	Item   *queue.Item
	Vitals builder.Vitals
	Deps   *Deps
}

// HandleStatus folds buildStatus into the item.
func (b *Base) HandleStatus(ctx context.Context, ag agent.Agent, buildStatus string, report *status.Report) error {
	logger := b.Deps.logger().With("builder", b.Vitals.Name, "build_id", b.Item.Cookie(), "build_status", buildStatus)
	switch buildStatus {
	case status.BuildOK:
		results, err := b.gather(ctx, ag, report)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("gathering build results failed", "error", err)
			return b.complete(ctx, queue.StatusFailedUpload, report, results)
		}
		logger.Info("build complete", "files", len(results))
		return b.complete(ctx, queue.StatusFullyBuilt, report, results)
	case status.BuildPackageFail:
		logger.Info("build failed")
		return b.complete(ctx, queue.StatusFailedToBuild, report, nil)
	case status.BuildDepFail:
		logger.Info("build waiting on dependencies", "dependencies", report.Dependencies)
		return b.complete(ctx, queue.StatusManualDepWait, report, nil)
	case status.BuildChrootFail:
		logger.Info("chroot problem")
		return b.complete(ctx, queue.StatusChrootWait, report, nil)
	case status.BuildAborted:
		logger.Info("build cancelled")
		return b.complete(ctx, queue.StatusCancelled, report, nil)
	case status.BuildGivenBack:
		logger.Info("build given back")
		return b.Deps.Registry.ResetItem(ctx, b.Item.ID)
	case status.BuildBuilderFail:
		logger.Warn("builder failed during build")
		if err := b.Deps.Registry.ResetItem(ctx, b.Item.ID); err != nil {
			return err
		}
		return b.Deps.Registry.FailBuilder(ctx, b.Vitals.Name, "builder reported BUILDERFAIL for "+b.Item.Cookie())
	}
	return fmt.Errorf("%w: %q from %s", ErrUnknownBuildStatus, buildStatus, b.Vitals.Name)
}

func (b *Base) complete(ctx context.Context, itemStatus queue.Status, report *status.Report, results map[string]string) error {
	outcome := queue.Outcome{Status: itemStatus, Results: results, FinishedAt: clock.Now()}
	if itemStatus == queue.StatusManualDepWait && report != nil {
		outcome.Dependencies = report.Dependencies
	}
	return b.Deps.Registry.CompleteBuild(ctx, b.Item.ID, outcome)
}

// gather downloads report.FileMap into <UploadRoot>/<cookie>/ and returns
// file name to local path for every file downloaded.
func (b *Base) gather(ctx context.Context, ag agent.Agent, report *status.Report) (map[string]string, error) {
	if report == nil || len(report.FileMap) == 0 {
		return nil, nil
	}
	dir := filepath.Join(b.Deps.UploadRoot, b.Item.Cookie())
	requests := make([]agent.FileRequest, 0, len(report.FileMap))
	paths := make(map[string]string, len(report.FileMap))
	for name, digest := range report.FileMap {
		base := filepath.Base(name)
		if base != name || base == "." || base == ".." {
			return nil, fmt.Errorf("invalid result file name %q", name)
		}
		dest := filepath.Join(dir, base)
		requests = append(requests, agent.FileRequest{Digest: digest, Dest: dest})
		paths[name] = dest
	}
	if err := ag.GetFiles(ctx, requests); err != nil {
		return nil, err
	}
	return paths, nil
}

// Log returns the behaviour logger.
func (b *Base) Log() *slog.Logger {
	return b.Deps.logger()
}

// VerifyCommon checks the fields every build kind needs.
func (b *Base) VerifyCommon() error {
	var errs []error
	if b.Item.BuildID == "" {
		errs = append(errs, &RequestError{ItemID: b.Item.ID, Reason: "missing build id"})
	}
	if b.Item.Chroot.Digest == "" {
		errs = append(errs, &RequestError{ItemID: b.Item.ID, Reason: "missing chroot"})
	}
	if b.Item.Archive.Name == "" {
		errs = append(errs, &RequestError{ItemID: b.Item.ID, Reason: "missing archive"})
	}
	if b.Item.Virtualized && !b.Vitals.Virtualized {
		errs = append(errs, &RequestError{ItemID: b.Item.ID, Reason: "virtualized build on non-virtual builder " + b.Vitals.Name})
	}
	return errors.Join(errs...)
}
