// Package binarypackage builds binary packages from a source package.
package binarypackage

import (
	"context"
	"fmt"

	"github.com/viant/buildfarm/model/builder"
	"github.com/viant/buildfarm/model/queue"
	"github.com/viant/buildfarm/service/agent"
	"github.com/viant/buildfarm/service/behaviour"
)

// BuilderType is the agent builder used for binary package builds.
const BuilderType = "binarypackage"

// Behaviour dispatches source package builds.
type Behaviour struct {
	behaviour.Base
}

// New is the behaviour.Factory for queue.KindBinaryPackage.
func New(item *queue.Item, vitals builder.Vitals, deps *behaviour.Deps) (behaviour.Behaviour, error) {
	return &Behaviour{Base: behaviour.Base{Item: item, Vitals: vitals, Deps: deps}}, nil
}

// Register binds the behaviour to its kind.
func Register(registry *behaviour.Registry) {
	registry.Register(queue.KindBinaryPackage, New)
}

func (b *Behaviour) Verify(ctx context.Context) error {
	if err := b.VerifyCommon(); err != nil {
		return err
	}
	if len(b.Item.Files) == 0 {
		return &behaviour.RequestError{ItemID: b.Item.ID, Reason: "no source files"}
	}
	for _, file := range b.Item.Files {
		if file.Name == "" || file.Digest == "" {
			return &behaviour.RequestError{ItemID: b.Item.ID, Reason: fmt.Sprintf("incomplete source file %q", file.Name)}
		}
	}
	if b.Item.Archive.Private && b.Item.Archive.CredentialsURL == "" {
		return &behaviour.RequestError{ItemID: b.Item.ID, Reason: "private archive without credentials"}
	}
	return nil
}

func (b *Behaviour) Dispatch(ctx context.Context, ag agent.Agent) error {
	item := b.Item
	if err := behaviour.EnsureChroot(ctx, ag, item, b.Deps); err != nil {
		return err
	}
	var user, password string
	if item.Archive.Private {
		var err error
		if user, password, err = b.Deps.Secrets.Basic(ctx, item.Archive.CredentialsURL); err != nil {
			return fmt.Errorf("archive %s credentials: %w", item.Archive.Name, err)
		}
	}
	fileMap := make(map[string]string, len(item.Files))
	for _, file := range item.Files {
		url := file.URL
		if url == "" {
			url = b.Deps.LibrarianFileURL(file.Digest)
		}
		if _, _, err := ag.EnsurePresent(ctx, file.Digest, url, user, password); err != nil {
			return err
		}
		fileMap[file.Name] = file.Digest
	}
	b.Log().Info("dispatching build", "builder", b.Vitals.Name, "build_id", item.Cookie(), "builder_type", BuilderType)
	return ag.Build(ctx, item.Cookie(), BuilderType, item.Chroot.Digest, fileMap, b.args())
}

func (b *Behaviour) args() map[string]any {
	item := b.Item
	arch := b.Vitals.Processor
	if item.Processor != "" {
		arch = item.Processor
	}
	args := map[string]any{
		"suite":           item.Suite,
		"arch_tag":        arch,
		"archive_purpose": item.Archive.Purpose,
		"ogrecomponent":   item.Archive.Component,
		"archive_private": item.Archive.Private,
	}
	if item.Archive.URL != "" {
		args["archives"] = []string{item.Archive.URL}
	}
	return args
}
