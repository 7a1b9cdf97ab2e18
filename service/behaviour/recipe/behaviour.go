// Package recipe builds source packages from a recipe.
package recipe

import (
	"context"

	"github.com/viant/buildfarm/model/builder"
	"github.com/viant/buildfarm/model/queue"
	"github.com/viant/buildfarm/service/agent"
	"github.com/viant/buildfarm/service/behaviour"
)

// BuilderType is the agent builder used for recipe builds.
const BuilderType = "sourcepackagerecipe"

// Behaviour dispatches recipe builds.
type Behaviour struct {
	behaviour.Base
}

// New is the behaviour.Factory for queue.KindRecipe.
func New(item *queue.Item, vitals builder.Vitals, deps *behaviour.Deps) (behaviour.Behaviour, error) {
	return &Behaviour{Base: behaviour.Base{Item: item, Vitals: vitals, Deps: deps}}, nil
}

// Register binds the behaviour to its kind.
func Register(registry *behaviour.Registry) {
	registry.Register(queue.KindRecipe, New)
}

func (b *Behaviour) Verify(ctx context.Context) error {
	if err := b.VerifyCommon(); err != nil {
		return err
	}
	recipe := b.Item.Recipe
	if recipe == nil || recipe.Text == "" {
		return &behaviour.RequestError{ItemID: b.Item.ID, Reason: "missing recipe text"}
	}
	if recipe.DistroSeries == "" {
		return &behaviour.RequestError{ItemID: b.Item.ID, Reason: "missing distro series"}
	}
	return nil
}

func (b *Behaviour) Dispatch(ctx context.Context, ag agent.Agent) error {
	item := b.Item
	if err := behaviour.EnsureChroot(ctx, ag, item, b.Deps); err != nil {
		return err
	}
	args := map[string]any{
		"recipe_text":       item.Recipe.Text,
		"suite":             item.Suite,
		"distroseries_name": item.Recipe.DistroSeries,
		"author_name":       item.Recipe.AuthorName,
		"author_email":      item.Recipe.AuthorEmail,
		"archive_purpose":   item.Archive.Purpose,
		"ogrecomponent":     item.Archive.Component,
	}
	if item.Archive.URL != "" {
		args["archives"] = []string{item.Archive.URL}
	}
	b.Log().Info("dispatching build", "builder", b.Vitals.Name, "build_id", item.Cookie(), "builder_type", BuilderType)
	return ag.Build(ctx, item.Cookie(), BuilderType, item.Chroot.Digest, map[string]string{}, args)
}
