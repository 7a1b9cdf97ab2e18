package queue

import (
	"fmt"
	"time"
)

// Kind selects the behaviour used to verify, dispatch and complete a job.
type Kind string

const (
	KindBinaryPackage Kind = "binarypackage"
	KindRecipe        Kind = "recipe"
)

// Status is the lifecycle state of a build queue item.
type Status string

const (
	StatusNeedsBuild    Status = "NEEDSBUILD"
	StatusBuilding      Status = "BUILDING"
	StatusFullyBuilt    Status = "FULLYBUILT"
	StatusFailedToBuild Status = "FAILEDTOBUILD"
	StatusManualDepWait Status = "MANUALDEPWAIT"
	StatusChrootWait    Status = "CHROOTWAIT"
	StatusFailedUpload  Status = "FAILEDTOUPLOAD"
	StatusCancelled     Status = "CANCELLED"
)

// Terminal reports whether no further build activity happens in this state.
func (s Status) Terminal() bool {
	switch s {
	case StatusNeedsBuild, StatusBuilding:
		return false
	}
	return true
}

// File is a content-addressed artifact the agent has to fetch before building.
type File struct {
	Name   string `json:"name" yaml:"name"`
	Digest string `json:"digest" yaml:"digest"`
	URL    string `json:"url" yaml:"url"`
}

// Chroot identifies the build environment tarball.
type Chroot struct {
	Digest string `json:"digest" yaml:"digest"`
	URL    string `json:"url" yaml:"url"`
}

// Archive describes the target archive of a build.
type Archive struct {
	Name           string `json:"name" yaml:"name"`
	URL            string `json:"url,omitempty" yaml:"url,omitempty"`
	Private        bool   `json:"private,omitempty" yaml:"private,omitempty"`
	CredentialsURL string `json:"credentialsURL,omitempty" yaml:"credentialsURL,omitempty"`
	Purpose        string `json:"purpose,omitempty" yaml:"purpose,omitempty"`
	Component      string `json:"component,omitempty" yaml:"component,omitempty"`
}

// Recipe carries the data of a recipe build.
type Recipe struct {
	Text         string `json:"text" yaml:"text"`
	DistroSeries string `json:"distroSeries" yaml:"distroSeries"`
	AuthorName   string `json:"authorName,omitempty" yaml:"authorName,omitempty"`
	AuthorEmail  string `json:"authorEmail,omitempty" yaml:"authorEmail,omitempty"`
}

// Item is a build candidate: a job plus everything needed to build its
// behaviour.
type Item struct {
	ID           string            `json:"id" yaml:"id"`
	Kind         Kind              `json:"kind" yaml:"kind"`
	BuildID      string            `json:"buildID" yaml:"buildID"`
	Score        int               `json:"score" yaml:"score"`
	Processor    string            `json:"processor,omitempty" yaml:"processor,omitempty"`
	Virtualized  bool              `json:"virtualized" yaml:"virtualized"`
	Status       Status            `json:"status" yaml:"status"`
	Builder      string            `json:"builder,omitempty" yaml:"builder,omitempty"`
	Logtail      string            `json:"logtail,omitempty" yaml:"logtail,omitempty"`
	Dependencies string            `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Suite        string            `json:"suite,omitempty" yaml:"suite,omitempty"`
	Chroot       Chroot            `json:"chroot" yaml:"chroot"`
	Files        []File            `json:"files,omitempty" yaml:"files,omitempty"`
	Archive      Archive           `json:"archive" yaml:"archive"`
	Recipe       *Recipe           `json:"recipe,omitempty" yaml:"recipe,omitempty"`
	Results      map[string]string `json:"results,omitempty" yaml:"results,omitempty"`
	DateCreated  time.Time         `json:"dateCreated" yaml:"dateCreated"`
	DateStarted  time.Time         `json:"dateStarted,omitempty" yaml:"dateStarted,omitempty"`
	DateFinished time.Time         `json:"dateFinished,omitempty" yaml:"dateFinished,omitempty"`
}

// Cookie is the build id sent to the agent; it ties the agent's reports back
// to both the build and its queue entry.
func (i *Item) Cookie() string {
	return fmt.Sprintf("%s-%s", i.BuildID, i.ID)
}

// Clone returns a deep copy.
func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}
	ret := *i
	if i.Files != nil {
		ret.Files = append([]File(nil), i.Files...)
	}
	if i.Recipe != nil {
		recipe := *i.Recipe
		ret.Recipe = &recipe
	}
	if i.Results != nil {
		ret.Results = make(map[string]string, len(i.Results))
		for k, v := range i.Results {
			ret.Results[k] = v
		}
	}
	return &ret
}

// Progress is the incremental state forwarded while a build runs.
type Progress struct {
	Logtail string `json:"logtail"`
}

// Outcome is the terminal state recorded when a build finishes.
type Outcome struct {
	Status       Status            `json:"status"`
	Dependencies string            `json:"dependencies,omitempty"`
	Results      map[string]string `json:"results,omitempty"`
	FinishedAt   time.Time         `json:"finishedAt"`
}
