package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItem_Cookie(t *testing.T) {
	item := &Item{ID: "42", BuildID: "1001", Kind: KindBinaryPackage}
	assert.Equal(t, "1001-42", item.Cookie())
}

func TestItem_Clone(t *testing.T) {
	item := &Item{
		ID:      "1",
		Files:   []File{{Name: "a.dsc", Digest: "d1"}},
		Recipe:  &Recipe{Text: "# bzr-builder format 0.3"},
		Results: map[string]string{"a.deb": "/tmp/a.deb"},
	}
	clone := item.Clone()
	clone.Files[0].Name = "b.dsc"
	clone.Recipe.Text = "changed"
	clone.Results["a.deb"] = "changed"

	assert.Equal(t, "a.dsc", item.Files[0].Name)
	assert.Equal(t, "# bzr-builder format 0.3", item.Recipe.Text)
	assert.Equal(t, "/tmp/a.deb", item.Results["a.deb"])
	assert.Nil(t, (*Item)(nil).Clone())
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusNeedsBuild.Terminal())
	assert.False(t, StatusBuilding.Terminal())
	assert.True(t, StatusFullyBuilt.Terminal())
	assert.True(t, StatusManualDepWait.Terminal())
}
