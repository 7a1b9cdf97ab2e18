package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCleanStatus(t *testing.T) {
	testCases := []struct {
		text      string
		expect    CleanStatus
		expectErr bool
	}{
		{text: "DIRTY", expect: CleanStatusDirty},
		{text: " cleaning ", expect: CleanStatusCleaning},
		{text: "clean", expect: CleanStatusClean},
		{text: "sparkling", expectErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.text, func(t *testing.T) {
			actual, err := ParseCleanStatus(tc.text)
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expect, actual)
		})
	}
}

func TestNewVitals(t *testing.T) {
	b := &Builder{
		Name:            "bob",
		URL:             "http://bob.buildd:8221/",
		Virtualized:     true,
		VMHost:          "bob-host.buildd",
		VMResetProtocol: ResetProtocolAsynchronous,
		BuilderOK:       true,
		CleanStatus:     CleanStatusClean,
		CurrentItemID:   "17",
	}
	vitals := NewVitals(b)
	b.CleanStatus = CleanStatusDirty
	b.CurrentItemID = ""

	assert.Equal(t, CleanStatusClean, vitals.CleanStatus)
	assert.True(t, vitals.HasJob())
	assert.Equal(t, "bob-host.buildd", vitals.VMHost)
	assert.True(t, vitals.Dispatchable())
}

func TestVitals_Dispatchable(t *testing.T) {
	testCases := []struct {
		name   string
		vitals Vitals
		expect bool
	}{
		{name: "clean healthy", vitals: Vitals{BuilderOK: true, CleanStatus: CleanStatusClean}, expect: true},
		{name: "unhealthy", vitals: Vitals{BuilderOK: false, CleanStatus: CleanStatusClean}},
		{name: "manual", vitals: Vitals{BuilderOK: true, Manual: true, CleanStatus: CleanStatusClean}},
		{name: "dirty", vitals: Vitals{BuilderOK: true, CleanStatus: CleanStatusDirty}},
		{name: "cleaning", vitals: Vitals{BuilderOK: true, CleanStatus: CleanStatusCleaning}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, tc.vitals.Dispatchable())
		})
	}
}
