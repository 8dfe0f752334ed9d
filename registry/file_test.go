package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/hotiron/core"
)

const sampleSellerFile = `
sellers:
  - name: Nucor
    location: {lat: 35.2271, lon: -80.8431}
    msrp: 1000
    base_cost: 780
    risk_aversion: 1.2
    is_eaf: true
  - name: Cleveland-Cliffs
    location: {lat: 41.4993, lon: -81.6944}
    msrp: 765
    base_cost: 720
    risk_aversion: 1.3
`

func TestParseSellersYAML(t *testing.T) {
	sellers, err := ParseSellersYAML([]byte(sampleSellerFile))
	assert.NoError(t, err)

	check.Equal(t, []core.Seller{
		{Name: "Nucor", Location: core.Point{Lat: 35.2271, Lon: -80.8431}, MSRP: 1000, BaseCost: 780, RiskAversion: 1.2, IsEAF: true},
		{Name: "Cleveland-Cliffs", Location: core.Point{Lat: 41.4993, Lon: -81.6944}, MSRP: 765, BaseCost: 720, RiskAversion: 1.3},
	}, sellers)
}

func TestParseSellersYAML_UnknownField(t *testing.T) {
	_, err := ParseSellersYAML([]byte("sellers:\n  - name: x\n    basecost: 700\n"))
	check.Error(t, err)
}

func TestMarshalSellersYAML_ReadBack(t *testing.T) {
	data, err := MarshalSellersYAML(DefaultSellers())
	assert.NoError(t, err)

	sellers, err := ParseSellersYAML(data)
	assert.NoError(t, err)
	check.Equal(t, DefaultSellers(), sellers)
}

func TestFileSource_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sellers.yaml")
	assert.NoError(t, os.WriteFile(path, []byte(sampleSellerFile), 0o644))

	src := &FileSource{Path: path}
	r, err := Open(context.Background(), src, nil)
	assert.NoError(t, err)

	sellers, err := r.ListSellers(context.Background())
	assert.NoError(t, err)
	check.Equal(t, 2, len(sellers))
	check.Equal(t, "file:"+path, r.Snapshot().Source)
}

func TestFileSource_Missing(t *testing.T) {
	_, err := (&FileSource{Path: filepath.Join(t.TempDir(), "nope.yaml")}).Load(context.Background())
	check.Error(t, err)
}
