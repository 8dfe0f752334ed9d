package registry

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cloudx-io/hotiron/core"
)

// FileSource loads sellers from a YAML document of the form:
//
//	sellers:
//	  - name: Nucor
//	    location: {lat: 35.2271, lon: -80.8431}
//	    msrp: 1000
//	    base_cost: 780
//	    risk_aversion: 1.2
//	    is_eaf: true
type FileSource struct {
	Path string
}

type sellerFile struct {
	Sellers []core.Seller `yaml:"sellers"`
}

func (s *FileSource) Name() string { return "file:" + s.Path }

func (s *FileSource) Load(_ context.Context) ([]core.Seller, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seller file: %w", err)
	}
	return ParseSellersYAML(data)
}

// ParseSellersYAML decodes a seller document. Unknown fields are rejected so
// that typos in a hand-edited registry do not silently zero a price.
func ParseSellersYAML(data []byte) ([]core.Seller, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc sellerFile
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse seller file: %w", err)
	}
	return doc.Sellers, nil
}

// MarshalSellersYAML encodes sellers in the FileSource format.
func MarshalSellersYAML(sellers []core.Seller) ([]byte, error) {
	return yaml.Marshal(sellerFile{Sellers: sellers})
}
