package fixture

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

//go:embed data/default.yaml
var defaultDataset []byte

type yamlDataset struct {
	Fixtures []yamlRecord `yaml:"fixtures"`
}

type yamlRecord struct {
	Key     `yaml:",inline"`
	Payload any `yaml:"payload"`
}

// Default loads the dataset compiled into the binary.
func Default() (*Store, error) {
	return LoadYAML(bytes.NewReader(defaultDataset))
}

// LoadYAML reads a dataset document of the form
//
//	fixtures:
//	  - domain: exchange
//	    operation: getTicker
//	    entity: "0x..."
//	    payload: {...}
func LoadYAML(r io.Reader) (*Store, error) {
	var doc yamlDataset
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return FromRecords(nil)
		}
		return nil, fmt.Errorf("decode fixture dataset: %w", err)
	}

	records := make([]Record, 0, len(doc.Fixtures))
	for _, item := range doc.Fixtures {
		payload, err := json.Marshal(item.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode fixture %s: %w", item.Key, err)
		}
		records = append(records, Record{Key: item.Key, Payload: payload})
	}
	return FromRecords(records)
}
