package harvest

import (
	"github.com/signetml/signet/signet-golib/errors"
	"github.com/signetml/signet/signet-golib/serialization"
)

// Record is the serialized form of a harvested example. Images stay on disk;
// only the path and the label pair are dumped, enough to inspect what the
// model confuses.
type Record struct {
	Path      string `json:"path"`
	True      string `json:"true"`
	Predicted string `json:"predicted"`
}

// Save writes one record per harvested example to path; the extension picks
// the encoding, typically .json.
func Save(path string, hard []Example) error {
	records := make([]Record, len(hard))
	for i, e := range hard {
		records[i] = Record{
			Path:      e.Path,
			True:      e.Label.Name(),
			Predicted: e.Predicted.Name(),
		}
	}
	if err := serialization.Encode(path, records); err != nil {
		return errors.Wrapf(err, "error writing harvested examples to %s", path)
	}
	return nil
}

// Load reads a dump written by Save
func Load(path string) ([]Record, error) {
	var records []Record
	if err := serialization.Decode(path, &records); err != nil {
		return nil, errors.Wrapf(err, "error reading harvested examples from %s", path)
	}
	return records, nil
}
