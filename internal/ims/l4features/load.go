package l4features

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/banshee-data/mobility.report/internal/ims/l1frames"
)

// DecodeFeatureList reads a JSON feature list document from r. Raw files
// are validated; a missing id is generated.
func DecodeFeatureList(r io.Reader) (*FeatureList, error) {
	fl := NewFeatureList("")
	if err := json.NewDecoder(r).Decode(fl); err != nil {
		return nil, fmt.Errorf("decode feature list: %w", err)
	}
	for _, raw := range fl.RawFiles {
		if err := raw.Validate(); err != nil {
			return nil, err
		}
	}
	seen := make(map[int]struct{}, len(fl.Rows))
	for i, row := range fl.Rows {
		if row == nil {
			return nil, fmt.Errorf("feature list %q: row %d is null", fl.Name, i)
		}
		if _, dup := seen[row.ID]; dup {
			return nil, fmt.Errorf("feature list %q: duplicate row id %d", fl.Name, row.ID)
		}
		seen[row.ID] = struct{}{}
	}
	return fl, nil
}

// LoadFeatureList loads a feature list document from path (.json or
// .json.zst).
func LoadFeatureList(path string) (*FeatureList, error) {
	rc, err := l1frames.OpenInput(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return DecodeFeatureList(rc)
}
