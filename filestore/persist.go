package filestore

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/snow-wind-001/CodeRecoder/internal/atomicio"
)

func writeIndex(path string, idx *sessionIndex) error {
	return atomicio.WriteJSON(path, idx)
}

func decodeIndex(b []byte, idx *sessionIndex) error {
	if err := json.Unmarshal(b, idx); err != nil {
		return errors.Wrap(err, "decoding file snapshot index")
	}

	if idx.Sessions == nil {
		idx.Sessions = make(map[string]*SnapshotSession)
	}

	if idx.Snapshots == nil {
		idx.Snapshots = make(map[string]*FileSnapshot)
	}

	return nil
}
