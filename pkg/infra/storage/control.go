package storage

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hauler/pkg/domain/interfaces"
	"github.com/m-mizutani/hauler/pkg/domain/model"
	"github.com/m-mizutani/hauler/pkg/domain/types"
)

type controlStore struct{}

// NewControlStore creates a ControlStore persisting control files as
// JSON sidecars next to their data files.
func NewControlStore() interfaces.ControlStore {
	return &controlStore{}
}

// Load reads a control file. A missing file is a bad-input error (there
// is nothing to resume); a corrupt one is a resume failure.
func (x *controlStore) Load(path string) (*model.Control, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, goerr.Wrap(err, "control file not found, nothing to resume",
				goerr.T(types.TagBadInput), goerr.V("path", path))
		}
		return nil, goerr.Wrap(err, "failed to read control file", goerr.T(types.TagTransfer), goerr.V("path", path))
	}

	var ctrl model.Control
	if err := json.Unmarshal(data, &ctrl); err != nil {
		return nil, goerr.Wrap(err, "control file is corrupt", goerr.T(types.TagTransfer), goerr.V("path", path))
	}
	if ctrl.SchemaVersion != model.ControlSchemaVersion {
		return nil, goerr.New("control file has an unsupported schema version",
			goerr.T(types.TagTransfer),
			goerr.V("path", path),
			goerr.V("version", ctrl.SchemaVersion),
		)
	}
	return &ctrl, nil
}

// Save writes the control file atomically via a temp file and rename.
func (x *controlStore) Save(path string, ctrl *model.Control) error {
	ctrl.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(ctrl)
	if err != nil {
		return goerr.Wrap(err, "failed to encode control file", goerr.V("path", path))
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return goerr.Wrap(err, "failed to write control file", goerr.T(types.TagStorage), goerr.V("path", tmp))
	}
	if err := os.Rename(tmp, path); err != nil {
		return goerr.Wrap(err, "failed to replace control file", goerr.T(types.TagStorage), goerr.V("path", path))
	}
	return nil
}

// Remove deletes a control file; a missing file is not an error.
func (x *controlStore) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return goerr.Wrap(err, "failed to remove control file", goerr.T(types.TagStorage), goerr.V("path", path))
	}
	return nil
}
