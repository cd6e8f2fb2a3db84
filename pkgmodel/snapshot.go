package pkgmodel

import (
	"encoding/json"
	"fmt"
)

// snapshot is a stored full-package state keyed by the version that
// produced it. History is forward-only: a rollback re-enters a stored
// state under a new MAJOR version rather than rewinding.
type snapshot struct {
	Version Version
	State   []byte
}

// Snapshot records the current package state under its version and
// returns the version recorded. Serialization goes through JSON so the
// stored state is decoupled from in-memory pointers.
func (p *Package) Snapshot() (Version, error) {
	state, err := json.Marshal(packageState{
		Category: p.Category,
		Status:   p.Status,
		Products: p.Products,
	})
	if err != nil {
		return Version{}, fmt.Errorf("serializing package state: %w", err)
	}
	p.history = append(p.history, snapshot{Version: p.Version, State: state})
	return p.Version, nil
}

// Rollback restores the state stored at version. The restored state is
// re-entered under a new MAJOR version; history is never truncated.
func (p *Package) Rollback(version Version) error {
	var found *snapshot
	for i := range p.history {
		if p.history[i].Version == version {
			found = &p.history[i]
			break
		}
	}
	if found == nil {
		return fmt.Errorf("%w: %s", ErrVersionNotFound, version)
	}

	var state packageState
	if err := json.Unmarshal(found.State, &state); err != nil {
		return fmt.Errorf("restoring package state: %w", err)
	}
	p.Category = state.Category
	p.Status = state.Status
	p.Products = state.Products
	p.Version = p.Version.Bump(ChangeMajor)
	return nil
}

// BumpVersion advances the package version; the caller names the change
// type.
func (p *Package) BumpVersion(change ChangeType) Version {
	p.Version = p.Version.Bump(change)
	return p.Version
}

// Versions lists all snapshotted versions in recording order.
func (p *Package) Versions() []Version {
	out := make([]Version, len(p.history))
	for i, s := range p.history {
		out[i] = s.Version
	}
	return out
}

// packageState is the serialized snapshot payload.
type packageState struct {
	Category Category   `json:"category"`
	Status   Status     `json:"status"`
	Products []*Product `json:"products"`
}
