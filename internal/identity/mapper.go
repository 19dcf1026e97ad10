// Package identity builds and queries the source→target user mapping.
// Matching is heuristic (email first, then display name) and the result
// table is operator-editable: rows are created empty, populated by the
// passes, and never deleted. Resolution never blocks a replay; an
// unresolved identity falls back to a deterministic representative user
// with a warning.
package identity

import (
	"context"
	"fmt"

	"github.com/backmig/backmig/internal/logging"
	"github.com/backmig/backmig/internal/staging"
)

const (
	reasonSeeded     = "newly detected user"
	reasonEmailMatch = "matched target user by exact mail address"
	reasonNameMatch  = "matched target user by exact display name"
)

// Mapper runs the mapping passes and answers resolution queries.
type Mapper struct {
	store *staging.Store
	log   *logging.Log
}

func NewMapper(store *staging.Store, log *logging.Log) *Mapper {
	return &Mapper{store: store, log: log}
}

// Seed creates an unresolved mapping row for every staged source user.
// Rerunning after further export phases picks up newly seen users without
// touching existing rows.
func (m *Mapper) Seed(ctx context.Context) error {
	ids, err := m.store.SourceUserIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := m.store.EnsureMappingRow(ctx, id, reasonSeeded); err != nil {
			return err
		}
	}
	return nil
}

// MapByEmail resolves still-unmapped users whose mail address exactly
// matches a target user's. Email matches are authoritative: later passes
// only ever see rows this one left unresolved.
func (m *Mapper) MapByEmail(ctx context.Context) error {
	candidates, err := m.store.UnresolvedByEmail(ctx)
	if err != nil {
		return err
	}
	for _, c := range candidates {
		if err := m.store.SetMapping(ctx, c.SourceUserID, c.TargetUserID, reasonEmailMatch); err != nil {
			return err
		}
		m.log.Info("user mapping: matched by mail address: %s (%d) => %d", c.SourceName, c.SourceUserID, c.TargetUserID)
	}
	return nil
}

// MapByName resolves remaining unmapped users by exact display name.
func (m *Mapper) MapByName(ctx context.Context) error {
	candidates, err := m.store.UnresolvedByName(ctx)
	if err != nil {
		return err
	}
	for _, c := range candidates {
		if err := m.store.SetMapping(ctx, c.SourceUserID, c.TargetUserID, reasonNameMatch); err != nil {
			return err
		}
		m.log.Info("user mapping: matched by name: %s (%d) => %d", c.SourceName, c.SourceUserID, c.TargetUserID)
	}
	return nil
}

// Report logs the full mapping table and returns how many source users
// remain unresolved. Unresolved users do not stop a replay; they resolve
// to the representative user at lookup time.
func (m *Mapper) Report(ctx context.Context) (int, error) {
	rows, err := m.store.MappingReport(ctx)
	if err != nil {
		return 0, err
	}
	m.log.Info("user mapping report:")
	unresolved := 0
	for _, r := range rows {
		if r.TargetUserID != 0 {
			m.log.Info("  - %s (%d) => %s (%d)", r.SourceName, r.SourceUserID, r.TargetName, r.TargetUserID)
		} else {
			m.log.Info("  - %s (%d) => (unassigned)", r.SourceName, r.SourceUserID)
			unresolved++
		}
	}
	if unresolved > 0 {
		m.log.Warn("user mapping: %d user(s) have no target assignment; edit the user_mapping table to assign them, or replay will substitute the representative user", unresolved)
	} else {
		m.log.Info("user mapping: all users assigned")
	}
	return unresolved, nil
}

// Resolve maps a source user id to a target user id, substituting the
// representative user with a warning when no mapping exists.
func (m *Mapper) Resolve(ctx context.Context, sourceUserID int64) (int64, error) {
	id, err := m.store.MappedTargetUserID(ctx, sourceUserID)
	if err != nil {
		return 0, err
	}
	if id != 0 {
		return id, nil
	}
	m.log.Warn("user mapping: no assignment for source user %d, substituting representative user", sourceUserID)
	return m.Representative(ctx)
}

// ResolveByName maps a source display name to a target user id. The
// changelog sometimes reports users as bare names; this path is inherently
// less reliable than id resolution and exists only for those values.
func (m *Mapper) ResolveByName(ctx context.Context, sourceUserName string) (int64, error) {
	id, err := m.store.MappedTargetUserIDByName(ctx, sourceUserName)
	if err != nil {
		return 0, err
	}
	if id != 0 {
		return id, nil
	}
	m.log.Warn("user mapping: no assignment for source user %q, substituting representative user", sourceUserName)
	return m.Representative(ctx)
}

// Representative returns the fallback target identity: lowest role rank,
// then lowest id. An empty target user capture is an operator error.
func (m *Mapper) Representative(ctx context.Context) (int64, error) {
	id, err := m.store.RepresentativeTargetUserID(ctx)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, fmt.Errorf("identity: no target users captured; run the prepare phase first")
	}
	return id, nil
}
