package identity

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmig/backmig/internal/backlog"
	"github.com/backmig/backmig/internal/logging"
	"github.com/backmig/backmig/internal/staging"
)

func setup(t *testing.T) (*Mapper, *staging.Store) {
	t.Helper()
	store, err := staging.OpenMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewMapper(store, logging.NewWriter(&bytes.Buffer{}, false)), store
}

func stageUsers(t *testing.T, store *staging.Store) {
	t.Helper()
	ctx := context.Background()
	// Source: alice matches by email, bob by name, mallory by nothing.
	require.NoError(t, store.PutUser(ctx, &backlog.User{ID: 1, Name: "Alice", MailAddress: "alice@example.com"}))
	require.NoError(t, store.PutUser(ctx, &backlog.User{ID: 2, Name: "Bob", MailAddress: "bob@old.example.com"}))
	require.NoError(t, store.PutUser(ctx, &backlog.User{ID: 3, Name: "Mallory", MailAddress: "mallory@old.example.com"}))

	// Target: alice has a new display name but the same email; a second
	// user also named Alice tempts the name pass.
	require.NoError(t, store.PutTargetUser(ctx, backlog.User{ID: 101, Name: "Alice Cooper", RoleType: 2, MailAddress: "alice@example.com"}))
	require.NoError(t, store.PutTargetUser(ctx, backlog.User{ID: 102, Name: "Alice", RoleType: 2, MailAddress: "other@example.com"}))
	require.NoError(t, store.PutTargetUser(ctx, backlog.User{ID: 103, Name: "Bob", RoleType: 1, MailAddress: "bob@new.example.com"}))
}

func runPasses(t *testing.T, m *Mapper) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, m.Seed(ctx))
	require.NoError(t, m.MapByEmail(ctx))
	require.NoError(t, m.MapByName(ctx))
}

func TestEmailMatchTakesPrecedenceOverName(t *testing.T) {
	m, _ := setup(t)
	stageUsers(t, m.store)
	runPasses(t, m)

	// Alice matched by email in the first pass; the name pass must not
	// rebind her to the target user that shares her display name.
	id, err := m.Resolve(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(101), id)
}

func TestNameMatchResolvesRemaining(t *testing.T) {
	m, _ := setup(t)
	stageUsers(t, m.store)
	runPasses(t, m)

	id, err := m.Resolve(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(103), id)
}

func TestUnmatchedFallsBackToRepresentative(t *testing.T) {
	m, _ := setup(t)
	stageUsers(t, m.store)
	runPasses(t, m)

	// Representative: lowest role rank wins (Bob, role 1, id 103).
	id, err := m.Resolve(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(103), id)

	unresolved, err := m.Report(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, unresolved)
}

func TestSeedIsIdempotent(t *testing.T) {
	m, store := setup(t)
	stageUsers(t, store)
	ctx := context.Background()

	require.NoError(t, m.Seed(ctx))
	require.NoError(t, m.MapByEmail(ctx))
	require.NoError(t, m.Seed(ctx))

	// Reseeding must not clobber the resolved mapping.
	id, err := m.Resolve(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(101), id)
	assert.Equal(t, 3, store.Counters.Ins(staging.KindMappingUser))
}

func TestResolveByName(t *testing.T) {
	m, _ := setup(t)
	stageUsers(t, m.store)
	runPasses(t, m)

	id, err := m.ResolveByName(context.Background(), "Bob")
	require.NoError(t, err)
	assert.Equal(t, int64(103), id)

	// Unknown names substitute the representative user.
	id, err = m.ResolveByName(context.Background(), "Nobody")
	require.NoError(t, err)
	assert.Equal(t, int64(103), id)
}
