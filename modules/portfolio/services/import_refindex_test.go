package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestio-pm/gestio/modules/portfolio/domain/batch"
)

func TestReferenceIndex_SeedAndLookup(t *testing.T) {
	tenant := uuid.New()
	key := batch.ContactKey(tenant, "a@x.com")
	id := uuid.New()

	ix := newReferenceIndex()
	ix.seed([]SeedEntry{{Key: key, ID: id}})

	entry, ok := ix.lookup(key)
	require.True(t, ok)
	assert.Equal(t, id, entry.id)
	assert.False(t, entry.runCreated, "seeded entries are pre-existing, not run-created")

	_, ok = ix.lookup(batch.ContactKey(uuid.New(), "a@x.com"))
	assert.False(t, ok, "keys are tenant scoped")
}

func TestReferenceIndex_ReserveIsIdempotentPerID(t *testing.T) {
	tenant := uuid.New()
	key := batch.BuildingKey(tenant, "1 Rue Haute")
	id := uuid.New()

	ix := newReferenceIndex()
	require.NoError(t, ix.reserve(key, id))
	require.NoError(t, ix.reserve(key, id), "same key, same id is a no-op")

	entry, ok := ix.lookup(key)
	require.True(t, ok)
	assert.True(t, entry.runCreated)
	assert.Equal(t, 1, ix.size())
}

func TestReferenceIndex_ConflictingReserveIsInvariantViolation(t *testing.T) {
	tenant := uuid.New()
	key := batch.BuildingKey(tenant, "1 Rue Haute")
	first := uuid.New()
	second := uuid.New()

	ix := newReferenceIndex()
	require.NoError(t, ix.reserve(key, first))

	err := ix.reserve(key, second)
	require.Error(t, err)
	var inv *InvariantViolationError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, key, inv.Key)
	assert.Equal(t, first, inv.Existing)
	assert.Equal(t, second, inv.Conflicting)
}

func TestReferenceIndex_ReleaseDropsOnlyRunCreated(t *testing.T) {
	tenant := uuid.New()
	seeded := batch.ContactKey(tenant, "seeded@x.com")
	created := batch.ContactKey(tenant, "created@x.com")

	ix := newReferenceIndex()
	ix.seed([]SeedEntry{{Key: seeded, ID: uuid.New()}})
	require.NoError(t, ix.reserve(created, uuid.New()))

	ix.release(created)
	_, ok := ix.lookup(created)
	assert.False(t, ok)

	ix.release(seeded)
	_, ok = ix.lookup(seeded)
	assert.True(t, ok, "seeded entries survive release")
}
