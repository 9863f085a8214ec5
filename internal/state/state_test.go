package state

import (
	"errors"
	"sync"
	"testing"

	"omnitoken/clinic-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotIsACopy(t *testing.T) {
	st := New(models.Snapshot{Cabins: []models.Cabin{{ID: "c1", Name: "Cabin 1"}}})

	snap := st.Snapshot()
	snap.Cabins[0].Name = "changed"

	assert.Equal(t, "Cabin 1", st.Snapshot().Cabins[0].Name)
}

func TestUpdateErrorLeavesStateAlone(t *testing.T) {
	st := New(models.Snapshot{})
	boom := errors.New("boom")

	err := st.Update(func(snap *models.Snapshot) error {
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Empty(t, st.Snapshot().Tokens)
}

func TestUpdatesAreSerialized(t *testing.T) {
	st := New(models.Snapshot{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = st.Update(func(snap *models.Snapshot) error {
				snap.Tokens = append(snap.Tokens, models.Token{Number: len(snap.Tokens) + models.TokenNumberBase})
				return nil
			})
		}()
	}
	wg.Wait()

	tokens := st.Snapshot().Tokens
	require.Len(t, tokens, 50)
	seen := make(map[int]bool)
	for _, token := range tokens {
		assert.False(t, seen[token.Number], "duplicate number %d", token.Number)
		seen[token.Number] = true
	}
}

func TestLookups(t *testing.T) {
	snap := &models.Snapshot{
		Users:  []models.User{{ID: "u1", Email: "Doc@Clinic.test"}},
		Groups: []models.ClinicGroup{{ID: "g1", FormID: "f1"}, {ID: "g2"}},
	}

	assert.Equal(t, 0, UserByEmail(snap, "doc@clinic.test"))
	assert.Equal(t, -1, UserByEmail(snap, "other@clinic.test"))
	assert.Equal(t, 0, GroupByForm(snap, "f1"))
	assert.Equal(t, -1, GroupByForm(snap, ""))
	assert.Equal(t, 1, GroupIndex(snap, "g2"))

	snap.Groups = RemoveAt(snap.Groups, 0)
	assert.Equal(t, -1, GroupIndex(snap, "g1"))
	assert.Equal(t, 0, GroupIndex(snap, "g2"))
}

func TestReplace(t *testing.T) {
	st := New(models.Snapshot{Clinics: []models.Clinic{{ID: "old"}}})
	st.Replace(models.Snapshot{Clinics: []models.Clinic{{ID: "new"}}})

	var ids []string
	st.View(func(snap *models.Snapshot) {
		for _, c := range snap.Clinics {
			ids = append(ids, c.ID)
		}
	})
	assert.Equal(t, []string{"new"}, ids)
}

func TestReplaceIfRejectsStaleVersion(t *testing.T) {
	st := New(models.Snapshot{})
	v := st.Version()

	require.NoError(t, st.Update(func(snap *models.Snapshot) error {
		snap.Clinics = append(snap.Clinics, models.Clinic{ID: "c1"})
		return nil
	}))
	assert.False(t, st.ReplaceIf(v, models.Snapshot{}))
	assert.Len(t, st.Snapshot().Clinics, 1)

	assert.True(t, st.ReplaceIf(st.Version(), models.Snapshot{}))
	assert.Empty(t, st.Snapshot().Clinics)

	_ = st.Update(func(snap *models.Snapshot) error { return errors.New("nope") })
	assert.Equal(t, v+2, st.Version(), "failed updates do not bump the version")
}
