// Package storagetest holds the behavior every server registry backend must
// share. Backends run it from their own tests.
package storagetest

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/melih/servery/internal/core/domain"
	"github.com/melih/servery/internal/core/ports"
)

// Opener opens the registry stored at path. The returned func closes it.
type Opener func(t *testing.T, path string) (ports.ServerRegistry, func())

func idPtr(id domain.ID) *domain.ID { return &id }

func fields(name string, mods ...string) domain.ServerFields {
	return domain.ServerFields{Name: name, Version: "1.0", Mods: mods}
}

// Run exercises open against fresh locations named leaf inside t.TempDir().
func Run(t *testing.T, leaf string, open Opener) {
	ctx := context.Background()

	fresh := func(t *testing.T) (ports.ServerRegistry, string, func()) {
		path := filepath.Join(t.TempDir(), "nested", "dir", leaf)
		reg, closeFn := open(t, path)
		return reg, path, closeFn
	}

	t.Run("EmptyOnFreshLocation", func(t *testing.T) {
		reg, _, closeFn := fresh(t)
		defer closeFn()

		all, err := reg.All(ctx)
		require.NoError(t, err)
		require.Empty(t, all)
	})

	t.Run("AssignsDistinctIDs", func(t *testing.T) {
		reg, _, closeFn := fresh(t)
		defer closeFn()

		const n = 10
		seen := map[domain.ID]bool{}
		for i := 0; i < n; i++ {
			s, err := reg.Insert(ctx, nil, fields(fmt.Sprintf("srv-%d", i)))
			require.NoError(t, err)
			require.False(t, seen[s.ID], "id %s assigned twice", s.ID)
			seen[s.ID] = true
			require.Equal(t, domain.StatusPending, s.Status)
		}
		for id := range seen {
			got, err := reg.ByID(ctx, id)
			require.NoError(t, err)
			require.Equal(t, id, got.ID)
		}
		all, err := reg.All(ctx)
		require.NoError(t, err)
		require.Len(t, all, n)
	})

	t.Run("RejectsDuplicateCallerID", func(t *testing.T) {
		reg, _, closeFn := fresh(t)
		defer closeFn()

		_, err := reg.Insert(ctx, idPtr(42), fields("first"))
		require.NoError(t, err)

		_, err = reg.Insert(ctx, idPtr(42), fields("second"))
		var dup *domain.DuplicateIdentityError
		require.ErrorAs(t, err, &dup)
		require.Equal(t, domain.ID(42), dup.ID)

		all, err := reg.All(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		require.Equal(t, "first", all[0].Name)
	})

	t.Run("FillsSmallestFreeID", func(t *testing.T) {
		reg, _, closeFn := fresh(t)
		defer closeFn()

		_, err := reg.Insert(ctx, idPtr(0), fields("zero"))
		require.NoError(t, err)
		_, err = reg.Insert(ctx, idPtr(2), fields("two"))
		require.NoError(t, err)

		s, err := reg.Insert(ctx, nil, fields("gap"))
		require.NoError(t, err)
		require.Equal(t, domain.ID(1), s.ID)

		s, err = reg.Insert(ctx, nil, fields("next"))
		require.NoError(t, err)
		require.Equal(t, domain.ID(3), s.ID)
	})

	t.Run("KeepsInsertionOrder", func(t *testing.T) {
		reg, _, closeFn := fresh(t)
		defer closeFn()

		for _, id := range []domain.ID{5, 1, 9} {
			_, err := reg.Insert(ctx, idPtr(id), fields(id.String()))
			require.NoError(t, err)
		}
		all, err := reg.All(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		require.Equal(t, []domain.ID{5, 1, 9}, []domain.ID{all[0].ID, all[1].ID, all[2].ID})
	})

	t.Run("ByIDMissing", func(t *testing.T) {
		reg, _, closeFn := fresh(t)
		defer closeFn()

		_, err := reg.ByID(ctx, 7)
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("RoundTripsAfterReopen", func(t *testing.T) {
		reg, path, closeFn := fresh(t)

		inserted, err := reg.Insert(ctx, nil, fields("survivor", "https://cdn.example.com/mod-a.jar", "https://cdn.example.com/mod-b.jar"))
		require.NoError(t, err)
		noMods, err := reg.Insert(ctx, nil, domain.ServerFields{Name: "bare"})
		require.NoError(t, err)
		closeFn()

		reopened, closeAgain := open(t, path)
		defer closeAgain()

		all, err := reopened.All(ctx)
		require.NoError(t, err)
		require.Equal(t, []domain.Server{inserted, noMods}, all)
	})

	t.Run("SetStatusPersists", func(t *testing.T) {
		reg, path, closeFn := fresh(t)

		s, err := reg.Insert(ctx, nil, fields("web"))
		require.NoError(t, err)
		require.NoError(t, reg.SetStatus(ctx, s.ID, domain.StatusRunning))
		require.ErrorIs(t, reg.SetStatus(ctx, s.ID+100, domain.StatusFailed), domain.ErrNotFound)
		require.ErrorIs(t, reg.SetStatus(ctx, s.ID, domain.Status("bogus")), domain.ErrInvalidRequest)
		closeFn()

		reopened, closeAgain := open(t, path)
		defer closeAgain()

		got, err := reopened.ByID(ctx, s.ID)
		require.NoError(t, err)
		require.Equal(t, domain.StatusRunning, got.Status)
	})

	t.Run("ConcurrentInsertsAndReads", func(t *testing.T) {
		reg, _, closeFn := fresh(t)
		defer closeFn()

		const writers, perWriter = 8, 5
		var wg sync.WaitGroup
		errs := make(chan error, writers*perWriter*2)
		for w := 0; w < writers; w++ {
			wg.Add(2)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < perWriter; i++ {
					if _, err := reg.Insert(ctx, nil, fields(fmt.Sprintf("w%d-%d", w, i))); err != nil {
						errs <- err
					}
				}
			}(w)
			go func() {
				defer wg.Done()
				for i := 0; i < perWriter; i++ {
					all, err := reg.All(ctx)
					if err != nil {
						errs <- err
						continue
					}
					for _, s := range all {
						if s.Name == "" {
							errs <- fmt.Errorf("read partially written record %s", s.ID)
						}
					}
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		all, err := reg.All(ctx)
		require.NoError(t, err)
		require.Len(t, all, writers*perWriter)
		ids := map[domain.ID]bool{}
		for _, s := range all {
			ids[s.ID] = true
		}
		require.Len(t, ids, writers*perWriter)
	})
}
