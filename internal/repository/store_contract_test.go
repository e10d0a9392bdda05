package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cskovec22/test-sarafan/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStoreContract runs the behaviour every Store implementation must share.
func testStoreContract(t *testing.T, store Store) {
	t.Run("FindCart_NotFound", func(t *testing.T) {
		cart, err := store.FindCart(context.Background(), "nobody-"+uuid.NewString())
		assert.ErrorIs(t, err, ErrCartNotFound)
		assert.Nil(t, cart)
	})

	t.Run("GetOrCreateCart_Idempotent", func(t *testing.T) {
		ctx := context.Background()
		owner := "user-" + uuid.NewString()

		first, err := store.GetOrCreateCart(ctx, owner)
		require.NoError(t, err)
		second, err := store.GetOrCreateCart(ctx, owner)
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, owner, second.Owner)

		found, err := store.FindCart(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, first.ID, found.ID)
	})

	t.Run("GetOrCreateLine_CreatesOnce", func(t *testing.T) {
		ctx := context.Background()
		cart, err := store.GetOrCreateCart(ctx, "user-"+uuid.NewString())
		require.NoError(t, err)

		line, created, err := store.GetOrCreateLine(ctx, cart.ID, 1)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, 0, line.Quantity)

		line.Quantity = 4
		require.NoError(t, store.SaveLine(ctx, line))

		again, created, err := store.GetOrCreateLine(ctx, cart.ID, 1)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, line.ID, again.ID)
		assert.Equal(t, 4, again.Quantity)
	})

	t.Run("ListLines_OrderedByProduct", func(t *testing.T) {
		ctx := context.Background()
		cart, err := store.GetOrCreateCart(ctx, "user-"+uuid.NewString())
		require.NoError(t, err)

		for _, productID := range []int64{5, 2, 9} {
			line, _, err := store.GetOrCreateLine(ctx, cart.ID, productID)
			require.NoError(t, err)
			line.Quantity = int(productID)
			require.NoError(t, store.SaveLine(ctx, line))
		}

		lines, err := store.ListLines(ctx, cart.ID)
		require.NoError(t, err)
		require.Len(t, lines, 3)
		assert.Equal(t, int64(2), lines[0].ProductID)
		assert.Equal(t, int64(5), lines[1].ProductID)
		assert.Equal(t, int64(9), lines[2].ProductID)
		assert.Equal(t, 9, lines[2].Quantity)
	})

	t.Run("DeleteLine", func(t *testing.T) {
		ctx := context.Background()
		cart, err := store.GetOrCreateCart(ctx, "user-"+uuid.NewString())
		require.NoError(t, err)

		line, _, err := store.GetOrCreateLine(ctx, cart.ID, 3)
		require.NoError(t, err)
		require.NoError(t, store.DeleteLine(ctx, line))

		_, err = store.FindLine(ctx, cart.ID, 3)
		assert.ErrorIs(t, err, ErrLineNotFound)
		assert.ErrorIs(t, store.DeleteLine(ctx, line), ErrLineNotFound)
	})

	t.Run("DeleteAllLines_OnlyOwnCart", func(t *testing.T) {
		ctx := context.Background()
		mine, err := store.GetOrCreateCart(ctx, "user-"+uuid.NewString())
		require.NoError(t, err)
		theirs, err := store.GetOrCreateCart(ctx, "user-"+uuid.NewString())
		require.NoError(t, err)

		for _, cartID := range []string{mine.ID, theirs.ID} {
			for _, productID := range []int64{1, 2} {
				line, _, err := store.GetOrCreateLine(ctx, cartID, productID)
				require.NoError(t, err)
				line.Quantity = 1
				require.NoError(t, store.SaveLine(ctx, line))
			}
		}

		n, err := store.DeleteAllLines(ctx, mine.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		lines, err := store.ListLines(ctx, mine.ID)
		require.NoError(t, err)
		assert.Empty(t, lines)

		lines, err = store.ListLines(ctx, theirs.ID)
		require.NoError(t, err)
		assert.Len(t, lines, 2)

		_, err = store.FindCart(ctx, mine.Owner)
		assert.NoError(t, err, "cart row survives clearing")
	})

	t.Run("WithinTx_RollsBackOnError", func(t *testing.T) {
		ctx := context.Background()
		owner := "user-" + uuid.NewString()
		errAbort := errors.New("abort")

		err := store.WithinTx(ctx, func(repo CartRepository) error {
			cart, err := repo.GetOrCreateCart(ctx, owner)
			if err != nil {
				return err
			}
			if _, _, err := repo.GetOrCreateLine(ctx, cart.ID, 7); err != nil {
				return err
			}
			return errAbort
		})
		assert.ErrorIs(t, err, errAbort)

		_, err = store.FindCart(ctx, owner)
		assert.ErrorIs(t, err, ErrCartNotFound)
	})

	t.Run("WithinTx_Commits", func(t *testing.T) {
		ctx := context.Background()
		owner := "user-" + uuid.NewString()

		err := store.WithinTx(ctx, func(repo CartRepository) error {
			cart, err := repo.GetOrCreateCart(ctx, owner)
			if err != nil {
				return err
			}
			line, _, err := repo.GetOrCreateLine(ctx, cart.ID, 7)
			if err != nil {
				return err
			}
			line.Quantity = 2
			return repo.SaveLine(ctx, line)
		})
		require.NoError(t, err)

		cart, err := store.FindCart(ctx, owner)
		require.NoError(t, err)
		line, err := store.FindLine(ctx, cart.ID, 7)
		require.NoError(t, err)
		assert.Equal(t, 2, line.Quantity)
	})

	t.Run("Outbox_RecordAndMarkPublished", func(t *testing.T) {
		ctx := context.Background()
		event := &domain.CartEvent{
			ID:         uuid.NewString(),
			CartID:     uuid.NewString(),
			Owner:      "user-" + uuid.NewString(),
			Type:       domain.EventLineAdded,
			ProductID:  4,
			Amount:     2,
			Quantity:   2,
			OccurredAt: time.Now().UTC().Truncate(time.Millisecond),
		}
		require.NoError(t, store.RecordEvent(ctx, event))

		events, err := store.GetUnpublishedEvents(ctx, 100)
		require.NoError(t, err)
		found := findEvent(events, event.ID)
		require.NotNil(t, found)
		assert.Equal(t, domain.EventLineAdded, found.Type)
		assert.Equal(t, event.Owner, found.Owner)

		require.NoError(t, store.MarkEventPublished(ctx, event.ID))

		events, err = store.GetUnpublishedEvents(ctx, 100)
		require.NoError(t, err)
		assert.Nil(t, findEvent(events, event.ID))
	})

	t.Run("Outbox_SameInstantKeepsRecordOrder", func(t *testing.T) {
		ctx := context.Background()
		owner := "user-" + uuid.NewString()
		at := time.Now().UTC().Truncate(time.Millisecond)

		var want []string
		for i := 1; i <= 10; i++ {
			event := &domain.CartEvent{
				ID:         uuid.NewString(),
				CartID:     uuid.NewString(),
				Owner:      owner,
				Type:       domain.EventLineAdded,
				ProductID:  1,
				Amount:     1,
				Quantity:   i,
				OccurredAt: at,
			}
			require.NoError(t, store.WithinTx(ctx, func(repo CartRepository) error {
				return repo.RecordEvent(ctx, event)
			}))
			want = append(want, event.ID)
		}

		events, err := store.GetUnpublishedEvents(ctx, 1000)
		require.NoError(t, err)

		var got []string
		for _, e := range events {
			if e.Owner == owner {
				got = append(got, e.ID)
			}
		}
		assert.Equal(t, want, got)
	})
}

func findEvent(events []*domain.CartEvent, id string) *domain.CartEvent {
	for _, e := range events {
		if e.ID == id {
			return e
		}
	}
	return nil
}
