package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContactRepository_Upsert(t *testing.T) {
	db := setupTestDB(t)
	repo := NewContactRepository(db)
	ctx := context.Background()

	t.Run("creates missing contact", func(t *testing.T) {
		c, err := repo.Upsert(ctx, "+15550001")
		require.NoError(t, err)
		assert.NotZero(t, c.ID)
		assert.Equal(t, "+15550001", c.Phone)
	})

	t.Run("returns existing contact", func(t *testing.T) {
		first, err := repo.Upsert(ctx, "+15550002")
		require.NoError(t, err)
		second, err := repo.Upsert(ctx, "+15550002")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("concurrent upserts converge", func(t *testing.T) {
		var wg sync.WaitGroup
		ids := make([]int64, 10)
		errs := make([]error, 10)
		for i := range ids {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				c, err := repo.Upsert(ctx, "+15550003")
				errs[i] = err
				if err == nil {
					ids[i] = c.ID
				}
			}(i)
		}
		wg.Wait()

		for i := range ids {
			require.NoError(t, errs[i])
			assert.Equal(t, ids[0], ids[i])
		}
		var count int64
		require.NoError(t, db.Read(ctx).Model(&ContactEntity{}).Where("phone_e164 = ?", "+15550003").Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})
}

func TestContactRepository_Get(t *testing.T) {
	db := setupTestDB(t)
	repo := NewContactRepository(db)
	ctx := context.Background()

	c, err := repo.Upsert(ctx, "+4915100")
	require.NoError(t, err)

	byID, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "+4915100", byID.Phone)

	byPhone, err := repo.GetByPhone(ctx, "+4915100")
	require.NoError(t, err)
	assert.Equal(t, c.ID, byPhone.ID)

	_, err = repo.GetByID(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}
