package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestInsufficientStockMessageNamesEntityAndQuantities(t *testing.T) {
	err := InsufficientStock("Leather Black", decimal.NewFromInt(12), decimal.NewFromInt(10))
	require.Equal(t, "insufficient stock for Leather Black: required 12, remaining 10", err.Error())
	require.Equal(t, KindInsufficientStock, KindOf(fmt.Errorf("post: %w", err)))
}

func TestKindOfDefaultsToStoreFailure(t *testing.T) {
	require.Equal(t, KindStoreFailure, KindOf(errors.New("connection reset")))
	require.Equal(t, KindNotFound, KindOf(NotFound("transaction", 4)))
	require.ErrorIs(t, NotFound("transaction", 4), ErrNotFound)
}

func TestUserSafeMessageHidesStoreErrors(t *testing.T) {
	raw := StoreFailure(errors.New(`pq: relation "transactions" does not exist`))
	require.Equal(t, "internal error, please try again", UserSafeMessage(raw))
	require.Equal(t, "quantity: must be greater than zero", UserSafeMessage(Validation("quantity", "must be greater than zero")))
}

func TestStoreFailureKeepsExistingKind(t *testing.T) {
	ref := Referential("product_size", "product 1 has no size 9")
	require.Same(t, ref, StoreFailure(ref))
	require.Nil(t, StoreFailure(nil))
}

func TestIdempotencyKeyRequiresUUID(t *testing.T) {
	_, err := IdempotencyKey("ledger", "not-a-uuid")
	require.True(t, IsKind(err, KindValidation))

	key, err := IdempotencyKey("ledger", "6F9619FF-8B86-D011-B42D-00C04FC964FF")
	require.NoError(t, err)
	require.Equal(t, "ledger:6f9619ff-8b86-d011-b42d-00c04fc964ff", key)
}
