package users

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-storefront/internal/dynamotest"
	"github.com/imrishuroy/go-storefront/internal/identity"
)

func newStore() (*Store, *dynamotest.Fake) {
	f := dynamotest.New().AddTable("users", "uid")
	return NewStore(f, "users"), f
}

func TestEnsureUser_CreatesOnce(t *testing.T) {
	s, f := newStore()
	ctx := context.Background()
	claims := identity.Claims{UID: "u1", Email: "maria@example.com"}

	u, created, err := s.EnsureUser(ctx, claims)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "maria", u.DisplayName)
	assert.Equal(t, RoleCustomer, u.Role)
	assert.Empty(t, u.Wishlist)
	assert.NotNil(t, u.Wishlist)

	claims.Name = "Maria Silva"
	u, created, err = s.EnsureUser(ctx, claims)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "maria", u.DisplayName, "existing profile is not overwritten")
	assert.Equal(t, 1, f.Len("users"))
}

func TestEnsureUser_ConcurrentSignIn(t *testing.T) {
	s, f := newStore()
	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, created, err := s.EnsureUser(context.Background(), identity.Claims{UID: "u1", Email: "a@b.c"})
			assert.NoError(t, err)
			assert.NotNil(t, u)
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, createdCount)
	assert.Equal(t, 1, f.Len("users"))
}

func TestAddAddress(t *testing.T) {
	s, _ := newStore()
	ctx := context.Background()
	_, _, err := s.EnsureUser(ctx, identity.Claims{UID: "u1", Email: "a@b.c"})
	require.NoError(t, err)

	home := Address{Label: "Casa", Street: "Rua Augusta", Number: "500", City: "São Paulo", State: "SP", ZipCode: "01305000"}
	work := Address{Label: "Trabalho", Street: "Av. Paulista", Number: "1000", City: "São Paulo", State: "SP", ZipCode: "01310100"}

	u, err := s.AddAddress(ctx, "u1", home)
	require.NoError(t, err)
	u, err = s.AddAddress(ctx, "u1", work)
	require.NoError(t, err)
	u, err = s.AddAddress(ctx, "u1", home)
	require.NoError(t, err)
	require.Len(t, u.Addresses, 2)
	assert.Equal(t, "Casa", u.Addresses[0].Label)
	assert.Equal(t, "Trabalho", u.Addresses[1].Label)

	_, err = s.AddAddress(ctx, "ghost", home)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateWishlist(t *testing.T) {
	s, _ := newStore()
	ctx := context.Background()
	_, _, err := s.EnsureUser(ctx, identity.Claims{UID: "u1", Email: "a@b.c"})
	require.NoError(t, err)

	u, err := s.UpdateWishlist(ctx, "u1", "p1", WishlistAdd)
	require.NoError(t, err)
	u, err = s.UpdateWishlist(ctx, "u1", "p2", WishlistAdd)
	require.NoError(t, err)
	u, err = s.UpdateWishlist(ctx, "u1", "p1", WishlistAdd)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p1", "p2"}, u.Wishlist)

	u, err = s.UpdateWishlist(ctx, "u1", "p1", WishlistRemove)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, u.Wishlist)

	u, err = s.UpdateWishlist(ctx, "u1", "p2", WishlistRemove)
	require.NoError(t, err)
	assert.Equal(t, []string{}, u.Wishlist)

	_, err = s.UpdateWishlist(ctx, "u1", "p1", "toggle")
	assert.ErrorIs(t, err, ErrInvalidAction)
	_, err = s.UpdateWishlist(ctx, "ghost", "p1", WishlistAdd)
	assert.ErrorIs(t, err, ErrNotFound)
}
