// AngelaMos | 2026
// handler_test.go

package user

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/dreamdiary-backend/internal/core"
	"github.com/carterperez-dev/dreamdiary-backend/internal/middleware"
)

type fakeRepo struct {
	mu    sync.Mutex
	users map[string]User
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: make(map[string]User)}
}

func (f *fakeRepo) GetByID(_ context.Context, id string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &u, nil
}

func (f *fakeRepo) GetByStripeCustomerID(_ context.Context, customerID string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.CustomerID() == customerID {
			return &u, nil
		}
	}
	return nil, core.ErrNotFound
}

func (f *fakeRepo) Ensure(_ context.Context, user *User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.users[user.ID]
	if ok {
		if user.Email == "" {
			user.Email = existing.Email
		}
		user.StripeCustomerID = existing.StripeCustomerID
		user.CreatedAt = existing.CreatedAt
	} else {
		user.CreatedAt = time.Now()
	}
	user.UpdatedAt = time.Now()
	f.users[user.ID] = *user
	return nil
}

func (f *fakeRepo) SetStripeCustomerID(_ context.Context, id, customerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[id]
	u.ID = id
	u.StripeCustomerID = &customerID
	f.users[id] = u
	return nil
}

func TestGetMeEnsuresUser(t *testing.T) {
	repo := newFakeRepo()
	h := NewHandler(NewService(repo))

	req := httptest.NewRequest(http.MethodGet, "/v1/users/me", nil)
	req = req.WithContext(middleware.WithClaims(req.Context(), &middleware.AccessTokenClaims{
		UserID: "auth0|abc",
		Email:  " Dreamer@Example.com ",
	}))
	rec := httptest.NewRecorder()
	h.GetMe(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool         `json:"success"`
		Data    UserResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "auth0|abc", body.Data.ID)
	assert.Equal(t, "dreamer@example.com", body.Data.Email)
	assert.False(t, body.Data.HasCustomer)

	require.NoError(t, repo.SetStripeCustomerID(context.Background(), "auth0|abc", "cus_123"))
	u, err := NewService(repo).Ensure(context.Background(), "auth0|abc", "")
	require.NoError(t, err)
	assert.Equal(t, "cus_123", u.CustomerID())
	assert.Equal(t, "dreamer@example.com", u.Email)
}

func TestGetMeRequiresClaims(t *testing.T) {
	h := NewHandler(NewService(newFakeRepo()))

	rec := httptest.NewRecorder()
	h.GetMe(rec, httptest.NewRequest(http.MethodGet, "/v1/users/me", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
