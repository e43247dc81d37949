package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/hakusai-dev/axiswolf-backend/internal/store"
)

// getStubStore fakes only the lookup used by code allocation.
type getStubStore struct {
	store.Store
	getErr error
}

func (s getStubStore) Get(context.Context, string) (store.Room, []store.Player, error) {
	return store.Room{}, nil, s.getErr
}

func TestCreateRoom_StoreFailurePropagates(t *testing.T) {
	api := &API{
		Store: getStubStore{getErr: errors.New("connection refused")},
		Log:   zap.NewNop(),
	}

	req := httptest.NewRequest(http.MethodPost, "/rooms", strings.NewReader(`{"name":"ann"}`))
	rec := httptest.NewRecorder()
	api.CreateRoom(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code,
		"a store outage must surface, not loop as a phantom collision")
}

func TestCreateRoom_CollisionAttemptsBounded(t *testing.T) {
	// Every lookup reports the code as taken; allocation must give up.
	api := &API{
		Store: getStubStore{},
		Log:   zap.NewNop(),
	}

	req := httptest.NewRequest(http.MethodPost, "/rooms", strings.NewReader(`{"name":"ann"}`))
	rec := httptest.NewRecorder()
	api.CreateRoom(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}
