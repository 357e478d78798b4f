package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"paychledger/address"
	"paychledger/channel"
	"paychledger/ledger"
	"paychledger/sign"
)

// noopStore satisfies ledger.Store with empty results, enough to drive
// Server's routing and the chain-allowlist gate without a database.
type noopStore struct{}

func (noopStore) SetupDatabase(context.Context) error { return nil }
func (noopStore) Ping(context.Context) error          { return nil }
func (noopStore) InsertChannelEvent(context.Context, ledger.ChannelEventRow) (string, error) {
	return "id", nil
}
func (noopStore) InsertChannelIntent(context.Context, ledger.ChannelIntentRow) (string, error) {
	return "id", nil
}
func (noopStore) SetRecentBlocks(context.Context, int64, int64, []address.Hash) (int, []channel.Key, error) {
	return 0, nil, nil
}
func (noopStore) LoadChannelEvents(context.Context, channel.Key, bool) ([]channel.Event, error) {
	return nil, nil
}
func (noopStore) LoadLatestState(context.Context, channel.Key) (*channel.StateUpdate, error) {
	return nil, nil
}
func (noopStore) AdmitStateUpdate(context.Context, channel.Key, *big.Int, address.Signature, time.Time, bool) (string, bool, ledger.StateUpdateStatus, error) {
	return "id", true, ledger.StateUpdateStatus{}, nil
}

func testServer(t *testing.T, chainAllowlist []int64) *Server {
	t.Helper()
	l := ledger.New(noopStore{}, sign.AlwaysValid)
	return NewServer(l, nil, 0, 0, chainAllowlist)
}

func TestChainAllowedAcceptsEveryChainWhenAllowlistEmpty(t *testing.T) {
	s := testServer(t, nil)
	chainID := int64(999)
	require.NoError(t, s.chainAllowed(&chainID))
	require.NoError(t, s.chainAllowed(nil))
}

func TestChainAllowedRejectsChainNotInList(t *testing.T) {
	s := testServer(t, []int64{1, 5})
	bad := int64(2)
	err := s.chainAllowed(&bad)
	require.Error(t, err)
	var valErr *ledger.ValidationError
	require.ErrorAs(t, err, &valErr)

	good := int64(5)
	require.NoError(t, s.chainAllowed(&good))
}

func TestGetLatestStateRejectsDisallowedChainOverHTTP(t *testing.T) {
	s := testServer(t, []int64{7})
	body, _ := json.Marshal(map[string]any{
		"chain_id":    9,
		"contract_id": "1111111111111111111111111111111111111111",
		"channel_id":  "2222222222222222222222222222222222222222222222222222222222222222",
	})
	req := httptest.NewRequest(http.MethodPost, "/get_latest_state", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, true, resp["error"])
}
