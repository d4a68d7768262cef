package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"custody-vault/pkg/apperror"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ethUSD = common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419")

func TestHTTPFeed_LatestRound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/feeds/"+ethUSD.Hex()+"/latest", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"answer":"200000000000","decimals":8,"updated_at":1708092000,"round_id":42}`))
	}))
	defer srv.Close()

	feed := NewHTTPFeed(srv.URL+"/", time.Second)
	q, err := feed.LatestRound(context.Background(), ethUSD)
	require.NoError(t, err)

	assert.Equal(t, uint64(200000000000), q.Price.Uint64())
	assert.Equal(t, uint8(8), q.Decimals)
	assert.Equal(t, time.Unix(1708092000, 0).UTC(), q.UpdatedAt)
	assert.Equal(t, uint64(42), q.RoundID)
}

func TestHTTPFeed_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		invalid bool
	}{
		{"server error", http.StatusInternalServerError, `boom`, false},
		{"not found", http.StatusNotFound, `{"error":"unknown feed"}`, false},
		{"bad json", http.StatusOK, `{`, false},
		{"malformed answer", http.StatusOK, `{"answer":"12.5","decimals":8}`, false},
		{"negative answer", http.StatusOK, `{"answer":"-1","decimals":8}`, true},
		{"zero answer", http.StatusOK, `{"answer":"0","decimals":8}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewHTTPFeed(srv.URL, time.Second).LatestRound(context.Background(), ethUSD)
			require.Error(t, err)
			assert.Equal(t, tt.invalid, apperror.HasCode(err, "ORC_002"))
		})
	}
}

func TestHTTPFeed_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewHTTPFeed(url, 200*time.Millisecond).LatestRound(context.Background(), ethUSD)
	assert.Error(t, err)
}

func TestStaticFeed(t *testing.T) {
	feed := NewStaticFeed()

	_, err := feed.LatestRound(context.Background(), ethUSD)
	require.Error(t, err)

	feed.Set(ethUSD, uint256.NewInt(200000000000), 8)
	q, err := feed.LatestRound(context.Background(), ethUSD)
	require.NoError(t, err)
	assert.Equal(t, uint64(200000000000), q.Price.Uint64())
	assert.Equal(t, uint8(8), q.Decimals)
	assert.WithinDuration(t, time.Now(), q.UpdatedAt, time.Second)

	// returned price is a copy
	q.Price.SetUint64(1)
	again, _ := feed.LatestRound(context.Background(), ethUSD)
	assert.Equal(t, uint64(200000000000), again.Price.Uint64())
	assert.Greater(t, again.RoundID, uint64(0))
}
