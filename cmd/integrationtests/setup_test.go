package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	bidding "artx-auction/internal/biddingService"
	"artx-auction/internal/ledger"
	model "artx-auction/internal/models"
	"artx-auction/internal/repository"
	"artx-auction/internal/scheduler"
	"artx-auction/internal/server"
	"artx-auction/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testSecret = "integration-secret"

// testClock is shared by the bidding service and the scheduler so tests can
// move past an auction's end time
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// TestEnv is a full in-memory stack behind the real router
type TestEnv struct {
	Router *gin.Engine
	Repo   *repository.MemoryRepo
	Clock  *testClock
}

// SetupTestEnv initializes the router over an in-memory repository and
// registers the given accounts.
func SetupTestEnv(t *testing.T, accounts ...model.Account) *TestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := &testClock{now: time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)}
	repo := repository.NewMemoryRepo()

	accountSvc := ledger.NewService(repo, ledger.NewWithClock(clock.Now), repository.DefaultRetryPolicy())
	for _, acct := range accounts {
		_, err := accountSvc.RegisterAccount(context.Background(), acct)
		require.NoError(t, err)
	}

	sched := scheduler.New(repo, scheduler.WithClock(clock.Now))
	service := bidding.NewBiddingService(repo,
		bidding.WithClock(clock.Now),
		bidding.WithSweeper(sched.Refresh),
	)

	return &TestEnv{
		Router: server.SetupRouter(service, accountSvc, testSecret),
		Repo:   repo,
		Clock:  clock,
	}
}

// Account builds a test account with the given balance
func Account(id string, role model.Role, balance int64) model.Account {
	return model.Account{AccountID: id, Name: id, Role: role, Balance: decimal.NewFromInt(balance)}
}

// Token signs an access token for id
func Token(t *testing.T, id string, role model.Role) string {
	t.Helper()
	token, err := utils.NewAccessToken(testSecret, id, string(role), time.Hour)
	require.NoError(t, err)
	return token
}

// ExecuteRequestAndParse executes an HTTP request on the given router and
// parses the response envelope. token may be empty.
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url, token string, body any) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	var reqBody []byte
	var err error

	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	router.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
	}
	return resp, w
}

// Data returns the data object of a success envelope
func Data(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	data, ok := resp["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", resp)
	return data
}
