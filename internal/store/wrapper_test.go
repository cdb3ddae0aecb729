package store

import (
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/entitle/internal/purchaser/domain"
	"github.com/stretchr/testify/require"
)

// fakeClient is a provider client under test control: connections complete
// only when the test calls finishSetup, mirroring the provider's
// asynchronous handshake.
type fakeClient struct {
	update UpdateHandler

	mu             sync.Mutex
	listener       ConnectionListener
	ready          bool
	connectCalls   int
	endCalls       int
	queried        [][]string
	launched       []PurchaseParams
	launchCode     int
	historyCode    int
	history        []domain.Purchase
	consumedTokens []string
}

func (c *fakeClient) StartConnection(listener ConnectionListener) {
	c.mu.Lock()
	c.listener = listener
	c.connectCalls++
	c.mu.Unlock()
}

func (c *fakeClient) finishSetup(responseCode int) {
	c.mu.Lock()
	listener := c.listener
	c.ready = responseCode == ResponseOK
	c.mu.Unlock()
	listener.OnSetupFinished(responseCode)
}

func (c *fakeClient) disconnect() {
	c.mu.Lock()
	listener := c.listener
	c.ready = false
	c.mu.Unlock()
	listener.OnDisconnected()
}

func (c *fakeClient) EndConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endCalls++
	c.ready = false
}

func (c *fakeClient) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

func (c *fakeClient) QueryProductDetails(productType domain.ProductType, productIDs []string, onReceive domain.ProductDetailsCompletion) {
	c.mu.Lock()
	c.queried = append(c.queried, productIDs)
	c.mu.Unlock()
	details := make([]domain.ProductDetails, 0, len(productIDs))
	for _, productID := range productIDs {
		details = append(details, domain.ProductDetails{ProductID: productID, Type: productType})
	}
	onReceive(details)
}

func (c *fakeClient) LaunchPurchaseFlow(params PurchaseParams) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.launched = append(c.launched, params)
	return c.launchCode
}

func (c *fakeClient) QueryPurchaseHistory(productType domain.ProductType, onHistory func(responseCode int, purchases []domain.Purchase)) {
	c.mu.Lock()
	code := c.historyCode
	history := c.history
	c.mu.Unlock()
	onHistory(code, history)
}

func (c *fakeClient) ConsumePurchase(token string, onConsumed func(responseCode int, token string)) {
	c.mu.Lock()
	c.consumedTokens = append(c.consumedTokens, token)
	c.mu.Unlock()
	onConsumed(ResponseOK, token)
}

type recordingListener struct {
	mu       sync.Mutex
	updated  [][]domain.Purchase
	failed   []int
	messages []string
}

func (l *recordingListener) OnPurchasesUpdated(purchases []domain.Purchase) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updated = append(l.updated, purchases)
}

func (l *recordingListener) OnPurchasesFailedToUpdate(purchases []domain.Purchase, responseCode int, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failed = append(l.failed, responseCode)
	l.messages = append(l.messages, message)
}

func newTestWrapper() (*Wrapper, *fakeClient) {
	client := &fakeClient{}
	factory := func(onPurchasesUpdated UpdateHandler) Client {
		client.update = onPurchasesUpdated
		return client
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	// Immediate executor keeps purchase launches synchronous in tests.
	return NewWrapper(factory, ExecutorFunc(func(fn func()) { fn() }), logger), client
}

func TestRequestsQueueUntilConnectionReady(t *testing.T) {
	w, client := newTestWrapper()
	w.SetListener(&recordingListener{})

	var received []domain.ProductDetails
	w.QueryProductDetailsAsync(domain.ProductTypeSubscription, []string{"gold"}, func(details []domain.ProductDetails) {
		received = details
	})

	require.Nil(t, received)
	client.finishSetup(ResponseOK)

	require.Len(t, received, 1)
	require.Equal(t, "gold", received[0].ProductID)
}

func TestQueuedRequestsRunInSubmissionOrder(t *testing.T) {
	w, client := newTestWrapper()
	w.SetListener(&recordingListener{})

	var order []string
	w.QueryProductDetailsAsync(domain.ProductTypeSubscription, []string{"first"}, func([]domain.ProductDetails) {
		order = append(order, "first")
	})
	w.QueryProductDetailsAsync(domain.ProductTypeSubscription, []string{"second"}, func([]domain.ProductDetails) {
		order = append(order, "second")
	})
	w.ConsumePurchase("tok-1")

	client.finishSetup(ResponseOK)

	require.Equal(t, []string{"first", "second"}, order)
	require.Equal(t, []string{"tok-1"}, client.consumedTokens)
}

func TestRequestWithoutListenerIsDropped(t *testing.T) {
	w, client := newTestWrapper()

	w.QueryProductDetailsAsync(domain.ProductTypeSubscription, []string{"gold"}, func([]domain.ProductDetails) {
		t.Error("request must not run without a listener")
	})

	require.Equal(t, 0, client.connectCalls)
}

func TestDisconnectGatesLaterRequests(t *testing.T) {
	w, client := newTestWrapper()
	w.SetListener(&recordingListener{})
	client.finishSetup(ResponseOK)

	client.disconnect()

	ran := false
	w.QueryProductDetailsAsync(domain.ProductTypeSubscription, []string{"gold"}, func([]domain.ProductDetails) {
		ran = true
	})
	require.False(t, ran)

	// The request restarted the connection; completing it drains the queue.
	require.GreaterOrEqual(t, client.connectCalls, 2)
	client.finishSetup(ResponseOK)
	require.True(t, ran)
}

func TestSetListenerNilEndsConnection(t *testing.T) {
	w, client := newTestWrapper()
	w.SetListener(&recordingListener{})
	client.finishSetup(ResponseOK)

	w.SetListener(nil)
	require.Equal(t, 1, client.endCalls)
}

func TestMakePurchaseAsyncLaunchesFlow(t *testing.T) {
	w, client := newTestWrapper()
	w.SetListener(&recordingListener{})
	client.finishSetup(ResponseOK)

	w.MakePurchaseAsync(PurchaseParams{
		AccountID:   "user-1",
		ProductID:   "gold",
		ProductType: domain.ProductTypeSubscription,
	})

	require.Len(t, client.launched, 1)
	require.Equal(t, "gold", client.launched[0].ProductID)
}

func TestPurchaseHistorySortsOutcome(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		w, client := newTestWrapper()
		w.SetListener(&recordingListener{})
		client.history = []domain.Purchase{{Token: "tok-1", ProductID: "gold", PurchaseTime: time.Unix(100, 0)}}
		client.finishSetup(ResponseOK)

		var received []domain.Purchase
		w.QueryPurchaseHistoryAsync(domain.ProductTypeSubscription, func(purchases []domain.Purchase) {
			received = purchases
		}, func(responseCode int, message string) {
			t.Errorf("unexpected error %d: %s", responseCode, message)
		})

		require.Len(t, received, 1)
	})

	t.Run("failure", func(t *testing.T) {
		w, client := newTestWrapper()
		w.SetListener(&recordingListener{})
		client.historyCode = ResponseServiceUnavailable
		client.finishSetup(ResponseOK)

		gotCode := -1
		w.QueryPurchaseHistoryAsync(domain.ProductTypeSubscription, func([]domain.Purchase) {
			t.Error("unexpected success")
		}, func(responseCode int, message string) {
			gotCode = responseCode
		})

		require.Equal(t, ResponseServiceUnavailable, gotCode)
	})
}

func TestRawUpdatesRouteToListener(t *testing.T) {
	w, client := newTestWrapper()
	listener := &recordingListener{}
	w.SetListener(listener)
	client.finishSetup(ResponseOK)

	purchases := []domain.Purchase{{Token: "tok-1", ProductID: "gold"}}
	client.update(ResponseOK, purchases)
	require.Len(t, listener.updated, 1)

	client.update(ResponseUserCanceled, purchases)
	require.Equal(t, []int{ResponseUserCanceled}, listener.failed)

	// A success code with no purchases is coerced into a failure.
	client.update(ResponseOK, nil)
	require.Equal(t, []int{ResponseUserCanceled, ResponseError}, listener.failed)
}

func TestFailedSetupLeavesRequestsQueued(t *testing.T) {
	w, client := newTestWrapper()
	w.SetListener(&recordingListener{})

	ran := false
	w.QueryProductDetailsAsync(domain.ProductTypeSubscription, []string{"gold"}, func([]domain.ProductDetails) {
		ran = true
	})

	client.finishSetup(ResponseServiceUnavailable)
	require.False(t, ran)

	client.finishSetup(ResponseOK)
	require.True(t, ran)
}
