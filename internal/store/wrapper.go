package store

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/felixgeelhaar/entitle/internal/purchaser/domain"
)

// Wrapper queues provider requests issued while disconnected and replays
// them in FIFO order once the connection is ready. Setting a nil listener
// tears the connection down; requests made with no listener set are dropped.
type Wrapper struct {
	factory ClientFactory
	main    MainExecutor
	logger  *slog.Logger

	mu        sync.Mutex
	client    Client
	connected bool
	listener  UpdatedListener
	queue     []func()
}

// NewWrapper creates a connection manager over the given client factory.
// Purchase-flow launches are marshaled onto the main executor because the
// provider requires it.
func NewWrapper(factory ClientFactory, main MainExecutor, logger *slog.Logger) *Wrapper {
	if main == nil {
		main = NewSerialExecutor()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Wrapper{
		factory: factory,
		main:    main,
		logger:  logger,
	}
}

// SetListener attaches or detaches the purchase-update listener. A non-nil
// listener (re)initiates the connection; nil ends it.
func (w *Wrapper) SetListener(listener UpdatedListener) {
	w.mu.Lock()
	w.listener = listener

	if listener != nil {
		if w.client == nil {
			w.client = w.factory(w.onRawPurchasesUpdated)
		}
		client := w.client
		w.mu.Unlock()
		w.logger.Debug("starting store connection")
		client.StartConnection(w)
		return
	}

	client := w.client
	w.client = nil
	w.connected = false
	w.mu.Unlock()

	if client != nil && client.IsReady() {
		w.logger.Debug("ending store connection")
		client.EndConnection()
	}
}

// QueryProductDetailsAsync fetches catalog metadata once connected.
func (w *Wrapper) QueryProductDetailsAsync(productType domain.ProductType, productIDs []string, onReceive domain.ProductDetailsCompletion) {
	w.executeRequest(func() {
		client := w.currentClient()
		if client == nil {
			return
		}
		client.QueryProductDetails(productType, productIDs, onReceive)
	})
}

// MakePurchaseAsync launches the provider purchase flow on the main
// executor. The outcome arrives through the UpdatedListener.
func (w *Wrapper) MakePurchaseAsync(params PurchaseParams) {
	w.executeRequestOnMain(func() {
		client := w.currentClient()
		if client == nil {
			return
		}
		if code := client.LaunchPurchaseFlow(params); code != ResponseOK {
			w.logger.Error("failed to launch purchase flow", "response_code", code, "product_id", params.ProductID)
		}
	})
}

// QueryPurchaseHistoryAsync fetches all historical purchases of one catalog.
func (w *Wrapper) QueryPurchaseHistoryAsync(productType domain.ProductType, onReceive func(purchases []domain.Purchase), onError func(responseCode int, message string)) {
	w.executeRequest(func() {
		client := w.currentClient()
		if client == nil {
			return
		}
		client.QueryPurchaseHistory(productType, func(responseCode int, purchases []domain.Purchase) {
			if responseCode == ResponseOK {
				onReceive(purchases)
			} else {
				onError(responseCode, "error receiving purchase history")
			}
		})
	})
}

// ConsumePurchase marks a token as consumed once connected.
func (w *Wrapper) ConsumePurchase(token string) {
	w.executeRequest(func() {
		client := w.currentClient()
		if client == nil {
			return
		}
		client.ConsumePurchase(token, func(responseCode int, token string) {})
	})
}

// OnSetupFinished implements ConnectionListener.
func (w *Wrapper) OnSetupFinished(responseCode int) {
	if responseCode != ResponseOK {
		w.logger.Warn("store setup finished with error", "response_code", responseCode)
		return
	}
	w.mu.Lock()
	w.connected = true
	w.mu.Unlock()
	w.logger.Debug("store connection ready")
	w.executePendingRequests()
}

// OnDisconnected implements ConnectionListener. The connection is not
// retried automatically; the next request restarts it.
func (w *Wrapper) OnDisconnected() {
	w.mu.Lock()
	w.connected = false
	w.mu.Unlock()
	w.logger.Warn("store service disconnected")
}

func (w *Wrapper) executeRequest(request func()) {
	w.mu.Lock()
	if w.listener == nil {
		w.mu.Unlock()
		w.logger.Error("there is no listener set, skipping request")
		return
	}
	w.queue = append(w.queue, request)
	if !w.connected {
		if w.client == nil {
			w.client = w.factory(w.onRawPurchasesUpdated)
		}
		client := w.client
		w.mu.Unlock()
		w.logger.Debug("starting store connection")
		client.StartConnection(w)
		return
	}
	w.mu.Unlock()
	w.executePendingRequests()
}

func (w *Wrapper) executeRequestOnMain(request func()) {
	w.executeRequest(func() {
		w.main.Execute(request)
	})
}

func (w *Wrapper) executePendingRequests() {
	for {
		w.mu.Lock()
		if !w.connected || len(w.queue) == 0 {
			w.mu.Unlock()
			return
		}
		request := w.queue[0]
		w.queue = w.queue[1:]
		w.mu.Unlock()

		request()
	}
}

func (w *Wrapper) currentClient() Client {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.client
}

func (w *Wrapper) onRawPurchasesUpdated(responseCode int, purchases []domain.Purchase) {
	w.mu.Lock()
	listener := w.listener
	w.mu.Unlock()

	if listener == nil {
		w.logger.Warn("purchases updated with no listener attached")
		return
	}

	if responseCode == ResponseOK && purchases != nil {
		listener.OnPurchasesUpdated(purchases)
		return
	}

	code := responseCode
	if purchases == nil && responseCode == ResponseOK {
		code = ResponseError
	}
	listener.OnPurchasesFailedToUpdate(purchases, code, fmt.Sprintf("error updating purchases %d", code))
}
