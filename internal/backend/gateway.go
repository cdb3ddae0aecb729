// Package backend translates domain operations into authenticated transport
// calls and coalesces duplicate in-flight requests.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/felixgeelhaar/entitle/internal/purchaser/domain"
	"github.com/felixgeelhaar/entitle/internal/shared/infrastructure/dispatch"
	"github.com/felixgeelhaar/entitle/internal/shared/infrastructure/transport"
	"github.com/felixgeelhaar/entitle/pkg/observability"
)

// receiptKey identifies a logically-equivalent receipt post. Distinct
// purchases never share a key; retries of the identical post do.
type receiptKey struct {
	token     string
	appUserID string
	productID string
	isRestore bool
}

// Gateway is the backend gateway. Concurrent logically-identical
// purchaser-info, receipt and entitlement requests share one underlying
// transport call; every waiter receives that call's single result.
type Gateway struct {
	dispatcher *dispatch.Dispatcher
	client     *transport.Client
	logger     *slog.Logger
	metrics    observability.Metrics

	mu                 sync.Mutex
	infoWaiters        map[string][]domain.InfoCompletion
	receiptWaiters     map[receiptKey][]domain.InfoCompletion
	entitlementWaiters map[string][]domain.EntitlementsCompletion
}

// NewGateway creates a gateway over the given dispatcher and transport.
func NewGateway(dispatcher *dispatch.Dispatcher, client *transport.Client, metrics observability.Metrics, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &Gateway{
		dispatcher:         dispatcher,
		client:             client,
		logger:             logger,
		metrics:            metrics,
		infoWaiters:        make(map[string][]domain.InfoCompletion),
		receiptWaiters:     make(map[receiptKey][]domain.InfoCompletion),
		entitlementWaiters: make(map[string][]domain.EntitlementsCompletion),
	}
}

// Close shuts the dispatcher down. Calls enqueued afterwards are dropped.
func (g *Gateway) Close() {
	g.dispatcher.Close()
}

// GetPurchaserInfo fetches the subscriber snapshot for a user.
func (g *Gateway) GetPurchaserInfo(appUserID string, completion domain.InfoCompletion) {
	g.mu.Lock()
	g.infoWaiters[appUserID] = append(g.infoWaiters[appUserID], completion)
	first := len(g.infoWaiters[appUserID]) == 1
	g.mu.Unlock()

	if !first {
		g.metrics.Counter("backend.requests.coalesced", 1, observability.T("call", "subscriber_info"))
		return
	}

	g.metrics.Counter("backend.requests", 1, observability.T("call", "subscriber_info"))
	g.enqueue("subscriber_info", &asyncCall{
		execute: func() (*transport.Response, error) {
			return g.client.PerformRequest(context.Background(), "/subscribers/"+url.PathEscape(appUserID), nil, nil)
		},
		onCompletion: func(response *transport.Response) {
			info, err := parsePurchaserInfoResponse(response)
			g.completeInfoWaiters(appUserID, info, err)
		},
		onError: func(err error) {
			g.completeInfoWaiters(appUserID, nil, transportError(err))
		},
	})
}

// PostReceipt submits a purchase token for validation and returns the
// resulting snapshot.
func (g *Gateway) PostReceipt(token, appUserID, productID string, isRestore bool, completion domain.InfoCompletion) {
	key := receiptKey{token: token, appUserID: appUserID, productID: productID, isRestore: isRestore}

	g.mu.Lock()
	g.receiptWaiters[key] = append(g.receiptWaiters[key], completion)
	first := len(g.receiptWaiters[key]) == 1
	g.mu.Unlock()

	if !first {
		g.metrics.Counter("backend.requests.coalesced", 1, observability.T("call", "post_receipt"))
		return
	}

	body := map[string]any{
		"fetch_token": token,
		"product_id":  productID,
		"app_user_id": appUserID,
		"is_restore":  isRestore,
	}

	g.metrics.Counter("backend.requests", 1, observability.T("call", "post_receipt"))
	g.enqueue("post_receipt", &asyncCall{
		execute: func() (*transport.Response, error) {
			return g.client.PerformRequest(context.Background(), "/receipts", body, nil)
		},
		onCompletion: func(response *transport.Response) {
			info, err := parsePurchaserInfoResponse(response)
			g.completeReceiptWaiters(key, info, err)
		},
		onError: func(err error) {
			g.completeReceiptWaiters(key, nil, transportError(err))
		},
	})
}

// GetEntitlements fetches the server-configured entitlement map for a user.
func (g *Gateway) GetEntitlements(appUserID string, completion domain.EntitlementsCompletion) {
	g.mu.Lock()
	g.entitlementWaiters[appUserID] = append(g.entitlementWaiters[appUserID], completion)
	first := len(g.entitlementWaiters[appUserID]) == 1
	g.mu.Unlock()

	if !first {
		g.metrics.Counter("backend.requests.coalesced", 1, observability.T("call", "entitlements"))
		return
	}

	g.metrics.Counter("backend.requests", 1, observability.T("call", "entitlements"))
	g.enqueue("entitlements", &asyncCall{
		execute: func() (*transport.Response, error) {
			return g.client.PerformRequest(context.Background(), "/subscribers/"+url.PathEscape(appUserID)+"/products", nil, nil)
		},
		onCompletion: func(response *transport.Response) {
			entitlements, err := parseEntitlementsResponse(response)
			g.completeEntitlementWaiters(appUserID, entitlements, err)
		},
		onError: func(err error) {
			g.completeEntitlementWaiters(appUserID, nil, transportError(err))
		},
	})
}

// PostAttribution submits attribution data, fire and forget. Empty or
// unserializable data is silently skipped.
func (g *Gateway) PostAttribution(appUserID string, network domain.AttributionNetwork, data map[string]any) {
	if len(data) == 0 {
		return
	}

	body := map[string]any{
		"network": int(network),
		"data":    data,
	}
	if _, err := json.Marshal(body); err != nil {
		g.logger.Warn("skipping unserializable attribution data", "network", int(network), "error", err)
		return
	}

	g.metrics.Counter("backend.requests", 1, observability.T("call", "attribution"))
	g.enqueue("attribution", &asyncCall{
		execute: func() (*transport.Response, error) {
			return g.client.PerformRequest(context.Background(), "/subscribers/"+url.PathEscape(appUserID)+"/attribution", body, nil)
		},
		onCompletion: func(response *transport.Response) {},
		onError: func(err error) {
			g.logger.Warn("attribution post failed", "error", err)
		},
	})
}

// CreateAlias links two identities server-side.
func (g *Gateway) CreateAlias(appUserID, newAppUserID string, completion func(err error)) {
	body := map[string]any{
		"new_app_user_id": newAppUserID,
	}

	g.metrics.Counter("backend.requests", 1, observability.T("call", "alias"))
	g.enqueue("alias", &asyncCall{
		execute: func() (*transport.Response, error) {
			return g.client.PerformRequest(context.Background(), "/subscribers/"+url.PathEscape(appUserID)+"/alias", body, nil)
		},
		onCompletion: func(response *transport.Response) {
			if response.StatusCode < 300 {
				completion(nil)
				return
			}
			completion(backendError(response))
		},
		onError: func(err error) {
			completion(transportError(err))
		},
	})
}

func (g *Gateway) enqueue(callName string, call *asyncCall) {
	if g.dispatcher.IsClosed() {
		return
	}
	execute := call.execute
	call.execute = func() (*transport.Response, error) {
		start := time.Now()
		response, err := execute()
		g.metrics.Timing("backend.request.duration", time.Since(start), observability.T("call", callName))
		return response, err
	}
	g.dispatcher.Enqueue(call)
}

func (g *Gateway) completeInfoWaiters(appUserID string, info *domain.PurchaserInfo, err error) {
	g.mu.Lock()
	waiters := g.infoWaiters[appUserID]
	delete(g.infoWaiters, appUserID)
	g.mu.Unlock()

	for _, completion := range waiters {
		completion(info, err)
	}
}

func (g *Gateway) completeReceiptWaiters(key receiptKey, info *domain.PurchaserInfo, err error) {
	g.mu.Lock()
	waiters := g.receiptWaiters[key]
	delete(g.receiptWaiters, key)
	g.mu.Unlock()

	for _, completion := range waiters {
		completion(info, err)
	}
}

func (g *Gateway) completeEntitlementWaiters(appUserID string, entitlements map[string]*domain.Entitlement, err error) {
	g.mu.Lock()
	waiters := g.entitlementWaiters[appUserID]
	delete(g.entitlementWaiters, appUserID)
	g.mu.Unlock()

	for _, completion := range waiters {
		completion(entitlements, err)
	}
}

// asyncCall adapts closures to dispatch.AsyncCall.
type asyncCall struct {
	execute      func() (*transport.Response, error)
	onCompletion func(response *transport.Response)
	onError      func(err error)
}

func (c *asyncCall) Execute() (*transport.Response, error) { return c.execute() }
func (c *asyncCall) OnCompletion(resp *transport.Response) { c.onCompletion(resp) }
func (c *asyncCall) OnError(err error)                     { c.onError(err) }

func parsePurchaserInfoResponse(response *transport.Response) (*domain.PurchaserInfo, error) {
	if response.StatusCode >= 300 {
		return nil, backendError(response)
	}
	info, err := domain.ParsePurchaserInfo(response.Body)
	if err != nil {
		return nil, domain.NewBackendError(response.StatusCode, fmt.Sprintf("error parsing subscriber JSON: %v", err))
	}
	return info, nil
}

func parseEntitlementsResponse(response *transport.Response) (map[string]*domain.Entitlement, error) {
	if response.StatusCode >= 300 {
		return nil, backendError(response)
	}
	var envelope struct {
		Entitlements json.RawMessage `json:"entitlements"`
	}
	if err := json.Unmarshal(response.Body, &envelope); err != nil || envelope.Entitlements == nil {
		return nil, domain.NewBackendError(response.StatusCode, fmt.Sprintf("error parsing products JSON: %v", err))
	}
	entitlements, err := domain.ParseEntitlements(envelope.Entitlements)
	if err != nil {
		return nil, domain.NewBackendError(response.StatusCode, fmt.Sprintf("error parsing products JSON: %v", err))
	}
	return entitlements, nil
}

// backendError extracts a best-effort message from an error response body.
func backendError(response *transport.Response) *domain.Error {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(response.Body, &body); err == nil && body.Message != "" {
		return domain.NewBackendError(response.StatusCode, "server error: "+body.Message)
	}
	return domain.NewBackendError(response.StatusCode, fmt.Sprintf("unexpected server error %d", response.StatusCode))
}

// transportError normalizes a network-level failure. Code zero marks an
// error that never reached the server.
func transportError(err error) *domain.Error {
	return domain.NewBackendError(0, err.Error())
}
