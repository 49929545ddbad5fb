package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker/v2"

	"github.com/orderflow/saga-system/shared/saga"
)

const defaultClientTimeout = 10 * time.Second

type httpReply struct {
	status int
	body   []byte
}

// participantClient is the HTTP plumbing shared by the participant clients:
// JSON round trips guarded by a circuit breaker per remote service. A 5xx
// answer counts as a breaker failure like a transport error; a 422 is a
// business refusal the breaker must not trip on.
type participantClient struct {
	base    string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*httpReply]
}

func newParticipantClient(name, baseURL string, client *http.Client) *participantClient {
	if client == nil {
		client = &http.Client{Timeout: defaultClientTimeout}
	}

	breaker := gobreaker.NewCircuitBreaker[*httpReply](gobreaker.Settings{
		Name:    name,
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &participantClient{
		base:    strings.TrimRight(baseURL, "/"),
		client:  client,
		breaker: breaker,
	}
}

func (c *participantClient) post(ctx context.Context, path string, body interface{}) (*httpReply, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode request")
	}

	return c.breaker.Execute(func() (*httpReply, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
		if err != nil {
			return nil, errors.Wrap(err, "failed to build request")
		}
		req.Header.Set("Content-Type", "application/json")

		res, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()

		replyBody, err := io.ReadAll(res.Body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read response")
		}

		if res.StatusCode >= http.StatusInternalServerError {
			return nil, errors.Errorf("%s returned %d: %s",
				path, res.StatusCode, strings.TrimSpace(string(replyBody)))
		}

		return &httpReply{status: res.StatusCode, body: replyBody}, nil
	})
}

// toResult maps an HTTP answer onto the participant contract: 2xx is
// success with the response body as step output, 422 is a decline with the
// body as reason.
func (c *participantClient) toResult(reply *httpReply) (saga.Result, error) {
	switch {
	case reply.status == http.StatusUnprocessableEntity:
		return saga.Result{
			Status: saga.ResultDeclined,
			Reason: strings.TrimSpace(string(reply.body)),
		}, nil
	case reply.status >= http.StatusOK && reply.status < http.StatusMultipleChoices:
		data := map[string]interface{}{}
		if len(reply.body) > 0 {
			if err := json.Unmarshal(reply.body, &data); err != nil {
				return saga.Result{}, errors.Wrap(err, "malformed response body")
			}
		}
		return saga.Result{Status: saga.ResultSuccess, Data: data}, nil
	default:
		return saga.Result{}, errors.Errorf("unexpected status %d: %s",
			reply.status, strings.TrimSpace(string(reply.body)))
	}
}

func stringPayload(payload map[string]interface{}, key string) string {
	v, _ := payload[key].(string)
	return v
}

// OrderClient drives the order service over HTTP. Execute creates the
// order; Compensate cancels it.
type OrderClient struct {
	*participantClient
}

var _ saga.Participant = (*OrderClient)(nil)

// NewOrderClient creates an order participant client
func NewOrderClient(baseURL string, client *http.Client) *OrderClient {
	return &OrderClient{newParticipantClient("order-service", baseURL, client)}
}

// Execute creates the order
func (c *OrderClient) Execute(ctx context.Context, cmd saga.Command) (saga.Result, error) {
	reply, err := c.post(ctx, "/api/v1/orders", map[string]interface{}{
		"reference":   cmd.TransactionID,
		"customer_id": cmd.Payload["customer_id"],
		"items":       cmd.Payload["items"],
	})
	if err != nil {
		return saga.Result{}, err
	}
	return c.toResult(reply)
}

// Compensate cancels the order
func (c *OrderClient) Compensate(ctx context.Context, cmd saga.Command) (saga.Result, error) {
	orderID := stringPayload(cmd.Payload, "order_id")
	reply, err := c.post(ctx, "/api/v1/orders/"+orderID+"/cancel", map[string]interface{}{
		"reason": cmd.Payload["reason"],
	})
	if err != nil {
		return saga.Result{}, err
	}
	return c.toResult(reply)
}

// OrderConfirmClient confirms an order as the saga's final step. There is
// nothing to compensate.
type OrderConfirmClient struct {
	*participantClient
}

var _ saga.Participant = (*OrderConfirmClient)(nil)

// NewOrderConfirmClient creates an order confirmation participant client
func NewOrderConfirmClient(baseURL string, client *http.Client) *OrderConfirmClient {
	return &OrderConfirmClient{newParticipantClient("order-service-confirm", baseURL, client)}
}

// Execute confirms the order
func (c *OrderConfirmClient) Execute(ctx context.Context, cmd saga.Command) (saga.Result, error) {
	orderID := stringPayload(cmd.Payload, "order_id")
	reply, err := c.post(ctx, "/api/v1/orders/"+orderID+"/confirm", nil)
	if err != nil {
		return saga.Result{}, err
	}
	return c.toResult(reply)
}

// Compensate is a no-op
func (c *OrderConfirmClient) Compensate(ctx context.Context, cmd saga.Command) (saga.Result, error) {
	return saga.Result{Status: saga.ResultSuccess}, nil
}

// InventoryClient drives the inventory service over HTTP. Execute reserves
// stock; Compensate releases the reservation.
type InventoryClient struct {
	*participantClient
}

var _ saga.Participant = (*InventoryClient)(nil)

// NewInventoryClient creates an inventory participant client
func NewInventoryClient(baseURL string, client *http.Client) *InventoryClient {
	return &InventoryClient{newParticipantClient("inventory-service", baseURL, client)}
}

// Execute reserves stock
func (c *InventoryClient) Execute(ctx context.Context, cmd saga.Command) (saga.Result, error) {
	reply, err := c.post(ctx, "/api/v1/inventory/reservations", map[string]interface{}{
		"reference": cmd.TransactionID,
		"items":     cmd.Payload["items"],
	})
	if err != nil {
		return saga.Result{}, err
	}
	return c.toResult(reply)
}

// Compensate releases the reservation
func (c *InventoryClient) Compensate(ctx context.Context, cmd saga.Command) (saga.Result, error) {
	reservationID := stringPayload(cmd.Payload, "reservation_id")
	reply, err := c.post(ctx, "/api/v1/inventory/reservations/"+reservationID+"/release", map[string]interface{}{
		"reference": cmd.TransactionID,
	})
	if err != nil {
		return saga.Result{}, err
	}
	return c.toResult(reply)
}

// PaymentClient drives the payment service over HTTP. Execute charges the
// customer; Compensate refunds the charge.
type PaymentClient struct {
	*participantClient
}

var _ saga.Participant = (*PaymentClient)(nil)

// NewPaymentClient creates a payment participant client
func NewPaymentClient(baseURL string, client *http.Client) *PaymentClient {
	return &PaymentClient{newParticipantClient("payment-service", baseURL, client)}
}

// Execute charges the customer
func (c *PaymentClient) Execute(ctx context.Context, cmd saga.Command) (saga.Result, error) {
	reply, err := c.post(ctx, "/api/v1/payments", map[string]interface{}{
		"reference":   cmd.TransactionID,
		"order_id":    cmd.Payload["order_id"],
		"customer_id": cmd.Payload["customer_id"],
		"amount":      cmd.Payload["amount"],
		"currency":    cmd.Payload["currency"],
	})
	if err != nil {
		return saga.Result{}, err
	}
	return c.toResult(reply)
}

// Compensate refunds the charge
func (c *PaymentClient) Compensate(ctx context.Context, cmd saga.Command) (saga.Result, error) {
	paymentID := stringPayload(cmd.Payload, "payment_id")
	reply, err := c.post(ctx, "/api/v1/payments/"+paymentID+"/refund", map[string]interface{}{
		"reference": cmd.TransactionID,
	})
	if err != nil {
		return saga.Result{}, err
	}
	return c.toResult(reply)
}
