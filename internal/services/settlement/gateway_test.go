package settlement

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGateway() *Gateway {
	return &Gateway{
		config:  &GatewayConfig{HMACKey: "test-key"},
		pending: make(map[string]chan *Notification),
	}
}

func signedNotification(g *Gateway, orderID, result string) map[string]any {
	return map[string]any{
		"order_id": orderID,
		"status":   result,
		"sig":      Hmac256([]byte(orderID+":"+result), []byte(g.config.HMACKey)),
	}
}

func TestDecodeAcceptsSignedNotification(t *testing.T) {
	g := testGateway()

	n := g.decode(signedNotification(g, "order-1", "approved"))
	require.NotNil(t, n)
	assert.Equal(t, "order-1", n.OrderID)
	assert.Equal(t, "approved", n.Status)
}

func TestDecodeDropsBadSignature(t *testing.T) {
	g := testGateway()

	msg := signedNotification(g, "order-1", "approved")
	msg["status"] = "declined" // tampered after signing
	assert.Nil(t, g.decode(msg))
}

func TestDecodeDropsUnsignedMessages(t *testing.T) {
	g := testGateway()

	// Charge requests echo back on the same channel without a signature.
	assert.Nil(t, g.decode(map[string]any{
		"type":     "charge_request",
		"order_id": "order-1",
		"amount":   "25.00",
	}))
	assert.Nil(t, g.decode("garbage"))
	assert.Nil(t, g.decode(nil))
}

func TestHandleNotificationRoutesToWaiter(t *testing.T) {
	g := testGateway()
	wait := make(chan *Notification, 1)
	g.pending["order-1"] = wait

	n := &Notification{
		OrderID: "order-1",
		Status:  "approved",
		Sig:     Hmac256([]byte("order-1:approved"), []byte(g.config.HMACKey)),
	}
	require.True(t, g.HandleNotification(n))

	select {
	case got := <-wait:
		assert.Equal(t, "approved", got.Status)
	default:
		t.Fatal("notification was not delivered to the waiter")
	}
}

func TestHandleNotificationRejectsBadCallbacks(t *testing.T) {
	g := testGateway()

	assert.False(t, g.HandleNotification(nil))
	assert.False(t, g.HandleNotification(&Notification{OrderID: "order-1", Status: "approved"}))
	assert.False(t, g.HandleNotification(&Notification{
		OrderID: "order-1",
		Status:  "approved",
		Sig:     "forged",
	}))
}

func TestWebhookSecretRoundTrip(t *testing.T) {
	hash, err := HashWebhookSecret("s3cret")
	require.NoError(t, err)

	assert.True(t, VerifyWebhookSecret(hash, "s3cret"))
	assert.False(t, VerifyWebhookSecret(hash, "wrong"))
}

func TestAutoAuthorizerApproves(t *testing.T) {
	err := Auto{}.Authorize(context.Background(), &AuthorizeRequest{OrderID: "order-1"})
	assert.NoError(t, err)
}
