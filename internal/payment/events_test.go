package payment

import (
	"testing"
	"time"

	"github.com/fjod/storefront/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
)

const testSecret = "whsec_test_secret"

const completedPayload = `{
  "id": "evt_1",
  "object": "event",
  "type": "checkout.session.completed",
  "api_version": "2023-10-16",
  "data": {
    "object": {
      "id": "cs_test_1",
      "object": "checkout.session",
      "payment_intent": "pi_1",
      "payment_status": "paid",
      "amount_total": 2500,
      "currency": "usd",
      "metadata": {"buyerId": "buyer-1", "productIds": "p1", "quantities": "2"},
      "customer_details": {
        "email": "buyer@example.com",
        "name": "Test Buyer",
        "address": {"line1": "1 Main St", "city": "Springfield", "country": "US", "postal_code": "12345"}
      }
    }
  }
}`

func sign(t *testing.T, payload string, secret string, at time.Time) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: at,
	})
	return signed.Header
}

func TestVerifyEvent_CheckoutCompleted(t *testing.T) {
	v := NewWebhookVerifier(testSecret)

	event, err := v.VerifyEvent([]byte(completedPayload), sign(t, completedPayload, testSecret, time.Now()))
	require.NoError(t, err)

	completed, ok := event.(*domain.CheckoutCompleted)
	require.True(t, ok)
	assert.Equal(t, "evt_1", completed.EventID())
	assert.Equal(t, domain.EventKindCheckoutCompleted, completed.Kind())
	assert.Equal(t, "cs_test_1", completed.SessionID)
	assert.Equal(t, "pi_1", completed.PaymentID)
	assert.Equal(t, int64(2500), completed.AmountTotal)
	assert.Equal(t, "usd", completed.Currency)
	assert.Equal(t, "buyer-1", completed.Metadata["buyerId"])
	assert.Equal(t, "Test Buyer", completed.Customer.Name)
	assert.Equal(t, "buyer@example.com", completed.Customer.Email)
	require.NotNil(t, completed.Customer.Address)
	assert.Equal(t, "Springfield", completed.Customer.Address.City)
	assert.Equal(t, "12345", completed.Customer.Address.PostalCode)
}

func TestVerifyEvent_OtherKindIsIgnored(t *testing.T) {
	payload := `{"id":"evt_2","object":"event","type":"charge.refunded","data":{"object":{"id":"ch_1","object":"charge"}}}`
	v := NewWebhookVerifier(testSecret)

	event, err := v.VerifyEvent([]byte(payload), sign(t, payload, testSecret, time.Now()))
	require.NoError(t, err)

	ignored, ok := event.(*domain.IgnoredEvent)
	require.True(t, ok)
	assert.Equal(t, "evt_2", ignored.EventID())
	assert.Equal(t, "charge.refunded", ignored.Kind())
}

func TestVerifyEvent_Rejections(t *testing.T) {
	v := NewWebhookVerifier(testSecret)
	valid := sign(t, completedPayload, testSecret, time.Now())

	altered := []byte(completedPayload)
	altered[len(altered)-2] = ' '

	tests := []struct {
		name      string
		payload   []byte
		signature string
	}{
		{"altered byte", altered, valid},
		{"wrong secret", []byte(completedPayload), sign(t, completedPayload, "whsec_other", time.Now())},
		{"missing header", []byte(completedPayload), ""},
		{"garbage header", []byte(completedPayload), "t=abc,v1=zzz"},
		{"stale timestamp", []byte(completedPayload), sign(t, completedPayload, testSecret, time.Now().Add(-time.Hour))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := v.VerifyEvent(tt.payload, tt.signature)
			assert.Nil(t, event)
			assert.ErrorIs(t, err, domain.ErrSignatureInvalid)
		})
	}
}

func TestVerifyEvent_NoSecretConfigured(t *testing.T) {
	v := NewWebhookVerifier("")

	_, err := v.VerifyEvent([]byte(completedPayload), sign(t, completedPayload, testSecret, time.Now()))
	assert.ErrorIs(t, err, domain.ErrSignatureInvalid)
}

func TestVerifyEvent_ShippingAddressPreferred(t *testing.T) {
	payload := `{"id":"evt_3","object":"event","type":"checkout.session.completed","data":{"object":{
	  "id":"cs_3","object":"checkout.session","payment_intent":"pi_3","payment_status":"paid",
	  "customer_details":{"email":"a@b.c","name":"Billing Name","address":{"city":"Billing City"}},
	  "shipping_details":{"name":"Ship Name","address":{"city":"Ship City"}}}}}`
	v := NewWebhookVerifier(testSecret)

	event, err := v.VerifyEvent([]byte(payload), sign(t, payload, testSecret, time.Now()))
	require.NoError(t, err)

	completed := event.(*domain.CheckoutCompleted)
	assert.Equal(t, "Billing Name", completed.Customer.Name)
	assert.Equal(t, "Ship City", completed.Customer.Address.City)
}

func TestVerifyEvent_PaymentStatus(t *testing.T) {
	v := NewWebhookVerifier(testSecret)
	session := func(kind, status, paymentIntent string) string {
		return `{"id":"evt_s","object":"event","type":"` + kind + `","data":{"object":{
		  "id":"cs_s","object":"checkout.session","payment_intent":` + paymentIntent + `,
		  "payment_status":"` + status + `","metadata":{"buyerId":"buyer-1"}}}}`
	}

	t.Run("unpaid completion waits", func(t *testing.T) {
		payload := session(domain.EventKindCheckoutCompleted, "unpaid", `"pi_s"`)
		event, err := v.VerifyEvent([]byte(payload), sign(t, payload, testSecret, time.Now()))
		require.NoError(t, err)

		pending, ok := event.(*domain.PaymentPending)
		require.True(t, ok, "got %T", event)
		assert.Equal(t, "evt_s", pending.EventID())
		assert.Equal(t, domain.EventKindCheckoutCompleted, pending.Kind())
		assert.Equal(t, "cs_s", pending.SessionID)
		assert.Equal(t, "pi_s", pending.PaymentID)
		assert.Equal(t, "unpaid", pending.PaymentStatus)
	})

	t.Run("async payment succeeded materializes", func(t *testing.T) {
		payload := session(domain.EventKindAsyncPaymentSucceeded, "paid", `"pi_s"`)
		event, err := v.VerifyEvent([]byte(payload), sign(t, payload, testSecret, time.Now()))
		require.NoError(t, err)

		completed, ok := event.(*domain.CheckoutCompleted)
		require.True(t, ok, "got %T", event)
		assert.Equal(t, domain.EventKindAsyncPaymentSucceeded, completed.Kind())
		assert.Equal(t, "pi_s", completed.PaymentID)
		assert.Equal(t, "buyer-1", completed.Metadata["buyerId"])
	})

	t.Run("no payment required uses session id", func(t *testing.T) {
		payload := session(domain.EventKindCheckoutCompleted, "no_payment_required", "null")
		event, err := v.VerifyEvent([]byte(payload), sign(t, payload, testSecret, time.Now()))
		require.NoError(t, err)

		completed, ok := event.(*domain.CheckoutCompleted)
		require.True(t, ok, "got %T", event)
		assert.Equal(t, "cs_s", completed.PaymentID)
	})

	t.Run("async payment failed is ignored", func(t *testing.T) {
		payload := session("checkout.session.async_payment_failed", "unpaid", `"pi_s"`)
		event, err := v.VerifyEvent([]byte(payload), sign(t, payload, testSecret, time.Now()))
		require.NoError(t, err)

		_, ok := event.(*domain.IgnoredEvent)
		assert.True(t, ok, "got %T", event)
	})
}
