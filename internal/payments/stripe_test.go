package payments

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
)

const testWebhookSecret = "whsec_test"

func signed(t *testing.T, payload string) (body []byte, header string) {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: []byte(payload),
		Secret:  testWebhookSecret,
	})
	return sp.Payload, sp.Header
}

func TestStripeParseWebhook(t *testing.T) {
	p := NewStripeProvider(StripeConfig{SecretKey: "sk_test", WebhookSecret: testWebhookSecret})
	biz := uuid.New()

	body, header := signed(t, `{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{
		"id":"pi_1","object":"payment_intent","amount":2500,"currency":"eur","status":"succeeded",
		"metadata":{"business_account_id":"`+biz.String()+`","amount":"25.00","currency":"EUR"}}}}`)
	ev, err := p.ParseWebhook(body, header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	require.NotNil(t, ev.Intent)
	assert.Equal(t, biz, ev.Intent.BusinessAccountID)
	assert.True(t, ev.Intent.Amount.Equal(d("25")))

	_, err = p.ParseWebhook(body, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestStripeParseWebhook_UndecodableObjectIsNotAnError(t *testing.T) {
	p := NewStripeProvider(StripeConfig{SecretKey: "sk_test", WebhookSecret: testWebhookSecret})

	body, header := signed(t, `{"id":"evt_2","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_2","amount":"lots"}}}`)
	ev, err := p.ParseWebhook(body, header)
	require.NoError(t, err)
	assert.Equal(t, "evt_2", ev.ID)
	assert.Equal(t, EventPaymentIntentSucceeded, ev.Type)
	assert.Nil(t, ev.Intent)
}
