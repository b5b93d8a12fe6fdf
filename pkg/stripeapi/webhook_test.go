package stripeapi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test_secret"

func TestConstructEventValidSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_123","type":"checkout.session.completed","data":{"object":{"id":"cs_1"}}}`)
	now := time.Now()
	header := SignatureHeader(now.Unix(), payload, testSecret)

	ev, err := constructEventAt(payload, header, testSecret, now)
	require.NoError(t, err)
	assert.Equal(t, "evt_123", ev.ID)
	assert.Equal(t, "checkout.session.completed", ev.Type)
	assert.JSONEq(t, `{"id":"cs_1"}`, string(ev.Data.Object))
}

func TestConstructEventWrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_123","type":"payout.paid"}`)
	now := time.Now()
	header := SignatureHeader(now.Unix(), payload, "whsec_other")

	_, err := constructEventAt(payload, header, testSecret, now)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestConstructEventTamperedPayload(t *testing.T) {
	payload := []byte(`{"id":"evt_123","type":"payout.paid"}`)
	now := time.Now()
	header := SignatureHeader(now.Unix(), payload, testSecret)

	tampered := []byte(`{"id":"evt_999","type":"payout.paid"}`)
	_, err := constructEventAt(tampered, header, testSecret, now)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestConstructEventStaleTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_123","type":"payout.paid"}`)
	now := time.Now()
	signedAt := now.Add(-6 * time.Minute)
	header := SignatureHeader(signedAt.Unix(), payload, testSecret)

	_, err := constructEventAt(payload, header, testSecret, now)
	assert.ErrorIs(t, err, ErrStaleTimestamp)
}

func TestConstructEventMissingHeader(t *testing.T) {
	_, err := constructEventAt([]byte(`{}`), "", testSecret, time.Now())
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestConstructEventMalformedHeader(t *testing.T) {
	_, err := constructEventAt([]byte(`{}`), "t=notanumber,v1=deadbeef", testSecret, time.Now())
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = constructEventAt([]byte(`{}`), "t=12345", testSecret, time.Now())
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestConstructEventAcceptsAnyValidV1(t *testing.T) {
	payload := []byte(`{"id":"evt_multi","type":"payout.failed"}`)
	now := time.Now()
	// A bogus extra v1 entry must not break verification of the valid one.
	header := SignatureHeader(now.Unix(), payload, testSecret) +
		",v1=0000000000000000000000000000000000000000000000000000000000000000"

	ev, err := constructEventAt(payload, header, testSecret, now)
	require.NoError(t, err)
	assert.Equal(t, "evt_multi", ev.ID)
}
