package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keeper-vault/internal/domain"
	"keeper-vault/internal/solana"
	"keeper-vault/internal/storage/memory"
)

var (
	alice = solana.PublicKey{1}
	bob   = solana.PublicKey{2}
)

type failingSink struct{ err error }

func (f failingSink) Publish(context.Context, ...*domain.Event) error { return f.err }

func TestNew(t *testing.T) {
	e1 := New(domain.EventDepositMade, alice, 100)
	e2 := New(domain.EventDepositMade, alice, 100)

	assert.Equal(t, domain.EventDepositMade, e1.Kind)
	assert.Equal(t, alice, e1.User)
	assert.Equal(t, int64(100), e1.Timestamp)
	assert.NotEqual(t, e1.ID, e2.ID)
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	e := New(domain.EventFeeCollected, alice, 1)

	require.NoError(t, r.Publish(context.Background(), e))
	e.Amount = 99 // recorder keeps its own copy

	got := r.Events()
	require.Len(t, got, 1)
	assert.Equal(t, uint64(0), got[0].Amount)
	assert.Equal(t, []domain.EventKind{domain.EventFeeCollected}, r.Kinds())

	r.Reset()
	assert.Empty(t, r.Events())
}

func TestFanout_DeliversDespiteFailure(t *testing.T) {
	boom := errors.New("sink down")
	rec := NewRecorder()
	f := NewFanout(Named{Name: "broken", Sink: failingSink{boom}})
	f.Add("recorder", rec)

	err := f.Publish(context.Background(), New(domain.EventWithdrawalMade, alice, 1))
	assert.ErrorIs(t, err, boom)
	assert.Len(t, rec.Events(), 1)
}

func TestFanout_Empty(t *testing.T) {
	f := NewFanout(Named{Name: "broken", Sink: failingSink{errors.New("unused")}})
	assert.NoError(t, f.Publish(context.Background()))
}

func TestStoreSink(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEventStore()
	sink := NewStoreSink(store)

	e1 := New(domain.EventDepositMade, alice, 10)
	e2 := New(domain.EventSignalExecuted, alice, 20)
	e3 := New(domain.EventDepositMade, bob, 15)
	require.NoError(t, sink.Publish(ctx, e1, e2, e3))

	got, err := store.GetByOwner(ctx, alice, 0, 100)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, e1.ID, got[0].ID)
	assert.Equal(t, e2.ID, got[1].ID)

	// Duplicate ids fail the batch.
	assert.Error(t, sink.Publish(ctx, e1))
}

func TestEncodeMessage(t *testing.T) {
	e := New(domain.EventRelayerRefunded, alice, 42)
	e.Keeper = bob
	e.Amount = 5000

	msg, err := encodeMessage(e)
	require.NoError(t, err)
	assert.Equal(t, alice.String(), string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "relayer_refunded", string(msg.Headers[0].Value))

	var decoded domain.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, *e, decoded)
}

func TestHub_StreamsToSubscribers(t *testing.T) {
	quiet := log.New(io.Discard, "", 0)
	hub := NewHub(nil, quiet)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	all, err := Subscribe(ctx, wsURL, nil, quiet)
	require.NoError(t, err)
	onlyBob, err := Subscribe(ctx, wsURL+"?owner="+bob.String(), nil, quiet)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return hub.Clients() == 2 }, 2*time.Second, 10*time.Millisecond)

	forAlice := New(domain.EventDepositMade, alice, 1)
	forBob := New(domain.EventWithdrawalMade, bob, 2)
	require.NoError(t, hub.Publish(ctx, forAlice, forBob))

	got := receive(t, all)
	assert.Equal(t, forAlice.ID, got.ID)
	got = receive(t, all)
	assert.Equal(t, forBob.ID, got.ID)

	got = receive(t, onlyBob)
	assert.Equal(t, forBob.ID, got.ID)
	assert.Equal(t, bob, got.User)
}

func TestHub_RejectsBadOwner(t *testing.T) {
	hub := NewHub(nil, log.New(io.Discard, "", 0))
	srv := httptest.NewServer(hub)
	defer srv.Close()

	_, err := Subscribe(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http")+"?owner=nope", nil, nil)
	assert.Error(t, err)
}

func receive(t *testing.T, ch <-chan *domain.Event) *domain.Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
		return nil
	}
}
