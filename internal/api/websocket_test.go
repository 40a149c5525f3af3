package api_test

import (
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/uprootiny/arbitragefx-sub000/internal/api"
	"github.com/uprootiny/arbitragefx-sub000/pkg/types"
)

func TestHubPublishToChannelReachesSubscriber(t *testing.T) {
	hub := api.NewHub(zap.NewNop())
	client := api.NewClient("c1", hub, nil)
	hub.Subscribe(client, "fills")

	hub.BroadcastFill(api.NewFillMessage(types.Fill{Symbol: "BTCUSDT", Price: 100, Qty: 1}))

	select {
	case msg := <-client.SendChan():
		var parsed api.WSMessage
		if err := json.Unmarshal(msg, &parsed); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if parsed.Type != api.MsgTypeFill {
			t.Fatalf("expected fill message, got %s", parsed.Type)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected subscriber to receive fill broadcast")
	}
}

func TestHubBroadcastHaltWithNoClientsReturns(t *testing.T) {
	hub := api.NewHub(zap.NewNop())
	go hub.Run()

	hub.BroadcastHalt("max_drawdown")
	time.Sleep(10 * time.Millisecond)
}

func TestWSMessageRoundTrips(t *testing.T) {
	msg := api.WSMessage{Type: api.MsgTypeFill, Channel: "fills", Timestamp: 1}
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out api.WSMessage
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Type != msg.Type || out.Channel != msg.Channel {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, msg)
	}
}
