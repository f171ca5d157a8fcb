package bus

import (
	"context"
	"testing"
)

func TestMemoryBus_PublisherDoesNotReceiveOwnMessages(t *testing.T) {
	b := NewMemoryBus()
	tabA := b.Handle()
	tabB := b.Handle()

	var aGot, bGot []Message
	tabA.Subscribe(func(m Message) { aGot = append(aGot, m) })
	tabB.Subscribe(func(m Message) { bGot = append(bGot, m) })

	if err := tabA.Publish(context.Background(), Message{Type: TypeRefreshStart, Token: "t1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(aGot) != 0 {
		t.Fatal("publisher must not receive its own message")
	}
	if len(bGot) != 1 || bGot[0].Token != "t1" {
		t.Fatalf("sibling did not receive the message: %v", bGot)
	}
}

func TestMemoryBus_Unsubscribe(t *testing.T) {
	b := NewMemoryBus()
	tabA := b.Handle()
	tabB := b.Handle()

	var got int
	unsubscribe := tabB.Subscribe(func(Message) { got++ })
	unsubscribe()

	_ = tabA.Publish(context.Background(), Message{Type: TypeRefreshEnd, Token: "t1", Success: true})
	if got != 0 {
		t.Fatal("expected no delivery after unsubscribe")
	}
}

func TestMemoryBus_ClosedHandleStopsReceiving(t *testing.T) {
	b := NewMemoryBus()
	tabA := b.Handle()
	tabB := b.Handle()

	var got int
	tabB.Subscribe(func(Message) { got++ })
	_ = tabB.Close()

	_ = tabA.Publish(context.Background(), Message{Type: TypeRefreshTimeout, Token: "t1"})
	if got != 0 {
		t.Fatal("expected no delivery to a closed handle")
	}
}

func TestMemoryBus_PublishAfterCloseFails(t *testing.T) {
	b := NewMemoryBus()
	tab := b.Handle()
	_ = b.Close()

	if err := tab.Publish(context.Background(), Message{Type: TypeRefreshStart, Token: "t"}); err == nil {
		t.Fatal("expected error publishing on a closed bus")
	}
}
