package api

import "testing"

func TestBrokerBroadcastReachesSubscriber(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("a@x.com")

	b.Broadcast("a@x.com", []byte("snapshot"))

	select {
	case data := <-ch:
		if string(data) != "snapshot" {
			t.Fatalf("unexpected data %q", data)
		}
	default:
		t.Fatal("expected snapshot delivery")
	}
}

func TestBrokerScopedToUser(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("a@x.com")

	b.Broadcast("b@y.com", []byte("other"))

	select {
	case data := <-ch:
		t.Fatalf("unexpected delivery %q", data)
	default:
	}
}

func TestBrokerLatestSnapshotWins(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("a@x.com")

	b.Broadcast("a@x.com", []byte("old"))
	b.Broadcast("a@x.com", []byte("new"))

	select {
	case data := <-ch:
		if string(data) != "new" {
			t.Fatalf("expected latest snapshot, got %q", data)
		}
	default:
		t.Fatal("expected snapshot delivery")
	}
}

func TestBrokerUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("a@x.com")
	b.Unsubscribe("a@x.com", ch)

	b.Broadcast("a@x.com", []byte("snapshot"))

	select {
	case data := <-ch:
		t.Fatalf("unexpected delivery after unsubscribe: %q", data)
	default:
	}
}
