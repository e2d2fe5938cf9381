package events

import (
	"context"
	"testing"

	"github.com/veerababumanyam/tallywarehouse/internal/config"
)

func TestNewPublisherRequiresURL(t *testing.T) {
	_, err := NewPublisher(config.NATSConfig{}, nil)
	if err == nil {
		t.Fatal("expected an error when NATSConfig.URL is empty")
	}
}

func TestGenerateEventIDIsUnique(t *testing.T) {
	a := generateEventID()
	b := generateEventID()
	if a == b {
		t.Fatalf("expected distinct event ids, got %q twice", a)
	}
}

func TestSyncCompletedEventDefaultsEventID(t *testing.T) {
	evt := &SyncCompletedEvent{Source: "tally", Stream: "invoices"}
	if evt.EventID != "" {
		t.Fatal("event id should start empty before PublishSyncCompleted assigns one")
	}

	// A Publisher with no connection fails to publish, but the event id is
	// assigned before the publish is attempted.
	p := &Publisher{}
	_ = p.PublishSyncCompleted(context.Background(), evt)
	if evt.EventID == "" {
		t.Fatal("PublishSyncCompleted should assign an event id when none is set")
	}
}
