package pubsub

import (
	"context"
	"reflect"
	"testing"

	"github.com/javery-app/javery-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	cases := []struct {
		project, kind, name string
		want                string
	}{
		{"p1", "topics", "orders", "projects/p1/topics/orders"},
		{"p1", "subscriptions", " notify ", "projects/p1/subscriptions/notify"},
		{"p1", "topics", "projects/other/topics/orders", "projects/other/topics/orders"},
		{"p1", "topics", "", ""},
		{"", "topics", "orders", ""},
	}
	for _, tc := range cases {
		if got := resourceName(tc.project, tc.kind, tc.name); got != tc.want {
			t.Errorf("resourceName(%q, %q, %q) = %q, want %q", tc.project, tc.kind, tc.name, got, tc.want)
		}
	}
}

func TestConfiguredResources(t *testing.T) {
	if got := configuredResources(config.PubSubConfig{OrdersTopic: " "}); len(got) != 0 {
		t.Fatalf("expected no resources for blank config got %v", got)
	}
	got := configuredResources(config.PubSubConfig{
		OrdersTopic:              "javery-order-events",
		NotificationSubscription: "javery-order-notifications",
	})
	want := []resource{
		{kind: kindTopic, name: "javery-order-events"},
		{kind: kindSubscription, name: "javery-order-notifications"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected resources: %v", got)
	}
}

func TestNilClientHandles(t *testing.T) {
	var c *Client
	if c.Publisher("orders") != nil {
		t.Fatalf("expected nil publisher from nil client")
	}
	if c.Subscription("notify") != nil {
		t.Fatalf("expected nil subscription from nil client")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close nil client: %v", err)
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error from nil client")
	}
}
