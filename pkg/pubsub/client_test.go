package pubsub

import (
	"testing"

	"github.com/angelmondragon/spoolhub-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	cases := []struct {
		project, kind, name, want string
	}{
		{"proj", "topics", "extraction", "projects/proj/topics/extraction"},
		{"proj", "subscriptions", " extraction-sub ", "projects/proj/subscriptions/extraction-sub"},
		{"proj", "topics", "projects/other/topics/x", "projects/other/topics/x"},
		{"", "topics", "extraction", ""},
		{"proj", "topics", "", ""},
	}
	for _, tc := range cases {
		if got := resourceName(tc.project, tc.kind, tc.name); got != tc.want {
			t.Fatalf("resourceName(%q,%q,%q) = %q want %q", tc.project, tc.kind, tc.name, got, tc.want)
		}
	}
}

func TestClientOptions(t *testing.T) {
	if got := len(clientOptions(config.GCPConfig{CredentialsJSON: "{}", ApplicationCredentials: "/tmp/x"})); got != 1 {
		t.Fatalf("expected 1 option, got %d", got)
	}
	if got := len(clientOptions(config.GCPConfig{})); got != 0 {
		t.Fatalf("expected no options, got %d", got)
	}
}

func TestNilClientHandles(t *testing.T) {
	var c *Client
	if c.ExtractionPublisher() != nil || c.ExtractionSubscription() != nil {
		t.Fatal("nil client must return nil handles")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() on nil client: %v", err)
	}
}
