package api

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/angelmondragon/spoolhub-backend/pkg/logger"
)

func TestServerRunStopsOnCancel(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	server := NewServer("127.0.0.1:0", http.NotFoundHandler(), logg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Run(ctx, time.Second) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
