package daemon_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/kapetan-io/entityqueue/daemon"
	"github.com/kapetan-io/entityqueue/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryListener(t *testing.T) {
	listener := daemon.NewInMemoryListener()
	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = fmt.Fprintf(w, "queue %s", r.URL.Path[1:])
		}),
	}
	go func() { _ = server.Serve(listener) }()

	client := &http.Client{
		Transport: &http.Transport{DialContext: listener.DialContext},
		Timeout:   2 * time.Second,
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			resp, err := client.Get(fmt.Sprintf("http://%s/featured_%d", listener.Addr(), id))
			if !assert.NoError(t, err) {
				return
			}
			defer func() { _ = resp.Body.Close() }()
			body, err := io.ReadAll(resp.Body)
			assert.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("queue featured_%d", id), string(body))
		}(i)
	}
	wg.Wait()
	client.CloseIdleConnections()
	require.NoError(t, server.Close())

	t.Run("DialAfterClose", func(t *testing.T) {
		_, err := listener.DialContext(context.Background(), "tcp", "")
		assert.True(t, errors.Is(err, net.ErrClosed))

		_, err = listener.Accept()
		assert.True(t, errors.Is(err, net.ErrClosed))
		// Close is safe to call more than once
		assert.NoError(t, listener.Close())
	})

	t.Run("DialCancelled", func(t *testing.T) {
		l := daemon.NewInMemoryListener()
		defer func() { _ = l.Close() }()

		// Nothing is accepting, so the dial waits on the context
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := l.DialContext(ctx, "tcp", "")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestDaemonInMemoryListener(t *testing.T) {
	ctx := context.Background()

	d, err := daemon.NewDaemon(ctx, daemon.Config{
		InMemoryListener: true,
	})
	require.NoError(t, err)
	defer func() { _ = d.Shutdown(ctx) }()

	c, err := d.Client()
	require.NoError(t, err)

	var resp transport.QueuesListResponse
	require.NoError(t, c.QueuesList(ctx, &resp, nil))
	assert.Empty(t, resp.Items)

	var created transport.QueueInfo
	require.NoError(t, c.QueuesCreate(ctx, &transport.QueueInfo{
		ID:         "featured",
		Label:      "Featured",
		Status:     transport.Bool(true),
		TargetType: "node",
		Handler:    "simple",
	}, &created))

	// The client is cached and reuses the same listener
	again, err := d.Client()
	require.NoError(t, err)
	assert.Same(t, c, again)

	require.NoError(t, again.QueuesList(ctx, &resp, nil))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "featured", resp.Items[0].ID)
}
