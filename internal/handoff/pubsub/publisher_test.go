package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
)

func newTestTopic(t *testing.T) (*pstest.Server, *pubsub.Topic) {
	t.Helper()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(context.Background(), "scrape-jobs")
	require.NoError(t, err)
	return srv, topic
}

func TestSchedulePublishesJob(t *testing.T) {
	t.Parallel()

	srv, topic := newTestTopic(t)
	h := New(topic, time.Second)
	t.Cleanup(h.Stop)

	job := scrape.Job{
		ID:        "0192f0d2-job",
		Request:   scrape.Request{URL: "https://x.com/user/status/1", CorrelationID: "chat-9", Mode: scrape.ModeVerified},
		Submitted: time.Date(2024, 11, 3, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, h.Schedule(context.Background(), job))

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "0192f0d2-job", msgs[0].Attributes[AttrJobID])
	require.Equal(t, "chat-9", msgs[0].Attributes[AttrCorrelationID])

	var got scrape.Job
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	require.Equal(t, job.ID, got.ID)
	require.Equal(t, job.Request, got.Request)
}

func TestScheduleInjectsTraceContext(t *testing.T) {
	t.Parallel()

	srv, topic := newTestTopic(t)
	h := New(topic, time.Second)
	t.Cleanup(h.Stop)

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "dispatch")
	defer span.End()

	// The global propagator is not touched; inject explicitly to check the carrier.
	attrs := map[string]string{}
	propagation.TraceContext{}.Inject(ctx, NewCarrier(attrs))
	require.NotEmpty(t, attrs["traceparent"])

	require.NoError(t, h.Schedule(ctx, scrape.Job{ID: "traced", Request: scrape.Request{URL: "https://a.com"}}))
	require.Len(t, srv.Messages(), 1)
}

func TestScheduleWithoutTopic(t *testing.T) {
	t.Parallel()

	require.Error(t, New(nil, 0).Schedule(context.Background(), scrape.Job{ID: "x"}))
	New(nil, 0).Stop()
}

func TestCarrier(t *testing.T) {
	t.Parallel()

	c := NewCarrier(map[string]string{"a": "1"})
	c.Set("b", "2")
	require.Equal(t, "2", c.Get("b"))
	require.ElementsMatch(t, []string{"a", "b"}, c.Keys())

	empty := NewCarrier(nil)
	empty.Set("x", "y")
	require.Empty(t, empty.Get("x"))
}
