package events

import (
	"context"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jking323/TaskHarvester/internal/extraction"
	"github.com/jking323/TaskHarvester/internal/logging"
)

func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}
	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()
	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})
	return server
}

func connect(t *testing.T) *nats.Conn {
	t.Helper()
	server := startTestNATSServer(t)
	nc, err := Connect(server.ClientURL(), nil)
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

func TestPublisher_Completed(t *testing.T) {
	nc := connect(t)
	sub, err := nc.SubscribeSync("harvest.document.>")
	require.NoError(t, err)

	p := NewPublisher(nc, "harvest", nil)
	ctx := logging.WithBatchID(context.Background(), "2b7c6a2e-5f0e-4a8e-9d53-0c3f2a1b9e11")
	res := extraction.DocumentResult{
		Document: extraction.SourceDocument{Ref: "msg-1", SourceType: extraction.SourceEmail, Sender: "sarah@example.com", Body: "secret body"},
		Items: []extraction.ActionItem{
			{Title: "Send report", Priority: extraction.PriorityHigh, Confidence: 0.95, Tier: extraction.TierAutoAccept, SourceRef: "msg-1"},
		},
		Dropped:  1,
		Attempts: 1,
		Duration: 1500 * time.Millisecond,
	}

	require.NoError(t, p.Handle(ctx, res))
	require.NoError(t, p.Flush(context.Background()))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "harvest.document.completed", msg.Subject)
	assert.NotContains(t, string(msg.Data), "secret body")

	var evt DocumentEvent
	require.NoError(t, json.Unmarshal(msg.Data, &evt))
	assert.Equal(t, "2b7c6a2e-5f0e-4a8e-9d53-0c3f2a1b9e11", evt.BatchID)
	assert.Equal(t, "msg-1", evt.DocumentRef)
	assert.Equal(t, extraction.SourceEmail, evt.SourceType)
	require.Len(t, evt.Items, 1)
	assert.Equal(t, "Send report", evt.Items[0].Title)
	assert.Equal(t, 1, evt.Dropped)
	assert.Equal(t, int64(1500), evt.DurationMS)
	assert.Nil(t, evt.Failure)
}

func TestPublisher_Failed(t *testing.T) {
	nc := connect(t)
	sub, err := nc.SubscribeSync(DefaultPrefix + ".document.failed")
	require.NoError(t, err)

	p := NewPublisher(nc, "", nil)
	res := extraction.DocumentResult{
		Document: extraction.SourceDocument{Ref: "msg-3"},
		Failure:  &extraction.Failure{Kind: extraction.FailureInferenceTimeout, DocumentRef: "msg-3", Message: "deadline"},
		Attempts: 2,
	}
	require.NoError(t, p.Handle(context.Background(), res))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)

	var evt DocumentEvent
	require.NoError(t, json.Unmarshal(msg.Data, &evt))
	require.NotNil(t, evt.Failure)
	assert.Equal(t, extraction.FailureInferenceTimeout, evt.Failure.Kind)
	assert.NotNil(t, evt.Items, "items are always an array")
	assert.Empty(t, evt.Items)
}

func TestPublisher_Subject(t *testing.T) {
	p := NewPublisher(nil, "th", nil)
	assert.Equal(t, "th.document.completed", p.Subject(extraction.DocumentResult{Skipped: true}))
	assert.Equal(t, "th.document.failed", p.Subject(extraction.DocumentResult{Failure: &extraction.Failure{}}))
}

func TestPublisher_ClosedConnection(t *testing.T) {
	nc := connect(t)
	p := NewPublisher(nc, "", nil)
	nc.Close()

	err := p.Handle(context.Background(), extraction.DocumentResult{Document: extraction.SourceDocument{Ref: "x"}})
	assert.ErrorIs(t, err, nats.ErrConnectionClosed)
}
