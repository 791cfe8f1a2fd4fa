package comments

import (
	"context"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

func TestDecode(t *testing.T) {
	p, err := Decode([]byte(`{"type":"reply","product_id":"p1","parent_id":"c1","comment":{"id":"r1","author":"ann","body":"+1"}}`))
	require.NoError(t, err)
	assert.Equal(t, OpReply, p.Op)
	assert.Equal(t, "p1", p.ProductID)
	assert.Equal(t, "c1", p.ParentID)
	assert.Equal(t, "ann", p.Comment.Author)

	p, err = Decode([]byte(`{"type":"delete-multiple","product_id":"p1","ids":["a","b"]}`))
	require.NoError(t, err)
	assert.Equal(t, OpDeleteMultiple, p.Op)
	assert.Equal(t, []string{"a", "b"}, p.IDs)
}

func TestDecode_Invalid(t *testing.T) {
	for name, body := range map[string]string{
		"not json":        `{"type":`,
		"missing product": `{"type":"create","comment":{"id":"c1"}}`,
		"unknown type":    `{"type":"pin","product_id":"p1"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(body))
			assert.ErrorIs(t, err, ErrInvalidMessage)
		})
	}
}

func TestBoard_ProductsAreIndependent(t *testing.T) {
	b := NewBoard()

	require.NoError(t, handle(b, []byte(`{"type":"create","product_id":"p1","comment":{"id":"c1"}}`)))
	require.NoError(t, handle(b, []byte(`{"type":"create","product_id":"p2","comment":{"id":"c1"}}`)))
	require.NoError(t, handle(b, []byte(`{"type":"delete","product_id":"p1","ids":["c1"]}`)))

	assert.Empty(t, b.Comments("p1"))
	assert.Len(t, b.Comments("p2"), 1)
	assert.NotNil(t, b.Comments("unknown"))
}

func TestBoard_FailedPatchDoesNotCreateTree(t *testing.T) {
	b := NewBoard()

	err := handle(b, []byte(`{"type":"update","product_id":"p1","comment":{"id":"ghost"}}`))
	assert.ErrorIs(t, err, ErrNodeNotFound)
	assert.Empty(t, b.Comments("p1"))
}

func TestBoard_ConcurrentApply(t *testing.T) {
	b := NewBoard()
	require.NoError(t, b.Apply(Patch{Op: OpCreate, ProductID: "p1", Comment: &Comment{ID: "root"}}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			assert.NoError(t, b.Apply(Patch{Op: OpReply, ProductID: "p1", ParentID: "root", Comment: &Comment{ID: id}}))
			_ = b.Comments("p1")
		}(i)
	}
	wg.Wait()

	assert.Len(t, b.Comments("p1")[0].Replies, 20)
}

func startRabbitMQ(t *testing.T) *amqp.Connection {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "rabbitmq:3.13-alpine",
			ExposedPorts: []string{"5672/tcp"},
			WaitingFor:   wait.ForListeningPort("5672/tcp").WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5672")
	require.NoError(t, err)

	conn, err := amqp.DialConfig("amqp://"+host+":"+port.Port()+"/", amqp.Config{
		Dial: amqp.DefaultDial(10 * time.Second),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cleanupCancel()
		_ = conn.Close()
		_ = container.Terminate(cleanupCtx)
	})
	return conn
}

func TestStartConsumer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping rabbitmq integration test in short mode")
	}
	conn := startRabbitMQ(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	board := NewBoard()
	require.NoError(t, StartConsumer(ctx, conn, board, zap.NewNop()))

	ch, err := conn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	for _, body := range []string{
		`{"type":"create","product_id":"p1","comment":{"id":"c1","body":"hello"}}`,
		`{"type":"bogus","product_id":"p1"}`,
		`{"type":"reply","product_id":"p1","parent_id":"c1","comment":{"id":"r1","body":"hi"}}`,
	} {
		err := ch.PublishWithContext(ctx, "", Queue, false, false, amqp.Publishing{
			ContentType: "application/json",
			Body:        []byte(body),
		})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		got := board.Comments("p1")
		return len(got) == 1 && len(got[0].Replies) == 1
	}, 15*time.Second, 200*time.Millisecond)
}
