package beanstalk

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sunng87/clojalk/internal/core"
	logpkg "github.com/sunng87/clojalk/pkg/log"
)

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	eng := core.New(core.Options{})
	logger := logpkg.NewLogger(logpkg.WithLevel(logpkg.ErrorLevel))
	srv := New(eng, logger, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = srv.ListenAndServe(ctx, "127.0.0.1:0") }()
	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatalf("server did not bind")
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Cleanup(srv.Close)
	srv.StartSweeper(ctx, 50*time.Millisecond)
	return srv, srv.Addr().String()
}

type client struct {
	t *testing.T
	c net.Conn
	r *bufio.Reader
}

func dial(t *testing.T, addr string) *client {
	t.Helper()
	c, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return &client{t: t, c: c, r: bufio.NewReader(c)}
}

func (cl *client) send(format string, args ...interface{}) {
	cl.t.Helper()
	_, err := fmt.Fprintf(cl.c, format+"\r\n", args...)
	require.NoError(cl.t, err)
}

func (cl *client) line() string {
	cl.t.Helper()
	require.NoError(cl.t, cl.c.SetReadDeadline(time.Now().Add(3*time.Second)))
	line, err := cl.r.ReadString('\n')
	require.NoError(cl.t, err)
	return strings.TrimRight(line, "\r\n")
}

// body reads an n-byte chunk plus its CRLF terminator.
func (cl *client) body(n int) string {
	cl.t.Helper()
	buf := make([]byte, n+2)
	_, err := io.ReadFull(cl.r, buf)
	require.NoError(cl.t, err)
	require.Equal(cl.t, "\r\n", string(buf[n:]))
	return string(buf[:n])
}

func TestPutReserveDeleteFlow(t *testing.T) {
	_, addr := startServer(t)
	cl := dial(t, addr)

	cl.send("put 10 0 100 5\r\nhello")
	require.Equal(t, "INSERTED 1", cl.line())

	cl.send("reserve")
	require.Equal(t, "RESERVED 1 5", cl.line())
	require.Equal(t, "hello", cl.body(5))

	cl.send("delete 1")
	require.Equal(t, "DELETED", cl.line())

	cl.send("delete 1")
	require.Equal(t, "NOT_FOUND", cl.line())
}

func TestCommandNamesAreCaseInsensitive(t *testing.T) {
	_, addr := startServer(t)
	cl := dial(t, addr)

	cl.send("PUT 1 0 10 2\r\nok")
	require.Equal(t, "INSERTED 1", cl.line())
	cl.send("Stats-Job 1")
	resp := cl.line()
	require.True(t, strings.HasPrefix(resp, "OK "), "got %q", resp)
	var n int
	_, err := fmt.Sscanf(resp, "OK %d", &n)
	require.NoError(t, err)
	yamlBody := cl.body(n)
	require.True(t, strings.HasPrefix(yamlBody, "---"), "got %q", yamlBody)
	require.Contains(t, yamlBody, "state: ready")
}

func TestUnknownAndMalformedCommands(t *testing.T) {
	_, addr := startServer(t)
	cl := dial(t, addr)

	cl.send("frobnicate")
	require.Equal(t, "UNKNOWN_COMMAND", cl.line())

	cl.send("delete")
	require.Equal(t, "BAD_FORMAT", cl.line())

	cl.send("delete notanumber")
	require.Equal(t, "BAD_FORMAT", cl.line())

	cl.send("put 1 2")
	require.Equal(t, "BAD_FORMAT", cl.line())
}

func TestPutBodyMustEndWithCRLF(t *testing.T) {
	_, addr := startServer(t)
	cl := dial(t, addr)

	_, err := cl.c.Write([]byte("put 1 0 10 2\r\nabXY\r\n"))
	require.NoError(t, err)
	require.Equal(t, "EXPECTED_CRLF", cl.line())
}

func TestReserveWithTimeoutZeroPolls(t *testing.T) {
	_, addr := startServer(t)
	cl := dial(t, addr)

	start := time.Now()
	cl.send("reserve-with-timeout 0")
	require.Equal(t, "TIMED_OUT", cl.line())
	require.Less(t, time.Since(start), time.Second)
}

func TestReserveWithTimeoutExpiresViaSweeper(t *testing.T) {
	_, addr := startServer(t)
	cl := dial(t, addr)

	cl.send("reserve-with-timeout 1")
	require.Equal(t, "TIMED_OUT", cl.line())
}

func TestBlockedReserveIsWokenByPut(t *testing.T) {
	_, addr := startServer(t)
	worker := dial(t, addr)
	producer := dial(t, addr)

	worker.send("reserve")
	time.Sleep(50 * time.Millisecond) // let the worker park
	producer.send("put 1 0 60 4\r\nwork")
	require.Equal(t, "INSERTED 1", producer.line())

	require.Equal(t, "RESERVED 1 4", worker.line())
	require.Equal(t, "work", worker.body(4))
}

func TestWatchIgnoreFlow(t *testing.T) {
	_, addr := startServer(t)
	cl := dial(t, addr)

	cl.send("watch mail")
	require.Equal(t, "WATCHING 2", cl.line())
	cl.send("ignore default")
	require.Equal(t, "WATCHING 1", cl.line())
	cl.send("ignore mail")
	require.Equal(t, "NOT_IGNORED", cl.line())
	cl.send("list-tubes-watched")
	resp := cl.line()
	var n int
	_, err := fmt.Sscanf(resp, "OK %d", &n)
	require.NoError(t, err)
	require.Contains(t, cl.body(n), "- mail")
}

func TestUseAndTubeCommands(t *testing.T) {
	_, addr := startServer(t)
	cl := dial(t, addr)

	cl.send("use orders")
	require.Equal(t, "USING orders", cl.line())
	cl.send("list-tube-used")
	require.Equal(t, "USING orders", cl.line())

	cl.send("put 1 0 10 1\r\nx")
	require.Equal(t, "INSERTED 1", cl.line())

	cl.send("stats-tube orders")
	resp := cl.line()
	var n int
	_, err := fmt.Sscanf(resp, "OK %d", &n)
	require.NoError(t, err)
	body := cl.body(n)
	require.Contains(t, body, "name: orders")
	require.Contains(t, body, "current-jobs-ready: 1")

	cl.send("stats-tube nope")
	require.Equal(t, "NOT_FOUND", cl.line())

	cl.send("pause-tube orders 10")
	require.Equal(t, "PAUSED", cl.line())
}

func TestPeekVariants(t *testing.T) {
	_, addr := startServer(t)
	cl := dial(t, addr)

	cl.send("peek-ready")
	require.Equal(t, "NOT_FOUND", cl.line())

	cl.send("put 1 0 10 3\r\nabc")
	require.Equal(t, "INSERTED 1", cl.line())
	cl.send("peek 1")
	require.Equal(t, "FOUND 1 3", cl.line())
	require.Equal(t, "abc", cl.body(3))
	cl.send("peek-ready")
	require.Equal(t, "FOUND 1 3", cl.line())
	require.Equal(t, "abc", cl.body(3))
	cl.send("peek 42")
	require.Equal(t, "NOT_FOUND", cl.line())
}

func TestGlobalStatsBody(t *testing.T) {
	_, addr := startServer(t)
	cl := dial(t, addr)

	cl.send("put 1 0 10 1\r\nx")
	require.Equal(t, "INSERTED 1", cl.line())
	cl.send("stats")
	resp := cl.line()
	var n int
	_, err := fmt.Sscanf(resp, "OK %d", &n)
	require.NoError(t, err)
	body := cl.body(n)
	require.Contains(t, body, "cmd-put: 1")
	require.Contains(t, body, "current-jobs-ready: 1")
	require.Contains(t, body, "current-connections: 1")
}

func TestQuitClosesConnection(t *testing.T) {
	_, addr := startServer(t)
	cl := dial(t, addr)

	cl.send("quit")
	require.NoError(t, cl.c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := cl.r.ReadByte()
	require.ErrorIs(t, err, io.EOF)
}

func TestDisconnectReleasesReservedJob(t *testing.T) {
	srv, addr := startServer(t)
	worker := dial(t, addr)
	worker.send("put 1 0 60 1\r\nx")
	require.Equal(t, "INSERTED 1", worker.line())
	worker.send("reserve")
	require.Equal(t, "RESERVED 1 1", worker.line())
	require.Equal(t, "x", worker.body(1))
	require.NoError(t, worker.c.Close())

	// The session teardown puts the job back; a new connection can take it.
	deadline := time.Now().Add(2 * time.Second)
	for {
		second := dial(t, addr)
		second.send("reserve-with-timeout 0")
		if second.line() == "RESERVED 1 1" {
			require.Equal(t, "x", second.body(1))
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job was not released after disconnect")
		}
		time.Sleep(20 * time.Millisecond)
	}
	_ = srv
}
