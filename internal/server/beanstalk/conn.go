package beanstalk

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/google/uuid"

	"github.com/sunng87/clojalk/internal/core"
	logpkg "github.com/sunng87/clojalk/pkg/log"
)

// conn is the per-connection protocol state.
type conn struct {
	srv    *Server
	ctx    context.Context
	sid    string
	r      *bufio.Reader
	w      *bufio.Writer
	worker bool
	quit   bool
}

func (s *Server) handle(ctx context.Context, nc net.Conn) {
	defer nc.Close()
	sid := uuid.NewString()
	s.eng.OpenSession(sid, core.Producer)
	defer s.eng.CloseSession(sid, 0)

	c := &conn{
		srv: s,
		ctx: ctx,
		sid: sid,
		r:   bufio.NewReader(nc),
		w:   bufio.NewWriter(nc),
	}
	for !c.quit {
		line, err := c.readLine()
		if err != nil {
			return
		}
		c.dispatch(line)
		if err := c.w.Flush(); err != nil {
			return
		}
	}
}

// readLine reads one CRLF-terminated command line.
func (c *conn) readLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// dispatch parses and executes one command line. A panic in a handler is
// reported as INTERNAL_ERROR and keeps the connection open.
func (c *conn) dispatch(line string) {
	defer func() {
		if r := recover(); r != nil {
			c.srv.logger.Error("command panic",
				logpkg.Str("session", c.sid),
				logpkg.Str("line", line),
				logpkg.Str("panic", sprint(r)))
			c.reply("INTERNAL_ERROR")
		}
	}()

	fields := strings.Fields(line)
	if len(fields) == 0 {
		c.reply("BAD_FORMAT")
		return
	}
	name := strings.ToLower(fields[0])
	args := fields[1:]

	switch name {
	case "put":
		c.cmdPut(args)
	case "use":
		c.cmdUse(args)
	case "reserve":
		c.cmdReserve(args, false)
	case "reserve-with-timeout":
		c.cmdReserve(args, true)
	case "delete":
		c.cmdDelete(args)
	case "release":
		c.cmdRelease(args)
	case "bury":
		c.cmdBury(args)
	case "touch":
		c.cmdTouch(args)
	case "watch":
		c.cmdWatch(args)
	case "ignore":
		c.cmdIgnore(args)
	case "peek":
		c.cmdPeek(args)
	case "peek-ready":
		c.cmdPeekHead(args, c.srv.eng.PeekReady)
	case "peek-delayed":
		c.cmdPeekHead(args, c.srv.eng.PeekDelayed)
	case "peek-buried":
		c.cmdPeekHead(args, c.srv.eng.PeekBuried)
	case "kick":
		c.cmdKick(args)
	case "stats-job":
		c.cmdStatsJob(args)
	case "stats-tube":
		c.cmdStatsTube(args)
	case "stats":
		c.cmdStats(args)
	case "list-tubes":
		c.cmdListTubes(args)
	case "list-tube-used":
		c.cmdListTubeUsed(args)
	case "list-tubes-watched":
		c.cmdListTubesWatched(args)
	case "pause-tube":
		c.cmdPauseTube(args)
	case "quit":
		c.quit = true
	default:
		c.reply("UNKNOWN_COMMAND")
	}
}

// markWorker reclassifies the session on its first worker verb.
func (c *conn) markWorker() {
	if !c.worker {
		c.worker = true
		c.srv.eng.SetSessionType(c.sid, core.Worker)
	}
}

func (c *conn) cmdPut(args []string) {
	if len(args) != 4 {
		c.reply("BAD_FORMAT")
		return
	}
	pri, err1 := parseUint32(args[0])
	delay, err2 := parseUint32(args[1])
	ttr, err3 := parseUint32(args[2])
	size, err4 := parseInt(args[3])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || size < 0 {
		c.reply("BAD_FORMAT")
		return
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(c.r, body); err != nil {
		c.quit = true
		return
	}
	var crlf [2]byte
	if _, err := io.ReadFull(c.r, crlf[:]); err != nil {
		c.quit = true
		return
	}
	if crlf[0] != '\r' || crlf[1] != '\n' {
		c.reply("EXPECTED_CRLF")
		return
	}
	j, err := c.srv.eng.Put(c.sid, pri, delay, ttr, body, 0)
	switch {
	case errors.Is(err, core.ErrDraining):
		c.reply("DRAINING")
	case err != nil:
		c.reply("INTERNAL_ERROR")
	default:
		c.replyf("INSERTED %d", j.ID)
	}
}

func (c *conn) cmdUse(args []string) {
	if len(args) != 1 || !validTubeName(args[0]) {
		c.reply("BAD_FORMAT")
		return
	}
	name, err := c.srv.eng.Use(c.sid, args[0])
	if err != nil {
		c.reply("INTERNAL_ERROR")
		return
	}
	c.replyf("USING %s", name)
}

func (c *conn) cmdReserve(args []string, withTimeout bool) {
	c.markWorker()
	timeout := int64(-1)
	if withTimeout {
		if len(args) != 1 {
			c.reply("BAD_FORMAT")
			return
		}
		t, err := parseInt(args[0])
		if err != nil || t < 0 {
			c.reply("BAD_FORMAT")
			return
		}
		timeout = t
	} else if len(args) != 0 {
		c.reply("BAD_FORMAT")
		return
	}
	// Flush before blocking so pipelined clients see prior replies.
	_ = c.w.Flush()
	j, err := c.srv.eng.Reserve(c.ctx, c.sid, timeout, 0)
	switch {
	case errors.Is(err, core.ErrTimedOut):
		c.reply("TIMED_OUT")
	case err != nil:
		c.quit = true
	default:
		c.replyJob("RESERVED", j)
	}
}

func (c *conn) cmdDelete(args []string) {
	id, ok := c.oneID(args)
	if !ok {
		return
	}
	c.simple(c.srv.eng.Delete(c.sid, id), "DELETED")
}

func (c *conn) cmdRelease(args []string) {
	c.markWorker()
	if len(args) != 3 {
		c.reply("BAD_FORMAT")
		return
	}
	id, err1 := parseUint64(args[0])
	pri, err2 := parseUint32(args[1])
	delay, err3 := parseUint32(args[2])
	if err1 != nil || err2 != nil || err3 != nil {
		c.reply("BAD_FORMAT")
		return
	}
	c.simple(c.srv.eng.Release(c.sid, id, pri, delay, 0), "RELEASED")
}

func (c *conn) cmdBury(args []string) {
	c.markWorker()
	if len(args) != 2 {
		c.reply("BAD_FORMAT")
		return
	}
	id, err1 := parseUint64(args[0])
	pri, err2 := parseUint32(args[1])
	if err1 != nil || err2 != nil {
		c.reply("BAD_FORMAT")
		return
	}
	c.simple(c.srv.eng.Bury(c.sid, id, pri), "BURIED")
}

func (c *conn) cmdTouch(args []string) {
	c.markWorker()
	id, ok := c.oneID(args)
	if !ok {
		return
	}
	c.simple(c.srv.eng.Touch(c.sid, id, 0), "TOUCHED")
}

func (c *conn) cmdWatch(args []string) {
	c.markWorker()
	if len(args) != 1 || !validTubeName(args[0]) {
		c.reply("BAD_FORMAT")
		return
	}
	n, err := c.srv.eng.Watch(c.sid, args[0])
	if err != nil {
		c.reply("INTERNAL_ERROR")
		return
	}
	c.replyf("WATCHING %d", n)
}

func (c *conn) cmdIgnore(args []string) {
	c.markWorker()
	if len(args) != 1 {
		c.reply("BAD_FORMAT")
		return
	}
	n, err := c.srv.eng.Ignore(c.sid, args[0])
	switch {
	case errors.Is(err, core.ErrNotIgnored):
		c.reply("NOT_IGNORED")
	case err != nil:
		c.reply("INTERNAL_ERROR")
	default:
		c.replyf("WATCHING %d", n)
	}
}

func (c *conn) cmdPeek(args []string) {
	id, ok := c.oneID(args)
	if !ok {
		return
	}
	j, err := c.srv.eng.Peek(c.sid, id)
	c.peekReply(j, err)
}

func (c *conn) cmdPeekHead(args []string, head func(string) (*core.Job, error)) {
	if len(args) != 0 {
		c.reply("BAD_FORMAT")
		return
	}
	j, err := head(c.sid)
	c.peekReply(j, err)
}

func (c *conn) cmdKick(args []string) {
	if len(args) != 1 {
		c.reply("BAD_FORMAT")
		return
	}
	bound, err := parseInt(args[0])
	if err != nil || bound < 0 {
		c.reply("BAD_FORMAT")
		return
	}
	n, err := c.srv.eng.Kick(c.sid, int(bound), 0)
	if err != nil {
		c.reply("INTERNAL_ERROR")
		return
	}
	c.replyf("KICKED %d", n)
}

func (c *conn) cmdStatsJob(args []string) {
	id, ok := c.oneID(args)
	if !ok {
		return
	}
	st, err := c.srv.eng.StatsJob(c.sid, id, 0)
	if err != nil {
		c.reply("NOT_FOUND")
		return
	}
	c.replyYAML(st)
}

func (c *conn) cmdStatsTube(args []string) {
	if len(args) != 1 {
		c.reply("BAD_FORMAT")
		return
	}
	st, err := c.srv.eng.StatsTube(args[0], 0)
	if err != nil {
		c.reply("NOT_FOUND")
		return
	}
	c.replyYAML(st)
}

func (c *conn) cmdStats(args []string) {
	if len(args) != 0 {
		c.reply("BAD_FORMAT")
		return
	}
	c.replyYAML(c.srv.eng.Stats(0))
}

func (c *conn) cmdListTubes(args []string) {
	if len(args) != 0 {
		c.reply("BAD_FORMAT")
		return
	}
	c.replyYAML(c.srv.eng.ListTubes())
}

func (c *conn) cmdListTubeUsed(args []string) {
	if len(args) != 0 {
		c.reply("BAD_FORMAT")
		return
	}
	name, err := c.srv.eng.ListTubeUsed(c.sid)
	if err != nil {
		c.reply("INTERNAL_ERROR")
		return
	}
	c.replyf("USING %s", name)
}

func (c *conn) cmdListTubesWatched(args []string) {
	if len(args) != 0 {
		c.reply("BAD_FORMAT")
		return
	}
	names, err := c.srv.eng.ListTubesWatched(c.sid)
	if err != nil {
		c.reply("INTERNAL_ERROR")
		return
	}
	c.replyYAML(names)
}

func (c *conn) cmdPauseTube(args []string) {
	if len(args) != 2 {
		c.reply("BAD_FORMAT")
		return
	}
	delay, err := parseUint32(args[1])
	if err != nil {
		c.reply("BAD_FORMAT")
		return
	}
	c.simple(c.srv.eng.PauseTube(args[0], delay, 0), "PAUSED")
}

// oneID parses the single job-id argument shared by several verbs.
func (c *conn) oneID(args []string) (uint64, bool) {
	if len(args) != 1 {
		c.reply("BAD_FORMAT")
		return 0, false
	}
	id, err := parseUint64(args[0])
	if err != nil {
		c.reply("BAD_FORMAT")
		return 0, false
	}
	return id, true
}

// simple maps a nil / ErrNotFound engine result to ok / NOT_FOUND.
func (c *conn) simple(err error, ok string) {
	switch {
	case err == nil:
		c.reply(ok)
	case errors.Is(err, core.ErrNotFound):
		c.reply("NOT_FOUND")
	default:
		c.reply("INTERNAL_ERROR")
	}
}

func (c *conn) peekReply(j *core.Job, err error) {
	if err != nil {
		c.reply("NOT_FOUND")
		return
	}
	c.replyJob("FOUND", j)
}
