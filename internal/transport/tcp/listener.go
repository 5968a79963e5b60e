// Package tcp implements the bare line-protocol transport of spec.md §6:
// each connection speaks newline-terminated SECoP frames directly over
// TCP, with no framing beyond the trailing '\n'.
package tcp

import (
	"bufio"
	"context"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/vitalybin/frappy/pkg/secop/dispatch"
	"github.com/vitalybin/frappy/pkg/secop/seclog"
	"github.com/vitalybin/frappy/pkg/secop/wire"
)

// Listener accepts raw TCP connections and bridges each one to the
// dispatcher as a Session.
type Listener struct {
	addr string
	disp *dispatch.Dispatcher
	log  seclog.Logger

	mu   sync.Mutex
	ln   net.Listener
	wg   sync.WaitGroup
}

// New builds a Listener bound to addr (e.g. ":10767", SECoP's default
// port) that feeds frames into disp.
func New(addr string, disp *dispatch.Dispatcher) *Listener {
	return &Listener{addr: addr, disp: disp, log: seclog.Named("transport.tcp")}
}

// Serve binds the listening socket and accepts connections until ctx is
// canceled or Close is called. It blocks until the accept loop exits.
func (l *Listener) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.ln = ln
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	l.log.Info("listening", zap.String("addr", ln.Addr().String()))
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				l.wg.Wait()
				return nil
			default:
				return err
			}
		}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handle(ctx, conn)
		}()
	}
}

// Close stops accepting new connections; connections already accepted
// run to completion on their own (spec.md §6 "abrupt disconnects drop
// any pending outbound backlog for that client only").
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Close()
}

// handle bridges one connection's lines to/from the dispatcher until the
// client disconnects or ctx is canceled.
func (l *Listener) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	sess := dispatch.NewSession()
	l.disp.AddSession(sess)
	defer l.disp.RemoveSession(sess)

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var writerWG sync.WaitGroup
	writerWG.Add(1)
	go func() {
		defer writerWG.Done()
		writeLoop(conn, sess)
	}()

	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	readLoop(connCtx, conn, l.disp, sess, l.log)
	sess.Close()
	cancel()
	writerWG.Wait()
}

// readLoop reads newline-terminated frames off conn and dispatches each
// one, writing replies back through sess.Out.
func readLoop(ctx context.Context, conn net.Conn, disp *dispatch.Dispatcher, sess *dispatch.Session, log seclog.Logger) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		frame, err := wire.Parse(line)
		if err != nil {
			reply := dispatch.HandleParseError("", err)
			if sendErr := sess.Send(ctx, reply); sendErr != nil {
				return
			}
			continue
		}
		for _, reply := range disp.HandleFrame(ctx, sess, frame) {
			if sendErr := sess.Send(ctx, reply); sendErr != nil {
				log.Warn("dropping reply on backpressured session", zap.String("session", sess.ID), zap.Error(sendErr))
				return
			}
		}
	}
}

// writeLoop drains sess.Out, encoding each frame onto conn until the
// session is closed.
func writeLoop(conn net.Conn, sess *dispatch.Session) {
	w := bufio.NewWriter(conn)
	for frame := range sess.Out {
		if _, err := w.WriteString(wire.Encode(frame) + "\n"); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}
