// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package ctlplane exposes the firewall's control and observability
// surfaces: the byte-oriented command socket, the datapath hook manager,
// and the read-only HTTP endpoints.
package ctlplane

import (
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"grimm.is/stonewall/internal/engine"
	"grimm.is/stonewall/internal/errors"
	"grimm.is/stonewall/internal/logging"
	"grimm.is/stonewall/internal/rules"
)

// Command bytes accepted on the control socket.
const (
	CmdEnable        = '0'
	CmdDisable       = '1'
	CmdReload        = '2'
	CmdSnapshot      = '3'
	CmdToggleDefault = '4'
)

// Server is the control-plane endpoint. Command handling is serialized
// with respect to itself and never blocks the datapath.
type Server struct {
	pipeline *engine.Pipeline
	hooks    HookManager
	logger   *logging.Logger

	socketPath string

	cmdMu sync.Mutex // serializes command execution

	lnMu  sync.Mutex
	ln    net.Listener
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewServer creates a control server over the pipeline and hook manager.
func NewServer(pipeline *engine.Pipeline, hooks HookManager, socketPath string, logger *logging.Logger) *Server {
	return &Server{
		pipeline:   pipeline,
		hooks:      hooks,
		logger:     logger,
		socketPath: socketPath,
		conns:      make(map[net.Conn]struct{}),
	}
}

// Start listens on the control socket. Message-oriented so each client
// write arrives as exactly one command.
func (s *Server) Start() error {
	_ = os.Remove(s.socketPath)
	ln, err := net.Listen("unixpacket", s.socketPath)
	if err != nil {
		return errors.Wrapf(err, errors.KindIO, "cannot listen on %s", s.socketPath)
	}
	s.lnMu.Lock()
	s.ln = ln
	s.lnMu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ln)
	s.logger.Info("control socket listening", "path", s.socketPath)
	return nil
}

// Stop closes the listener and every open client connection.
func (s *Server) Stop() {
	s.lnMu.Lock()
	if s.ln != nil {
		_ = s.ln.Close()
		s.ln = nil
	}
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.lnMu.Unlock()
	s.wg.Wait()
	_ = os.Remove(s.socketPath)
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s.lnMu.Lock()
		s.conns[conn] = struct{}{}
		s.lnMu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				s.lnMu.Lock()
				delete(s.conns, conn)
				s.lnMu.Unlock()
			}()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	s.logger.Info("control connection opened")
	defer s.logger.Info("control connection closed")

	buf := make([]byte, 64)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if err != io.EOF {
				s.logger.Debug("control read error", "error", err)
			}
			return
		}
		if n != 1 {
			s.reply(conn, invalidf("command must be a single byte, got %d", n))
			continue
		}
		err = s.Execute(buf[0], conn)
		if buf[0] == CmdSnapshot && err == nil {
			// The export itself is the reply; the client drains it.
			continue
		}
		s.reply(conn, err)
	}
}

// Execute runs one command byte. For CmdSnapshot the connection table
// export is written to out; the client drains it with subsequent reads.
func (s *Server) Execute(cmd byte, out io.Writer) error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	switch cmd {
	case CmdEnable:
		s.logger.Info("received command: enable filter")
		return s.hooks.Install()
	case CmdDisable:
		s.logger.Info("received command: disable filter")
		return s.hooks.Uninstall()
	case CmdReload:
		s.logger.Info("received command: reload rules")
		return s.pipeline.Reload()
	case CmdSnapshot:
		s.logger.Info("received command: snapshot connection table")
		_, err := out.Write(ExportConnections(s.pipeline.Table))
		return err
	case CmdToggleDefault:
		next := s.pipeline.Rules.ToggleDefaultAction()
		s.logger.Info("default action switched", "action", next.String())
		return nil
	default:
		s.logger.Warn("unknown control command", "cmd", fmt.Sprintf("%q", cmd))
		return invalidf("unknown command %q", cmd)
	}
}

// Enabled reports whether the datapath hooks are installed.
func (s *Server) Enabled() bool {
	return s.hooks.Installed()
}

// DefaultAction returns the filter's current default action.
func (s *Server) DefaultAction() rules.Action {
	return s.pipeline.Rules.DefaultAction()
}

// reply writes the status line for a command. A successful snapshot sends
// no status line; the export is the reply.
func (s *Server) reply(conn net.Conn, err error) {
	if err == nil {
		fmt.Fprint(conn, "OK\n")
		return
	}
	fmt.Fprintf(conn, "ERR %s %s\n", errnoName(err), err)
}

// invalidf builds the client-visible invalid-argument error.
func invalidf(format string, args ...any) error {
	return errors.Errorf(errors.KindInvalid, format, args...)
}

// errnoName maps error kinds onto the errno the character-device protocol
// historically surfaced.
func errnoName(err error) string {
	switch errors.GetKind(err) {
	case errors.KindInvalid:
		return unix.ErrnoName(unix.EINVAL)
	case errors.KindIO:
		return unix.ErrnoName(unix.EIO)
	case errors.KindExhausted:
		return unix.ErrnoName(unix.ENOMEM)
	default:
		return unix.ErrnoName(unix.EFAULT)
	}
}
