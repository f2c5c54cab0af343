// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

package ctlplane

import (
	"context"
	"sync/atomic"
	"time"

	nfqueue "github.com/florianl/go-nfqueue/v2"

	"grimm.is/stonewall/internal/engine"
	"grimm.is/stonewall/internal/errors"
	"grimm.is/stonewall/internal/logging"
	"grimm.is/stonewall/internal/packet"
)

// NFQueueReader binds one nfqueue and feeds packets into the pipeline.
// One reader serves one direction.
type NFQueueReader struct {
	queueNum uint16
	dir      packet.Direction
	pipeline *engine.Pipeline
	logger   *logging.Logger

	nf      *nfqueue.Nfqueue
	cancel  context.CancelFunc
	running atomic.Bool
}

// NewNFQueueReader creates a reader for queueNum delivering dir packets.
func NewNFQueueReader(queueNum uint16, dir packet.Direction, p *engine.Pipeline, logger *logging.Logger) *NFQueueReader {
	return &NFQueueReader{
		queueNum: queueNum,
		dir:      dir,
		pipeline: p,
		logger:   logger,
	}
}

// Start opens the queue and begins delivering verdicts.
func (r *NFQueueReader) Start() error {
	cfg := &nfqueue.Config{
		NfQueue:      r.queueNum,
		MaxPacketLen: 0xffff,
		MaxQueueLen:  1024,
		Copymode:     nfqueue.NfQnlCopyPacket,
		WriteTimeout: 50 * time.Millisecond,
	}
	nf, err := nfqueue.Open(cfg)
	if err != nil {
		return errors.Wrapf(err, errors.KindHook, "cannot open nfqueue %d", r.queueNum)
	}

	ctx, cancel := context.WithCancel(context.Background())

	fn := func(a nfqueue.Attribute) int {
		if a.PacketID == nil {
			return 0
		}
		id := *a.PacketID
		if a.Payload == nil {
			_ = nf.SetVerdict(id, nfqueue.NfAccept)
			return 0
		}
		buf := *a.Payload

		verdict := r.pipeline.Process(buf, r.dir)
		switch verdict {
		case engine.VerdictAccept:
			// NAT may have rewritten the buffer in place; hand the kernel
			// the current bytes either way.
			if r.dir == packet.DirOutbound {
				_ = nf.SetVerdictModPacket(id, nfqueue.NfAccept, buf)
			} else {
				_ = nf.SetVerdict(id, nfqueue.NfAccept)
			}
		default:
			_ = nf.SetVerdict(id, nfqueue.NfDrop)
		}
		return 0
	}
	errFn := func(err error) int {
		r.logger.Warn("nfqueue receive error", "queue", r.queueNum, "error", err)
		return 0
	}

	if err := nf.RegisterWithErrorFunc(ctx, fn, errFn); err != nil {
		cancel()
		nf.Close()
		return errors.Wrapf(err, errors.KindHook, "cannot register on nfqueue %d", r.queueNum)
	}

	r.nf = nf
	r.cancel = cancel
	r.running.Store(true)
	r.logger.Info("nfqueue reader started", "queue", r.queueNum, "dir", r.dir.String())
	return nil
}

// Stop detaches from the queue.
func (r *NFQueueReader) Stop() {
	if !r.running.Swap(false) {
		return
	}
	r.cancel()
	if r.nf != nil {
		_ = r.nf.Close()
		r.nf = nil
	}
	r.logger.Info("nfqueue reader stopped", "queue", r.queueNum)
}

// IsRunning reports whether the reader is attached.
func (r *NFQueueReader) IsRunning() bool {
	return r.running.Load()
}
