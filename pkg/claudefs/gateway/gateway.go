// Package gateway puts the claudefs engine on the wire: a TCP listener
// that reads framed requests (pkg/claudefs/frame), dispatches them to
// engine.Engine.HandleFrame, and writes back the encoded acknowledgment.
// It also drives the engine's background cycles (journal commit,
// compaction, scrub) on fixed intervals. This is the realized system
// spec.md §2's control flow describes; engine.Engine itself never opens
// a socket (see pkg/claudefs/engine's package doc).
//
// Grounded on pkg/adapter/nfs's NFSAdapter.Serve accept-loop idiom,
// generalized from the RPC record-marking framing NFS uses to the
// claudefs fixed-header framing.
package gateway

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"time"

	"github.com/marmos91/dittofs/internal/logger"
	"github.com/marmos91/dittofs/pkg/claudefs/engine"
	"github.com/marmos91/dittofs/pkg/claudefs/frame"
	claudefserrors "github.com/marmos91/dittofs/pkg/claudefs/errors"
)

// Config controls the gateway's listener address and background cycle
// cadence.
type Config struct {
	Address            string
	CommitInterval     time.Duration
	CompactionInterval time.Duration
	ScrubInterval      time.Duration
}

// Gateway accepts framed connections and dispatches every frame to a
// wired engine.Engine.
type Gateway struct {
	config   Config
	engine   *engine.Engine
	listener net.Listener
}

// New creates a Gateway bound to eng. Serve must be called to start
// accepting connections.
func New(config Config, eng *engine.Engine) *Gateway {
	return &Gateway{config: config, engine: eng}
}

// Serve listens on config.Address and accepts connections until ctx is
// canceled. It also starts the engine's background commit, compaction and
// scrub cycles. Serve blocks and returns nil on graceful shutdown.
func (g *Gateway) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", g.config.Address)
	if err != nil {
		return claudefserrors.Wrap(claudefserrors.KindProtocol, claudefserrors.CodeIOError, "gateway.Serve.Listen", err)
	}
	g.listener = listener
	logger.Info("claudefs gateway listening", "address", g.config.Address)

	go g.runBackgroundCycles(ctx)

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				logger.Info("claudefs gateway shutting down")
				return nil
			default:
				logger.Debug("claudefs gateway accept error", "error", err)
				continue
			}
		}
		go g.handleConn(conn)
	}
}

// Close stops accepting new connections.
func (g *Gateway) Close() error {
	if g.listener == nil {
		return nil
	}
	return g.listener.Close()
}

// handleConn reads framed requests off conn, one at a time, dispatching
// each to the engine and writing back its response. It returns on the
// first I/O error or malformed frame, closing the connection.
func (g *Gateway) handleConn(conn net.Conn) {
	defer conn.Close()

	for {
		header := make([]byte, frame.HeaderSize)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}

		payloadLen := binary.BigEndian.Uint32(header[16:20])
		if payloadLen > frame.MaxPayloadSize {
			return
		}

		raw := make([]byte, frame.HeaderSize+int(payloadLen))
		copy(raw, header)
		if payloadLen > 0 {
			if _, err := io.ReadFull(conn, raw[frame.HeaderSize:]); err != nil {
				return
			}
		}

		resp, err := g.engine.HandleFrame(raw)
		if err != nil {
			logger.Debug("claudefs gateway request failed", "error", err, "remote", conn.RemoteAddr())
			return
		}

		if _, err := conn.Write(resp); err != nil {
			return
		}
	}
}

// runBackgroundCycles drives the engine's periodic maintenance: committing
// pending journal entries, attempting a compaction pass and a scrub pass.
// Each ticker runs independently so a slow compaction cycle never delays
// commits.
func (g *Gateway) runBackgroundCycles(ctx context.Context) {
	commitTicker := time.NewTicker(g.config.CommitInterval)
	compactionTicker := time.NewTicker(g.config.CompactionInterval)
	scrubTicker := time.NewTicker(g.config.ScrubInterval)
	defer commitTicker.Stop()
	defer compactionTicker.Stop()
	defer scrubTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-commitTicker.C:
			if _, err := g.engine.Commit(); err != nil {
				logger.Warn("claudefs background commit failed", "error", err)
			}
		case <-compactionTicker.C:
			if _, err := g.engine.RunCompactionCycle(); err != nil {
				logger.Warn("claudefs compaction cycle failed", "error", err)
			}
		case <-scrubTicker.C:
			g.engine.RunScrubCycle(uint64(time.Now().Unix()))
		}
	}
}
