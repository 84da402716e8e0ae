package ingest

import (
	"bufio"
	"context"
	"io"
	"log"
	"net"
	"time"

	"github.com/hut8/soar/internal/beast"
	"github.com/hut8/soar/internal/domain"
	"github.com/hut8/soar/internal/monitoring"
)

// dialWithBackoff keeps trying addr until it connects or ctx is cancelled, doubling the
// delay between attempts from min up to max (spec.md §4.1 "ingress adapters reconnect
// with exponential backoff"; the doubling/capping shape is the common Go dial-retry
// idiom, since the teacher's own OpenSky poller backs off only to a fixed interval).
func dialWithBackoff(ctx context.Context, addr string, min, max time.Duration) (net.Conn, error) {
	delay := min
	for {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Printf("ingest: dial %s failed: %v (retry in %s)", addr, err, delay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > max {
			delay = max
		}
	}
}

// RunAprsAdapter maintains a reconnecting APRS-IS connection, pushing one Envelope per
// line read onto the router's input queue (spec.md §4.2).
func RunAprsAdapter(ctx context.Context, addr string, minBackoff, maxBackoff time.Duration, router *Router) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := dialWithBackoff(ctx, addr, minBackoff, maxBackoff)
		if err != nil {
			return err
		}
		readLines(ctx, conn, domain.SourceAprs, router)
	}
}

// RunBeastAdapter maintains a reconnecting Beast binary-feed connection, pushing one
// Envelope per decoded frame payload (spec.md §4.1). Framing is read directly off the
// connection (its ESC-escape state can't be chunked into independent envelopes), but
// the decoded payload is then queued like any other protocol's traffic.
func RunBeastAdapter(ctx context.Context, addr string, minBackoff, maxBackoff time.Duration, router *Router) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := dialWithBackoff(ctx, addr, minBackoff, maxBackoff)
		if err != nil {
			return err
		}
		readBeastFrames(ctx, conn, router)
	}
}

// RunSbsAdapter maintains a reconnecting BaseStation CSV feed connection, pushing one
// Envelope per line read (spec.md §4.1).
func RunSbsAdapter(ctx context.Context, addr string, minBackoff, maxBackoff time.Duration, router *Router) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := dialWithBackoff(ctx, addr, minBackoff, maxBackoff)
		if err != nil {
			return err
		}
		readLines(ctx, conn, domain.SourceSbs, router)
	}
}

func readLines(ctx context.Context, conn net.Conn, source domain.Source, router *Router) {
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			monitoring.EnvelopesReceived.WithLabelValues(source.String()).Inc()
			env := Envelope{Source: source, Payload: []byte(line), ReceivedAt: time.Now().UTC()}
			select {
			case router.In <- env:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("ingest: %s read error: %v", source, err)
			}
			return
		}
	}
}

func readBeastFrames(ctx context.Context, conn net.Conn, router *Router) {
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	r := bufio.NewReader(conn)
	for {
		frame, err := beast.ReadFrame(r)
		if err != nil {
			if err != io.EOF {
				log.Printf("ingest: beast read error: %v", err)
			}
			return
		}
		monitoring.EnvelopesReceived.WithLabelValues(domain.SourceBeast.String()).Inc()
		env := Envelope{Source: domain.SourceBeast, Payload: frame.Payload, ReceivedAt: time.Now().UTC()}
		select {
		case router.In <- env:
		case <-ctx.Done():
			return
		}
	}
}
