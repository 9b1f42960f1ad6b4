package hl7v2

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/fits/internal/domain/forecast"
)

const (
	// MLLPStartBlock is the MLLP start-of-message byte (VT / vertical tab).
	MLLPStartBlock = 0x0B

	// MLLPEndBlock is the MLLP end-of-message byte (FS / file separator).
	MLLPEndBlock = 0x1C

	// MLLPCarriageReturn is the trailing CR after the end block.
	MLLPCarriageReturn = 0x0D

	// mllpMaxMessageSize is the maximum buffer size for a single MLLP message (1 MB).
	mllpMaxMessageSize = 1 << 20

	// mllpReadTimeout is the read deadline applied to each connection.
	mllpReadTimeout = 30 * time.Second
)

// MessageHandler is called for each received HL7v2 message and returns the
// reply to send back. Return nil to send no response.
type MessageHandler func(msg *Message) *Message

// MLLPServer listens for HL7v2 messages over MLLP/TCP.
type MLLPServer struct {
	addr     string
	handler  MessageHandler
	listener net.Listener
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	done     chan struct{}
	wg       sync.WaitGroup
	logger   zerolog.Logger
}

// NewMLLPServer creates a server that will listen on addr and dispatch
// parsed messages to handler.
func NewMLLPServer(addr string, handler MessageHandler, logger zerolog.Logger) *MLLPServer {
	return &MLLPServer{
		addr:    addr,
		handler: handler,
		conns:   make(map[net.Conn]struct{}),
		done:    make(chan struct{}),
		logger:  logger.With().Str("component", "mllp").Logger(),
	}
}

// Start begins listening. The accept loop runs in a background goroutine.
func (s *MLLPServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("mllp: failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("mllp listener started")
	return nil
}

// Stop closes the listener and every open connection, then waits for all
// goroutines to finish.
func (s *MLLPServer) Stop() error {
	close(s.done)

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

// Addr returns the listener address, useful when started on port 0.
func (s *MLLPServer) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (s *MLLPServer) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.logger.Error().Err(err).Msg("accept failed")
			return
		}

		s.trackConn(conn, true)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.trackConn(conn, false)
			defer conn.Close()
			s.handleConnection(conn)
		}()
	}
}

func (s *MLLPServer) trackConn(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

// handleConnection reads framed messages from conn until the peer goes
// away or the connection idles out.
func (s *MLLPServer) handleConnection(conn net.Conn) {
	buf := make([]byte, 0, 4096)
	readBuf := make([]byte, 4096)

	for {
		select {
		case <-s.done:
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(mllpReadTimeout))

		n, err := conn.Read(readBuf)
		if n > 0 {
			buf = append(buf, readBuf[:n]...)
			if len(buf) > mllpMaxMessageSize {
				s.logger.Warn().Str("remote", conn.RemoteAddr().String()).Msg("message exceeds max size, closing connection")
				return
			}

			for {
				msgBytes, rest, found := UnframeMessage(buf)
				if !found {
					break
				}
				buf = rest
				s.processMessage(conn, msgBytes)
			}
		}

		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() && len(buf) > 0 {
				continue
			}
			return
		}
	}
}

func (s *MLLPServer) processMessage(conn net.Conn, raw []byte) {
	msg, err := Parse(raw)
	if err != nil {
		s.logger.Warn().Err(err).Msg("parse failed")
		return
	}

	resp := s.handler(msg)
	if resp == nil {
		return
	}

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if _, err := conn.Write(FrameMessage(SerializeMessage(resp))); err != nil {
		s.logger.Warn().Err(err).Msg("write failed")
	}
}

// FrameMessage wraps raw HL7v2 bytes in MLLP framing:
//
//	<0x0B> + message + <0x1C><0x0D>
func FrameMessage(data []byte) []byte {
	frame := make([]byte, 0, len(data)+3)
	frame = append(frame, MLLPStartBlock)
	frame = append(frame, data...)
	frame = append(frame, MLLPEndBlock, MLLPCarriageReturn)
	return frame
}

// UnframeMessage extracts the first complete frame from data. It returns the
// message, the bytes after the frame and whether a frame was found.
func UnframeMessage(data []byte) (message []byte, rest []byte, found bool) {
	startIdx := bytes.IndexByte(data, MLLPStartBlock)
	if startIdx == -1 {
		return nil, data, false
	}

	endSeq := []byte{MLLPEndBlock, MLLPCarriageReturn}
	endIdx := bytes.Index(data[startIdx+1:], endSeq)
	if endIdx == -1 {
		return nil, data, false
	}
	endIdx = startIdx + 1 + endIdx

	return data[startIdx+1 : endIdx], data[endIdx+2:], true
}

// MLLPTransport sends each message on a fresh TCP connection to the host
// named by a mllp://host:port service URL.
type MLLPTransport struct {
	dialer  net.Dialer
	timeout time.Duration
}

// NewMLLPTransport returns a transport whose exchanges are bounded by
// timeout when the context carries no deadline of its own.
func NewMLLPTransport(timeout time.Duration) *MLLPTransport {
	if timeout <= 0 {
		timeout = mllpReadTimeout
	}
	return &MLLPTransport{timeout: timeout}
}

// Send writes one framed message and waits for one framed reply.
func (t *MLLPTransport) Send(ctx context.Context, sw forecast.Software, message string) (string, error) {
	addr, err := mllpAddr(sw.ServiceURL)
	if err != nil {
		return "", err
	}

	conn, err := t.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("mllp: dial %s: %w", addr, err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(t.timeout)
	}
	conn.SetDeadline(deadline)

	if _, err := conn.Write(FrameMessage([]byte(message))); err != nil {
		return "", fmt.Errorf("mllp: write: %w", err)
	}

	buf := make([]byte, 0, 4096)
	readBuf := make([]byte, 4096)
	for {
		n, err := conn.Read(readBuf)
		buf = append(buf, readBuf[:n]...)
		if msg, _, found := UnframeMessage(buf); found {
			return string(msg), nil
		}
		if len(buf) > mllpMaxMessageSize {
			return "", fmt.Errorf("mllp: reply exceeds %d bytes", mllpMaxMessageSize)
		}
		if err != nil {
			return "", fmt.Errorf("mllp: read reply: %w", err)
		}
	}
}

func mllpAddr(serviceURL string) (string, error) {
	if !strings.Contains(serviceURL, "://") {
		return serviceURL, nil
	}
	u, err := url.Parse(serviceURL)
	if err != nil {
		return "", fmt.Errorf("mllp: invalid service url %q: %w", serviceURL, err)
	}
	if u.Scheme != "mllp" && u.Scheme != "tcp" {
		return "", fmt.Errorf("mllp: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("mllp: service url %q has no host", serviceURL)
	}
	return u.Host, nil
}

// GenerateACK builds an ACK for incoming. ackCode is "AA", "AE" or "AR".
// Sender and receiver are swapped and MSA-2 echoes the original control ID.
func GenerateACK(incoming *Message, ackCode string) *Message {
	trigger := ""
	if parts := strings.SplitN(incoming.Type, "^", 3); len(parts) >= 2 {
		trigger = parts[1]
	}

	now := time.Now().UTC()
	timestamp := now.Format(TimestampLayout)
	controlID := controlIDs.Next()

	ack := &Message{
		Type:         "ACK^" + trigger + "^ACK",
		ControlID:    controlID,
		Version:      incoming.Version,
		Timestamp:    now,
		SendingApp:   incoming.ReceivingApp,
		SendingFac:   incoming.ReceivingFac,
		ReceivingApp: incoming.SendingApp,
		ReceivingFac: incoming.SendingFac,
	}

	msh := Segment{
		Name: "MSH",
		Fields: []Field{
			textField("|"),
			textField("^~\\&"),
			textField(ack.SendingApp),
			textField(ack.SendingFac),
			textField(ack.ReceivingApp),
			textField(ack.ReceivingFac),
			textField(timestamp),
			textField(""),
			parseField(ack.Type),
			textField(controlID),
			textField("P"),
			textField(incoming.Version),
		},
	}
	msa := Segment{
		Name:   "MSA",
		Fields: []Field{textField(ackCode), textField(incoming.ControlID)},
	}
	ack.Segments = []Segment{msh, msa}
	return ack
}

func textField(v string) Field {
	return Field{Value: v, Components: []string{v}, Repeats: [][]string{{v}}}
}

// SerializeMessage renders msg with \r segment terminators.
func SerializeMessage(msg *Message) []byte {
	segs := make([]string, 0, len(msg.Segments))
	for _, seg := range msg.Segments {
		segs = append(segs, serializeSegment(seg))
	}
	return []byte(joinSegments(segs))
}

func serializeSegment(seg Segment) string {
	if seg.Name == "MSH" {
		// Fields[0] is the separator itself.
		if len(seg.Fields) < 2 {
			return "MSH|"
		}
		parts := make([]string, 0, len(seg.Fields)-1)
		for i := 1; i < len(seg.Fields); i++ {
			parts = append(parts, seg.Fields[i].Value)
		}
		return "MSH|" + strings.Join(parts, "|")
	}

	parts := make([]string, len(seg.Fields))
	for i, f := range seg.Fields {
		parts[i] = f.Value
	}
	return seg.Name + "|" + strings.Join(parts, "|")
}
