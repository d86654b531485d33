package mcp

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// RequestHandlerFunc is a function that processes a request and returns a response
type RequestHandlerFunc func(data []byte) ([]byte, error)

// Transport defines the interface for MCP transport mechanisms
type Transport interface {
	Start(handler RequestHandlerFunc) error
	Stop() error
}

// maxLineSize is the size of the stdin reader's buffer. ReadString keeps
// reading past a full buffer until it sees a newline, so this does not
// limit the length of an incoming protocol line.
const maxLineSize = 10 << 20

// StdioTransport implements Transport over stdin/stdout, the only
// transport this server supports (spec §6: line-delimited JSON on
// stdin/stdout).
type StdioTransport struct {
	running   bool
	stopChan  chan struct{}
	waitGroup sync.WaitGroup
	reader    *bufio.Reader
	writer    *bufio.Writer
	mutex     sync.Mutex
	log       *zap.Logger
}

// NewStdioTransport creates a new stdio transport
func NewStdioTransport(log *zap.Logger) *StdioTransport {
	if log == nil {
		log = zap.NewNop()
	}
	return &StdioTransport{
		reader:   bufio.NewReaderSize(os.Stdin, maxLineSize),
		writer:   bufio.NewWriter(os.Stdout),
		stopChan: make(chan struct{}),
		log:      log.With(zap.String("component", "stdio_transport")),
	}
}

// Start starts the transport
func (t *StdioTransport) Start(handler RequestHandlerFunc) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.running {
		return fmt.Errorf("transport already running")
	}

	t.running = true
	t.waitGroup.Add(1)

	go t.processRequests(handler)

	return nil
}

// Stop stops the transport
func (t *StdioTransport) Stop() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if !t.running {
		return nil
	}

	close(t.stopChan)
	t.waitGroup.Wait()
	t.running = false

	return nil
}

// processRequests reads and processes requests from stdin. Messages are
// read in the main loop and dispatched to goroutines so that
// notifications (e.g. notifications/cancelled) can be processed even
// while a long-running tools/call is still in flight (spec §5).
func (t *StdioTransport) processRequests(handler RequestHandlerFunc) {
	defer t.waitGroup.Done()

	for {
		select {
		case <-t.stopChan:
			return
		default:
			line, err := t.reader.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					t.log.Info("stdin closed, exiting")
					return
				}
				t.log.Warn("error reading stdin", zap.Error(err))
				continue
			}

			line = strings.TrimRight(line, "\r\n")
			if line == "" {
				continue
			}

			go t.handleAndRespond(handler, []byte(line))
		}
	}
}

// handleAndRespond processes a single message and writes the response.
// Thread-safe: uses t.mutex to serialise writes to stdout.
func (t *StdioTransport) handleAndRespond(handler RequestHandlerFunc, data []byte) {
	response, err := handler(data)
	if err != nil {
		t.log.Warn("error processing request", zap.Error(err))
		return
	}

	if len(response) == 0 {
		return
	}

	response = append(response, '\n')

	t.mutex.Lock()
	defer t.mutex.Unlock()

	if _, err := t.writer.Write(response); err != nil {
		t.log.Warn("error writing response", zap.Error(err))
		return
	}
	if err := t.writer.Flush(); err != nil {
		t.log.Warn("error flushing response", zap.Error(err))
	}
}
