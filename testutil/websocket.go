// Package testutil provides an in-process WebSocket server for exercising
// jsonrpc2ws.Dial without a real JSON-RPC server.
package testutil

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"nhooyr.io/websocket"
)

// Server is a minimal in-process WebSocket server that exposes every raw
// text frame it receives on RequestCh, and writes every raw text frame
// pushed to ResponseCh back to the single connected client. It is built
// around nhooyr.io/websocket directly, rather than jsonrpc2ws, so tests can
// assert on exact wire bytes.
type Server struct {
	URL string

	RequestCh  chan string // Every frame received from the client.
	ResponseCh chan string // Frames to send to the client.

	cancel context.CancelFunc
	wg     sync.WaitGroup
	ln     net.Listener
	srv    *http.Server
}

// NewServer starts the server and begins serving a single WebSocket
// connection. Call Close when the test is done.
func NewServer() *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		RequestCh:  make(chan string, 16),
		ResponseCh: make(chan string, 16),
		cancel:     cancel,
	}

	s.srv = &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		s.wg.Add(2)
		readerDone := make(chan struct{})
		go func() {
			defer s.wg.Done()
			defer close(readerDone)
			for {
				typ, data, err := conn.Read(ctx)
				if err != nil {
					return
				}
				if typ != websocket.MessageText {
					continue
				}
				select {
				case s.RequestCh <- string(data):
				case <-ctx.Done():
					return
				}
			}
		}()
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-readerDone:
					return
				case msg := <-s.ResponseCh:
					if err := conn.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
						return
					}
				}
			}
		}()

		<-ctx.Done()
	})}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(err)
	}
	s.ln = ln
	s.URL = "ws://" + ln.Addr().String()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(err)
		}
	}()

	return s
}

// Close shuts down the server and waits for its goroutines to exit.
func (s *Server) Close() {
	s.cancel()
	_ = s.srv.Close()
	s.wg.Wait()
}

// Send pushes a raw text frame to the connected client.
func (s *Server) Send(frame string) {
	s.ResponseCh <- frame
}

// Next blocks until the next raw text frame sent by the client is
// available.
func (s *Server) Next() string {
	return <-s.RequestCh
}
