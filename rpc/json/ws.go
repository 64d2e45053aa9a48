package json

import (
	"bytes"
	"io"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/rollkit/ephemeral-counter/log"
)

type wsConn struct {
	conn   *websocket.Conn
	queue  chan []byte
	logger log.Logger

	mtx     sync.Mutex
	release func()
	senders sync.WaitGroup
}

func (wsc *wsConn) sendLoop() {
	for msg := range wsc.queue {
		writer, err := wsc.conn.NextWriter(websocket.TextMessage)
		if err != nil {
			wsc.logger.Error("failed to create writer", "error", err)
			continue
		}
		_, err = writer.Write(msg)
		if err != nil {
			wsc.logger.Error("failed to write message", "error", err)
		}
		if err = writer.Close(); err != nil {
			wsc.logger.Error("failed to close writer", "error", err)
		}
	}
}

// track registers the subscription of this connection. A connection holds
// at most one subscription.
func (wsc *wsConn) track(release func()) bool {
	wsc.mtx.Lock()
	defer wsc.mtx.Unlock()
	if wsc.release != nil {
		return false
	}
	wsc.release = release
	wsc.senders.Add(1)
	return true
}

func (wsc *wsConn) untrack() bool {
	wsc.mtx.Lock()
	release := wsc.release
	wsc.release = nil
	wsc.mtx.Unlock()
	if release == nil {
		return false
	}
	release()
	return true
}

func (wsc *wsConn) done() {
	wsc.senders.Done()
}

// close drops the subscription and stops the send loop once every pending
// event was queued.
func (wsc *wsConn) close() {
	wsc.untrack()
	wsc.senders.Wait()
	close(wsc.queue)
}

func (h *handler) wsHandler(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	wsc, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to update to WebSocket connection", "error", err)
		return
	}
	remoteAddr := wsc.RemoteAddr().String()

	ws := &wsConn{
		conn:   wsc,
		queue:  make(chan []byte),
		logger: h.logger,
	}
	go ws.sendLoop()
	defer func() {
		ws.close()
		if err := wsc.Close(); err != nil {
			h.logger.Error("failed to close WebSocket connection", "error", err)
		}
	}()

	for {
		mt, r, err := wsc.NextReader()
		if err != nil {
			h.logger.Debug("WebSocket connection closed", "remote", remoteAddr, "error", err)
			break
		}

		if mt != websocket.TextMessage {
			h.logger.Debug("expected text message")
			continue
		}
		req, err := http.NewRequest(http.MethodGet, "", r)
		if err != nil {
			h.logger.Error("failed to create request", "error", err)
			continue
		}
		req.RemoteAddr = remoteAddr

		writer := new(bytes.Buffer)
		h.serveJSONRPCforWS(newResponseWriter(writer), req, ws)
		ws.queue <- writer.Bytes()
	}
}

func newResponseWriter(w io.Writer) http.ResponseWriter {
	return &wsResponse{w}
}

// wsResponse is a simple implementation of http.ResponseWriter
type wsResponse struct {
	w io.Writer
}

var _ http.ResponseWriter = wsResponse{}

// Write use underlying writer to write response to WebSocket
func (w wsResponse) Write(bytes []byte) (int, error) {
	return w.w.Write(bytes)
}

func (w wsResponse) Header() http.Header {
	return http.Header{}
}

func (w wsResponse) WriteHeader(statusCode int) {
}
