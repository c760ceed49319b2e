package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	ncerr "minircd/internal/errors"
	"minircd/util"
)

// WebSocketAcceptor serves browser and WebSocket clients over HTTP.
// GET Path upgrades to a WebSocket carrying the line protocol; GET /
// answers a health check and GET /stats the server statistics.
//
// Each inbound message is one line; a missing "\n" is supplied.  Each
// outbound line is sent as one text message without its "\r\n".
type WebSocketAcceptor struct {
	Address        string
	Path           string   // default "/irc"
	AllowedOrigins []string // empty or "*" allows all
	Stats          func() string
	Logger         *util.Logger
}

func (a *WebSocketAcceptor) String() string {
	return "websocket " + a.Address + a.path()
}

func (a *WebSocketAcceptor) path() string {
	if a.Path == "" {
		return "/irc"
	}
	return a.Path
}

// Listen binds Address and starts the HTTP server.  Closing the
// returned listener stops the server; upgraded connections already
// handed out stay open until their sessions close them.
func (a *WebSocketAcceptor) Listen(ctx context.Context) (net.Listener, error) {
	var lc net.ListenConfig
	tcp, err := lc.Listen(ctx, "tcp", a.Address)
	if err != nil {
		return nil, ncerr.Wrap("listen", a.Address, err)
	}

	l := &wsListener{
		addr:  tcp.Addr(),
		conns: make(chan net.Conn),
		done:  make(chan struct{}),
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     newOriginPolicy(a.AllowedOrigins, a.Logger).check,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(a.path(), func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			a.Logger.Verbose("websocket upgrade from %s failed: %v", r.RemoteAddr, err)
			return
		}
		select {
		case l.conns <- newWSConn(ws):
		case <-l.done:
			ws.Close()
		}
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if a.Stats == nil {
			fmt.Fprint(w, "{}")
			return
		}
		fmt.Fprint(w, a.Stats())
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "minircd is running\n")
	})

	l.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := l.srv.Serve(tcp); err != nil && err != http.ErrServerClosed {
			a.Logger.Error("websocket server on %s: %v", a.Address, err)
		}
	}()
	return l, nil
}

// ── wsListener ───────────────────────────────────────────────────────

// wsListener hands upgraded connections to Accept.
type wsListener struct {
	addr  net.Addr
	srv   *http.Server
	conns chan net.Conn
	done  chan struct{}
	once  sync.Once
}

func (l *wsListener) Accept() (net.Conn, error) {
	select {
	case <-l.done:
		return nil, ncerr.ErrListenerClosed
	case c := <-l.conns:
		return c, nil
	}
}

func (l *wsListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.srv.Close()
	})
	return err
}

func (l *wsListener) Addr() net.Addr { return l.addr }

// ── wsConn ───────────────────────────────────────────────────────────

// peerClosed are the close codes that end a session like a TCP EOF.
var peerClosed = []int{
	websocket.CloseNormalClosure,
	websocket.CloseGoingAway,
	websocket.CloseNoStatusReceived,
	websocket.CloseAbnormalClosure,
}

// wsConn adapts a *websocket.Conn to [net.Conn] for the line protocol.
type wsConn struct {
	ws *websocket.Conn

	readMu sync.Mutex
	buf    []byte

	writeMu sync.Mutex
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws}
}

func (c *wsConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for len(c.buf) == 0 {
		typ, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, peerClosed...) {
				return 0, io.EOF
			}
			return 0, err
		}
		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}
		if len(msg) == 0 || msg[len(msg)-1] != '\n' {
			msg = append(msg, '\n')
		}
		c.buf = msg
	}

	n := copy(p, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}

// Write sends p as one text message.  A trailing "\r\n" or "\n" is
// dropped since the message boundary already ends the line.
func (c *wsConn) Write(p []byte) (int, error) {
	msg := bytes.TrimSuffix(p, []byte("\n"))
	msg = bytes.TrimSuffix(msg, []byte("\r"))

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a close frame and closes the socket.  WriteControl may
// run concurrently with a blocked Write, so no lock is taken.
func (c *wsConn) Close() error {
	c.ws.WriteControl(websocket.CloseMessage, //nolint:errcheck
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.ws.Close()
}

func (c *wsConn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }
