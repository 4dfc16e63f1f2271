package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/adwski/room-relay/backend/model"
	"github.com/adwski/room-relay/backend/service"
	"github.com/davecgh/go-spew/spew"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultShutdownDeadline = 10 * time.Second

	defaultWebsocketReadBufferSize     = 10000
	defaultWebsocketWriteBufferSize    = 10000
	defaultWebSocketMaxMessageSize     = 64 * 1024
	defaultWebSocketHandshakeTimeout   = 3 * time.Second
	defaultWebSocketCloseWriteDeadline = 2 * time.Second
	defaultWebSocketWriteDeadline      = 5 * time.Second
	defaultSendBuffer                  = 64

	// defaultPongWait - defaultPingInterval == is how long we give client to respond
	defaultPingInterval = 20 * time.Second
	defaultPongWait     = 30 * time.Second
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

type (
	RelayService interface {
		Connect(model.Wire) *service.Session
		Handle(*service.Session, []byte) error
		Disconnect(*service.Session)
	}

	Config struct {
		Logger          *zerolog.Logger
		RelayService    RelayService
		ListenAddr      string
		SendBuffer      int
		MaxMessageSize  int64
		PingInterval    time.Duration
		PongWait        time.Duration
		WriteDeadline   time.Duration
		ShutdownTimeout time.Duration
	}

	Server struct {
		svc RelayService
		ws  *websocket.Upgrader
		*http.Server

		// ctx is the parent of every connection context; Run replaces it.
		ctx   context.Context
		conns *sync.WaitGroup

		sendBuffer       int
		maxMessageSize   int64
		pingInterval     time.Duration
		pongWait         time.Duration
		writeDeadline    time.Duration
		shutdownDeadline time.Duration

		logger zerolog.Logger
	}
)

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger: cfg.Logger.With().Str("component", "websocket-server").Logger(),
		svc:    cfg.RelayService,
		ws: &websocket.Upgrader{
			HandshakeTimeout: defaultWebSocketHandshakeTimeout,
			ReadBufferSize:   defaultWebsocketReadBufferSize,
			WriteBufferSize:  defaultWebsocketWriteBufferSize,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
		ctx:   context.Background(),
		conns: &sync.WaitGroup{},

		sendBuffer:       orDefault(cfg.SendBuffer, defaultSendBuffer),
		maxMessageSize:   orDefault(cfg.MaxMessageSize, defaultWebSocketMaxMessageSize),
		pingInterval:     orDefault(cfg.PingInterval, defaultPingInterval),
		pongWait:         orDefault(cfg.PongWait, defaultPongWait),
		writeDeadline:    orDefault(cfg.WriteDeadline, defaultWebSocketWriteDeadline),
		shutdownDeadline: orDefault(cfg.ShutdownTimeout, defaultShutdownDeadline),
	}

	// Clients connect without a room in the URL, any path is accepted.
	mux := http.NewServeMux()
	mux.HandleFunc("/", srv.relay)

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}
	return srv
}

func orDefault[T int | int64 | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	srv.ctx = ctx

	errSrv := make(chan error)
	go func() {
		errSrv <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-errSrv:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), srv.shutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
		// Hijacked connections are not tracked by Shutdown.
		srv.waitConns(shCtx)
	}
}

func (srv *Server) waitConns(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		srv.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		srv.logger.Warn().Msg("connections still open after shutdown deadline")
	}
}

func (srv *Server) relay(w http.ResponseWriter, r *http.Request) {
	conn, err := srv.ws.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		srv.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(srv.ctx) // long-living connection context
	wire := model.NewWire(srv.sendBuffer, cancel)
	session := srv.svc.Connect(wire)

	srv.logger.Debug().
		Str("connID", session.ID).
		Str("remote", conn.RemoteAddr().String()).
		Msg("relay session created")

	srv.conns.Add(1)
	go func() {
		defer srv.conns.Done()
		srv.handleWSConn(ctx, cancel, conn, session, wire)
	}()
}

// handleWSConn owns every write to conn: the sender runs here and the
// closer only after it returns.
func (srv *Server) handleWSConn(
	ctx context.Context,
	cancel context.CancelFunc,
	conn *websocket.Conn,
	session *service.Session,
	wire model.Wire,
) {
	logger := srv.logger.With().
		Str("connID", session.ID).
		Logger()

	recvDone := make(chan struct{})
	go func() {
		defer close(recvDone)
		srv.webSocketReceiver(ctx, conn, session, &logger)
		cancel()
	}()

	srv.webSocketSender(ctx, conn, wire.TX, &logger)
	cancel()

	srv.svc.Disconnect(session)
	webSocketCloser(conn, &logger)
	<-recvDone

	logger.Debug().Msg("relay session ended")
}

func (srv *Server) webSocketSender(
	ctx context.Context,
	conn *websocket.Conn,
	tx <-chan []byte,
	logger *zerolog.Logger,
) {
	pingTicker := time.NewTicker(srv.pingInterval)
	defer pingTicker.Stop()

SendLoop:
	for {
		select {
		case <-ctx.Done():
			flush(conn, tx, logger)
			break SendLoop
		case <-pingTicker.C:
			wsErr := conn.SetWriteDeadline(time.Now().Add(srv.writeDeadline))
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to set websocket write deadline")
				break SendLoop
			}
			wsErr = conn.WriteMessage(websocket.PingMessage, []byte{})
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to send ping")
				break SendLoop
			}
			logger.Trace().Msg("ping sent")

		case frame := <-tx:
			wsErr := conn.SetWriteDeadline(time.Now().Add(srv.writeDeadline))
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to set websocket write deadline")
				break SendLoop
			}
			if wsErr = conn.WriteMessage(websocket.TextMessage, frame); wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to write outgoing message")
				break SendLoop
			}
		}
	}
}

// flush writes whatever is already queued under one shared deadline.
func flush(conn *websocket.Conn, tx <-chan []byte, logger *zerolog.Logger) {
	if err := conn.SetWriteDeadline(time.Now().Add(defaultWebSocketCloseWriteDeadline)); err != nil {
		return
	}
	for {
		select {
		case frame := <-tx:
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Debug().Err(err).Msg("flush interrupted")
				return
			}
		default:
			return
		}
	}
}

func (srv *Server) webSocketReceiver(
	ctx context.Context,
	conn *websocket.Conn,
	session *service.Session,
	logger *zerolog.Logger,
) {
	conn.SetReadLimit(srv.maxMessageSize)
	readDeadLineFunc := func(deadline time.Duration) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	}
	conn.SetPongHandler(func(string) error {
		logger.Trace().Msg("got pong")
		return readDeadLineFunc(srv.pongWait)
	})
	err := readDeadLineFunc(srv.pongWait)
	if err != nil {
		logger.Error().Err(err).Msg("failed to set websocket read deadline")
		return
	}

RecvLoop:
	for {
		select {
		case <-ctx.Done():
			break RecvLoop
		default:
			_, msg, wsErr := conn.ReadMessage()
			if wsErr != nil {
				switch {
				case ctx.Err() != nil:
				case websocket.IsCloseError(wsErr,
					websocket.CloseNormalClosure,
					websocket.CloseGoingAway,
					websocket.CloseNoStatusReceived):
					logger.Debug().Err(wsErr).Msg("connection closed")
				default:
					logger.Warn().Err(wsErr).Msg("unexpected error during receive")
				}
				break RecvLoop
			}

			if err = srv.svc.Handle(session, msg); err != nil {
				switch {
				case errors.Is(err, service.ErrSessionClosed):
					break RecvLoop
				case errors.Is(err, service.ErrProtocol):
					logger.Warn().Err(err).Msg("dropped malformed frame")
					logger.Trace().Str("frame", spew.Sdump(msg)).Msg("malformed frame dump")
				case errors.Is(err, service.ErrNotJoined):
					logger.Debug().Err(err).Msg("dropped frame from unjoined connection")
				default:
					logger.Error().Err(err).Msg("failed to handle frame")
				}
			}
		}
	}
}

func webSocketCloser(conn *websocket.Conn, logger *zerolog.Logger) {
	wsErr := conn.SetWriteDeadline(time.Now().Add(defaultWebSocketCloseWriteDeadline))
	if wsErr != nil {
		logger.Debug().Err(wsErr).Msg("failed to set websocket write deadline during closing")
	} else {
		wsErr = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if wsErr != nil {
			logger.Debug().Err(wsErr).Msg("failed to send close message")
		}
	}
	wsErr = conn.Close()
	if wsErr != nil {
		logger.Error().Err(wsErr).Msg("failed to close websocket connection")
	}
}
