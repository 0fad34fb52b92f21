package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/INLOpen/areas/core"
	"github.com/INLOpen/areas/engine"
	"github.com/INLOpen/areas/hooks/listeners"
	"github.com/INLOpen/areas/kv"
	"github.com/INLOpen/areas/recorder"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	defaultReadTimeout     = 60 * time.Second
	defaultMaxMessageBytes = 1 << 20
	writeTimeout           = 5 * time.Second
	sessionQueueSize       = 64
)

// IngestServerOptions configures an IngestServer.
type IngestServerOptions struct {
	Recorder *recorder.Recorder
	Engine   *engine.StorageEngine
	Pool     *WorkerPool
	Logger   *slog.Logger
	// ReadTimeout closes sessions that stay silent longer than this.
	ReadTimeout     time.Duration
	MaxMessageBytes int64
	// AllowedOrigins empty accepts every origin.
	AllowedOrigins []string
}

type session struct {
	id     string
	conn   *websocket.Conn
	out    chan []byte
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func (s *session) close() { s.once.Do(func() { close(s.done) }) }

// send queues b without blocking. A session too slow to drain its queue
// loses the message.
func (s *session) send(b []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- b:
		return true
	default:
		s.logger.Warn("Session send queue full; dropping message.")
		return false
	}
}

// IngestServer is the websocket endpoint game hosts stream events into.
type IngestServer struct {
	recorder        *recorder.Recorder
	engine          *engine.StorageEngine
	pool            *WorkerPool
	schema          *jsonschema.Schema
	upgrader        websocket.Upgrader
	logger          *slog.Logger
	readTimeout     time.Duration
	maxMessageBytes int64

	ownPool bool

	mu       sync.Mutex
	sessions map[string]*session
}

var _ listeners.Broadcaster = (*IngestServer)(nil)

func NewIngestServer(opts IngestServerOptions) (*IngestServer, error) {
	if opts.Recorder == nil || opts.Engine == nil {
		return nil, errors.New("ingest server requires a recorder and an engine")
	}
	schema, err := compileIngestSchema()
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("component", "IngestServer")
	pool, ownPool := opts.Pool, false
	if pool == nil {
		pool, ownPool = NewWorkerPool(1, sessionQueueSize, logger), true
		pool.Start()
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}
	maxBytes := opts.MaxMessageBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxMessageBytes
	}
	origins := slices.Clone(opts.AllowedOrigins)
	return &IngestServer{
		recorder: opts.Recorder,
		engine:   opts.Engine,
		pool:     pool,
		schema:   schema,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(origins) == 0 || origin == "" || slices.Contains(origins, origin)
			},
		},
		logger:          logger,
		readTimeout:     readTimeout,
		maxMessageBytes: maxBytes,
		ownPool:         ownPool,
		sessions:        make(map[string]*session),
	}, nil
}

// Sessions is the number of connected game hosts.
func (s *IngestServer) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Broadcast pushes an alert to every connected session.
func (s *IngestServer) Broadcast(ctx context.Context, message string) error {
	b, err := json.Marshal(AlertReply{Type: ReplyAlert, Message: message})
	if err != nil {
		return err
	}
	s.mu.Lock()
	targets := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		targets = append(targets, sess)
	}
	s.mu.Unlock()

	for _, sess := range targets {
		sess.send(b)
	}
	return nil
}

// Close hangs up every session. http.Server.Shutdown does not reach
// hijacked connections, so the owning server calls this on stop.
func (s *IngestServer) Close() {
	s.mu.Lock()
	targets := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		targets = append(targets, sess)
	}
	s.mu.Unlock()
	for _, sess := range targets {
		sess.close()
		_ = sess.conn.Close()
	}
	if s.ownPool {
		s.pool.Stop()
	}
}

func (s *IngestServer) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			s.logger.Debug("Websocket upgrade failed.", "remote", r.RemoteAddr, "error", err)
			return
		}
		defer conn.Close()
		conn.SetReadLimit(s.maxMessageBytes)

		id := uuid.NewString()
		sess := &session{
			id:     id,
			conn:   conn,
			out:    make(chan []byte, sessionQueueSize),
			done:   make(chan struct{}),
			logger: s.logger.With("session", id),
		}
		s.register(sess)
		defer s.unregister(sess)
		sess.logger.Info("Game host connected.", "remote", r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		var writer sync.WaitGroup
		writer.Add(1)
		go func() {
			defer writer.Done()
			s.writeLoop(conn, sess)
		}()

		s.readLoop(ctx, conn, sess)
		sess.close()
		writer.Wait()
		sess.logger.Info("Game host disconnected.")
	}
}

func (s *IngestServer) register(sess *session) {
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
}

func (s *IngestServer) unregister(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
}

func (s *IngestServer) writeLoop(conn *websocket.Conn, sess *session) {
	for {
		select {
		case <-sess.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case b := <-sess.out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				sess.logger.Debug("Write failed; closing session.", "error", err)
				sess.close()
				_ = conn.Close()
				return
			}
		}
	}
}

func (s *IngestServer) readLoop(ctx context.Context, conn *websocket.Conn, sess *session) {
	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				sess.logger.Debug("Read failed; closing session.", "error", err)
			}
			return
		}
		reply := s.process(ctx, sess, raw)
		b, err := json.Marshal(reply)
		if err != nil {
			sess.logger.Error("Failed to encode reply.", "error", err)
			continue
		}
		if !sess.send(b) {
			select {
			case <-sess.done:
				return
			default:
			}
		}
	}
}

func (s *IngestServer) process(ctx context.Context, sess *session, raw []byte) any {
	msg, err := decodeInbound(s.schema, raw)
	if err != nil {
		sess.logger.Debug("Rejected message.", "error", err)
		return ErrorReply{Type: ReplyError, ID: messageID(raw), Error: err.Error()}
	}

	var reply any
	err = s.pool.Submit(ctx, func(ctx context.Context) error {
		var err error
		reply, err = s.dispatch(ctx, msg)
		return err
	})
	if err != nil {
		sess.logger.Warn("Message failed.", "type", msg.Type, "error", err)
		return ErrorReply{Type: ReplyError, ID: msg.ID, Error: err.Error()}
	}
	return reply
}

func (s *IngestServer) dispatch(ctx context.Context, msg *InboundMessage) (any, error) {
	ack := AckReply{Type: ReplyAck, ID: msg.ID}
	switch msg.Type {
	case MsgBlockBroken:
		if _, err := s.recorder.OnBlockBroken(ctx, msg.Time, *msg.Block, *msg.Actor); err != nil {
			return nil, err
		}
		return ack, nil

	case MsgBlockSettled:
		retracted, err := s.recorder.Settle(ctx, msg.Time, *msg.Block)
		if err != nil {
			return nil, err
		}
		ack.Retracted = &retracted
		return ack, nil

	case MsgBlockPlaced:
		if err := s.recorder.OnBlockPlaced(ctx, msg.Time, *msg.Block, *msg.Actor); err != nil {
			return nil, err
		}
		return ack, nil

	case MsgBlockExploded:
		logged, err := s.recorder.OnExplosion(ctx, msg.Time, msg.Blocks, *msg.Actor)
		if err != nil {
			return nil, err
		}
		ack.Logged = &logged
		return ack, nil

	case MsgEntityDied:
		killer := core.NoActor()
		if msg.Actor != nil {
			killer = *msg.Actor
		}
		s.recorder.OnEntityDied(ctx, msg.Time, msg.EntityTypeID, *msg.Location, killer)
		return ack, nil

	case MsgPlayerSpawn:
		if err := s.recorder.OnPlayerSpawn(ctx, msg.PlayerID, msg.Name); err != nil {
			return nil, err
		}
		return ack, nil

	case MsgInspect:
		events, err := s.recorder.Inspect(ctx, *msg.Block, msg.Query.toQuery())
		if err != nil {
			return nil, err
		}
		if events == nil {
			events = []core.Event{}
		}
		return RecordsReply{Type: ReplyRecords, ID: msg.ID, Records: events}, nil

	case MsgUsage:
		info, err := s.engine.StorageUsage(ctx)
		if err != nil {
			return nil, err
		}
		_, limit, _, err := kv.BudgetUsage(ctx, s.engine.Store())
		if err != nil {
			return nil, err
		}
		return UsageReply{Type: ReplyUsage, ID: msg.ID, Usage: info, Human: info.String(), MaxBytes: limit}, nil
	}
	// The schema admits only the types above.
	return nil, errors.New("unhandled message type " + msg.Type)
}
