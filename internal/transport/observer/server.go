package observer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"bonsai.sim/internal/observerproto"
	"bonsai.sim/internal/sim/voxel"
	"bonsai.sim/internal/sim/world"
)

type Server struct {
	cfg world.Config
	log *log.Logger

	// AllowRemote lifts the loopback-only restriction.
	AllowRemote bool

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu       sync.Mutex
	sessions map[string]*session

	latest atomic.Pointer[world.Snapshot]
	grids  gridCache
}

type outMsg struct {
	kind int
	b    []byte
}

type session struct {
	id  string
	out chan outMsg

	mu       sync.Mutex
	sub      observerproto.SubscribeMsg
	gridSent string
}

func NewServer(cfg world.Config, logger *log.Logger) *Server {
	return &Server{
		cfg:      cfg,
		log:      logger,
		sessions: map[string]*session{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Run fans snapshots out to the connected sessions until ctx is done or snaps is closed.
func (s *Server) Run(ctx context.Context, snaps <-chan world.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			s.latest.Store(&snap)
			s.broadcast(snap)
		}
	}
}

// Sessions returns the number of connected observers.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Latest returns the most recent snapshot the server has seen.
func (s *Server) Latest() (world.Snapshot, bool) {
	p := s.latest.Load()
	if p == nil {
		return world.Snapshot{}, false
	}
	return *p, true
}

type frameKey struct {
	enc       string
	maxCells  int
	statsOnly bool
	withGrid  bool
}

func (s *Server) broadcast(snap world.Snapshot) {
	s.mu.Lock()
	list := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		list = append(list, sess)
	}
	s.mu.Unlock()

	// Sessions with identical settings share one encoded frame.
	cache := map[frameKey][]byte{}
	for _, sess := range list {
		s.deliver(sess, snap, cache)
	}
}

func (s *Server) deliver(sess *session, snap world.Snapshot, cache map[frameKey][]byte) {
	sess.mu.Lock()
	sub := sess.sub
	gridSent := sess.gridSent
	sess.mu.Unlock()

	if every := uint64(sub.EveryTicks); every > 1 && snap.Stats.Tick%every != 0 {
		return
	}

	digest := hex.EncodeToString(snap.GridDigest[:])
	key := frameKey{enc: sub.Encoding, maxCells: sub.MaxCells, statsOnly: sub.StatsOnly}
	key.withGrid = !sub.StatsOnly && gridSent != digest && snap.Grid != nil

	b, ok := cache[key]
	if !ok {
		frame := FrameFromSnapshot(snap, sub.MaxCells, sub.StatsOnly)
		if key.withGrid {
			g, err := s.grids.get(snap)
			if err != nil {
				s.log.Printf("observer: pack grid: %v", err)
				return
			}
			frame.Grid = g
		}
		var err error
		b, err = Marshal(frame, sub.Encoding)
		if err != nil {
			s.log.Printf("observer: marshal frame: %v", err)
			return
		}
		cache[key] = b
	}

	kind := websocket.TextMessage
	if sub.Encoding == observerproto.EncodingMsgpack {
		kind = websocket.BinaryMessage
	}
	select {
	case sess.out <- outMsg{kind: kind, b: b}:
		if key.withGrid {
			sess.mu.Lock()
			sess.gridSent = digest
			sess.mu.Unlock()
		}
	default:
		// Slow client: drop the frame, the next one supersedes it.
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.AllowRemote && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			WorldID:         s.cfg.ID,
			WorldParams: observerproto.WorldParams{
				TickRateHz:  s.cfg.TickRateHz,
				Size:        [3]int{s.cfg.Size.X, s.cfg.Size.Y, s.cfg.Size.Z},
				Gravity:     s.cfg.Gravity,
				Dissipation: s.cfg.Dissipation,
			},
			BlockPalette: voxel.Palette(),
		}
		if snap := s.latest.Load(); snap != nil {
			resp.Tick = snap.Tick
			resp.Population = snap.Stats.Population
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.AllowRemote && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := parseSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sess := &session{
			id:  fmt.Sprintf("O%d", s.nextID.Add(1)),
			out: make(chan outMsg, 8),
			sub: sub,
		}
		s.mu.Lock()
		s.sessions[sess.id] = sess
		s.mu.Unlock()
		s.log.Printf("observer %s connected from %s encoding=%s", sess.id, r.RemoteAddr, sub.Encoding)
		defer func() {
			s.mu.Lock()
			delete(s.sessions, sess.id)
			s.mu.Unlock()
			s.log.Printf("observer %s disconnected", sess.id)
		}()

		// Catch the new session up with the latest snapshot.
		if snap := s.latest.Load(); snap != nil {
			s.deliver(sess, *snap, map[frameKey][]byte{})
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case m := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(m.kind, m.b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			sub, ok := parseSubscribe(msg)
			if !ok {
				continue
			}
			sess.mu.Lock()
			if sub.Encoding != sess.sub.Encoding {
				sess.gridSent = ""
			}
			sess.sub = sub
			sess.mu.Unlock()
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func parseSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
		return sub, false
	}
	normalizeSubscribe(&sub)
	return sub, true
}

func normalizeSubscribe(sub *observerproto.SubscribeMsg) {
	if sub.Encoding != observerproto.EncodingMsgpack {
		sub.Encoding = observerproto.EncodingJSON
	}
	if sub.EveryTicks <= 0 {
		sub.EveryTicks = 1
	}
	if sub.EveryTicks > 1000 {
		sub.EveryTicks = 1000
	}
	if sub.MaxCells <= 0 {
		sub.MaxCells = 50_000
	}
	if sub.MaxCells > 1_000_000 {
		sub.MaxCells = 1_000_000
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
