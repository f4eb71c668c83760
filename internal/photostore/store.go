// Package photostore holds recently captured photos in bounded in-memory
// structures so the pipeline can attach vision context to a query without a
// round trip to durable storage, optionally backed by a Backend (local disk,
// S3, or both tiered) for durability across restarts.
package photostore

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/session-engine/internal/hardware"
)

// DefaultRecentsCap is the size of the always-available recents ring (K).
const DefaultRecentsCap = 3

// DefaultLookupCap is the size of the by-request-ID LRU lookup map (K_map).
const DefaultLookupCap = 8

// Photo is one captured image plus the metadata the pipeline and HTTP
// surface need.
type Photo struct {
	RequestID string
	UserID    string
	Bytes     []byte
	MimeType  string
	Filename  string
	CapturedAt time.Time
}

// Store holds a per-user bounded history of captured photos.
type Store struct {
	mu         sync.Mutex
	recentsCap int
	lookupCap  int
	backend    Backend
	log        zerolog.Logger

	recents map[string][]Photo       // userID -> ring, newest last
	lookup  map[string]*list.Element // requestID -> LRU element
	lru     *list.List               // list.Element.Value = Photo
	nextID  uint64
}

// Options configures a new Store.
type Options struct {
	RecentsCap int // defaults to DefaultRecentsCap
	LookupCap  int // defaults to DefaultLookupCap
	Backend    Backend
	Log        zerolog.Logger
}

// New constructs an empty photo Store.
func New(opts Options) *Store {
	rc := opts.RecentsCap
	if rc <= 0 {
		rc = DefaultRecentsCap
	}
	lc := opts.LookupCap
	if lc <= 0 {
		lc = DefaultLookupCap
	}
	return &Store{
		recentsCap: rc,
		lookupCap:  lc,
		backend:    opts.Backend,
		log:        opts.Log.With().Str("component", "photostore").Logger(),
		recents:    make(map[string][]Photo),
		lookup:     make(map[string]*list.Element),
		lru:        list.New(),
	}
}

// Capture invokes the device's CapturePhoto, stores the result, and returns
// it. A nil session is a configuration error the caller should have already
// ruled out via Capabilities().HasCamera.
func (s *Store) Capture(ctx context.Context, userID string, sess hardware.Session) (Photo, error) {
	if sess == nil {
		return Photo{}, fmt.Errorf("photostore: no hardware session for user %s", userID)
	}
	result, err := sess.CapturePhoto(ctx)
	if err != nil {
		return Photo{}, fmt.Errorf("capture photo: %w", err)
	}

	s.mu.Lock()
	s.nextID++
	reqID := fmt.Sprintf("%s-%d", userID, s.nextID)
	s.mu.Unlock()

	p := Photo{
		RequestID:  reqID,
		UserID:     userID,
		Bytes:      result.Bytes,
		MimeType:   result.MimeType,
		Filename:   result.Filename,
		CapturedAt: time.Now(),
	}
	s.store(p)

	if s.backend != nil {
		go func() {
			bgCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.backend.Save(bgCtx, reqID, p.Bytes, p.MimeType); err != nil {
				s.log.Warn().Err(err).Str("request_id", reqID).Msg("durable photo save failed")
			}
		}()
	}
	return p, nil
}

func (s *Store) store(p Photo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ring := append(s.recents[p.UserID], p)
	if len(ring) > s.recentsCap {
		ring = ring[len(ring)-s.recentsCap:]
	}
	s.recents[p.UserID] = ring

	if el, ok := s.lookup[p.RequestID]; ok {
		s.lru.Remove(el)
	}
	el := s.lru.PushFront(p)
	s.lookup[p.RequestID] = el
	for s.lru.Len() > s.lookupCap {
		oldest := s.lru.Back()
		if oldest == nil {
			break
		}
		op := oldest.Value.(Photo)
		delete(s.lookup, op.RequestID)
		s.lru.Remove(oldest)
	}
}

// Latest returns the most recently captured photo for userID, if any.
func (s *Store) Latest(userID string) (Photo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ring := s.recents[userID]
	if len(ring) == 0 {
		return Photo{}, false
	}
	return ring[len(ring)-1], true
}

// ContextBytes returns up to the full recents ring for userID: the newest
// photo first, followed by up to K-1 previous photos in recency order, for
// attaching as vision context to a query. The ring is stored oldest-first
// internally (newest last), so this reverses it.
func (s *Store) ContextBytes(userID string) []Photo {
	s.mu.Lock()
	defer s.mu.Unlock()
	ring := s.recents[userID]
	out := make([]Photo, len(ring))
	for i, p := range ring {
		out[len(ring)-1-i] = p
	}
	return out
}

// Lookup returns a previously captured photo by request ID, checking the
// in-memory LRU first and falling back to the durable backend (if any) on a
// miss, caching the hydrated entry back into the LRU on success.
func (s *Store) Lookup(ctx context.Context, requestID string) (Photo, bool) {
	s.mu.Lock()
	if el, ok := s.lookup[requestID]; ok {
		s.lru.MoveToFront(el)
		p := el.Value.(Photo)
		s.mu.Unlock()
		return p, true
	}
	s.mu.Unlock()

	if s.backend == nil {
		return Photo{}, false
	}
	r, err := s.backend.Open(ctx, requestID)
	if err != nil {
		return Photo{}, false
	}
	defer r.Close()
	data := make([]byte, 0, 1<<20)
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
		}
		if err != nil {
			break
		}
	}
	p := Photo{RequestID: requestID, Bytes: data}
	s.mu.Lock()
	el := s.lru.PushFront(p)
	s.lookup[requestID] = el
	for s.lru.Len() > s.lookupCap {
		oldest := s.lru.Back()
		if oldest == nil {
			break
		}
		op := oldest.Value.(Photo)
		delete(s.lookup, op.RequestID)
		s.lru.Remove(oldest)
	}
	s.mu.Unlock()
	return p, true
}

// ClearUser drops userID's recents ring. Entries already in the
// by-request-ID lookup LRU stay until newer entries evict them, and the
// durable backend, if any, is left untouched — pruning old blobs is out of
// scope.
func (s *Store) ClearUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recents, userID)
}
