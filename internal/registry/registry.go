package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"ragdesk/pkg/domain"
)

// DocumentRecord is the registry's view of one ingested document.
type DocumentRecord struct {
	ID          string
	Filename    string
	ContentHash string
}

type session struct {
	createdAt    time.Time
	lastAccessed time.Time
	messages     []domain.Message
}

// Registry tracks document metadata and chat sessions in memory.
// All maps are guarded by a single mutex; the registry is rebuilt from
// vector-store metadata at startup and bounded by the configured
// ceilings.
type Registry struct {
	mu sync.RWMutex

	maxDocuments int
	maxSessions  int
	maxMessages  int
	now          func() time.Time

	documents map[string]DocumentRecord
	hashes    map[string]string // content hash -> document id
	order     []string          // document ids in insertion order
	sessions  map[string]*session
}

// New constructs an empty registry. Non-positive ceilings disable the
// corresponding bound.
func New(maxDocuments, maxSessions, maxMessages int) *Registry {
	return &Registry{
		maxDocuments: maxDocuments,
		maxSessions:  maxSessions,
		maxMessages:  maxMessages,
		now:          time.Now,
		documents:    make(map[string]DocumentRecord),
		hashes:       make(map[string]string),
		sessions:     make(map[string]*session),
	}
}

// HasHash reports whether content with this hash is already registered.
func (r *Registry) HasHash(hash string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.hashes[hash]
	return ok
}

// RegisterDocument records document metadata, keeping the document and
// content-hash maps consistent. When the document ceiling is exceeded
// the first-inserted document is evicted and returned so the caller can
// delete its chunks from the vector store as well.
func (r *Registry) RegisterDocument(id, filename, contentHash string) []DocumentRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.documents[id]; !exists {
		r.order = append(r.order, id)
	}
	r.documents[id] = DocumentRecord{ID: id, Filename: filename, ContentHash: contentHash}
	r.hashes[contentHash] = id

	var evicted []DocumentRecord
	for r.maxDocuments > 0 && len(r.documents) > r.maxDocuments && len(r.order) > 0 {
		oldestID := r.order[0]
		r.order = r.order[1:]
		record, ok := r.documents[oldestID]
		if !ok {
			continue
		}
		delete(r.documents, oldestID)
		delete(r.hashes, record.ContentHash)
		evicted = append(evicted, record)
	}
	return evicted
}

// Document looks up a registered document by id.
func (r *Registry) Document(id string) (DocumentRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.documents[id]
	return record, ok
}

// RemoveDocument deletes a document's registry entries.
func (r *Registry) RemoveDocument(id string) (DocumentRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.documents[id]
	if !ok {
		return DocumentRecord{}, false
	}
	delete(r.documents, id)
	delete(r.hashes, record.ContentHash)
	filtered := r.order[:0]
	for _, item := range r.order {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	r.order = filtered
	return record, true
}

// Documents returns registered documents in insertion order.
func (r *Registry) Documents() []DocumentRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]DocumentRecord, 0, len(r.order))
	for _, id := range r.order {
		if record, ok := r.documents[id]; ok {
			res = append(res, record)
		}
	}
	return res
}

// CreateSession registers a new session and returns its id.
func (r *Registry) CreateSession() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.NewString()
	now := r.now()
	r.sessions[id] = &session{createdAt: now, lastAccessed: now}
	r.evictSessionsLocked()
	return id
}

// History returns a session's messages in order and marks it accessed.
// Unknown sessions yield an empty history without creating one.
func (r *Registry) History(id string) []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return []domain.Message{}
	}
	sess.lastAccessed = r.now()
	out := make([]domain.Message, len(sess.messages))
	copy(out, sess.messages)
	return out
}

// AppendMessage adds a message to a session, creating the session when
// the id is unknown. History beyond the message ceiling drops oldest.
func (r *Registry) AppendMessage(id, role, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	sess, ok := r.sessions[id]
	if !ok {
		sess = &session{createdAt: now, lastAccessed: now}
		r.sessions[id] = sess
		r.evictSessionsLocked()
	}
	sess.lastAccessed = now
	sess.messages = append(sess.messages, domain.Message{Role: role, Content: content})
	if r.maxMessages > 0 && len(sess.messages) > r.maxMessages {
		sess.messages = sess.messages[len(sess.messages)-r.maxMessages:]
	}
}

// ClearHistory empties a session's messages. Unknown ids are a no-op.
func (r *Registry) ClearHistory(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return
	}
	sess.messages = nil
	sess.lastAccessed = r.now()
}

// Sessions lists all sessions sorted by last access, most recent first.
func (r *Registry) Sessions() []domain.SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]domain.SessionInfo, 0, len(r.sessions))
	for id, sess := range r.sessions {
		res = append(res, domain.SessionInfo{
			SessionID:    id,
			CreatedAt:    sess.createdAt,
			LastAccessed: sess.lastAccessed,
			MessageCount: len(sess.messages),
		})
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].LastAccessed.After(res[j].LastAccessed)
	})
	return res
}

// evictSessionsLocked drops least-recently-accessed sessions beyond the
// ceiling. Caller holds the write lock.
func (r *Registry) evictSessionsLocked() {
	for r.maxSessions > 0 && len(r.sessions) > r.maxSessions {
		var oldestID string
		var oldest time.Time
		for id, sess := range r.sessions {
			if oldestID == "" || sess.lastAccessed.Before(oldest) {
				oldestID = id
				oldest = sess.lastAccessed
			}
		}
		if oldestID == "" {
			return
		}
		delete(r.sessions, oldestID)
	}
}
