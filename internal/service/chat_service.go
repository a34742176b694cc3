package service

import (
	"context"
	"errors"
	"fmt"
	"reviewlens/internal/cache"
	"reviewlens/internal/dialogue"
	"reviewlens/internal/evidence"
	"reviewlens/internal/logger"
	"reviewlens/internal/model"
	"reviewlens/internal/observability"
	"reviewlens/internal/repository"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyMessage    = errors.New("message must not be empty")
	ErrEmptyCategory   = errors.New("category must not be empty")
	ErrFactorNotFound  = errors.New("factor not found")
)

// ChatOptions tune every session the service starts
type ChatOptions struct {
	Policy     dialogue.Policy
	Evidence   evidence.Options
	Summarizer dialogue.Summarizer
	Metrics    *observability.Metrics

	// IdleTTL is how long an untouched session stays in memory. Zero keeps
	// sessions until they are finalized or deleted.
	IdleTTL time.Duration
}

// StartRequest opens a dialogue for a product category
type StartRequest struct {
	Category    string `json:"category"`
	ProductID   string `json:"productId,omitempty"`
	ProductName string `json:"productName,omitempty"`
}

// StartResponse is returned when a session opens
type StartResponse struct {
	SessionID     string `json:"sessionId"`
	Token         string `json:"token"`
	Message       string `json:"message"`
	Category      string `json:"category"`
	CategoryLabel string `json:"categoryLabel"`
	FactorCount   int    `json:"factorCount"`
	ReviewCount   int    `json:"reviewCount"`
}

// activeSession is a live dialogue with the metadata needed to persist it.
// mu is held from a turn until its snapshot is written, so stores never see
// an older turn after a newer one.
type activeSession struct {
	mu        sync.Mutex
	session   *dialogue.Session
	productID string
	createdAt time.Time
	saved     bool // last persist reached every store
	deleted   bool

	lastUsed atomic.Int64 // unix nanos
}

func (a *activeSession) touch(now time.Time) {
	a.lastUsed.Store(now.UnixNano())
}

// ChatService owns the live dialogue sessions. Finalized and idle sessions
// are evicted from memory once saved and restored from Redis, then Mongo.
type ChatService struct {
	mu       sync.RWMutex
	sessions map[string]*activeSession

	taxonomy     *TaxonomyService
	corpus       *CorpusService
	reports      *ReportService
	auth         *AuthService
	sessionCache cache.SessionCache
	sessionRepo  repository.SessionRepo
	opts         ChatOptions
	metrics      *observability.Metrics
	broadcaster  Broadcaster
	log          *logger.Logger
}

// NewChatService creates a new chat service. sessionCache and sessionRepo
// may be nil.
func NewChatService(
	taxonomy *TaxonomyService,
	corpus *CorpusService,
	reports *ReportService,
	auth *AuthService,
	sessionCache cache.SessionCache,
	sessionRepo repository.SessionRepo,
	opts ChatOptions,
	log *logger.Logger,
) *ChatService {
	return &ChatService{
		sessions:     make(map[string]*activeSession),
		taxonomy:     taxonomy,
		corpus:       corpus,
		reports:      reports,
		auth:         auth,
		sessionCache: sessionCache,
		sessionRepo:  sessionRepo,
		opts:         opts,
		metrics:      opts.Metrics,
		log:          logger.OrNop(log),
	}
}

// SetBroadcaster injects the websocket hub
func (s *ChatService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// Start opens a new session for a category
func (s *ChatService) Start(ctx context.Context, req StartRequest) (*StartResponse, error) {
	req.Category = strings.TrimSpace(req.Category)
	if req.Category == "" {
		return nil, ErrEmptyCategory
	}
	ctx, span := observability.StartSpan(ctx, "chat.start", "category", req.Category)
	defer span.End()

	id := uuid.New().String()
	cfg, err := s.sessionConfig(ctx, id, req.Category, req.ProductID, req.ProductName)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	active := &activeSession{
		session:   dialogue.New(cfg),
		productID: req.ProductID,
		createdAt: time.Now().UTC(),
	}
	active.touch(active.createdAt)

	token, err := s.auth.GenerateSessionToken(id, req.Category)
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}

	active.mu.Lock()
	s.mu.Lock()
	s.sessions[id] = active
	s.mu.Unlock()
	s.persist(ctx, id, active)
	active.mu.Unlock()
	s.metrics.SessionStarted(ctx, req.Category)

	s.log.Info("session started", "session", id, "category", req.Category,
		"factors", len(cfg.Factors), "questions", len(cfg.Questions), "reviews", len(cfg.Reviews))

	product := req.ProductName
	if product == "" {
		product = "this " + model.CategoryLabel(req.Category)
	}
	return &StartResponse{
		SessionID:     id,
		Token:         token,
		Message:       fmt.Sprintf("Let's talk about %s. What worries you about buying it?", product),
		Category:      req.Category,
		CategoryLabel: model.CategoryLabel(req.Category),
		FactorCount:   len(cfg.Factors),
		ReviewCount:   len(cfg.Reviews),
	}, nil
}

// Step runs one user turn
func (s *ChatService) Step(ctx context.Context, sessionID, message, selectedFactor string) (*model.BotTurn, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}
	ctx, span := observability.StartSpan(ctx, "chat.step", "session", sessionID)
	defer span.End()

	active, err := s.get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	active.mu.Lock()
	defer active.mu.Unlock()
	if active.deleted {
		return nil, ErrSessionNotFound
	}

	turn, err := active.session.Step(ctx, message, selectedFactor)
	if err != nil {
		return nil, err
	}
	category := active.session.Category()
	s.metrics.TurnProcessed(ctx, category, turn.IsFinal)

	s.persist(ctx, sessionID, active)
	if turn.IsFinal {
		s.metrics.SessionCompleted(ctx, category, observability.CompletedAuto)
		s.saveReport(ctx, sessionID, active, turn.Analysis)
	}
	s.broadcast(sessionID, "bot_turn", turn)
	if turn.IsFinal {
		s.evictSaved(sessionID, active)
	}
	return turn, nil
}

// Finalize ends a session and stores its report
func (s *ChatService) Finalize(ctx context.Context, sessionID string) (*model.BotTurn, error) {
	ctx, span := observability.StartSpan(ctx, "chat.finalize", "session", sessionID)
	defer span.End()

	active, err := s.get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	active.mu.Lock()
	defer active.mu.Unlock()
	if active.deleted {
		return nil, ErrSessionNotFound
	}

	wasActive := active.session.Status() == model.SessionActive
	turn := active.session.Finalize(ctx)
	if wasActive {
		s.metrics.SessionCompleted(ctx, active.session.Category(), observability.CompletedExplicit)
	}

	s.persist(ctx, sessionID, active)
	s.saveReport(ctx, sessionID, active, turn.Analysis)
	s.broadcast(sessionID, "session_finalized", turn)
	s.evictSaved(sessionID, active)
	return turn, nil
}

// State returns the persisted view of a session
func (s *ChatService) State(ctx context.Context, sessionID string) (*model.SessionRecord, error) {
	active, err := s.get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	active.mu.Lock()
	defer active.mu.Unlock()
	return s.record(sessionID, active), nil
}

// Related lists corpus reviews mentioning one factor of the session
func (s *ChatService) Related(ctx context.Context, sessionID, factorKey string, limit int) (*model.RelatedReviews, error) {
	active, err := s.get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}
	related, ok := active.session.Related(factorKey, limit)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFactorNotFound, factorKey)
	}
	return related, nil
}

// Delete forgets a session everywhere
func (s *ChatService) Delete(ctx context.Context, sessionID string) error {
	active, err := s.get(ctx, sessionID)
	if err != nil {
		return err
	}
	active.mu.Lock()
	defer active.mu.Unlock()
	active.deleted = true

	s.mu.Lock()
	if s.sessions[sessionID] == active {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()

	if s.sessionCache != nil {
		if err := s.sessionCache.Delete(ctx, sessionID); err != nil {
			s.log.Warn("session cache delete failed", "session", sessionID, "error", err)
		}
	}
	if s.sessionRepo != nil {
		if err := s.sessionRepo.Delete(ctx, sessionID); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
	}
	if s.broadcaster != nil {
		s.broadcaster.DisconnectSession(sessionID)
	}
	s.log.Info("session deleted", "session", sessionID)
	return nil
}

// get returns a live session, restoring it from the cache or the database
// when it is not in memory
func (s *ChatService) get(ctx context.Context, sessionID string) (*activeSession, error) {
	s.mu.RLock()
	active, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		active.touch(time.Now())
		return active, nil
	}

	rec, err := s.lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrSessionNotFound
	}

	cfg, err := s.sessionConfig(ctx, rec.ID, rec.Category, rec.ProductID, rec.ProductName)
	if err != nil {
		return nil, err
	}
	restored := &activeSession{
		session:   dialogue.Restore(cfg, rec.State),
		productID: rec.ProductID,
		createdAt: rec.CreatedAt,
		saved:     true,
	}
	restored.touch(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	// another request may have restored it meanwhile
	if existing, ok := s.sessions[sessionID]; ok {
		existing.touch(time.Now())
		return existing, nil
	}
	s.sessions[sessionID] = restored
	s.log.Info("session restored", "session", sessionID, "turn", rec.State.TurnCount)
	return restored, nil
}

func (s *ChatService) lookup(ctx context.Context, sessionID string) (*model.SessionRecord, error) {
	if s.sessionCache != nil {
		rec, err := s.sessionCache.Get(ctx, sessionID)
		if err != nil {
			s.log.Warn("session cache read failed", "session", sessionID, "error", err)
		} else if rec != nil {
			return rec, nil
		}
	}
	if s.sessionRepo != nil {
		rec, err := s.sessionRepo.GetByID(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("load session: %w", err)
		}
		return rec, nil
	}
	return nil, nil
}

// sessionConfig loads the taxonomy and corpus of a category in parallel
func (s *ChatService) sessionConfig(ctx context.Context, id, category, productID, productName string) (dialogue.Config, error) {
	var (
		tax     *model.Taxonomy
		reviews []model.Review
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tax, err = s.taxonomy.Get(gctx, category)
		return err
	})
	g.Go(func() error {
		var err error
		reviews, err = s.corpus.Load(gctx, category, productID)
		return err
	})
	if err := g.Wait(); err != nil {
		return dialogue.Config{}, err
	}
	if len(tax.Factors) == 0 {
		s.log.Warn("category has no factors, only fallback questions will be asked", "category", category)
	}

	return dialogue.Config{
		ID:          id,
		Category:    category,
		ProductName: productName,
		Factors:     tax.Factors,
		Questions:   tax.Questions,
		Reviews:     reviews,
		Policy:      s.opts.Policy,
		Evidence:    s.opts.Evidence,
		Summarizer:  s.opts.Summarizer,
		Logger:      s.log,
		Metrics:     s.metrics,
	}, nil
}

func (s *ChatService) record(sessionID string, active *activeSession) *model.SessionRecord {
	return &model.SessionRecord{
		ID:          sessionID,
		Category:    active.session.Category(),
		ProductID:   active.productID,
		ProductName: active.session.ProductName(),
		State:       active.session.Snapshot(),
		CreatedAt:   active.createdAt,
		UpdatedAt:   time.Now().UTC(),
	}
}

// persist writes the session to the cache and the database. Failures are
// logged; the in-memory session stays authoritative and is not evicted.
// Callers hold active.mu.
func (s *ChatService) persist(ctx context.Context, sessionID string, active *activeSession) {
	rec := s.record(sessionID, active)
	active.saved = s.durable()
	if s.sessionCache != nil {
		if err := s.sessionCache.Set(ctx, rec); err != nil {
			active.saved = false
			s.log.Warn("session cache write failed", "session", sessionID, "error", err)
		}
	}
	if s.sessionRepo != nil {
		if err := s.sessionRepo.Save(ctx, rec); err != nil {
			active.saved = false
			s.log.Warn("session save failed", "session", sessionID, "error", err)
		}
	}
}

// durable reports whether an evicted session can be restored
func (s *ChatService) durable() bool {
	return s.sessionCache != nil || s.sessionRepo != nil
}

// evictSaved drops a session from memory if its last snapshot was stored.
// Callers hold active.mu.
func (s *ChatService) evictSaved(sessionID string, active *activeSession) {
	if !active.saved {
		return
	}
	s.mu.Lock()
	if s.sessions[sessionID] == active {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()
	s.log.Debug("session evicted", "session", sessionID)
}

// ActiveSessions returns how many sessions are held in memory
func (s *ChatService) ActiveSessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// EvictIdle drops saved sessions not used since now minus IdleTTL. Sessions
// in the middle of a turn are skipped. It returns how many were dropped.
func (s *ChatService) EvictIdle(now time.Time) int {
	if s.opts.IdleTTL <= 0 || !s.durable() {
		return 0
	}
	cutoff := now.Add(-s.opts.IdleTTL).UnixNano()

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, active := range s.sessions {
		if active.lastUsed.Load() > cutoff || !active.mu.TryLock() {
			continue
		}
		if active.saved {
			delete(s.sessions, id)
			n++
		}
		active.mu.Unlock()
	}
	if n > 0 {
		s.log.Info("idle sessions evicted", "count", n, "remaining", len(s.sessions))
	}
	return n
}

// RunEvictor calls EvictIdle every interval until ctx is done
func (s *ChatService) RunEvictor(ctx context.Context, interval time.Duration) {
	if s.opts.IdleTTL <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.EvictIdle(now)
		}
	}
}

func (s *ChatService) saveReport(ctx context.Context, sessionID string, active *activeSession, analysis *model.Analysis) {
	if s.reports == nil || analysis == nil {
		return
	}
	if _, err := s.reports.Save(ctx, s.record(sessionID, active), analysis); err != nil {
		s.log.Error("report save failed", "session", sessionID, "error", err)
	}
}

func (s *ChatService) broadcast(sessionID, msgType string, payload interface{}) {
	if s.broadcaster != nil {
		s.broadcaster.BroadcastToSession(sessionID, msgType, payload)
	}
}
