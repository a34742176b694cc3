package app

import (
	"context"
	"net/http"
	"reviewlens/internal/cache"
	"reviewlens/internal/config"
	"reviewlens/internal/logger"
	"reviewlens/internal/observability"
	"reviewlens/internal/repository"
	"reviewlens/internal/service"
	"reviewlens/internal/transport/rest"
	"reviewlens/internal/transport/ws"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// App holds the wired repositories, caches and services of the server
type App struct {
	Config *config.Config
	Log    *logger.Logger

	FactorRepo   repository.FactorRepo
	QuestionRepo repository.QuestionRepo
	ReviewRepo   repository.ReviewRepo
	ReportRepo   repository.ReportRepo
	SessionRepo  repository.SessionRepo

	SessionCache  cache.SessionCache
	TaxonomyCache cache.TaxonomyCache

	Auth     *service.AuthService
	Taxonomy *service.TaxonomyService
	Corpus   *service.CorpusService
	Reports  *service.ReportService
	Summary  *service.SummaryService
	Chat     *service.ChatService
	Hub      *ws.Hub
	Metrics  *observability.Metrics

	stopEvictor context.CancelFunc
}

// New wires the application over an open database. rdb may be nil, in
// which case sessions and taxonomies are not cached.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, db *mongo.Database, rdb *redis.Client) (*App, error) {
	log = logger.OrNop(log)
	a := &App{
		Config:       cfg,
		Log:          log,
		FactorRepo:   repository.NewFactorRepo(db),
		QuestionRepo: repository.NewQuestionRepo(db),
		ReviewRepo:   repository.NewReviewRepo(db),
		ReportRepo:   repository.NewReportRepo(db),
		SessionRepo:  repository.NewSessionRepo(db),
	}
	if rdb != nil {
		a.SessionCache = cache.NewSessionCache(rdb, cfg.SessionTTL)
		a.TaxonomyCache = cache.NewTaxonomyCache(rdb, cfg.TaxonomyTTL)
	}

	summary, err := service.NewSummaryService(ctx, cfg.AI, log.With("component", "summary"))
	if err != nil {
		return nil, err
	}
	a.Summary = summary

	a.Metrics = observability.GlobalMetrics()
	opts := service.ChatOptions{
		Policy:   cfg.DialoguePolicy(),
		Evidence: cfg.Evidence,
		Metrics:  a.Metrics,
		IdleTTL:  cfg.IdleTTL(),
	}
	if summary.IsEnabled() {
		opts.Summarizer = summary
		log.Info("ai summaries enabled", "model", cfg.AI.Model)
	} else {
		log.Info("ai summaries disabled, using template summaries")
	}

	a.Auth = service.NewAuthService(cfg.JWTSecret, cfg.AdminUsername, cfg.AdminPassword)
	a.Taxonomy = service.NewTaxonomyService(a.FactorRepo, a.QuestionRepo, a.TaxonomyCache, log)
	a.Corpus = service.NewCorpusService(a.ReviewRepo, cfg.ReviewLimit, log)
	a.Reports = service.NewReportService(a.ReportRepo)
	a.Chat = service.NewChatService(a.Taxonomy, a.Corpus, a.Reports, a.Auth, a.SessionCache, a.SessionRepo, opts, log)

	a.Hub = ws.NewHub(log.With("component", "ws"))
	a.Chat.SetBroadcaster(a.Hub)

	if opts.IdleTTL > 0 {
		evictCtx, cancel := context.WithCancel(context.Background())
		a.stopEvictor = cancel
		go a.Chat.RunEvictor(evictCtx, evictInterval(opts.IdleTTL))
	}
	return a, nil
}

// evictInterval checks a few times per idle period, at most once every
// ten seconds
func evictInterval(idle time.Duration) time.Duration {
	return max(idle/4, 10*time.Second)
}

// Router builds the HTTP handler for the wired services
func (a *App) Router() http.Handler {
	return rest.NewRouter(&rest.Container{
		AuthService:     a.Auth,
		ChatService:     a.Chat,
		TaxonomyService: a.Taxonomy,
		CorpusService:   a.Corpus,
		ReportService:   a.Reports,
		WSHub:           a.Hub,
		CORSOrigins:     a.Config.CORSOrigins,
		Logger:          a.Log,
		Metrics:         a.Metrics,
	})
}

// Close stops the idle session evictor and the websocket hub
func (a *App) Close() {
	if a.stopEvictor != nil {
		a.stopEvictor()
	}
	if a.Hub != nil {
		a.Hub.Close()
	}
}
