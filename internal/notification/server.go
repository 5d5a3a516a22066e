package notification

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/notifly/internal/notification/blueprint"
	"github.com/nao1215/notifly/internal/notification/dispatcher"
	"github.com/nao1215/notifly/internal/notification/ledger"
	"github.com/nao1215/notifly/internal/notification/metrics"
	"github.com/nao1215/notifly/internal/notification/sender"
	"github.com/nao1215/notifly/internal/notification/template"
	"github.com/nao1215/notifly/pkg/middleware"
	"go.uber.org/zap"
)

// Deps はHTTPサーバーが利用するコンポーネント。
type Deps struct {
	Blueprints      *blueprint.Store
	Automations     *blueprint.Registry
	Ledger          *ledger.Ledger
	Dispatcher      *dispatcher.Dispatcher
	Transports      *sender.TransportStore
	TransportConfig *sender.TransportConfig
	Metrics         *metrics.Metrics
	Logger          *zap.Logger
}

// ServerConfig はHTTPサーバーの設定。
type ServerConfig struct {
	// JWTSecret は管理APIのJWT検証に使う共有鍵。
	JWTSecret string
	// CORSAllowedOrigins は管理APIへのアクセスを許可するオリジン。
	CORSAllowedOrigins []string
	// TrackingFallbackURL はクリック計測でリダイレクト先が使えない場合の遷移先。
	TrackingFallbackURL string
}

// Server は通知サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	cfg    ServerConfig

	blueprints      *blueprint.Store
	automations     *blueprint.Registry
	ledger          *ledger.Ledger
	dispatcher      *dispatcher.Dispatcher
	transports      *sender.TransportStore
	transportConfig *sender.TransportConfig
	metrics         *metrics.Metrics
	logger          *zap.Logger
}

// NewServer は新しい通知サーバーを生成し、ルーティングを設定する。
func NewServer(deps Deps, cfg ServerConfig) *Server {
	router := gin.New()
	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.Logger(deps.Logger, "/tracking-pixel/:id", "/metrics", "/health"))
	router.Use(deps.Metrics.Middleware())
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	s := &Server{
		router:          router,
		cfg:             cfg,
		blueprints:      deps.Blueprints,
		automations:     deps.Automations,
		ledger:          deps.Ledger,
		dispatcher:      deps.Dispatcher,
		transports:      deps.Transports,
		transportConfig: deps.TransportConfig,
		metrics:         deps.Metrics,
		logger:          deps.Logger,
	}
	s.setupRoutes()
	return s
}

// Handler はHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// 開封・クリック計測はメールクライアントから直接呼ばれるため認証しない
	s.router.GET("/tracking-pixel/:id", s.handleTrackingPixel())
	s.router.GET("/tracking-click/:id", s.handleTrackingClick())

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "notification"})
	})
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := s.router.Group("/api/v1")
	api.Use(middleware.JWTAuth(s.cfg.JWTSecret))
	{
		blueprints := api.Group("/blueprints")
		{
			blueprints.POST("", s.handleCreateBlueprint())
			blueprints.GET("", s.handleListBlueprints())
			blueprints.GET("/options", s.handleBlueprintOptions())
			blueprints.GET("/options/promotion", s.handlePromotionOptions())
			blueprints.GET("/:idOrName", s.handleGetBlueprint())
			blueprints.PUT("/:id", s.handleUpdateBlueprint())
			blueprints.DELETE("/:id", s.handleDeleteBlueprint())
		}

		automations := api.Group("/automations")
		{
			automations.PUT("/resource/:resource", s.handleUpsertAutomation())
			automations.POST("/with-blueprint", s.handleCreateAutomationWithBlueprint())
			automations.GET("", s.handleListAutomations())
			automations.GET("/resource-options", s.handleResourceOptions())
			automations.GET("/automation-options/:resource", s.handleAutomationOptions())
			automations.GET("/placeholders/:resource", s.handlePlaceholders())
			automations.GET("/resolve/:resource", s.handleResolveAutomation())
			automations.GET("/:id", s.handleGetAutomation())
			automations.DELETE("/:id", s.handleDeleteAutomation())
		}

		dispatch := api.Group("/dispatch")
		{
			dispatch.POST("/draft", s.handleDispatch(s.dispatcher.Draft))
			dispatch.POST("/schedule", s.handleDispatch(s.dispatcher.Schedule))
			dispatch.POST("/send", s.handleDispatch(s.dispatcher.Send))
			dispatch.POST("/drafts/send", s.handleSendDrafts())
		}

		records := api.Group("/dispatch-records")
		{
			records.GET("", s.handleListRecords())
			records.GET("/resource/:resourceId", s.handleListRecordsByResource())
			records.GET("/stats/:email", s.handleEngagementStats())
			records.GET("/:id", s.handleGetRecord())
			records.PUT("/resend/:id", s.handleRecordOp(s.dispatcher.Resend))
			records.PUT("/:id/cancel", s.handleRecordOp(s.dispatcher.Cancel))
			records.PUT("/:id/pause", s.handleRecordOp(s.dispatcher.Pause))
			records.PUT("/:id/resume", s.handleRecordOp(s.dispatcher.Resume))
			records.DELETE("/:id", s.handleDeleteRecord())
		}

		transports := api.Group("/transports")
		{
			transports.GET("", s.handleListTransports())
			transports.GET("/options", s.handleTransportOptions())
			transports.POST("", s.handleCreateTransport())
			transports.DELETE("/:id", s.handleDeleteTransport())
			transports.PUT("/:id/default", s.handleSetDefaultTransport())
		}

		api.POST("/events", s.handleEvent())
	}
}

// respondError はエラーの種類に応じたステータスコードでエラーレスポンスを返す。
// 想定外のエラーは詳細をログにのみ出力し、クライアントにはfallbackのメッセージを返す。
func (s *Server) respondError(c *gin.Context, err error, fallback string) {
	var missing *template.MissingPlaceholdersError
	switch {
	case errors.Is(err, blueprint.ErrNotFound),
		errors.Is(err, blueprint.ErrAutomationNotFound),
		errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, sender.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, blueprint.ErrConflict),
		errors.Is(err, sender.ErrConflict),
		errors.Is(err, ledger.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, blueprint.ErrInvalid),
		errors.Is(err, ledger.ErrInvalid),
		errors.Is(err, sender.ErrInvalid),
		errors.Is(err, template.ErrCircularReference),
		errors.As(err, &missing):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.logger.Error(fallback,
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

// queryInt はクエリパラメータを整数として読む。未指定の場合はdef。
func queryInt(c *gin.Context, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New(key + " は整数で指定してください")
	}
	return n, nil
}
