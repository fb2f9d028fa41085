package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pinboardly/pinboardly/internal/auth"
	"github.com/pinboardly/pinboardly/internal/billing"
	"github.com/pinboardly/pinboardly/internal/board"
	"github.com/pinboardly/pinboardly/internal/content"
	"github.com/pinboardly/pinboardly/internal/pinboard"
)

const ownerOrgContextKey = "pinboardly_owner_org"

// webhookSignatureHeader carries the processor's payload signature.
const webhookSignatureHeader = "Pinboardly-Signature"

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingTenantResolver   = errors.New("tenant resolver dependency required")
	errMissingPinboardService  = errors.New("pinboard service dependency required")
	errMissingContentService   = errors.New("content service dependency required")
	errMissingBoardService     = errors.New("board service dependency required")
	errMissingWebhookVerifier  = errors.New("webhook verifier dependency required")
	errMissingCheckoutGateway  = errors.New("checkout gateway dependency required")
	errMissingMarkdownRenderer = errors.New("markdown renderer dependency required")
)

// SessionAuthenticator validates a session cookie into provider claims.
type SessionAuthenticator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// TenantResolver maps session claims to the owning organisation.
type TenantResolver interface {
	ResolveOwnerOrg(claims auth.SessionClaims) (string, error)
}

// WebhookVerifier checks processor webhook payload signatures.
type WebhookVerifier interface {
	Verify(payload []byte, header string) error
}

// CheckoutGateway creates hosted checkout and billing-portal sessions.
type CheckoutGateway interface {
	CreateSession(ctx context.Context, params billing.CheckoutParams) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// MarkdownRenderer converts note bodies to HTML for the public page.
type MarkdownRenderer interface {
	Render(source string) (string, error)
}

// CheckoutURLs carries the redirect targets passed to the processor.
type CheckoutURLs struct {
	SuccessURL string
	CancelURL  string
}

// Dependencies wires the HTTP layer to the services behind it.
type Dependencies struct {
	SessionValidator SessionAuthenticator
	TenantResolver   TenantResolver
	PinboardService  *pinboard.Service
	ContentService   *content.Service
	BoardService     *board.Service
	WebhookVerifier  WebhookVerifier
	CheckoutGateway  CheckoutGateway
	Markdown         MarkdownRenderer
	CheckoutURLs     CheckoutURLs
	Logger           *zap.Logger
	Clock            func() time.Time
}

// NewHTTPHandler assembles the gin router for the Pinboardly API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.TenantResolver == nil {
		return nil, errMissingTenantResolver
	}
	if deps.PinboardService == nil {
		return nil, errMissingPinboardService
	}
	if deps.ContentService == nil {
		return nil, errMissingContentService
	}
	if deps.BoardService == nil {
		return nil, errMissingBoardService
	}
	if deps.WebhookVerifier == nil {
		return nil, errMissingWebhookVerifier
	}
	if deps.CheckoutGateway == nil {
		return nil, errMissingCheckoutGateway
	}
	if deps.Markdown == nil {
		return nil, errMissingMarkdownRenderer
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		sessions:     deps.SessionValidator,
		tenants:      deps.TenantResolver,
		pinboards:    deps.PinboardService,
		contents:     deps.ContentService,
		boards:       deps.BoardService,
		webhooks:     deps.WebhookVerifier,
		checkout:     deps.CheckoutGateway,
		markdown:     deps.Markdown,
		checkoutURLs: deps.CheckoutURLs,
		logger:       logger,
		clock:        clock,
	}

	router.GET("/p/:slug", handler.handlePublicPage)
	router.POST("/billing/webhook", handler.handleBillingWebhook)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/pinboards", handler.handleListPinboards)
	protected.POST("/pinboards/checkout", handler.handleCreateCheckout)
	protected.POST("/pinboards/:id/billing-portal", handler.handleBillingPortal)
	protected.POST("/pinboards/:id/remove", handler.handleRemovePinboard)
	protected.POST("/pinboards/:id/restore", handler.handleRestorePinboard)
	protected.GET("/pinboards/:id/items", handler.handleListItems)
	protected.POST("/pinboards/:id/items", handler.handleCreateItem)
	protected.POST("/pinboards/:id/items/:kind/reorder", handler.handleReorderItems)
	protected.PUT("/items/:kind/:id", handler.handleUpdateItem)
	protected.DELETE("/items/:kind/:id", handler.handleDeleteItem)
	protected.POST("/boards", handler.handleCreateBoard)
	protected.GET("/boards/:id/pins", handler.handleListPins)
	protected.POST("/boards/:id/pins", handler.handleAppendPin)
	protected.POST("/pins/:id/move", handler.handleMovePin)
	protected.DELETE("/pins/:id", handler.handleDeletePin)

	return router, nil
}

type httpHandler struct {
	sessions     SessionAuthenticator
	tenants      TenantResolver
	pinboards    *pinboard.Service
	contents     *content.Service
	boards       *board.Service
	webhooks     WebhookVerifier
	checkout     CheckoutGateway
	markdown     MarkdownRenderer
	checkoutURLs CheckoutURLs
	logger       *zap.Logger
	clock        func() time.Time
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not_authenticated"})
		return
	}
	ownerOrg, err := h.tenants.ResolveOwnerOrg(claims)
	if err != nil {
		h.logger.Warn("tenant resolution failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not_authenticated"})
		return
	}
	c.Set(ownerOrgContextKey, ownerOrg)
	c.Next()
}

func (h *httpHandler) ownerOrg(c *gin.Context) (pinboard.OwnerID, bool) {
	raw := c.GetString(ownerOrgContextKey)
	owner, err := pinboard.NewOwnerID(raw)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not_authenticated"})
		return "", false
	}
	return owner, true
}

// renderError maps known service failures to statuses and stable error
// codes. Upstream details are logged server-side, never returned.
func (h *httpHandler) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, content.ErrCapacityExceeded):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "collection_at_capacity"})
	case errors.Is(err, content.ErrNotReorderable):
		c.JSON(http.StatusBadRequest, gin.H{"error": "events_not_reorderable"})
	case errors.Is(err, content.ErrValidation),
		errors.Is(err, pinboard.ErrInvalidSlug),
		errors.Is(err, pinboard.ErrInvalidTitle),
		errors.Is(err, board.ErrInvalidTitle),
		errors.Is(err, board.ErrInvalidDirection):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
	case errors.Is(err, content.ErrNotFound),
		errors.Is(err, pinboard.ErrNotFound),
		errors.Is(err, board.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, pinboard.ErrSlugTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "slug_taken"})
	case errors.Is(err, pinboard.ErrNotRemoved):
		c.JSON(http.StatusConflict, gin.H{"error": "not_removed"})
	case errors.Is(err, pinboard.ErrRestoreWindowClosed):
		c.JSON(http.StatusConflict, gin.H{"error": "restore_window_closed"})
	case errors.Is(err, billing.ErrCheckoutUpstream):
		h.logger.Error("billing upstream failure", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "billing_unavailable"})
	default:
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "something_went_wrong"})
	}
}
