// Package server exposes the linking, sync, presentation, and webhook
// operations over HTTP. Handlers translate wire payloads into service calls
// and map fault kinds onto status codes; no business rules live here.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/NovaLinkLabs/memberlink/backend/internal/account"
	"github.com/NovaLinkLabs/memberlink/backend/internal/auth"
	"github.com/NovaLinkLabs/memberlink/backend/internal/extract"
	"github.com/NovaLinkLabs/memberlink/backend/internal/fault"
	"github.com/NovaLinkLabs/memberlink/backend/internal/identity"
	"github.com/NovaLinkLabs/memberlink/backend/internal/ledger"
	"github.com/NovaLinkLabs/memberlink/backend/internal/linking"
	"github.com/NovaLinkLabs/memberlink/backend/internal/notify"
	"github.com/NovaLinkLabs/memberlink/backend/internal/presentation"
	"github.com/NovaLinkLabs/memberlink/backend/internal/syncing"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const subjectContextKey = "memberlink_subject"

var (
	errMissingTokenManager = errors.New("token manager dependency required")
	errMissingIdentities   = errors.New("identity service dependency required")
	errMissingResolver     = errors.New("linking resolver dependency required")
	errMissingReconciler   = errors.New("sync reconciler dependency required")
	errMissingPresenter    = errors.New("presentation service dependency required")
	errMissingLedger       = errors.New("ledger service dependency required")
)

// TokenManager exchanges bootstrap credentials and validates bearer tokens.
type TokenManager interface {
	Exchange(ctx context.Context, clientID, clientSecret string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// Dependencies wires the HTTP surface to the services behind it.
type Dependencies struct {
	TokenManager TokenManager
	Identities   *identity.Service
	Resolver     *linking.Resolver
	Reconciler   *syncing.Reconciler
	Presenter    *presentation.Service
	Ledger       *ledger.Service
	Notifier     notify.Gateway
	Logger       *zap.Logger
}

// NewHTTPHandler builds the gin handler with all routes registered.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Identities == nil {
		return nil, errMissingIdentities
	}
	if deps.Resolver == nil {
		return nil, errMissingResolver
	}
	if deps.Reconciler == nil {
		return nil, errMissingReconciler
	}
	if deps.Presenter == nil {
		return nil, errMissingPresenter
	}
	if deps.Ledger == nil {
		return nil, errMissingLedger
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.NewNopGateway()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Webhook-Secret"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:     deps.TokenManager,
		requests:   auth.NewRequestValidator(deps.TokenManager),
		identities: deps.Identities,
		resolver:   deps.Resolver,
		reconciler: deps.Reconciler,
		presenter:  deps.Presenter,
		ledger:     deps.Ledger,
		notifier:   notifier,
		logger:     logger,
	}

	router.POST("/auth/token", handler.handleTokenExchange)
	router.POST("/webhook/transactions", handler.handleWebhookTransaction)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/link", handler.handleLink)
	protected.POST("/link/sessions/:session_id/complete", handler.handleCompleteSession)
	protected.POST("/sync", handler.handleSync)
	protected.GET("/identities/:identity_id/balance", handler.handleBalance)

	return router, nil
}

type httpHandler struct {
	tokens     TokenManager
	requests   *auth.RequestValidator
	identities *identity.Service
	resolver   *linking.Resolver
	reconciler *syncing.Reconciler
	presenter  *presentation.Service
	ledger     *ledger.Service
	notifier   notify.Gateway
	logger     *zap.Logger
}

type tokenRequestPayload struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type tokenResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleTokenExchange(c *gin.Context) {
	var request tokenRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.ClientID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	token, expiresIn, err := h.tokens.Exchange(c.Request.Context(), request.ClientID, request.ClientSecret)
	if err != nil {
		h.logger.Warn("credential exchange failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.JSON(http.StatusOK, tokenResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

// observedPayload is the wire form of partially observed account data. Absent
// fields stay nil and leave stored columns untouched.
type observedPayload struct {
	Username   string   `json:"username"`
	FirstName  *string  `json:"first_name"`
	LastName   *string  `json:"last_name"`
	Available  *float64 `json:"available"`
	Credit     *float64 `json:"credit"`
	BetCredit  *float64 `json:"bet_credit"`
	Tier       *string  `json:"tier"`
	Points     *int64   `json:"points"`
	Phone      *string  `json:"phone"`
	BankName   *string  `json:"bank_name"`
	BankNumber *string  `json:"bank_number"`
	Active     *bool    `json:"active"`
}

func (p *observedPayload) toObserved() *account.Observed {
	if p == nil {
		return nil
	}
	observed := &account.Observed{
		Username:   p.Username,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		Available:  p.Available,
		Credit:     p.Credit,
		BetCredit:  p.BetCredit,
		Points:     p.Points,
		Phone:      p.Phone,
		BankName:   p.BankName,
		BankNumber: p.BankNumber,
		Active:     p.Active,
	}
	if p.Tier != nil {
		tier := account.Tier(*p.Tier)
		observed.Tier = &tier
	}
	return observed
}

type profilePayload struct {
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
	Locale      string `json:"locale"`
}

type linkRequestPayload struct {
	IdentityID  string           `json:"identity_id"`
	Strategy    string           `json:"strategy"`
	Username    string           `json:"username"`
	DisplayName string           `json:"display_name"`
	Payload     *observedPayload `json:"payload"`
	Raw         string           `json:"raw"`
	Profile     *profilePayload  `json:"profile"`
}

func (h *httpHandler) handleLink(c *gin.Context) {
	var request linkRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	strategy, err := linking.ParseMethod(request.Strategy)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_strategy"})
		return
	}
	if !h.observeIdentity(c, request.IdentityID, request.Profile) {
		return
	}

	payload := request.Payload.toObserved()
	if payload == nil && request.Raw != "" {
		if candidate, ok := extract.Parse(request.Raw); ok {
			payload = &candidate.Data
		}
	}

	result, err := h.resolver.Resolve(c.Request.Context(), linking.LinkRequest{
		IdentityID:  request.IdentityID,
		Strategy:    strategy,
		Username:    request.Username,
		DisplayName: request.DisplayName,
		Payload:     payload,
	})
	if err != nil {
		h.renderFault(c, err)
		return
	}
	h.renderLinkResult(c, request.IdentityID, result)
}

type completeSessionPayload struct {
	IdentityID string           `json:"identity_id"`
	Payload    *observedPayload `json:"payload"`
	Raw        string           `json:"raw"`
}

func (h *httpHandler) handleCompleteSession(c *gin.Context) {
	var request completeSessionPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	payload := request.Payload.toObserved()
	if payload == nil && request.Raw != "" {
		if candidate, ok := extract.Parse(request.Raw); ok {
			payload = &candidate.Data
		}
	}
	if payload == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_payload"})
		return
	}

	result, err := h.resolver.CompleteSession(c.Request.Context(), c.Param("session_id"), request.IdentityID, *payload)
	if err != nil {
		h.renderFault(c, err)
		return
	}
	h.renderLinkResult(c, request.IdentityID, result)
}

type linkResponsePayload struct {
	Status    string `json:"status"`
	Username  string `json:"username,omitempty"`
	Method    string `json:"method,omitempty"`
	Conflict  string `json:"conflict,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

func (h *httpHandler) renderLinkResult(c *gin.Context, identityID string, result linking.LinkResult) {
	response := linkResponsePayload{Status: string(result.Status), Conflict: string(result.Conflict)}
	if result.Account != nil {
		response.Username = result.Account.Username
	}
	if result.Link != nil {
		response.Method = string(result.Link.Method)
	}
	if result.Session != nil {
		response.SessionID = result.Session.SessionID
		response.ExpiresAt = result.Session.ExpiresAt.UTC().Format(time.RFC3339)
	}

	switch result.Status {
	case linking.StatusLinked:
		h.logger.Info("link established",
			zap.String("identity_id", identityID),
			zap.String("username", response.Username),
			zap.String("subject", c.GetString(subjectContextKey)),
		)
		h.push(c.Request.Context(), identityID, notify.LinkSuccessCard(response.Username, response.Method))
		c.JSON(http.StatusOK, response)
	case linking.StatusPendingSession:
		c.JSON(http.StatusAccepted, response)
	case linking.StatusConflict:
		c.JSON(http.StatusConflict, response)
	case linking.StatusNotFound, linking.StatusNoMatch:
		c.JSON(http.StatusNotFound, response)
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unknown_outcome"})
	}
}

type syncRequestPayload struct {
	IdentityID string           `json:"identity_id"`
	Force      bool             `json:"force"`
	Source     string           `json:"source"`
	Data       *observedPayload `json:"data"`
	Raw        string           `json:"raw"`
	Profile    *profilePayload  `json:"profile"`
}

type syncResponsePayload struct {
	Status        string   `json:"status"`
	Username      string   `json:"username"`
	Balance       float64  `json:"balance"`
	Tier          string   `json:"tier"`
	ChangedFields []string `json:"changed_fields,omitempty"`
	TransactionID string   `json:"transaction_id,omitempty"`
}

func (h *httpHandler) handleSync(c *gin.Context) {
	var request syncRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if !h.observeIdentity(c, request.IdentityID, request.Profile) {
		return
	}

	data := request.Data.toObserved()
	if data == nil && request.Raw != "" {
		if candidate, ok := extract.Parse(request.Raw); ok {
			data = &candidate.Data
		}
	}
	if data == nil {
		data = &account.Observed{}
	}

	result, err := h.reconciler.Reconcile(c.Request.Context(), request.IdentityID, *data, syncing.Options{
		Force:  request.Force,
		Source: request.Source,
	})
	if err != nil {
		h.renderFault(c, err)
		return
	}

	response := syncResponsePayload{
		Status:        string(result.Status),
		Username:      result.Account.Username,
		Balance:       result.Account.Balance,
		Tier:          string(result.Account.Tier),
		ChangedFields: result.ChangedFields,
	}
	if result.BalanceTransaction != nil {
		response.TransactionID = result.BalanceTransaction.TransactionID
	}
	c.JSON(http.StatusOK, response)
}

type balanceResponsePayload struct {
	Status          string  `json:"status"`
	Username        string  `json:"username"`
	Balance         float64 `json:"balance"`
	BalanceDisplay  string  `json:"balance_display"`
	Tier            string  `json:"tier"`
	NextTier        string  `json:"next_tier,omitempty"`
	Points          int64   `json:"points"`
	ProgressPercent int     `json:"progress_percentage"`
	LastSync        string  `json:"last_sync"`
	RecentCount     int     `json:"recent_count"`
}

func (h *httpHandler) handleBalance(c *gin.Context) {
	identityID := c.Param("identity_id")

	view, err := h.presenter.Present(c.Request.Context(), identityID)
	if err != nil {
		if errors.Is(err, presentation.ErrNotLinked) {
			h.push(c.Request.Context(), identityID, notify.NotLinkedCard())
			c.JSON(http.StatusNotFound, gin.H{"status": "notLinked"})
			return
		}
		h.renderFault(c, err)
		return
	}

	h.push(c.Request.Context(), identityID, notify.BalanceCard(view))
	c.JSON(http.StatusOK, balanceResponsePayload{
		Status:          "linked",
		Username:        view.Username,
		Balance:         view.Balance,
		BalanceDisplay:  view.BalanceDisplay,
		Tier:            string(view.Tier),
		NextTier:        view.NextTier,
		Points:          view.Points,
		ProgressPercent: view.ProgressPercent,
		LastSync:        view.LastSyncDisplay,
		RecentCount:     len(view.Recent),
	})
}

type webhookRequestPayload struct {
	Username string         `json:"username"`
	Type     string         `json:"type"`
	Amount   float64        `json:"amount"`
	Source   string         `json:"source"`
	Detail   map[string]any `json:"detail"`
}

type webhookResponsePayload struct {
	TransactionID string  `json:"transaction_id"`
	BalanceAfter  float64 `json:"balance_after"`
}

func (h *httpHandler) handleWebhookTransaction(c *gin.Context) {
	var request webhookRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	txn, err := h.ledger.Record(c.Request.Context(), c.GetHeader("X-Webhook-Secret"), ledger.Entry{
		Username: request.Username,
		Type:     request.Type,
		Amount:   request.Amount,
		Source:   request.Source,
		Detail:   request.Detail,
	})
	if err != nil {
		h.renderFault(c, err)
		return
	}

	c.JSON(http.StatusCreated, webhookResponsePayload{
		TransactionID: txn.TransactionID,
		BalanceAfter:  txn.BalanceAfter,
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	subject, err := h.requests.ValidateRequest(c.Request)
	if err != nil {
		if !errors.Is(err, auth.ErrMissingBearerToken) && !errors.Is(err, auth.ErrMalformedBearer) {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(subjectContextKey, subject)
	c.Next()
}

// observeIdentity records the caller-supplied profile before the operation so
// the identity row exists when the services lock it. Returns false after
// rendering an error response.
func (h *httpHandler) observeIdentity(c *gin.Context, identityID string, profile *profilePayload) bool {
	observed := identity.Profile{ExternalID: identityID}
	if profile != nil {
		observed.DisplayName = profile.DisplayName
		observed.AvatarURL = profile.AvatarURL
		observed.Locale = profile.Locale
	}
	if _, err := h.identities.Observe(c.Request.Context(), observed); err != nil {
		h.renderFault(c, err)
		return false
	}
	return true
}

func (h *httpHandler) renderFault(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch fault.KindOf(err) {
	case fault.KindValidation:
		status = http.StatusBadRequest
	case fault.KindUnauthorized:
		status = http.StatusUnauthorized
	case fault.KindNotFound:
		status = http.StatusNotFound
	case fault.KindConflict:
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("operation failed", zap.Error(err))
	}

	code := "internal_error"
	var typed *fault.Error
	if errors.As(err, &typed) {
		code = typed.Code()
	}
	c.JSON(status, gin.H{"error": code})
}

// push delivers a card without letting delivery problems affect the response.
func (h *httpHandler) push(ctx context.Context, identityID string, message notify.Message) {
	if err := h.notifier.Push(ctx, identityID, message); err != nil {
		h.logger.Warn("notification push failed", zap.String("identity_id", identityID), zap.Error(err))
	}
}
