package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/service"
)

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
	logger      *slog.Logger
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService, logger *slog.Logger) *AuthHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandlers{
		authService: authService,
		logger:      logger,
	}
}

// chainParam accepts a chain name or a numeric EVM chain id
type chainParam core.ChainID

func (p *chainParam) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Errorf("chain must be a string or a number")
	}

	chain, err := core.ParseChainID(s)
	if err != nil {
		return err
	}
	*p = chainParam(chain)
	return nil
}

type challengeRequest struct {
	Address  string     `json:"address" binding:"required"`
	Chain    chainParam `json:"chain" binding:"required"`
	Provider string     `json:"provider" binding:"required"`
}

type challengeResponse struct {
	Message   string    `json:"message"`
	Nonce     string    `json:"nonce"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Domain    string    `json:"domain"`
}

type verifyRequest struct {
	Address   string     `json:"address" binding:"required"`
	Chain     chainParam `json:"chain" binding:"required"`
	Signature string     `json:"signature" binding:"required"`
	Message   string     `json:"message" binding:"required"`
	Nonce     string     `json:"nonce"`
	Provider  string     `json:"provider"`
}

func (r verifyRequest) toService() (service.VerifyRequest, error) {
	req := service.VerifyRequest{
		Address:   r.Address,
		Chain:     core.ChainID(r.Chain),
		Signature: r.Signature,
		Message:   r.Message,
		Nonce:     r.Nonce,
	}
	if r.Provider != "" {
		provider, err := core.ParseProviderID(r.Provider)
		if err != nil {
			return req, err
		}
		req.Provider = provider
	}
	return req, nil
}

type linkRequest struct {
	verifyRequest
	Label     string `json:"label"`
	IsPrimary bool   `json:"isPrimary"`
}

type completeProfileRequest struct {
	Username       string `json:"username" binding:"required"`
	FullName       string `json:"fullName"`
	AgreeToTerms   bool   `json:"agreeToTerms"`
	AgreeToPrivacy bool   `json:"agreeToPrivacy"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

var errorStatus = map[string]int{
	"challenge_expired":        http.StatusUnauthorized,
	"nonce_consumed":           http.StatusConflict,
	"challenge_not_found":      http.StatusUnauthorized,
	"invalid_signature":        http.StatusUnauthorized,
	"address_mismatch":         http.StatusBadRequest,
	"chain_mismatch":           http.StatusBadRequest,
	"provider_mismatch":        http.StatusBadRequest,
	"message_mismatch":         http.StatusBadRequest,
	"invalid_address":          http.StatusBadRequest,
	"unsupported_chain":        http.StatusBadRequest,
	"unsupported_provider":     http.StatusBadRequest,
	"invalid_challenge":        http.StatusBadRequest,
	"user_not_found":           http.StatusNotFound,
	"invalid_username":         http.StatusBadRequest,
	"username_taken":           http.StatusConflict,
	"terms_not_accepted":       http.StatusBadRequest,
	"profile_already_complete": http.StatusConflict,
	"profile_pending":          http.StatusForbidden,
	"wallet_not_found":         http.StatusNotFound,
	"wallet_linked_elsewhere":  http.StatusConflict,
	"last_wallet":              http.StatusConflict,
	"token_expired":            http.StatusUnauthorized,
	"token_invalidated":        http.StatusUnauthorized,
	"invalid_token":            http.StatusUnauthorized,
}

// writeError maps err to its status and API error code
func (h *AuthHandlers) writeError(c *gin.Context, err error) {
	code := core.Code(err)
	status, ok := errorStatus[code]
	if !ok {
		status = http.StatusInternalServerError
		h.logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": code})
}

func badRequest(c *gin.Context, err error) {
	code := "invalid_request"
	if errors.Is(err, core.ErrUnsupportedChain) {
		code = core.Code(err)
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": code})
}

// Challenge handles the challenge request
func (h *AuthHandlers) Challenge(c *gin.Context) {
	var req challengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	provider, err := core.ParseProviderID(req.Provider)
	if err != nil {
		h.writeError(c, err)
		return
	}

	challenge, err := h.authService.Challenge(c.Request.Context(), req.Address, core.ChainID(req.Chain), provider)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, challengeResponse{
		Message:   challenge.Message,
		Nonce:     challenge.Nonce,
		IssuedAt:  challenge.IssuedAt,
		ExpiresAt: challenge.ExpiresAt,
		Domain:    challenge.Domain,
	})
}

// Verify handles a signed challenge
func (h *AuthHandlers) Verify(c *gin.Context) {
	var body verifyRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	req, err := body.toService()
	if err != nil {
		h.writeError(c, err)
		return
	}

	result, err := h.authService.Verify(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// CompleteProfile finishes onboarding for a pending session
func (h *AuthHandlers) CompleteProfile(c *gin.Context) {
	var req completeProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.authService.CompleteProfile(c.Request.Context(), sessionFrom(c), core.ProfileUpdate{
		Username:       req.Username,
		FullName:       req.FullName,
		AgreeToTerms:   req.AgreeToTerms,
		AgreeToPrivacy: req.AgreeToPrivacy,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ConnectedWallets lists the caller's wallets
func (h *AuthHandlers) ConnectedWallets(c *gin.Context) {
	wallets, err := h.authService.ConnectedWallets(c.Request.Context(), sessionFrom(c).UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, wallets)
}

// LinkWallet attaches another proven wallet to the caller
func (h *AuthHandlers) LinkWallet(c *gin.Context) {
	var body linkRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	req, err := body.toService()
	if err != nil {
		h.writeError(c, err)
		return
	}

	wallet, err := h.authService.LinkWallet(c.Request.Context(), sessionFrom(c).UserID, service.LinkRequest{
		VerifyRequest: req,
		Label:         body.Label,
		IsPrimary:     body.IsPrimary,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, wallet)
}

// UnlinkWallet removes one of the caller's wallets
func (h *AuthHandlers) UnlinkWallet(c *gin.Context) {
	var chain core.ChainID
	if raw := c.Query("chain"); raw != "" {
		parsed, err := core.ParseChainID(raw)
		if err != nil {
			h.writeError(c, err)
			return
		}
		chain = parsed
	}

	err := h.authService.UnlinkWallet(c.Request.Context(), sessionFrom(c).UserID, c.Param("address"), chain)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Wallet unlinked"})
}

// Refresh handles token refresh
func (h *AuthHandlers) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	tokens, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, tokens)
}

// Logout handles session logout
func (h *AuthHandlers) Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	// Access token is optional - we only need refresh token to invalidate the session
	if err := h.authService.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		// An expired token cannot be used anyway
		if errors.Is(err, core.ErrTokenExpired) {
			c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
			return
		}
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me returns information about the authenticated user
func (h *AuthHandlers) Me(c *gin.Context) {
	session := sessionFrom(c)

	user, err := h.authService.Me(c.Request.Context(), session)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":           user,
		"profilePending": !user.ProfileCompleted,
		"wallet": core.WalletRef{
			Address:  session.Address,
			Chain:    session.Chain,
			Provider: session.Provider,
		},
	})
}

// AuthorizeTrading answers for sessions allowed to trade. Pending profiles
// are stopped by RequireCompleteProfile before reaching it.
func (h *AuthHandlers) AuthorizeTrading(c *gin.Context) {
	session := sessionFrom(c)

	c.JSON(http.StatusOK, gin.H{
		"authorized": true,
		"userId":     session.UserID,
		"address":    session.Address,
	})
}

// Health reports liveness
func (h *AuthHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
