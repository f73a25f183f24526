package server

import (
	"net/http"
	"strings"

	paymentdomain "github.com/bazaarhq/paygate/internal/payment/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type createPaymentRequest struct {
	OrderID      string   `json:"order_id"`
	UserID       string   `json:"user_id"`
	Amount       int64    `json:"amount"`
	Currency     string   `json:"currency"`
	Gateway      string   `json:"gateway"`
	Description  string   `json:"description"`
	PayerContact string   `json:"payer_contact"`
	Roles        []string `json:"roles"`
	CompanyID    string   `json:"company_id"`
	MultiParty   bool     `json:"multi_party"`
}

type createRefundRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

func (s *Server) CreatePayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.BindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	tx, redirectURL, err := s.orchestrator.Initiate(c.Request.Context(), paymentdomain.InitiateOrder{
		OrderID:      req.OrderID,
		UserID:       req.UserID,
		Amount:       req.Amount,
		Currency:     req.Currency,
		Gateway:      paymentdomain.Gateway(req.Gateway),
		Description:  req.Description,
		PayerContact: req.PayerContact,
		Roles:        req.Roles,
		CompanyID:    req.CompanyID,
		MultiParty:   req.MultiParty,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"transaction":  tx,
		"redirect_url": redirectURL,
	})
}

func (s *Server) GetPayment(c *gin.Context) {
	id, ok := s.paymentID(c)
	if !ok {
		return
	}

	tx, refunds, err := s.orchestrator.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transaction": tx,
		"refunds":     refunds,
	})
}

func (s *Server) CreateRefund(c *gin.Context) {
	id, ok := s.paymentID(c)
	if !ok {
		return
	}

	var req createRefundRequest
	if err := c.BindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	refund, err := s.orchestrator.Refund(c.Request.Context(), id, req.Amount, req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"refund": refund})
}

func (s *Server) paymentID(c *gin.Context) (snowflake.ID, bool) {
	raw := strings.TrimSpace(c.Param("id"))
	if raw == "" {
		AbortWithError(c, ErrNotFound)
		return 0, false
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return 0, false
	}
	return id, true
}
