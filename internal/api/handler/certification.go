package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/verichain/internal/certledger"
	"github.com/jmerrifield20/verichain/internal/identity"
	"github.com/jmerrifield20/verichain/internal/service"
	"go.uber.org/zap"
)

const (
	msgAnalyzeFailed = "Failed to analyze image. Please try again with a different image."
	msgCertifyFailed = "Failed to certify product. Please try again."
	msgInternal      = "Internal server error"
)

// CertificationHandler serves the analyze, certify, history and health endpoints.
type CertificationHandler struct {
	svc    *service.CertificationService
	tokens *identity.TokenIssuer // nil = POST /certify is open
	logger *zap.Logger
}

// NewCertificationHandler creates a new CertificationHandler.
// tokens may be nil to leave POST /certify unauthenticated.
func NewCertificationHandler(svc *service.CertificationService, tokens *identity.TokenIssuer, logger *zap.Logger) *CertificationHandler {
	return &CertificationHandler{svc: svc, tokens: tokens, logger: logger}
}

// requireCertifyScope returns the operator token middleware when auth is
// configured, or a no-op middleware for open mode.
func (h *CertificationHandler) requireCertifyScope() gin.HandlerFunc {
	if h.tokens == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return identity.RequireScope(h.tokens, identity.ScopeCertify)
}

// Register mounts the certification routes.
func (h *CertificationHandler) Register(r gin.IRoutes) {
	r.POST("/analyze", h.Analyze)
	r.POST("/certify", h.requireCertifyScope(), h.Certify)
	r.GET("/history", h.History)
	r.GET("/health", h.Health)
	r.GET("/certifications/:txHash", h.GetCertification)
}

// Analyze handles POST /analyze. It fingerprints and classifies an uploaded image.
func (h *CertificationHandler) Analyze(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		switch {
		case isBodyTooLarge(err):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
		case hasEmptyFileField(c):
			c.JSON(http.StatusBadRequest, gin.H{"error": "No file selected"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		}
		return
	}
	if fh.Filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file selected"})
		return
	}

	f, err := fh.Open()
	if err != nil {
		h.logger.Error("open upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgAnalyzeFailed})
		return
	}
	defer f.Close()

	image, err := io.ReadAll(f)
	if err != nil {
		h.logger.Error("read upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgAnalyzeFailed})
		return
	}

	analysis, err := h.svc.Analyze(c.Request.Context(), image)
	if err != nil {
		h.logger.Error("analyze image",
			zap.String("filename", fh.Filename),
			zap.Int("bytes", len(image)),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgAnalyzeFailed})
		return
	}

	c.JSON(http.StatusOK, analysis)
}

// isBodyTooLarge reports whether err came from the BodyLimit reader.
func isBodyTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return true
	}
	// Some multipart paths flatten the error.
	return strings.Contains(err.Error(), "request body too large")
}

// hasEmptyFileField reports whether the form carried a "file" part without a
// filename, which the multipart reader stores as a plain value.
func hasEmptyFileField(c *gin.Context) bool {
	_, ok := c.GetPostForm("file")
	return ok
}

// Certify handles POST /certify.
func (h *CertificationHandler) Certify(c *gin.Context) {
	var req certledger.CertifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	rec, err := h.svc.Certify(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, certledger.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("certify product", zap.String("product_id", req.ProductID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgCertifyFailed})
		return
	}

	if claims := identity.ClaimsFromCtx(c); claims != nil {
		h.logger.Info("certification authorised",
			zap.String("operator", claims.Subject),
			zap.String("tx_hash", rec.TxHash),
		)
	}

	c.JSON(http.StatusOK, rec)
}

// History handles GET /history: the ten most recent certifications, newest first.
func (h *CertificationHandler) History(c *gin.Context) {
	recs, err := h.svc.History(c.Request.Context())
	if err != nil {
		h.logger.Error("certification history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternal})
		return
	}
	c.JSON(http.StatusOK, recs)
}

// Health handles GET /health.
func (h *CertificationHandler) Health(c *gin.Context) {
	st, err := h.svc.Health(c.Request.Context())
	if err != nil {
		h.logger.Error("health status", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternal})
		return
	}

	status := "healthy"
	if !st.ClassifierLoaded {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":                 status,
		"modelLoaded":            st.ClassifierLoaded,
		"timestamp":              st.Timestamp,
		"totalCertifications":    st.TotalCertifications,
		"lifetimeCertifications": st.LifetimeCertifications,
	})
}

// GetCertification handles GET /certifications/:txHash.
func (h *CertificationHandler) GetCertification(c *gin.Context) {
	rec, err := h.svc.Certification(c.Request.Context(), c.Param("txHash"))
	if err != nil {
		if errors.Is(err, certledger.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "certification not found"})
			return
		}
		h.logger.Error("get certification", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternal})
		return
	}
	c.JSON(http.StatusOK, rec)
}
