package controller

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/itish2003/docrag/logging"
	"github.com/itish2003/docrag/models"
	"github.com/itish2003/docrag/services"
)

// Uploader ingests one uploaded file.
type Uploader interface {
	IngestUpload(ctx context.Context, name string, r io.Reader) (*services.IngestResult, error)
}

// RAGController handles the HTTP requests for the RAG API. It depends on the
// ingest and answer services to do the actual work.
type RAGController struct {
	uploader   Uploader
	ragService services.RAGService
	maxUpload  int64
	log        *logrus.Entry
}

// NewRAGController creates the controller. maxUpload bounds the upload body
// size in bytes; zero means unbounded.
func NewRAGController(uploader Uploader, ragService services.RAGService, maxUpload int64) *RAGController {
	return &RAGController{
		uploader:   uploader,
		ragService: ragService,
		maxUpload:  maxUpload,
		log:        logging.Component("CONTROLLER"),
	}
}

// NewRouter builds the gin engine with CORS and every route registered.
func NewRouter(c *RAGController) *gin.Engine {
	router := gin.Default()
	router.Use(cors)
	c.Register(router)
	return router
}

func cors(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Next()
}

// Register adds the routes to r.
func (c *RAGController) Register(r gin.IRouter) {
	r.GET("/health", c.Health)
	r.POST("/upload", c.Upload)
	r.POST("/chat", c.Chat)
	r.GET("/index/stats", c.IndexStats)
}

// Health reports liveness.
func (c *RAGController) Health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "docrag",
	})
}

// Upload is the handler for POST /upload. The file comes in the multipart
// field "file".
func (c *RAGController) Upload(ctx *gin.Context) {
	if c.maxUpload > 0 {
		ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, c.maxUpload)
	}
	fh, err := ctx.FormFile("file")
	if err != nil {
		c.fail(ctx, http.StatusBadRequest, "Invalid upload: "+err.Error(), err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.fail(ctx, http.StatusBadRequest, "Could not read upload", err)
		return
	}
	defer f.Close()

	res, err := c.uploader.IngestUpload(ctx.Request.Context(), fh.Filename, f)
	if err != nil {
		c.failErr(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, models.UploadResponse{
		Message:  fmt.Sprintf("Upload successful: %s", fh.Filename),
		Preview:  res.Preview,
		Warnings: res.Warnings,
	})
}

// Chat is the handler for POST /chat.
func (c *RAGController) Chat(ctx *gin.Context) {
	var req models.ChatRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		c.fail(ctx, http.StatusBadRequest, "Invalid request body: "+err.Error(), err)
		return
	}

	ans, err := c.ragService.Answer(ctx.Request.Context(), req.Question)
	if err != nil {
		c.failErr(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, models.ChatResponse{Answer: ans.Answer, Sources: ans.Sources})
}

// IndexStats is the handler for GET /index/stats.
func (c *RAGController) IndexStats(ctx *gin.Context) {
	stats, err := c.ragService.Stats(ctx.Request.Context())
	if err != nil {
		c.failErr(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, stats)
}

func (c *RAGController) failErr(ctx *gin.Context, err error) {
	status, msg := statusFor(err)
	c.fail(ctx, status, msg, err)
}

func (c *RAGController) fail(ctx *gin.Context, status int, msg string, err error) {
	entry := c.log.WithError(err).WithFields(logrus.Fields{"path": ctx.FullPath(), "status": status})
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Warn("request rejected")
	}
	ctx.JSON(status, models.ErrorResponse{Error: msg})
}
