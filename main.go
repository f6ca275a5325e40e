package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"wissensbasis/config"
	"wissensbasis/models"
	"wissensbasis/services"
	"wissensbasis/storage"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	faqsCreatedCounter prometheus.Counter
	faqsDeletedCounter prometheus.Counter
)

func init() {
	faqsCreatedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "faqs_created_total",
			Help: "Total number of FAQs created.",
		},
	)
	faqsDeletedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "faqs_deleted_total",
			Help: "Total number of FAQs deleted.",
		},
	)
	prometheus.MustRegister(faqsCreatedCounter, faqsDeletedCounter)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	// Setup Database Connection
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to knowledge base database.")

	// Auto-Migration
	logging.Info("Running database auto-migration...")
	db.AutoMigrate(
		&models.User{},
		&models.Topic{},
		&models.FAQ{},
		&models.FAQTopic{},
		&models.Attachment{},
		&models.Share{},
	)

	// Setup Services
	s3Client, err := storage.NewS3Client(cfg)
	if err != nil {
		logging.Fatal("S3 client creation failed", zap.Error(err))
	}
	faqService := services.NewFAQService(db, logging)

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Setup Routes
	setupFAQRoutes(router, faqService, logging)
	setupTopicRoutes(router, faqService, logging)
	setupAttachmentRoutes(router, s3Client, cfg, logging)
	setupHealthRoutes(router, db)

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

// respondServiceError bildet Service-Fehler auf HTTP-Status ab:
// ValidationError -> 400, ErrNotFound -> 404, Rest -> 500.
func respondServiceError(c *gin.Context, log *zap.Logger, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"message": verr.Message})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "FAQ not found"})
	default:
		log.Error("FAQ operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
	}
}

// parseTopicsParam zerlegt den kommaseparierten topics-Parameter.
func parseTopicsParam(param string) []string {
	if param == "" {
		return nil
	}
	var out []string
	for _, name := range strings.Split(param, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

func setupFAQRoutes(router *gin.Engine, svc *services.FAQService, log *zap.Logger) {
	rg := router.Group("/faqs")

	// Liste mit optionalem Freitext- und Topic-Filter
	rg.GET("", func(c *gin.Context) {
		q := c.Query("q")
		topics := parseTopicsParam(c.Query("topics"))

		faqs, err := svc.List(c.Request.Context(), q, topics)
		if err != nil {
			respondServiceError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, faqs)
	})

	rg.POST("", func(c *gin.Context) {
		var input services.CreateFAQInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		faq, err := svc.Create(c.Request.Context(), input)
		if err != nil {
			respondServiceError(c, log, err)
			return
		}
		faqsCreatedCounter.Inc()
		c.JSON(http.StatusCreated, faq)
	})

	rg.GET("/:id", func(c *gin.Context) {
		faq, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondServiceError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, faq)
	})

	rg.PATCH("/:id", func(c *gin.Context) {
		var input services.UpdateFAQInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		faq, err := svc.Update(c.Request.Context(), c.Param("id"), input)
		if err != nil {
			respondServiceError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, faq)
	})

	rg.DELETE("/:id", func(c *gin.Context) {
		if err := svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
			respondServiceError(c, log, err)
			return
		}
		faqsDeletedCounter.Inc()
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
}

func setupTopicRoutes(router *gin.Engine, svc *services.FAQService, log *zap.Logger) {
	router.GET("/topics", func(c *gin.Context) {
		topics, err := svc.ListTopics(c.Request.Context())
		if err != nil {
			respondServiceError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, topics)
	})
}

// setupAttachmentRoutes nimmt Datei-Uploads entgegen, legt sie in S3 ab und
// liefert einen Anhang-Eintrag zurück, den der Client unverändert in ein
// FAQ-Payload übernehmen kann.
func setupAttachmentRoutes(router *gin.Engine, s3Client *s3.Client, cfg *config.Config, log *zap.Logger) {
	router.POST("/attachments", func(c *gin.Context) {
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			log.Error("Failed to read uploaded file", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
			return
		}

		mimeType := header.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = models.DefaultMimeType
		}

		// Eindeutiger Key, damit gleichnamige Dateien sich nicht überschreiben.
		key := fmt.Sprintf("attachments/%s%s", uuid.NewString(), filepath.Ext(header.Filename))
		link, err := storage.UploadFile(c.Request.Context(), s3Client, cfg.S3Bucket, key, data, mimeType, cfg)
		if err != nil {
			log.Error("S3 upload failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
			return
		}
		log.Info("Attachment uploaded", zap.String("key", key), zap.Int("size", len(data)))

		c.JSON(http.StatusCreated, gin.H{
			"name":     header.Filename,
			"url":      link,
			"mimeType": mimeType,
			"size":     len(data),
		})
	})
}

func setupHealthRoutes(router *gin.Engine, db *gorm.DB) {
	router.GET("/healthz", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
