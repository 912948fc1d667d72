package handler

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"blobgate/internal/config"
	"blobgate/internal/service"
)

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Keep handlers minimal; the pipeline itself lives in the service layer.
func RegisterRoutes(app *fiber.App, db *sql.DB, svc service.UploadService, cfg *config.AppConfig) {
	// Serve OpenAPI spec and Swagger UI
	app.Get("/openapi.yaml", func(c *fiber.Ctx) error {
		c.Type("yaml")
		return c.SendFile("openapi.yaml")
	})
	app.Get("/docs", func(c *fiber.Ctx) error {
		html := `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>API Docs</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.ui = SwaggerUIBundle({
      url: '/openapi.yaml',
      dom_id: '#swagger-ui',
      presets: [SwaggerUIBundle.presets.apis],
      layout: 'BaseLayout'
    });
  </script>
</body>
</html>`
		return c.Type("html").SendString(html)
	})

	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	gate := UploadsEnabled(cfg.Upload.Enabled)
	app.Head("/upload", gate, HeadUpload(svc))
	app.Put("/upload", gate, PutUpload(svc))

	app.Get("/list/:pubkey", ListBlobs(svc))

	// Hash retrieval is registered last so it cannot shadow named routes.
	app.Get("/:hash", GetBlob(svc))
}

// HealthCheck returns a handler that checks DB connectivity only.
func HealthCheck(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe returns a simple liveness handler.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// UploadsEnabled answers 404 for the whole upload surface when the feature is
// disabled for this deployment.
func UploadsEnabled(enabled bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !enabled {
			return writeError(c, fiber.StatusNotFound, "UPLOADS_DISABLED", "uploads disabled")
		}
		return c.Next()
	}
}

// admitRequest assembles the declared upload properties from request headers.
func admitRequest(c *fiber.Ctx) service.AdmitRequest {
	proof := ""
	if h := c.Get(fiber.HeaderAuthorization); h != "" {
		proof = strings.TrimSpace(strings.TrimPrefix(h, "Bearer"))
	}

	contentType := c.Get(fiber.HeaderContentType)
	if contentType == "" {
		contentType = c.Get("X-Content-Type")
	}

	var length int64
	if v := c.Get("X-Content-Length"); v != "" {
		length, _ = strconv.ParseInt(v, 10, 64)
	} else if v := c.Get(fiber.HeaderContentLength); v != "" {
		length, _ = strconv.ParseInt(v, 10, 64)
	}

	return service.AdmitRequest{
		Proof:         proof,
		ContentType:   contentType,
		ContentLength: length,
		DeclaredHash:  strings.ToLower(c.Get("X-SHA-256")),
	}
}

// HeadUpload runs the admission checks only: no body, 200 on pass.
func HeadUpload(svc service.UploadService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, err := svc.Admit(c.UserContext(), admitRequest(c)); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusOK)
	}
}

// PutUpload runs the full pipeline: admission, staging, commit.
func PutUpload(svc service.UploadService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		adm, err := svc.Admit(c.UserContext(), admitRequest(c))
		if err != nil {
			return writeServiceError(c, err)
		}

		// Prefer the streamed body so staging/hashing starts before the whole
		// payload has arrived; fall back to the buffered body when the server
		// is not configured for streaming.
		var body io.Reader
		if c.Request().IsBodyStream() {
			body = c.Request().BodyStream()
		} else {
			body = bytes.NewReader(c.Body())
		}

		desc, err := svc.Upload(c.UserContext(), adm, body)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusOK).JSON(desc)
	}
}

// GetBlob streams a committed blob by its content hash.
func GetBlob(svc service.UploadService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		hash := strings.ToLower(c.Params("hash"))
		if !validHash(hash) {
			return writeError(c, fiber.StatusBadRequest, "INVALID_HASH", "invalid sha256 hash")
		}
		rc, blob, err := svc.GetBlob(c.UserContext(), hash)
		if err != nil {
			return writeServiceError(c, err)
		}
		c.Set(fiber.HeaderContentType, blob.ContentType)
		return c.SendStream(rc, int(blob.Size))
	}
}

// ListBlobs returns the blob descriptors owned by an identity, with limit &
// offset pagination.
func ListBlobs(svc service.UploadService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := svc.ListByOwner(c.UserContext(), c.Params("pubkey"), limit, offset)
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(res)
	}
}

func validHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
