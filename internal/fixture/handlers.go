package fixture

import (
	"crypto/subtle"
	"io"
	"mime"
	"path/filepath"
	"sort"
	"time"

	"github.com/birbparty/birb-call/internal/telemetry"
	"github.com/gofiber/fiber/v2"
)

// Health handles GET /health
func (s *Server) Health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:  "healthy",
		Service: "birbcall-fixture",
		Version: Version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	})
}

// Login handles POST /auth/login
func (s *Server) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse("Invalid request body", ErrCodeInvalidRequest),
		)
	}
	if err := s.validate.Struct(req); err != nil {
		resp := NewErrorResponse("Validation failed", ErrCodeInvalidRequest)
		resp.Details = err.Error()
		return c.Status(fiber.StatusBadRequest).JSON(resp)
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(s.cfg.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.cfg.Password)) == 1
	if !userOK || !passOK {
		s.metrics.RecordTokenRejected("bad_credentials")
		return c.Status(fiber.StatusUnauthorized).JSON(
			NewErrorResponse("Invalid username or password", ErrCodeUnauthorized),
		)
	}

	return s.issue(c, req.Username, "password")
}

// Token handles POST /oauth/token. Only the refresh_token grant is
// supported; errors use the RFC 6749 body so oauth2 clients can parse them.
func (s *Server) Token(c *fiber.Ctx) error {
	grant := c.FormValue("grant_type")
	if grant != "refresh_token" {
		return c.Status(fiber.StatusBadRequest).JSON(OAuthErrorResponse{
			Error:            "unsupported_grant_type",
			ErrorDescription: "only refresh_token is supported",
		})
	}

	pair, err := s.tokens.Refresh(c.FormValue("refresh_token"))
	if err != nil {
		s.metrics.RecordTokenRejected("invalid_grant")
		return c.Status(fiber.StatusBadRequest).JSON(OAuthErrorResponse{
			Error:            "invalid_grant",
			ErrorDescription: err.Error(),
		})
	}

	s.metrics.RecordTokenIssued(grant)
	return s.writeTokens(c, pair)
}

// Revoke handles POST /auth/revoke. It invalidates every access token so
// the next protected call answers 401.
func (s *Server) Revoke(c *fiber.Ctx) error {
	return c.JSON(RevokeResponse{Revoked: true, Generation: s.RevokeAll()})
}

func (s *Server) issue(c *fiber.Ctx, subject, grant string) error {
	pair, err := s.tokens.Issue(subject)
	if err != nil {
		return err
	}
	s.metrics.RecordTokenIssued(grant)
	return s.writeTokens(c, pair)
}

func (s *Server) writeTokens(c *fiber.Ctx, pair *TokenPair) error {
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.JSON(TokenResponse{
		AccessToken:  pair.AccessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.tokens.TTL().Seconds()),
		RefreshToken: pair.RefreshToken,
	})
}

// GetItem handles GET /items/:id
func (s *Server) GetItem(c *fiber.Ctx) error {
	item, ok := s.items.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(
			NewErrorResponse("Item not found", ErrCodeNotFound),
		)
	}
	return c.JSON(item.response())
}

// CreateItem handles POST /items
func (s *Server) CreateItem(c *fiber.Ctx) error {
	req, errResp := s.parseItem(c)
	if errResp != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errResp)
	}
	item := s.items.Create(subject(c), *req)
	return c.Status(fiber.StatusCreated).JSON(item.response())
}

// PutItem handles PUT /items/:id
func (s *Server) PutItem(c *fiber.Ctx) error {
	req, errResp := s.parseItem(c)
	if errResp != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errResp)
	}
	item, created := s.items.Put(c.Params("id"), subject(c), *req)
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(item.response())
}

// DeleteItem handles DELETE /items/:id
func (s *Server) DeleteItem(c *fiber.Ctx) error {
	if !s.items.Delete(c.Params("id")) {
		return c.Status(fiber.StatusNotFound).JSON(
			NewErrorResponse("Item not found", ErrCodeNotFound),
		)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) parseItem(c *fiber.Ctx) (*ItemRequest, *ErrorResponse) {
	var req ItemRequest
	if err := c.BodyParser(&req); err != nil {
		resp := NewErrorResponse("Invalid request body", ErrCodeInvalidRequest)
		return nil, &resp
	}
	if err := s.validate.Struct(req); err != nil {
		resp := NewErrorResponse("Validation failed", ErrCodeInvalidRequest)
		resp.Details = err.Error()
		return nil, &resp
	}
	return &req, nil
}

// Upload handles POST /uploads. Every file part is stored and can be
// fetched back from /files/:name.
func (s *Server) Upload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse("Expected a multipart form", ErrCodeInvalidRequest),
		)
	}

	resp := UploadResponse{Files: []UploadedFile{}, Fields: make(map[string]string)}
	for field, values := range form.Value {
		if len(values) > 0 {
			resp.Fields[field] = values[0]
		}
	}

	fields := make([]string, 0, len(form.File))
	for field := range form.File {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	ctx, span := telemetry.StartSpan(c.UserContext(), "fixture.store_files")
	defer span.End()

	for _, field := range fields {
		for _, fh := range form.File[field] {
			f, err := fh.Open()
			if err != nil {
				telemetry.RecordError(ctx, err)
				return err
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				telemetry.RecordError(ctx, err)
				return err
			}

			name := filepath.Base(fh.Filename)
			contentType := fh.Header.Get(fiber.HeaderContentType)
			s.files.Put(StoredFile{Name: name, ContentType: contentType, Data: data})

			resp.Files = append(resp.Files, UploadedFile{
				Field:       field,
				Filename:    name,
				ContentType: contentType,
				Size:        int64(len(data)),
			})
			resp.Bytes += int64(len(data))
		}
	}

	telemetry.SetOKStatus(ctx)
	s.metrics.RecordUpload(resp.Bytes)
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// GetFile handles GET /files/:name
func (s *Server) GetFile(c *fiber.Ctx) error {
	f, ok := s.files.Get(c.Params("name"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(
			NewErrorResponse("File not found", ErrCodeNotFound),
		)
	}

	contentType := f.ContentType
	if contentType == "" {
		contentType = fiber.MIMEOctetStream
	}
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": f.Name}))
	return c.Send(f.Data)
}
