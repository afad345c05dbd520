package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/certkeeper/internal/common"
	"github.com/dmitrijs2005/certkeeper/internal/server/models"
	"github.com/dmitrijs2005/certkeeper/internal/server/services"
	"github.com/labstack/echo/v4"
)

const (
	HeaderGenerationID = "X-Generation-Id"
	HeaderWarning      = "X-Generation-Warning"
)

// decode reads exactly one JSON object and rejects unknown fields.
func decode(c echo.Context, v any) error {
	dec := json.NewDecoder(c.Request().Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return common.NewValidationError("invalid request body: " + err.Error())
	}
	if dec.More() {
		return common.NewValidationError("invalid request body: trailing data")
	}
	return nil
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) verify(c echo.Context) error {
	res, err := s.svc.Verification.Verify(c.Request().Context(), c.Param("uuid"))
	if err != nil {
		return err
	}
	code := http.StatusOK
	if !res.Success {
		code = http.StatusNotFound
	}
	return c.JSON(code, res)
}

func (s *Server) createEvent(c echo.Context) error {
	var req services.CreateEventRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	e, err := s.svc.Events.Create(c.Request().Context(), callerFrom(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, e)
}

func (s *Server) getEvent(c echo.Context) error {
	e, err := s.svc.Events.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, e)
}

func (s *Server) createConfig(c echo.Context) error {
	var req services.CreateConfigRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	cfg, err := s.svc.Configs.Create(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, cfg)
}

// getConfigByEvent serves GET /config/:eventId.
func (s *Server) getConfigByEvent(c echo.Context) error {
	cfg, err := s.svc.Configs.GetByEvent(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cfg)
}

// updateConfig serves PUT /config/:configId.
func (s *Server) updateConfig(c echo.Context) error {
	var req services.UpdateConfigRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	cfg, err := s.svc.Configs.Update(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cfg)
}

func (s *Server) uploadTemplate(c echo.Context) error {
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return err
	}
	key, err := s.svc.Templates.Upload(c.Request().Context(), data)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]string{"imagePath": key})
}

func (s *Server) templateUploadURL(c echo.Context) error {
	var req struct {
		FileName string `json:"fileName"`
	}
	if err := decode(c, &req); err != nil {
		return err
	}
	u, err := s.svc.Templates.UploadURL(c.Request().Context(), req.FileName)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (s *Server) sample(c echo.Context) error {
	var req services.SampleRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	img, err := s.svc.Generation.Sample(c.Request().Context(), callerFrom(c), req)
	if err != nil {
		return err
	}
	return c.Blob(http.StatusOK, "image/png", img)
}

func (s *Server) generate(c echo.Context) error {
	var req services.GenerateRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	res, err := s.svc.Generation.Generate(c.Request().Context(), callerFrom(c), req)
	if err != nil {
		return err
	}

	h := c.Response().Header()
	h.Set(echo.HeaderContentDisposition, `attachment; filename="certificates.zip"`)
	if res.Generation != nil {
		h.Set(HeaderGenerationID, res.Generation.ID)
	}
	for _, w := range res.Warnings {
		h.Add(HeaderWarning, w)
	}
	return c.Blob(http.StatusOK, "application/zip", res.Archive)
}

func (s *Server) storeGenerated(c echo.Context) error {
	var req services.StoreRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	sum, err := s.svc.Generation.Store(c.Request().Context(), callerFrom(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, sum)
}

func (s *Server) listGenerated(c echo.Context) error {
	var q models.GenerationQuery
	var order string
	err := echo.QueryParamsBinder(c).
		String("filter", &q.Filter).
		String("sort", &q.Sort).
		String("order", &order).
		Int("page", &q.Page).
		Int("limit", &q.Limit).
		String("search", &q.Search).
		BindError()
	if err != nil {
		return common.NewValidationError(err.Error())
	}
	if q.Desc, err = descending(order); err != nil {
		return err
	}

	res, err := s.svc.Generation.List(c.Request().Context(), callerFrom(c), q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

type decryptRequest struct {
	Password string `json:"password"`
	Filter   string `json:"filter"`
	Sort     string `json:"sort"`
	Order    string `json:"order"`
	Page     int    `json:"page"`
	Limit    int    `json:"limit"`
	Search   string `json:"search"`
}

func (s *Server) decryptGenerated(c echo.Context) error {
	var req decryptRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	desc, err := descending(req.Order)
	if err != nil {
		return err
	}
	q := models.GenerationQuery{
		Filter: req.Filter,
		Sort:   req.Sort,
		Desc:   desc,
		Page:   req.Page,
		Limit:  req.Limit,
		Search: req.Search,
	}

	res, err := s.svc.Generation.DecryptSearch(c.Request().Context(), callerFrom(c), req.Password, q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) listTokens(c echo.Context) error {
	toks, err := s.svc.Generation.ListTokens(c.Request().Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"generationId": c.Param("id"), "uuids": toks})
}

func (s *Server) getStats(c echo.Context) error {
	st, err := s.svc.Stats.Get(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) allStats(c echo.Context) error {
	all, err := s.svc.Stats.All(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, all)
}

func (s *Server) updateRecipientCount(c echo.Context) error {
	var req struct {
		OrgName        string `json:"orgName"`
		RecipientCount int64  `json:"recipientCount"`
	}
	if err := decode(c, &req); err != nil {
		return err
	}
	st, err := s.svc.Stats.IncrementRecipients(c.Request().Context(), req.OrgName, req.RecipientCount)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

// descending parses the order parameter; newest first is the default.
func descending(order string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(order)) {
	case "", "desc":
		return true, nil
	case "asc":
		return false, nil
	}
	return false, common.NewValidationError(fmt.Sprintf("unknown order %q", order))
}
