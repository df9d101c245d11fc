package patient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/cloudreports/patients/internal/platform/session"
	"github.com/cloudreports/patients/pkg/pagination"
	"github.com/cloudreports/patients/web"
)

// Messages shown inline on the pages.
const (
	msgInvalidLogin = "Invalid username or password"
	msgNotFound     = "No patient found with the provided details."
	msgBadID        = "Patient ID must be a whole number."
	msgStaleGrid    = "The matching records changed since the search; search again before saving."
	msgStoreDown    = "The patient store could not be reached. Please try again."
	msgUpdated      = "Patient details updated successfully!"
	msgAdded        = "New patient added successfully!"
)

type Handler struct {
	svc    *Service
	auth   *session.Authenticator
	codec  *session.Codec
	logger zerolog.Logger
}

func NewHandler(svc *Service, auth *session.Authenticator, codec *session.Codec, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, auth: auth, codec: codec, logger: logger}
}

// RegisterRoutes mounts the HTML pages on pages and the JSON API on api.
// Both expect session.Middleware to run first.
func (h *Handler) RegisterRoutes(pages *echo.Group, api *echo.Group) {
	pages.GET("/login", h.LoginPage)
	pages.POST("/login", h.Login)
	pages.POST("/logout", h.Logout)

	loggedIn := session.RequireLogin("/login")
	pages.GET("/", h.Home, loggedIn)
	pages.POST("/search", h.Search, loggedIn)
	pages.POST("/save", h.Save, loggedIn)
	pages.GET("/add", h.AddPage, loggedIn)
	pages.POST("/add", h.Add, loggedIn)
	pages.GET("/about", h.About, loggedIn)
	pages.GET("/services", h.Services, loggedIn)
	pages.GET("/export.csv", h.ExportCSV, loggedIn)

	g := api.Group("/patients", session.RequireAPI())
	g.GET("", h.ListPatients)
	g.GET("/search", h.SearchPatients)
	g.POST("", h.CreatePatient)
	g.PATCH("/edits", h.SaveEdits)
	g.GET("/export", h.ExportCSV)
}

// -- Pages --

func (h *Handler) render(c echo.Context, status int, name, title string, p web.Page) error {
	s := session.FromContext(c.Request().Context())
	p.Title = title
	p.User = s.User
	p.Menu = menuFor(s)
	p.Status = status
	return c.Render(status, name, p)
}

// navigate moves the session to page and persists it when it changed.
func (h *Handler) navigate(c echo.Context, page session.Page) error {
	s := session.FromContext(c.Request().Context())
	next, err := s.Navigate(page)
	if err != nil {
		return err
	}
	if next.Page == s.Page {
		return nil
	}
	return session.Write(c, h.codec, next)
}

func (h *Handler) LoginPage(c echo.Context) error {
	if session.FromContext(c.Request().Context()).LoggedIn() {
		return c.Redirect(http.StatusSeeOther, "/")
	}
	return h.render(c, http.StatusOK, "login.html", "Login", web.Page{Body: ""})
}

func (h *Handler) Login(c echo.Context) error {
	user := c.FormValue("username")
	if err := h.auth.Check(user, c.FormValue("password")); err != nil {
		h.logger.Warn().Str("username", user).Str("remote_ip", c.RealIP()).Msg("login failed")
		return h.render(c, http.StatusOK, "login.html", "Login", web.Page{Error: msgInvalidLogin, Body: user})
	}

	s := session.FromContext(c.Request().Context()).Login(user)
	if err := session.Write(c, h.codec, s); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.logger.Info().Str("username", user).Msg("login succeeded")
	return c.Redirect(http.StatusSeeOther, "/")
}

func (h *Handler) Logout(c echo.Context) error {
	s := session.FromContext(c.Request().Context()).Logout()
	if err := session.Write(c, h.codec, s); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.Redirect(http.StatusSeeOther, "/login")
}

func (h *Handler) Home(c echo.Context) error {
	if err := h.navigate(c, session.Home); err != nil {
		return c.Redirect(http.StatusSeeOther, "/login")
	}
	s := session.FromContext(c.Request().Context())
	return h.renderHome(c, http.StatusOK, web.Page{}, &homeView{Editor: s.User})
}

func (h *Handler) renderHome(c echo.Context, status int, p web.Page, v *homeView) error {
	p.Body = v
	return h.render(c, status, "home.html", "Home", p)
}

// searchForm reads the name, id and editor inputs shared by search and save.
func searchForm(c echo.Context) (*homeView, int64, error) {
	v := &homeView{
		Name:   strings.TrimSpace(c.FormValue("name")),
		ID:     strings.TrimSpace(c.FormValue("id")),
		Editor: strings.TrimSpace(c.FormValue("editor")),
	}
	id, err := strconv.ParseInt(v.ID, 10, 64)
	return v, id, err
}

func (h *Handler) Search(c echo.Context) error {
	v, id, err := searchForm(c)
	if err != nil {
		return h.renderHome(c, http.StatusOK, web.Page{Error: msgBadID}, v)
	}

	res, err := h.svc.Search(c.Request().Context(), v.Name, id)
	if err != nil {
		return h.pageError(c, err, v)
	}
	v.Grid = newGrid(res.Columns, res.Matches)
	return h.renderHome(c, http.StatusOK, web.Page{}, v)
}

func (h *Handler) Save(c echo.Context) error {
	v, id, err := searchForm(c)
	if err != nil {
		return h.renderHome(c, http.StatusOK, web.Page{Error: msgBadID}, v)
	}
	form, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	edits, err := editsFromForm(form)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	editor := v.Editor
	if editor == "" {
		editor = session.FromContext(c.Request().Context()).User
	}
	res, err := h.svc.SaveEdits(c.Request().Context(), SaveRequest{
		Name:   v.Name,
		ID:     id,
		Editor: editor,
		Edits:  edits,
	})
	if err != nil {
		return h.pageError(c, err, v)
	}

	v.Grid = newGrid(res.Columns, res.Matches)
	v.Download = downloadFor(res)
	return h.renderHome(c, http.StatusOK, web.Page{Flash: msgUpdated}, v)
}

// pageError renders a service error on the home page. Not-found and stale
// grids are ordinary outcomes; store failures are reported with 502.
func (h *Handler) pageError(c echo.Context, err error, v *homeView) error {
	var pe *PersistenceError
	switch {
	case errors.Is(err, ErrNotFound):
		return h.renderHome(c, http.StatusOK, web.Page{Error: msgNotFound}, v)
	case errors.Is(err, ErrPositionOutOfRange):
		return h.renderHome(c, http.StatusConflict, web.Page{Error: msgStaleGrid}, v)
	case errors.As(err, &pe):
		h.logger.Error().Err(err).Msg("patient store request failed")
		return h.renderHome(c, http.StatusBadGateway, web.Page{Error: msgStoreDown}, v)
	default:
		return err
	}
}

func (h *Handler) AddPage(c echo.Context) error {
	if err := h.navigate(c, session.AddPatient); err != nil {
		return c.Redirect(http.StatusSeeOther, "/login")
	}
	return h.render(c, http.StatusOK, "add.html", "Add Patient", web.Page{Body: &addView{Fields: NewPatientFields}})
}

func (h *Handler) Add(c echo.Context) error {
	form, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v := &addView{Fields: NewPatientFields}

	res, err := h.svc.AddPatient(c.Request().Context(), FieldsFromForm(form))
	if err != nil {
		var pe *PersistenceError
		if errors.As(err, &pe) {
			h.logger.Error().Err(err).Msg("patient store request failed")
			return h.render(c, http.StatusBadGateway, "add.html", "Add Patient", web.Page{Error: msgStoreDown, Body: v})
		}
		return err
	}

	v.Download = downloadFor(res)
	return h.render(c, http.StatusOK, "add.html", "Add Patient", web.Page{Flash: msgAdded, Body: v})
}

func (h *Handler) About(c echo.Context) error {
	if err := h.navigate(c, session.About); err != nil {
		return c.Redirect(http.StatusSeeOther, "/login")
	}
	return h.render(c, http.StatusOK, "about.html", "About", web.Page{})
}

func (h *Handler) Services(c echo.Context) error {
	if err := h.navigate(c, session.Services); err != nil {
		return c.Redirect(http.StatusSeeOther, "/login")
	}
	return h.render(c, http.StatusOK, "services.html", "Services", web.Page{})
}

// ExportCSV downloads the current table. It backs both /export.csv and the
// JSON API export route.
func (h *Handler) ExportCSV(c echo.Context) error {
	name, data, err := h.svc.ExportCSV(c.Request().Context())
	if err != nil {
		return apiError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, name))
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", data)
}

func downloadFor(res *SaveResult) *downloadView {
	url := res.ArtifactURL
	if url == "" {
		url = "/export.csv"
	}
	return &downloadView{URL: url, Filename: res.Filename}
}

// -- JSON API --

type listResponse struct {
	Columns []string `json:"columns"`
	*pagination.Response
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	cols, rows, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apiError(err)
	}
	resp := pagination.NewResponse(rows, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL.Path)
	return c.JSON(http.StatusOK, listResponse{Columns: cols, Response: resp})
}

func (h *Handler) SearchPatients(c echo.Context) error {
	id, err := strconv.ParseInt(c.QueryParam("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "id must be an integer")
	}
	res, err := h.svc.Search(c.Request().Context(), c.QueryParam("name"), id)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var raw map[string]interface{}
	if err := decodeJSON(c, &raw); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(raw) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "at least one field is required")
	}
	fields, err := recordFromJSON(raw)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := h.svc.AddPatient(c.Request().Context(), fields)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) SaveEdits(c echo.Context) error {
	var req SaveRequest
	if err := decodeJSON(c, &req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	for row, cells := range req.Edits {
		rec, err := recordFromJSON(cells)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("edits[%d]: %v", row, err))
		}
		req.Edits[row] = rec
	}
	if req.Editor == "" {
		req.Editor = session.FromContext(c.Request().Context()).User
	}

	res, err := h.svc.SaveEdits(c.Request().Context(), req)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// decodeJSON keeps numbers as json.Number so integer ids survive intact.
func decodeJSON(c echo.Context, dst interface{}) error {
	dec := json.NewDecoder(c.Request().Body)
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// recordFromJSON converts decoded JSON values to cell values. Only scalars
// are accepted.
func recordFromJSON(raw map[string]interface{}) (Record, error) {
	rec := make(Record, len(raw))
	for k, v := range raw {
		switch x := v.(type) {
		case nil:
			rec[k] = nil
		case json.Number:
			rec[k] = ParseValue(x.String())
		case string, bool:
			rec[k] = Normalize(x)
		default:
			return nil, fmt.Errorf("field %q must be a string, number, boolean or null", k)
		}
	}
	return rec, nil
}

func apiError(err error) error {
	var pe *PersistenceError
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrPositionOutOfRange):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.As(err, &pe):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
