package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/ozwald-dev/ozwald/internal/vault"
	"github.com/ozwald-dev/ozwald/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// listHosts returns the catalog host inventory.
func (s *Server) listHosts(c echo.Context) error {
	return c.JSON(http.StatusOK, s.catalog.Hosts)
}

// realmSummary is the wire shape of a realm listing entry.
type realmSummary struct {
	Name     string   `json:"name"`
	Networks []string `json:"networks,omitempty"`
	Services int      `json:"services"`
}

// listRealms returns the configured realms.
func (s *Server) listRealms(c echo.Context) error {
	out := make([]realmSummary, 0, len(s.catalog.Realms))
	for name, realm := range s.catalog.Realms {
		out = append(out, realmSummary{
			Name:     name,
			Networks: realm.Networks,
			Services: len(realm.Services),
		})
	}
	return c.JSON(http.StatusOK, out)
}

// listServices returns the service definitions of a realm.
func (s *Server) listServices(c echo.Context) error {
	realm, ok := s.catalog.Realms[c.Param("realm")]
	if !ok {
		return NotFoundError("Realm", c.Param("realm"))
	}
	return c.JSON(http.StatusOK, realm.Services)
}

// desiredStateRequest is the body of a desired-state submission: the
// complete desired state for the realm, not an incremental patch.
type desiredStateRequest struct {
	Services []models.DesiredService `json:"services"`
}

// applyDesiredState submits the full desired state for a realm. The
// reconciliation diff runs synchronously; activations and drains
// proceed in the background and are observable through the instance
// listing and the websocket feed.
func (s *Server) applyDesiredState(c echo.Context) error {
	realm := c.Param("realm")
	if _, ok := s.catalog.Realms[realm]; !ok {
		return NotFoundError("Realm", realm)
	}

	var req desiredStateRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}
	for _, entry := range req.Services {
		if entry.Service == "" || entry.Host == "" {
			return BadRequestError("Invalid desired entry", "service and host are required")
		}
	}

	if err := s.provisioner.Apply(c.Request().Context(), realm, req.Services); err != nil {
		if mapped := mapDomainError(err); mapped != nil {
			return mapped
		}
		return BadRequestError("Desired state rejected", err.Error())
	}

	instances, err := s.store.List(c.Request().Context(), realm)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, instances)
}

// listInstances returns every instance record of a realm, including
// terminal records not yet pruned.
func (s *Server) listInstances(c echo.Context) error {
	realm := c.Param("realm")
	if _, ok := s.catalog.Realms[realm]; !ok {
		return NotFoundError("Realm", realm)
	}

	instances, err := s.store.List(c.Request().Context(), realm)
	if err != nil {
		return err
	}
	if instances == nil {
		instances = []models.Instance{}
	}
	return c.JSON(http.StatusOK, instances)
}

// getInstance returns one instance record, selected by service name
// plus optional variety and profile query parameters.
func (s *Server) getInstance(c echo.Context) error {
	id := models.Identity{
		Realm:   c.Param("realm"),
		Service: c.Param("service"),
		Variety: c.QueryParam("variety"),
		Profile: c.QueryParam("profile"),
	}

	inst, err := s.store.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inst)
}

// lockerRequest carries the full replacement contents of a locker.
type lockerRequest struct {
	Token   string            `json:"token"`
	Secrets map[string]string `json:"secrets"`
}

// putLocker seals the submitted secrets under the locker token and
// replaces the locker's stored blob. Writes are whole-locker: there is
// no partial update.
func (s *Server) putLocker(c echo.Context) error {
	realm := c.Param("realm")
	locker := c.Param("locker")
	if _, ok := s.catalog.Realms[realm]; !ok {
		return NotFoundError("Realm", realm)
	}

	var req lockerRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}
	if req.Token == "" {
		return BadRequestError("Invalid locker write", "token is required")
	}
	if len(req.Secrets) == 0 {
		return BadRequestError("Invalid locker write", "secrets must not be empty")
	}

	blob, err := vault.Seal(req.Secrets, req.Token)
	if err != nil {
		return InternalError("Failed to seal locker", err.Error())
	}
	if err := s.blobs.SetSecret(c.Request().Context(), realm, locker, blob); err != nil {
		return err
	}

	s.debugLog("locker %s/%s updated (%d entries)", realm, locker, len(req.Secrets))
	return c.NoContent(http.StatusNoContent)
}

// footprintRequestBody is the body of a footprint run submission.
type footprintRequestBody struct {
	Realm   string                `json:"realm"`
	All     bool                  `json:"all,omitempty"`
	Targets []models.FootprintKey `json:"targets,omitempty"`
}

// enqueueFootprintRequest queues a footprint measurement run. The
// provisioner picks it up once the host is unloaded.
func (s *Server) enqueueFootprintRequest(c echo.Context) error {
	var body footprintRequestBody
	if err := c.Bind(&body); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}
	if _, ok := s.catalog.Realms[body.Realm]; !ok {
		return NotFoundError("Realm", body.Realm)
	}
	if !body.All && len(body.Targets) == 0 {
		return BadRequestError("Invalid footprint request", "either all or targets must be set")
	}

	req := models.FootprintRequest{
		ID:          uuid.NewString(),
		Realm:       body.Realm,
		All:         body.All,
		Targets:     body.Targets,
		RequestedAt: time.Now().UTC(),
	}
	if err := s.queue.Enqueue(c.Request().Context(), req); err != nil {
		return err
	}

	if err := s.wsHub.BroadcastEvent(Event{Type: EventFootprintQueued, Data: req}); err != nil {
		s.debugLog("failed to broadcast footprint request: %v", err)
	}
	return c.JSON(http.StatusAccepted, req)
}

// footprintLogsResponse carries the retained output of the latest
// measurement run for a triple.
type footprintLogsResponse struct {
	Service string   `json:"service"`
	Variety string   `json:"variety,omitempty"`
	Profile string   `json:"profile,omitempty"`
	Lines   []string `json:"lines"`
}

// getFootprintLogs returns the output of the most recent measurement
// run for the triple selected by query parameters.
func (s *Server) getFootprintLogs(c echo.Context) error {
	service := c.QueryParam("service")
	if service == "" {
		return BadRequestError("Invalid footprint log query", "service is required")
	}
	key := models.FootprintKey{
		Service: service,
		Variety: c.QueryParam("variety"),
		Profile: c.QueryParam("profile"),
	}

	lines, err := s.logs.Lines(c.Request().Context(), key)
	if err != nil {
		return err
	}
	if lines == nil {
		lines = []string{}
	}
	return c.JSON(http.StatusOK, footprintLogsResponse{
		Service: key.Service,
		Variety: key.Variety,
		Profile: key.Profile,
		Lines:   lines,
	})
}

// listFootprintRequests returns the pending measurement queue.
func (s *Server) listFootprintRequests(c echo.Context) error {
	reqs, err := s.queue.List(c.Request().Context())
	if err != nil {
		return err
	}
	if reqs == nil {
		reqs = []models.FootprintRequest{}
	}
	return c.JSON(http.StatusOK, reqs)
}
