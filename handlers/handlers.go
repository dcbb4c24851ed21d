package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/golang/geo/s2"

	"fixspot/database"
	"fixspot/exifgps"
	"fixspot/models"
)

// Handlers holds all HTTP handlers.
type Handlers struct {
	db *database.Database
}

// NewHandlers creates a new handlers instance.
func NewHandlers(db *database.Database) *Handlers {
	return &Handlers{db: db}
}

// GetReports returns the report catalog as an id -> {name, labels} mapping.
// An empty catalog means the seed never ran; that is a 404, not an empty 200.
func (h *Handlers) GetReports(c *gin.Context) {
	reports, err := h.db.GetReports(c.Request.Context())
	if err != nil {
		log.Errorf("Failed to query report catalog: %v", err)
		c.String(http.StatusInternalServerError, "Failed to retrieve reports.")
		return
	}
	if len(reports) == 0 {
		c.Status(http.StatusNotFound)
		return
	}
	out := make(map[string]models.ReportEntry, len(reports))
	for _, r := range reports {
		out[r.ID] = models.ReportEntry{Name: r.Name, Labels: r.Labels}
	}
	c.JSON(http.StatusOK, out)
}

// GetSubmission returns a single submission by id.
func (h *Handlers) GetSubmission(c *gin.Context) {
	id := c.Param("id")
	if !models.ValidSubmissionID(id) {
		log.Errorf("Unrecognized path parameter: %s", id)
		c.String(http.StatusBadRequest, "Invalid submission_id. Submission ID must be UUIDv4 format.")
		return
	}
	submission, err := h.db.GetSubmission(c.Request.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		c.Status(http.StatusNotFound)
		return
	}
	if err != nil {
		log.Errorf("Failed to get submission %s: %v", id, err)
		c.String(http.StatusInternalServerError, "Failed to retrieve submission.")
		return
	}
	c.JSON(http.StatusOK, submission)
}

// GetSubmissions lists submissions filtered by lifecycle state,
// defaulting to submitted.
func (h *Handlers) GetSubmissions(c *gin.Context) {
	filter := c.DefaultQuery("status", string(models.StateSubmitted))
	state, ok := models.ParseSubmissionState(filter)
	if !ok {
		c.String(http.StatusBadRequest,
			"Invalid submission filter. Submission filter must be one of pending, submitted, or resolved.")
		return
	}
	submissions, err := h.db.GetSubmissionsByState(c.Request.Context(), state)
	if err != nil {
		log.Errorf("Failed to list submissions by state %s: %v", state, err)
		c.String(http.StatusInternalServerError, "Failed to retrieve submissions.")
		return
	}
	c.JSON(http.StatusOK, submissions)
}

// PatchSubmission applies a lifecycle action to a submission:
// submit (pending|submitted -> submitted) or resolve (-> resolved).
func (h *Handlers) PatchSubmission(c *gin.Context) {
	id := c.Param("id")
	if !models.ValidSubmissionID(id) {
		log.Errorf("Unrecognized path parameter: %s", id)
		c.String(http.StatusBadRequest, "Invalid submission_id. Submission ID must be UUIDv4 format.")
		return
	}

	var req models.PatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Errorf("Unrecognized patch format for %s: %v", id, err)
		c.String(http.StatusBadRequest, "Invalid patch format. Must have a JSON body.")
		return
	}

	switch req.Action {
	case "submit":
		h.submit(c, id, &req)
	case "resolve":
		h.resolve(c, id)
	case "":
		c.String(http.StatusBadRequest, "Invalid patch format. Must have an action attribute.")
	default:
		c.String(http.StatusBadRequest, "Invalid patch format. Unrecognized action.")
	}
}

func (h *Handlers) submit(c *gin.Context, id string, req *models.PatchRequest) {
	selected := filterSelectedReports(req.SelectedReports)
	coords := browserCoords(req.Coords)

	submission, err := h.db.SubmitSubmission(c.Request.Context(), id, selected, coords, time.Now())
	if errors.Is(err, database.ErrNotFound) {
		log.Errorf("Submission ID not found: %s", id)
		c.String(http.StatusNotFound, "Submission ID Not Found")
		return
	}
	if err != nil {
		log.Errorf("Failed to submit %s: %v", id, err)
		c.String(http.StatusInternalServerError, "Failed to submit the submission.")
		return
	}
	c.JSON(http.StatusOK, submission)
}

func (h *Handlers) resolve(c *gin.Context, id string) {
	err := h.db.ResolveSubmission(c.Request.Context(), id, time.Now())
	if errors.Is(err, database.ErrNotFound) {
		log.Errorf("Submission ID not found: %s", id)
		c.String(http.StatusNotFound, "Submission ID Not Found")
		return
	}
	if err != nil {
		log.Errorf("Failed to resolve %s: %v", id, err)
		c.String(http.StatusInternalServerError, "Failed to resolve the submission.")
		return
	}
	c.Status(http.StatusNoContent)
}

// filterSelectedReports keeps only entries that follow the report-id naming
// convention; anything else the client sent is silently dropped.
func filterSelectedReports(in []string) []string {
	out := []string{}
	for _, r := range in {
		if strings.HasPrefix(r, "report-") {
			out = append(out, r)
		}
	}
	return out
}

// browserCoords normalizes optional client coordinates. A missing or partial
// pair defaults to (0, 0).
func browserCoords(pc *models.PatchCoords) models.Coordinates {
	if pc == nil || pc.Latitude == nil || pc.Longitude == nil {
		return models.Coordinates{}
	}
	lat := pc.Latitude.Round(exifgps.Precision)
	lon := pc.Longitude.Round(exifgps.Precision)
	latF, _ := lat.Float64()
	lonF, _ := lon.Float64()
	if !s2.LatLngFromDegrees(latF, lonF).IsValid() {
		log.Warnf("Client sent out-of-range coordinates (%s, %s)", lat, lon)
	}
	return models.Coordinates{Latitude: lat, Longitude: lon}
}

