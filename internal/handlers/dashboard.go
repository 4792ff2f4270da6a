package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK        = "ok"
	statusDegraded  = "degraded"
	statusRefreshed = "refreshed"

	errLoadHistory       = "failed to load history"
	errLoadDrains        = "failed to load drains"
	errLoadDiscrepancies = "failed to load discrepancies"
	errDetect            = "discrepancy detection failed"

	defaultHistoryHours = 24
	maxHistoryHours     = 24 * 30
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// @Summary      Health check
// @Description  Reports degraded when the upstream feed is unreachable.
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	status := statusOK
	if h.store.Degraded() {
		status = statusDegraded
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      status,
		"last_update": h.store.LastUpdate(),
		"pending":     h.store.PendingCount(),
	})
}

// @Summary      List cauldrons
// @Tags         cauldrons
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, cauldrons"
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/cauldrons [get]
// @Security     BearerAuth
func (h *Handler) listCauldrons(c *gin.Context) {
	cauldrons := h.store.Cauldrons()
	c.JSON(http.StatusOK, gin.H{
		"count":     len(cauldrons),
		"cauldrons": cauldrons,
	})
}

// @Summary      Get one cauldron
// @Tags         cauldrons
// @Produce      json
// @Param        id   path      string  true  "Cauldron id"
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/cauldrons/{id} [get]
// @Security     BearerAuth
func (h *Handler) getCauldron(c *gin.Context) {
	id := c.Param("id")
	cauldron, ok := h.store.Cauldron(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown cauldron"})
		return
	}
	c.JSON(http.StatusOK, cauldron)
}

// @Summary      Get the market node
// @Tags         cauldrons
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/market [get]
// @Security     BearerAuth
func (h *Handler) getMarket(c *gin.Context) {
	market, ok := h.store.Market()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "market not loaded"})
		return
	}
	c.JSON(http.StatusOK, market)
}

// @Summary      List active alerts
// @Tags         alerts
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, alerts"
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/alerts [get]
// @Security     BearerAuth
func (h *Handler) listAlerts(c *gin.Context) {
	alerts := h.store.Alerts()
	c.JSON(http.StatusOK, gin.H{
		"count":  len(alerts),
		"alerts": alerts,
	})
}

// @Summary      Get history window
// @Description  Either ?hours=N (default 24) or ?from/?to (RFC3339 or YYYY-MM-DD, each bound optional).
// @Tags         history
// @Produce      json
// @Param        hours  query  int     false  "Window size ending now"  example(24)
// @Param        from   query  string  false  "Window start"
// @Param        to     query  string  false  "Window end"
// @Success      200  {object}  map[string]interface{}  "count, snapshots"
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /api/v1/history [get]
// @Security     BearerAuth
func (h *Handler) getHistory(c *gin.Context) {
	start, end, ok := h.parseHistoryWindow(c)
	if !ok {
		return
	}

	snaps, err := h.services.History.Window(c.Request.Context(), start, end)
	if err != nil {
		h.logAndJSONError(c, http.StatusBadGateway, errLoadHistory, "history_window_failed", err, "start", start, "end", end)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":     len(snaps),
		"snapshots": snaps,
	})
}

// parseHistoryWindow resolves the requested window. On a bad request it
// writes the 400 itself and returns ok=false.
func (h *Handler) parseHistoryWindow(c *gin.Context) (time.Time, time.Time, bool) {
	fromQ, toQ := c.Query("from"), c.Query("to")
	if fromQ != "" || toQ != "" {
		// Each bound is optional on its own: a missing 'to' means now, a
		// missing 'from' means the default window back from 'to'.
		to := time.Now().UTC()
		if toQ != "" {
			parsed, err := parseQueryTime(toQ)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": errToInvalid})
				return time.Time{}, time.Time{}, false
			}
			to = parsed.UTC()
			if isDateOnly(toQ) {
				to = to.Add(24*time.Hour - time.Nanosecond)
			}
		}
		from := to.Add(-defaultHistoryHours * time.Hour)
		if fromQ != "" {
			parsed, err := parseQueryTime(fromQ)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": errFromInvalid})
				return time.Time{}, time.Time{}, false
			}
			from = parsed.UTC()
		}
		if from.After(to) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "'from' must be <= 'to'"})
			return time.Time{}, time.Time{}, false
		}
		return from, to, true
	}

	hours := defaultHistoryHours
	if qs := c.Query("hours"); qs != "" {
		v, err := strconv.Atoi(qs)
		if err != nil || v <= 0 || v > maxHistoryHours {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'hours'"})
			return time.Time{}, time.Time{}, false
		}
		hours = v
	}
	end := time.Now().UTC()
	return end.Add(-time.Duration(hours) * time.Hour), end, true
}

// @Summary      Get history plus the live column
// @Description  Returns the in-memory history list with a synthesized rightmost column built from current levels.
// @Tags         history
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, snapshots, live"
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/history/live [get]
// @Security     BearerAuth
func (h *Handler) getLiveHistory(c *gin.Context) {
	snaps := h.store.History()
	c.JSON(http.StatusOK, gin.H{
		"count":     len(snaps),
		"snapshots": snaps,
		"live":      h.store.LiveSnapshot(),
	})
}

// @Summary      List drain events
// @Tags         drains
// @Produce      json
// @Param        start_date  query  string  false  "YYYY-MM-DD"
// @Param        end_date    query  string  false  "YYYY-MM-DD"
// @Success      200  {object}  map[string]interface{}  "count, drains"
// @Failure      401  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /api/v1/drains [get]
// @Security     BearerAuth
func (h *Handler) listDrains(c *gin.Context) {
	drains, err := h.services.Discrepancies.Drains(c.Request.Context(), c.Query("start_date"), c.Query("end_date"))
	if err != nil {
		h.logAndJSONError(c, http.StatusBadGateway, errLoadDrains, "drains_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(drains),
		"drains": drains,
	})
}

// @Summary      Get discrepancy report
// @Tags         discrepancies
// @Produce      json
// @Param        severity     query  string  false  "Severity filter"  Enums(critical,warning,info)
// @Param        cauldron_id  query  string  false  "Cauldron filter"
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /api/v1/discrepancies [get]
// @Security     BearerAuth
func (h *Handler) getDiscrepancies(c *gin.Context) {
	report, err := h.services.Discrepancies.Report(c.Request.Context(), c.Query("severity"), c.Query("cauldron_id"))
	if err != nil {
		h.logAndJSONError(c, http.StatusBadGateway, errLoadDiscrepancies, "discrepancies_report_failed", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// @Summary      Run discrepancy detection
// @Description  Triggers upstream detection over a date window; found discrepancies also raise alerts.
// @Tags         discrepancies
// @Produce      json
// @Param        start_date  query  string  false  "YYYY-MM-DD"
// @Param        end_date    query  string  false  "YYYY-MM-DD"
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /api/v1/discrepancies/detect [post]
// @Security     BearerAuth
func (h *Handler) detectDiscrepancies(c *gin.Context) {
	report, err := h.services.Discrepancies.Detect(c.Request.Context(), c.Query("start_date"), c.Query("end_date"))
	if err != nil {
		h.logAndJSONError(c, http.StatusBadGateway, errDetect, "discrepancies_detect_failed", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// @Summary      Drop cached history windows
// @Tags         history
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/refresh [post]
// @Security     BearerAuth
func (h *Handler) refresh(c *gin.Context) {
	h.services.History.Refresh()
	c.JSON(http.StatusOK, gin.H{"status": statusRefreshed})
}
