package dashboard

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lenddash-backend/lib/timezone"

	"github.com/gin-gonic/gin"
)

// Router builds the JSON API the dashboard UI polls. Cache errors
// never turn into HTTP failures: routes always answer valid JSON with
// a non-null "error" field instead.
func (s *Service) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLog())

	api := router.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.POST("/refresh", s.handleRefresh)
		api.POST("/cache/clear", s.handleCacheClear)
		api.GET("/debug", s.handleDebug)

		for _, tag := range []string{"eli", "nbl", "cp", "lr"} {
			api.GET("/"+tag+"-top3", s.handleTop3(strings.ToUpper(tag)))
			api.GET("/"+tag+"-top-state", s.handleTopState(strings.ToUpper(tag)))
		}

		api.GET("/dashboard-stats", s.handleDashboardStats)
		api.GET("/daily-performance", s.handleDailyPerformance)
		api.GET("/cp-lr-stats", s.handleCpLrStats)
		api.GET("/cp-lr-daily", s.handleCpLrDaily)
	}

	return router
}

func requestLog() gin.HandlerFunc {
	return gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/api/health"},
	})
}

// monthYear reads the month/year query args, defaulting to the
// current IST month so "today's dashboard" needs no arguments.
func monthYear(c *gin.Context) (int, time.Month) {
	now := timezone.Now()
	year := now.Year()
	month := now.Month()

	if v, err := strconv.Atoi(c.Query("year")); err == nil {
		year = v
	}
	if v, err := strconv.Atoi(c.Query("month")); err == nil && v >= 1 && v <= 12 {
		month = time.Month(v)
	}
	return year, month
}

// errOrNull maps the cache's empty error string to JSON null.
func errOrNull(errStr string) any {
	if errStr == "" {
		return nil
	}
	return errStr
}

func monthName(year int, month time.Month) string {
	return fmt.Sprintf("%s %d", month.String(), year)
}

func (s *Service) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Service) handleRefresh(c *gin.Context) {
	year, month := monthYear(c)
	s.KickoffRefresh(year, month)

	entry := s.Entry(year, month)
	var lastTs any
	if !entry.Timestamp.IsZero() {
		lastTs = entry.Timestamp.Unix()
	}
	c.JSON(http.StatusOK, gin.H{
		"year":              year,
		"month":             int(month),
		"cache_ttl_seconds": int(s.CacheTTL().Seconds()),
		"refreshing":        entry.Refreshing,
		"last_ts":           lastTs,
		"rows_total":        len(entry.Records),
		"last_error":        errOrNull(entry.Error),
	})
}

func (s *Service) handleCacheClear(c *gin.Context) {
	s.ClearCache()
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

func (s *Service) handleDebug(c *gin.Context) {
	year, month := monthYear(c)
	records, errStr := s.GetCached(year, month)

	counts := gin.H{}
	for _, src := range s.sources {
		counts[src.SourceTag()] = 0
	}
	for _, r := range records {
		if n, ok := counts[r.Source].(int); ok {
			counts[r.Source] = n + 1
		}
	}

	sample := records
	if len(sample) > 2 {
		sample = sample[:2]
	}
	c.JSON(http.StatusOK, gin.H{
		"year":              year,
		"month":             int(month),
		"cache_ttl_seconds": int(s.CacheTTL().Seconds()),
		"rows_total":        len(records),
		"rows_by_source":    counts,
		"last_error":        errOrNull(errStr),
		"sample":            sample,
	})
}

func (s *Service) handleTop3(source string) gin.HandlerFunc {
	return func(c *gin.Context) {
		year, month := monthYear(c)
		records, errStr := s.GetCached(year, month)
		c.JSON(http.StatusOK, gin.H{
			"top3":  top3(records, source),
			"error": errOrNull(errStr),
		})
	}
}

func (s *Service) handleTopState(source string) gin.HandlerFunc {
	return func(c *gin.Context) {
		year, month := monthYear(c)
		records, errStr := s.GetCached(year, month)
		st := topState(records, source)
		c.JSON(http.StatusOK, gin.H{
			"state": st.State,
			"total": st.Total,
			"error": errOrNull(errStr),
		})
	}
}

func (s *Service) handleDashboardStats(c *gin.Context) {
	year, month := monthYear(c)
	records, errStr := s.GetCached(year, month)

	eliTotal := sourceTotal(records, "ELI")
	nblTotal := sourceTotal(records, "NBL")
	combined := eliTotal + nblTotal
	combinedTarget := s.targets.ELI + s.targets.NBL

	eliPct := progressPct(eliTotal, s.targets.ELI)
	nblPct := progressPct(nblTotal, s.targets.NBL)

	c.JSON(http.StatusOK, gin.H{
		"year":                year,
		"month":               int(month),
		"error":               errOrNull(errStr),
		"eli_total":           eliTotal,
		"nbl_total":           nblTotal,
		"combined_total":      combined,
		"eli_progress_pct":    eliPct,
		"nbl_progress_pct":    nblPct,
		"leader_progress_pct": progressPct(combined, combinedTarget),
		// score mirrors progress pct
		"eli_score": eliPct,
		"nbl_score": nblPct,
	})
}

func (s *Service) handleCpLrStats(c *gin.Context) {
	year, month := monthYear(c)
	records, errStr := s.GetCached(year, month)

	cpTotal := sourceTotal(records, "CP")
	lrTotal := sourceTotal(records, "LR")
	combined := cpTotal + lrTotal
	combinedTarget := s.targets.CP + s.targets.LR

	cpPct := progressPct(cpTotal, s.targets.CP)
	lrPct := progressPct(lrTotal, s.targets.LR)

	c.JSON(http.StatusOK, gin.H{
		"year":                  year,
		"month":                 int(month),
		"error":                 errOrNull(errStr),
		"cp_total":              cpTotal,
		"lr_total":              lrTotal,
		"combined_total":        combined,
		"cp_progress_pct":       cpPct,
		"lr_progress_pct":       lrPct,
		"combined_progress_pct": progressPct(combined, combinedTarget),
		"cp_score":              cpPct,
		"lr_score":              lrPct,
	})
}

func (s *Service) handleDailyPerformance(c *gin.Context) {
	year, month := monthYear(c)
	records, errStr := s.GetCached(year, month)

	days, eliTotals := dailyTotals(records, "ELI", year, month)
	_, nblTotals := dailyTotals(records, "NBL", year, month)

	c.JSON(http.StatusOK, gin.H{
		"current_month":    monthName(year, month),
		"error":            errOrNull(errStr),
		"days":             days,
		"eli_daily_totals": eliTotals,
		"nbl_daily_totals": nblTotals,
	})
}

func (s *Service) handleCpLrDaily(c *gin.Context) {
	year, month := monthYear(c)
	records, errStr := s.GetCached(year, month)

	days, cpTotals := dailyTotals(records, "CP", year, month)
	_, lrTotals := dailyTotals(records, "LR", year, month)

	c.JSON(http.StatusOK, gin.H{
		"current_month":   monthName(year, month),
		"error":           errOrNull(errStr),
		"days":            days,
		"cp_daily_totals": cpTotals,
		"lr_daily_totals": lrTotals,
	})
}
