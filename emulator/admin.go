package emulator

import (
	// Go Internal Packages
	"net/http"
	"strconv"
	"time"

	// Local Packages
	metrics "termbridge/metrics"
	models "termbridge/models"
	utils "termbridge/utils"

	// External Packages
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StateReader is the slice of the store the admin surface needs. All
// of it is read only.
type StateReader interface {
	CurrentBatch() *models.Batch
	Unsettled() []*models.Transaction
	Recent(limit int) []*models.Transaction
	StatsSnapshot() models.Statistics
}

// AdminRouter exposes the emulator state over HTTP for inspection.
// Nothing here mutates the store; commands only arrive over the
// terminal link.
func AdminRouter(logger *zap.Logger, m *metrics.Metrics, store StateReader) *gin.Engine {
	started := time.Now()
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   utils.NowISO(),
			"uptime": time.Since(started).Round(time.Second).String(),
		})
	})

	router.GET("/metrics", gin.WrapH(m.Handler()))

	router.GET("/transactions", func(c *gin.Context) {
		limit := 20
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "limit must be a positive integer"})
				return
			}
			limit = parsed
		}
		summaries := make([]models.TxSummary, 0, limit)
		for _, tx := range store.Recent(limit) {
			summaries = append(summaries, tx.Transform())
		}
		c.JSON(http.StatusOK, gin.H{"count": len(summaries), "transactions": summaries})
	})

	router.GET("/batch", func(c *gin.Context) {
		batch := store.CurrentBatch()
		if batch == nil {
			c.JSON(http.StatusOK, gin.H{"open": false})
			return
		}
		unsettled := store.Unsettled()
		total := "0.00"
		for _, tx := range unsettled {
			total = models.SumAmounts(total, tx.TotalAmount)
		}
		c.JSON(http.StatusOK, gin.H{
			"open":           true,
			"batchId":        batch.ID,
			"openTime":       batch.OpenTime,
			"count":          len(batch.Transactions),
			"unsettledCount": len(unsettled),
			"unsettledTotal": total,
		})
	})

	router.GET("/statistics", func(c *gin.Context) {
		c.JSON(http.StatusOK, store.StatsSnapshot())
	})

	logger.Info("admin surface ready")
	return router
}
