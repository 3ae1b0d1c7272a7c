package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/wms_backend/config"
	"bitbucket.org/mmdatafocus/wms_backend/models"
	"bitbucket.org/mmdatafocus/wms_backend/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// respondError maps the error taxonomy onto HTTP statuses: validation
// to 400, missing records to 404, lifecycle/stock conflicts to 409,
// everything else to 500.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrInsufficientStock),
		errors.Is(err, models.ErrNegativeStock),
		errors.Is(err, models.ErrReservationMismatch),
		errors.Is(err, models.ErrConcurrentModification):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger := config.GetLogger()
		config.LogError(logger, "server.go", c.FullPath(), "handler", nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parseId(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, fallback int) int {
	v := c.Query(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func queryInt64(c *gin.Context, name string) int64 {
	n, _ := strconv.ParseInt(c.Query(name), 10, 64)
	return n
}

// actorIdFrom reads the acting user's id from the x-actor-id header.
// Identity is established upstream; the core only threads it through.
func actorIdFrom(c *gin.Context) int64 {
	id, _ := strconv.ParseInt(c.GetHeader("x-actor-id"), 10, 64)
	return id
}

func orderFilterFrom(c *gin.Context) models.OrderListFilter {
	return models.OrderListFilter{
		OrderNo:   c.Query("orderNo"),
		Status:    models.OrderStatus(c.Query("status")),
		StartDate: c.Query("startDate"),
		EndDate:   c.Query("endDate"),
		Page:      queryInt(c, "page", 0),
		PageSize:  queryInt(c, "pageSize", 0),
	}
}

type transitionRequest struct {
	TargetStatus models.OrderStatus      `json:"targetStatus" binding:"required"`
	ActorId      int64                   `json:"actorId"`
	Picks        []models.PickedQuantity `json:"picks"`
}

func (req *transitionRequest) bindAndCheck(c *gin.Context) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	if _, err := models.ParseOrderStatus(string(req.TargetStatus)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	if req.ActorId == 0 {
		req.ActorId = actorIdFrom(c)
	}
	return true
}

func registerCatalogRoutes(api *gin.RouterGroup) {
	api.GET("/categories", func(c *gin.Context) {
		results, err := models.ListCategories(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	})
	api.POST("/categories", func(c *gin.Context) {
		var input models.NewCategory
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		category, err := models.CreateCategory(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, category)
	})
	api.GET("/categories/:id", func(c *gin.Context) {
		id, ok := parseId(c)
		if !ok {
			return
		}
		category, err := models.GetCategory(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, category)
	})
	api.PUT("/categories/:id", func(c *gin.Context) {
		id, ok := parseId(c)
		if !ok {
			return
		}
		var input models.NewCategory
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		category, err := models.UpdateCategory(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, category)
	})

	api.GET("/suppliers", func(c *gin.Context) {
		var name *string
		if v := c.Query("name"); v != "" {
			name = &v
		}
		results, err := models.ListSuppliers(c.Request.Context(), name)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	})
	api.POST("/suppliers", func(c *gin.Context) {
		var input models.NewSupplier
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		supplier, err := models.CreateSupplier(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, supplier)
	})
	api.GET("/suppliers/:id", func(c *gin.Context) {
		id, ok := parseId(c)
		if !ok {
			return
		}
		supplier, err := models.GetSupplier(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, supplier)
	})
	api.PUT("/suppliers/:id", func(c *gin.Context) {
		id, ok := parseId(c)
		if !ok {
			return
		}
		var input models.NewSupplier
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		supplier, err := models.UpdateSupplier(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, supplier)
	})
	api.PATCH("/suppliers/:id/active", func(c *gin.Context) {
		id, ok := parseId(c)
		if !ok {
			return
		}
		var body struct {
			IsActive *bool `json:"is_active" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		supplier, err := models.ToggleActiveSupplier(c.Request.Context(), id, *body.IsActive)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, supplier)
	})

	api.GET("/warehouses", func(c *gin.Context) {
		results, err := models.ListWarehouses(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	})
	api.POST("/warehouses", func(c *gin.Context) {
		var input models.NewWarehouse
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		warehouse, err := models.CreateWarehouse(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, warehouse)
	})
	api.GET("/warehouses/:id", func(c *gin.Context) {
		id, ok := parseId(c)
		if !ok {
			return
		}
		warehouse, err := models.GetWarehouse(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, warehouse)
	})
	api.PUT("/warehouses/:id", func(c *gin.Context) {
		id, ok := parseId(c)
		if !ok {
			return
		}
		var input models.NewWarehouse
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		warehouse, err := models.UpdateWarehouse(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, warehouse)
	})

	api.GET("/products", func(c *gin.Context) {
		var name *string
		if v := c.Query("name"); v != "" {
			name = &v
		}
		results, err := models.ListProducts(c.Request.Context(), name,
			queryInt(c, "page", 0), queryInt(c, "pageSize", 0))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	})
	api.POST("/products", func(c *gin.Context) {
		var input models.NewProduct
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		product, err := models.CreateProduct(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, product)
	})
	api.GET("/products/:id", func(c *gin.Context) {
		id, ok := parseId(c)
		if !ok {
			return
		}
		product, err := models.GetProduct(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, product)
	})
	api.PUT("/products/:id", func(c *gin.Context) {
		id, ok := parseId(c)
		if !ok {
			return
		}
		var input models.NewProduct
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		product, err := models.UpdateProduct(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, product)
	})
	api.PATCH("/products/:id/active", func(c *gin.Context) {
		id, ok := parseId(c)
		if !ok {
			return
		}
		var body struct {
			IsActive *bool `json:"is_active" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		product, err := models.ToggleActiveProduct(c.Request.Context(), id, *body.IsActive)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, product)
	})
}

func registerOrderRoutes(api *gin.RouterGroup) {
	api.GET("/procurements", func(c *gin.Context) {
		page, err := models.ListProcurements(c.Request.Context(), orderFilterFrom(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	})
	api.POST("/procurements", func(c *gin.Context) {
		var input models.NewProcurement
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		procurement, err := models.CreateProcurement(c.Request.Context(), &input, actorIdFrom(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, procurement)
	})
	api.GET("/procurements/:id", func(c *gin.Context) {
		id, ok := parseId(c)
		if !ok {
			return
		}
		procurement, err := models.GetProcurement(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, procurement)
	})
	api.PUT("/procurements/:id", func(c *gin.Context) {
		id, ok := parseId(c)
		if !ok {
			return
		}
		var input models.NewProcurement
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		procurement, err := models.UpdateProcurement(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, procurement)
	})
	api.DELETE("/procurements/:id", func(c *gin.Context) {
		id, ok := parseId(c)
		if !ok {
			return
		}
		if err := models.DeleteProcurement(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
	api.POST("/procurements/:id/transition", func(c *gin.Context) {
		id, ok := parseId(c)
		if !ok {
			return
		}
		var req transitionRequest
		if !req.bindAndCheck(c) {
			return
		}
		procurement, err := models.TransitionProcurement(c.Request.Context(), id, req.TargetStatus, req.ActorId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, procurement)
	})

	api.GET("/inbounds", func(c *gin.Context) {
		page, err := models.ListInbounds(c.Request.Context(), orderFilterFrom(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	})
	api.GET("/inbounds/prefill", func(c *gin.Context) {
		procurementId := queryInt64(c, "procurementId")
		warehouseId := queryInt64(c, "warehouseId")
		if procurementId <= 0 || warehouseId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "procurementId and warehouseId are required"})
			return
		}
		input, err := models.PrefillInboundFromProcurement(c.Request.Context(), procurementId, warehouseId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, input)
	})
	api.POST("/inbounds", func(c *gin.Context) {
		var input models.NewInbound
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		inbound, err := models.CreateInbound(c.Request.Context(), &input, actorIdFrom(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, inbound)
	})
	api.GET("/inbounds/:id", func(c *gin.Context) {
		id, ok := parseId(c)
		if !ok {
			return
		}
		inbound, err := models.GetInbound(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, inbound)
	})
	api.PUT("/inbounds/:id", func(c *gin.Context) {
		id, ok := parseId(c)
		if !ok {
			return
		}
		var input models.NewInbound
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		inbound, err := models.UpdateInbound(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, inbound)
	})
	api.DELETE("/inbounds/:id", func(c *gin.Context) {
		id, ok := parseId(c)
		if !ok {
			return
		}
		if err := models.DeleteInbound(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
	api.POST("/inbounds/:id/transition", func(c *gin.Context) {
		id, ok := parseId(c)
		if !ok {
			return
		}
		var req transitionRequest
		if !req.bindAndCheck(c) {
			return
		}
		inbound, err := models.TransitionInbound(c.Request.Context(), id, req.TargetStatus, req.ActorId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, inbound)
	})

	api.GET("/outbounds", func(c *gin.Context) {
		page, err := models.ListOutbounds(c.Request.Context(), orderFilterFrom(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	})
	api.POST("/outbounds", func(c *gin.Context) {
		var input models.NewOutbound
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		outbound, err := models.CreateOutbound(c.Request.Context(), &input, actorIdFrom(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, outbound)
	})
	api.GET("/outbounds/:id", func(c *gin.Context) {
		id, ok := parseId(c)
		if !ok {
			return
		}
		outbound, err := models.GetOutbound(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, outbound)
	})
	api.PUT("/outbounds/:id", func(c *gin.Context) {
		id, ok := parseId(c)
		if !ok {
			return
		}
		var input models.NewOutbound
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		outbound, err := models.UpdateOutbound(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, outbound)
	})
	api.DELETE("/outbounds/:id", func(c *gin.Context) {
		id, ok := parseId(c)
		if !ok {
			return
		}
		if err := models.DeleteOutbound(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
	api.POST("/outbounds/:id/transition", func(c *gin.Context) {
		id, ok := parseId(c)
		if !ok {
			return
		}
		var req transitionRequest
		if !req.bindAndCheck(c) {
			return
		}
		outbound, err := models.TransitionOutbound(c.Request.Context(), id, req.TargetStatus, req.ActorId, req.Picks)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, outbound)
	})

	api.GET("/inventory-checks", func(c *gin.Context) {
		page, err := models.ListInventoryChecks(c.Request.Context(), orderFilterFrom(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	})
	api.POST("/inventory-checks", func(c *gin.Context) {
		var input models.NewInventoryCheck
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		check, err := models.CreateInventoryCheck(c.Request.Context(), &input, actorIdFrom(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, check)
	})
	api.GET("/inventory-checks/:id", func(c *gin.Context) {
		id, ok := parseId(c)
		if !ok {
			return
		}
		check, err := models.GetInventoryCheck(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, check)
	})
	api.DELETE("/inventory-checks/:id", func(c *gin.Context) {
		id, ok := parseId(c)
		if !ok {
			return
		}
		if err := models.DeleteInventoryCheck(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
	api.POST("/inventory-checks/:id/counts", func(c *gin.Context) {
		id, ok := parseId(c)
		if !ok {
			return
		}
		var body struct {
			Counts []models.CheckCount `json:"counts" binding:"required,dive"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		check, err := models.RecordCheckCounts(c.Request.Context(), id, body.Counts)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, check)
	})
	api.POST("/inventory-checks/:id/transition", func(c *gin.Context) {
		id, ok := parseId(c)
		if !ok {
			return
		}
		var req transitionRequest
		if !req.bindAndCheck(c) {
			return
		}
		check, err := models.TransitionInventoryCheck(c.Request.Context(), id, req.TargetStatus, req.ActorId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, check)
	})
}

func registerStockRoutes(api *gin.RouterGroup) {
	api.GET("/stocks", func(c *gin.Context) {
		filter := models.StockListFilter{
			ProductName: c.Query("name"),
			WarehouseId: queryInt64(c, "warehouseId"),
			LowStock:    c.Query("lowStock") == "true",
			Page:        queryInt(c, "page", 0),
			PageSize:    queryInt(c, "pageSize", 0),
		}
		page, err := models.ListStock(c.Request.Context(), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	})
	api.GET("/stocks/:id", func(c *gin.Context) {
		id, ok := parseId(c)
		if !ok {
			return
		}
		line, err := models.GetStockLine(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, line)
	})
	api.GET("/stocks/available", func(c *gin.Context) {
		productId := queryInt64(c, "productId")
		warehouseId := queryInt64(c, "warehouseId")
		if productId <= 0 || warehouseId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "productId and warehouseId are required"})
			return
		}
		var location, batchNo *string
		if v := c.Query("location"); v != "" {
			location = &v
		}
		if v := c.Query("batchNo"); v != "" {
			batchNo = &v
		}
		available, err := models.GetAvailable(c.Request.Context(), config.GetDB(), productId, warehouseId, location, batchNo)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"available_qty": available})
	})

	api.GET("/stock-movements", func(c *gin.Context) {
		filter := models.MovementListFilter{
			ProductId: queryInt64(c, "productId"),
			Type:      models.MovementType(c.Query("type")),
			RelatedNo: c.Query("relatedNo"),
			StartDate: c.Query("startDate"),
			EndDate:   c.Query("endDate"),
			Page:      queryInt(c, "page", 0),
			PageSize:  queryInt(c, "pageSize", 0),
		}
		page, err := models.ListStockMovements(c.Request.Context(), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	})

	api.GET("/dashboard/overview", func(c *gin.Context) {
		stats, err := models.GetOverviewStats(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	})
	api.GET("/dashboard/trend", func(c *gin.Context) {
		points, err := models.GetStockTrend(c.Request.Context(), queryInt(c, "days", 7))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, points)
	})
	api.GET("/dashboard/category-stock", func(c *gin.Context) {
		results, err := models.GetCategoryStock(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	})
}

// customErrorLogger logs only requests that collected errors.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func main() {
	// keep decimal JSON as numbers, not strings
	decimal.MarshalJSONWithoutQuotes = true

	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server first; app endpoints return 503 until the
	// database is up.
	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "x-actor-id", "x-correlation-id")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	api := r.Group("/api/v1")
	registerCatalogRoutes(api)
	registerOrderRoutes(api)
	registerStockRoutes(api)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	logger.WithFields(logrus.Fields{"field": "http"}).Info("listening on :", port)

	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}
