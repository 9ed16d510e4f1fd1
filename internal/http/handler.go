package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"workshop-service/internal/http/middleware"
	"workshop-service/internal/model"
	"workshop-service/internal/repository"
	"workshop-service/internal/service"
)

type Handler struct {
	authService      *service.AuthService
	userService      *service.UserService
	clientService    *service.ClientService
	mechanicService  *service.MechanicService
	quoteService     *service.QuoteService
	workOrderService *service.WorkOrderService
	dashboardService *service.DashboardService
	auditService     *service.AuditService
	log              zerolog.Logger
}

func NewHandler(
	authService *service.AuthService,
	userService *service.UserService,
	clientService *service.ClientService,
	mechanicService *service.MechanicService,
	quoteService *service.QuoteService,
	workOrderService *service.WorkOrderService,
	dashboardService *service.DashboardService,
	auditService *service.AuditService,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		authService:      authService,
		userService:      userService,
		clientService:    clientService,
		mechanicService:  mechanicService,
		quoteService:     quoteService,
		workOrderService: workOrderService,
		dashboardService: dashboardService,
		auditService:     auditService,
		log:              log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware, loginLimiter, publicLimiter gin.HandlerFunc) {
	api := r.Group("/api/v1")

	api.POST("/auth/login", loginLimiter, h.login)

	public := r.Group("/public", publicLimiter)
	{
		public.GET("/quotes/:id/approve/:token", h.redeemApprove)
		public.GET("/quotes/:id/reject/:token", h.redeemReject)
	}

	protected := api.Group("/")
	protected.Use(authMiddleware)
	{
		protected.GET("/auth/me", h.me)
		protected.PUT("/auth/password", h.changePassword)

		protected.POST("/users", h.createUser)
		protected.GET("/users", h.listUsers)
		protected.GET("/users/:id", h.getUser)
		protected.PUT("/users/:id", h.updateUser)
		protected.PUT("/users/:id/activate", h.activateUser)
		protected.PUT("/users/:id/deactivate", h.deactivateUser)
		protected.DELETE("/users/:id", h.deleteUser)

		protected.POST("/clients", h.createClient)
		protected.GET("/clients", h.listClients)
		protected.GET("/clients/:id", h.getClient)
		protected.PUT("/clients/:id", h.updateClient)
		protected.DELETE("/clients/:id", h.deleteClient)

		protected.POST("/mechanics", h.createMechanic)
		protected.GET("/mechanics", h.listMechanics)
		protected.GET("/mechanics/:id", h.getMechanic)
		protected.PUT("/mechanics/:id", h.updateMechanic)
		protected.DELETE("/mechanics/:id", h.deleteMechanic)

		protected.POST("/quotes", h.createQuote)
		protected.GET("/quotes", h.listQuotes)
		protected.GET("/quotes/:id", h.getQuote)
		protected.PUT("/quotes/:id", h.updateQuote)
		protected.POST("/quotes/:id/send", h.sendQuote)
		protected.PUT("/quotes/:id/approve", h.approveQuote)
		protected.PUT("/quotes/:id/reject", h.rejectQuote)
		protected.DELETE("/quotes/:id", h.deleteQuote)

		protected.GET("/work-orders", h.listWorkOrders)
		protected.GET("/work-orders/:id", h.getWorkOrder)
		protected.PUT("/work-orders/:id", h.updateWorkOrder)
		protected.PUT("/work-orders/:id/assign", h.assignMechanic)
		protected.PUT("/work-orders/:id/status", h.changeWorkOrderStatus)
		protected.DELETE("/work-orders/:id", h.deleteWorkOrder)

		protected.GET("/dashboard", h.dashboard)
		protected.GET("/audit-logs", h.listAuditLogs)
	}
}

// Auth handlers

func (h *Handler) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	result, err := h.authService.Login(c.Request.Context(), req.Email, req.Password, c.ClientIP())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(result))
}

func (h *Handler) me(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	user, err := h.authService.Me(c.Request.Context(), principal)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(user))
}

func (h *Handler) changePassword(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	var req struct {
		CurrentPassword string `json:"current_password" binding:"required"`
		NewPassword     string `json:"new_password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	if err := h.userService.ChangePassword(c.Request.Context(), principal, req.CurrentPassword, req.NewPassword); err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(gin.H{"message": "password changed"}))
}

// User handlers

func (h *Handler) createUser(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	var req struct {
		Name     string `json:"name" binding:"required"`
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
		Role     string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	user, err := h.userService.Create(c.Request.Context(), principal, service.UserInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     model.UserRole(strings.ToUpper(req.Role)),
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse(user))
}

func (h *Handler) listUsers(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	users, err := h.userService.List(c.Request.Context(), principal, pageFromQuery(c))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(users))
}

func (h *Handler) getUser(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, errorResponse("invalid user id"))
		return
	}

	user, err := h.userService.Get(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(user))
}

func (h *Handler) updateUser(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, errorResponse("invalid user id"))
		return
	}

	var req struct {
		Name  string `json:"name" binding:"required"`
		Email string `json:"email" binding:"required,email"`
		Role  string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	user, err := h.userService.Update(c.Request.Context(), principal, id, service.UserUpdateInput{
		Name:  req.Name,
		Email: req.Email,
		Role:  model.UserRole(strings.ToUpper(req.Role)),
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(user))
}

func (h *Handler) activateUser(c *gin.Context) {
	h.setUserActive(c, true)
}

func (h *Handler) deactivateUser(c *gin.Context) {
	h.setUserActive(c, false)
}

func (h *Handler) setUserActive(c *gin.Context, active bool) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, errorResponse("invalid user id"))
		return
	}

	if err := h.userService.SetActive(c.Request.Context(), principal, id, active); err != nil {
		h.handleError(c, err)
		return
	}

	message := "user deactivated"
	if active {
		message = "user activated"
	}
	c.JSON(http.StatusOK, successResponse(gin.H{"message": message}))
}

func (h *Handler) deleteUser(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, errorResponse("invalid user id"))
		return
	}

	if err := h.userService.Delete(c.Request.Context(), principal, id); err != nil {
		h.handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Client handlers

func (h *Handler) createClient(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	var req struct {
		Name    string `json:"name" binding:"required"`
		Phone   string `json:"phone"`
		Email   string `json:"email"`
		Address string `json:"address"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	client, err := h.clientService.Create(c.Request.Context(), principal, service.ClientInput{
		Name:    req.Name,
		Phone:   req.Phone,
		Email:   req.Email,
		Address: req.Address,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse(client))
}

func (h *Handler) listClients(c *gin.Context) {
	filter := repository.ClientListFilter{
		Search: strings.TrimSpace(c.Query("search")),
		Page:   pageFromQuery(c),
	}

	clients, err := h.clientService.List(c.Request.Context(), filter)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(clients))
}

func (h *Handler) getClient(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, errorResponse("invalid client id"))
		return
	}

	client, err := h.clientService.Get(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(client))
}

func (h *Handler) updateClient(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, errorResponse("invalid client id"))
		return
	}

	var req struct {
		Name    string `json:"name" binding:"required"`
		Phone   string `json:"phone"`
		Email   string `json:"email"`
		Address string `json:"address"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	client, err := h.clientService.Update(c.Request.Context(), principal, id, service.ClientInput{
		Name:    req.Name,
		Phone:   req.Phone,
		Email:   req.Email,
		Address: req.Address,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(client))
}

func (h *Handler) deleteClient(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, errorResponse("invalid client id"))
		return
	}

	if err := h.clientService.Delete(c.Request.Context(), principal, id); err != nil {
		h.handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Mechanic handlers

func (h *Handler) createMechanic(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	var req struct {
		Name      string `json:"name" binding:"required"`
		Specialty string `json:"specialty"`
		Phone     string `json:"phone"`
		Active    *bool  `json:"active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	mechanic, err := h.mechanicService.Create(c.Request.Context(), principal, service.MechanicInput{
		Name:      req.Name,
		Specialty: req.Specialty,
		Phone:     req.Phone,
		Active:    req.Active,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse(mechanic))
}

func (h *Handler) listMechanics(c *gin.Context) {
	filter := repository.MechanicListFilter{
		ActiveOnly: c.Query("active") == "true",
		Page:       pageFromQuery(c),
	}

	mechanics, err := h.mechanicService.List(c.Request.Context(), filter)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(mechanics))
}

func (h *Handler) getMechanic(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, errorResponse("invalid mechanic id"))
		return
	}

	mechanic, err := h.mechanicService.Get(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(mechanic))
}

func (h *Handler) updateMechanic(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, errorResponse("invalid mechanic id"))
		return
	}

	var req struct {
		Name      string `json:"name" binding:"required"`
		Specialty string `json:"specialty"`
		Phone     string `json:"phone"`
		Active    *bool  `json:"active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	mechanic, err := h.mechanicService.Update(c.Request.Context(), principal, id, service.MechanicInput{
		Name:      req.Name,
		Specialty: req.Specialty,
		Phone:     req.Phone,
		Active:    req.Active,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(mechanic))
}

func (h *Handler) deleteMechanic(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, errorResponse("invalid mechanic id"))
		return
	}

	if err := h.mechanicService.Delete(c.Request.Context(), principal, id); err != nil {
		h.handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Quote handlers

type quoteRequest struct {
	ClientID string `json:"client_id" binding:"required"`
	Vehicle  struct {
		Brand   string `json:"brand" binding:"required"`
		Model   string `json:"model" binding:"required"`
		Year    int    `json:"year" binding:"required"`
		Plate   string `json:"plate" binding:"required"`
		Mileage int    `json:"mileage"`
	} `json:"vehicle" binding:"required"`
	Problem       string     `json:"problem" binding:"required"`
	ProposedWork  string     `json:"proposed_work" binding:"required"`
	EstimatedCost float64    `json:"estimated_cost" binding:"required"`
	ValidUntil    *time.Time `json:"valid_until"`
}

func (r quoteRequest) toInput() service.QuoteInput {
	return service.QuoteInput{
		ClientID: r.ClientID,
		Vehicle: model.Vehicle{
			Brand:   r.Vehicle.Brand,
			Model:   r.Vehicle.Model,
			Year:    r.Vehicle.Year,
			Plate:   r.Vehicle.Plate,
			Mileage: r.Vehicle.Mileage,
		},
		Problem:       r.Problem,
		ProposedWork:  r.ProposedWork,
		EstimatedCost: r.EstimatedCost,
		ValidUntil:    r.ValidUntil,
	}
}

func (h *Handler) createQuote(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	quote, err := h.quoteService.Create(c.Request.Context(), principal, req.toInput())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse(quote))
}

func (h *Handler) listQuotes(c *gin.Context) {
	filter := repository.QuoteListFilter{Page: pageFromQuery(c)}

	if status := strings.TrimSpace(c.Query("status")); status != "" {
		qs := model.QuoteStatus(strings.ToLower(status))
		filter.Status = &qs
	}
	if clientID := strings.TrimSpace(c.Query("client_id")); clientID != "" {
		filter.ClientID = &clientID
	}

	quotes, err := h.quoteService.List(c.Request.Context(), filter)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(quotes))
}

func (h *Handler) getQuote(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, errorResponse("invalid quote id"))
		return
	}

	quote, err := h.quoteService.Get(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(quote))
}

func (h *Handler) updateQuote(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, errorResponse("invalid quote id"))
		return
	}

	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	quote, err := h.quoteService.Update(c.Request.Context(), principal, id, req.toInput())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(quote))
}

func (h *Handler) sendQuote(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, errorResponse("invalid quote id"))
		return
	}

	quote, err := h.quoteService.Send(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(quote))
}

func (h *Handler) approveQuote(c *gin.Context) {
	h.decideQuote(c, model.TokenActionApprove)
}

func (h *Handler) rejectQuote(c *gin.Context) {
	h.decideQuote(c, model.TokenActionReject)
}

func (h *Handler) decideQuote(c *gin.Context, action model.TokenAction) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, errorResponse("invalid quote id"))
		return
	}

	quote, order, err := h.quoteService.Decide(c.Request.Context(), principal, id, action)
	if err != nil {
		h.handleError(c, err)
		return
	}

	payload := gin.H{"quote": quote}
	if order != nil {
		payload["work_order"] = order
	}
	c.JSON(http.StatusOK, successResponse(payload))
}

func (h *Handler) deleteQuote(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, errorResponse("invalid quote id"))
		return
	}

	if err := h.quoteService.Delete(c.Request.Context(), principal, id); err != nil {
		h.handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Work order handlers

func (h *Handler) listWorkOrders(c *gin.Context) {
	filter := repository.WorkOrderListFilter{Page: pageFromQuery(c)}

	if status := strings.TrimSpace(c.Query("status")); status != "" {
		ws := model.WorkOrderStatus(strings.ToLower(status))
		filter.Status = &ws
	}
	if mechanicID := strings.TrimSpace(c.Query("mechanic_id")); mechanicID != "" {
		filter.MechanicID = &mechanicID
	}
	if clientID := strings.TrimSpace(c.Query("client_id")); clientID != "" {
		filter.ClientID = &clientID
	}

	orders, err := h.workOrderService.List(c.Request.Context(), filter)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(orders))
}

func (h *Handler) getWorkOrder(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, errorResponse("invalid work order id"))
		return
	}

	order, err := h.workOrderService.Get(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(order))
}

func (h *Handler) updateWorkOrder(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, errorResponse("invalid work order id"))
		return
	}

	var req struct {
		Description       *string    `json:"description"`
		EstimatedCost     *float64   `json:"estimated_cost"`
		FinalCost         *float64   `json:"final_cost"`
		EstimatedDelivery *time.Time `json:"estimated_delivery"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	order, err := h.workOrderService.Update(c.Request.Context(), principal, id, service.WorkOrderUpdateInput{
		Description:       req.Description,
		EstimatedCost:     req.EstimatedCost,
		FinalCost:         req.FinalCost,
		EstimatedDelivery: req.EstimatedDelivery,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(order))
}

func (h *Handler) assignMechanic(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, errorResponse("invalid work order id"))
		return
	}

	var req struct {
		MechanicID string `json:"mechanic_id" binding:"required"`
		Note       string `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	order, err := h.workOrderService.AssignMechanic(c.Request.Context(), principal, id, req.MechanicID, req.Note)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(order))
}

func (h *Handler) changeWorkOrderStatus(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, errorResponse("invalid work order id"))
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
		Note   string `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	order, err := h.workOrderService.ChangeStatus(c.Request.Context(), principal, id, service.StatusChangeInput{
		Target: model.WorkOrderStatus(strings.ToLower(req.Status)),
		Note:   req.Note,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(order))
}

func (h *Handler) deleteWorkOrder(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, errorResponse("invalid work order id"))
		return
	}

	if err := h.workOrderService.Delete(c.Request.Context(), principal, id); err != nil {
		h.handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Dashboard and audit handlers

func (h *Handler) dashboard(c *gin.Context) {
	stats, err := h.dashboardService.Stats(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(stats))
}

func (h *Handler) listAuditLogs(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	filter := repository.AuditListFilter{Page: pageFromQuery(c)}
	if actorID := strings.TrimSpace(c.Query("actor_id")); actorID != "" {
		filter.ActorID = &actorID
	}
	if action := strings.TrimSpace(c.Query("action")); action != "" {
		filter.Action = &action
	}
	if entityType := strings.TrimSpace(c.Query("entity_type")); entityType != "" {
		filter.EntityType = &entityType
	}
	if entityID := strings.TrimSpace(c.Query("entity_id")); entityID != "" {
		filter.EntityID = &entityID
	}

	entries, err := h.auditService.List(c.Request.Context(), principal, filter)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(entries))
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrInvalidTransition):
		c.JSON(http.StatusUnprocessableEntity, errorResponse(err.Error()))
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
	case errors.Is(err, service.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, errorResponse(err.Error()))
	case errors.Is(err, service.ErrAccountLocked):
		c.JSON(http.StatusLocked, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}

func pageFromQuery(c *gin.Context) repository.Page {
	page := repository.Page{}
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			page.Limit = v
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			page.Offset = v
		}
	}
	return page
}
