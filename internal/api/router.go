// Package api wires the admin HTTP surface: dispatch records, document
// logs, printers, accounts, maintenance controls, cluster state and the
// live event feed.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/printworks/relay/internal/api/handlers"
	"github.com/printworks/relay/internal/api/middleware"
)

type Handlers struct {
	Auth       *middleware.AuthMiddleware
	Dispatches *handlers.DispatchHandler
	Documents  *handlers.DocumentHandler
	Printers   *handlers.PrinterHandler
	Accounts   *handlers.AccountHandler
	Admin      *handlers.AdminHandler
}

func SetupRouter(h Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	// Peer pickup is machine-to-machine, outside the admin session.
	router.GET("/proxy/documents", h.Admin.PickupDocument)

	auth := router.Group("/auth")
	{
		auth.POST("/login", h.Auth.LoginHandler)
		auth.POST("/logout", h.Auth.LogoutHandler)
		auth.GET("/status", h.Auth.StatusHandler)
		auth.POST("/setup", h.Auth.SetupHandler)
	}

	api := router.Group("/api")
	api.Use(h.Auth.RequireAuth())
	{
		api.POST("/auth/password", h.Auth.ChangePasswordHandler)

		api.GET("/dispatches", h.Dispatches.ListDispatches)
		api.GET("/dispatches/:correlation", h.Dispatches.GetDispatch)
		api.GET("/dispatches/:correlation/transactions", h.Dispatches.ListDispatchTransactions)
		api.POST("/dispatches/:correlation/release", h.Dispatches.ReleaseDispatch)
		api.POST("/dispatches/:correlation/cancel", h.Dispatches.CancelDispatch)

		api.GET("/documents", h.Documents.ListDocumentLogs)
		api.GET("/documents/:id", h.Documents.GetDocumentLog)

		api.GET("/printers", h.Printers.ListPrinters)
		api.POST("/printers", h.Printers.CreatePrinter)
		api.GET("/printers/:name", h.Printers.GetPrinter)
		api.PUT("/printers/:name", h.Printers.UpdatePrinter)
		api.DELETE("/printers/:name", h.Printers.DeletePrinter)

		api.GET("/accounts", h.Accounts.ListAccounts)
		api.GET("/accounts/:name", h.Accounts.GetAccount)
		api.GET("/accounts/:name/transactions", h.Accounts.ListAccountTransactions)

		api.GET("/cluster/nodes", h.Admin.ClusterNodes)
		api.GET("/maintenance", h.Admin.MaintenanceStatus)
		api.POST("/maintenance/suspend", h.Admin.SuspendMaintenance)
		api.POST("/maintenance/resume", h.Admin.ResumeMaintenance)
		api.POST("/poller/enable", h.Admin.EnablePoller)
		api.POST("/poller/disable", h.Admin.DisablePoller)
		api.PUT("/settings/quota", h.Admin.SetQuotaMode)
		api.GET("/feed", h.Admin.EventFeed)
	}

	return router
}
