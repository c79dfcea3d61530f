package routes

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/joy095/treasury/controllers/payment_webhook_controller"
	"github.com/joy095/treasury/controllers/treasury_controller"
	"github.com/joy095/treasury/middlewares/auth"
)

// Deps holds what the treasury routes are built from.
type Deps struct {
	Treasury  *treasury_controller.TreasuryController
	Webhook   *payment_webhook_controller.PaymentWebhookController
	JWTSecret []byte
	// PayoutLimiter guards payout creation; nil disables rate limiting.
	PayoutLimiter gin.HandlerFunc
}

func RegisterTreasuryRoutes(router *gin.Engine, deps Deps) error {
	if deps.Treasury == nil || deps.Webhook == nil {
		return fmt.Errorf("routes: treasury and webhook controllers are required")
	}
	if len(deps.JWTSecret) == 0 {
		return fmt.Errorf("routes: JWT secret is required")
	}

	router.GET("/health", deps.Treasury.Health)
	router.HEAD("/health", deps.Treasury.Health)

	router.POST("/webhook/payment", deps.Webhook.HandlePayment)

	// All routes within this group are protected by the admin middleware
	admin := router.Group("/admin")
	admin.Use(auth.AdminMiddleware(deps.JWTSecret))
	{
		payoutHandlers := []gin.HandlerFunc{}
		if deps.PayoutLimiter != nil {
			payoutHandlers = append(payoutHandlers, deps.PayoutLimiter)
		}
		payoutHandlers = append(payoutHandlers, deps.Treasury.IssuePayout)

		admin.POST("/stores/:store_id/payouts", payoutHandlers...)
		admin.GET("/stores/:store_id/pending", deps.Treasury.GetPendingForStore)
		admin.GET("/treasury", deps.Treasury.GetTreasury)
		admin.GET("/dashboard", deps.Treasury.GetDashboard)
		admin.GET("/payouts/pending", deps.Treasury.GetPendingByStore)
		admin.GET("/payouts", deps.Treasury.GetPayoutHistory)
	}
	return nil
}

