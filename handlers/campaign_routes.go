// handlers/campaign_routes.go
package handlers

import (
	"campaign-engine-system/middleware"
	"campaign-engine-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupCampaignRoutes(app *fiber.App,
	claimService *services.ClaimService,
	choiceService *services.ChoiceService,
	spinService *services.SpinService,
	upgradeService *services.UpgradeService,
	voucherService *services.VoucherService,
) {
	// 🔐 Secured routes — require user context (userID, roles), enforced via middleware
	secured := app.Group("/s/campaign", middleware.UserContextMiddleware())

	secured.Post("/claim", claimService.Claim)
	secured.Get("/status", claimService.GetStatus)

	secured.Post("/choice", choiceService.Select)
	secured.Delete("/choice", choiceService.Reset)

	secured.Post("/spin", spinService.Spin)
	secured.Post("/upgrades/evaluate", upgradeService.Evaluate)

	secured.Get("/vouchers", voucherService.GetUserVouchers)
	secured.Post("/vouchers/:id/redeem", voucherService.RedeemVoucher)
}
