package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/internal/returns"
	"github.com/angelmondragon/storefront-backend/internal/reviews"
	"github.com/angelmondragon/storefront-backend/internal/shipping"
	"github.com/angelmondragon/storefront-backend/internal/wishlist"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// Services bundles the handlers' dependencies.
type Services struct {
	Products      products.Service
	Cart          cart.Service
	Checkout      checkout.Service
	Orders        orders.Service
	Coupons       coupons.Service
	Shipping      shipping.Service
	Payments      payments.Service
	Notifications notifications.Service
	Wishlist      wishlist.Service
	Reviews       reviews.Service
	Returns       returns.Service
}

// Infra carries shared clients. Redis and Gatherer may be nil.
type Infra struct {
	DB       controllers.Pinger
	Redis    *redis.Client
	Gatherer prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, infra Infra, svc Services) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	var (
		idempotencyStore redis.IdempotencyStore
		limiter          redis.RateLimiter
		redisPinger      controllers.Pinger
	)
	if infra.Redis != nil {
		idempotencyStore = infra.Redis
		limiter = infra.Redis
		redisPinger = infra.Redis
	}

	couponPolicy := middleware.NewRateLimitPolicy("coupon_validate", cfg.RateLimit.CouponWindow, cfg.RateLimit.CouponLimit)
	checkoutPolicy := middleware.NewRateLimitPolicy("checkout", cfg.RateLimit.CheckoutWindow, cfg.RateLimit.CheckoutLimit)
	idempotent := middleware.Idempotency(idempotencyStore, logg)
	checkoutLimit := middleware.RateLimit(checkoutPolicy, limiter, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": infra.DB,
			"redis":    redisPinger,
		}))
	})

	if infra.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(infra.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", controllers.ListProducts(svc.Products, logg))
		r.Get("/products/{productId}", controllers.GetProduct(svc.Products, logg))
		r.Get("/products/{productId}/reviews", controllers.ListProductReviews(svc.Reviews, logg))
		r.Get("/products/{productId}/reviews/stats", controllers.ProductReviewStats(svc.Reviews, logg))
		r.Get("/coupons", controllers.ListCoupons(svc.Coupons, logg))
		r.Post("/shipping/calculate", controllers.ShippingCalculate(svc.Shipping, logg))
		r.Post("/payment/webhook", controllers.PaymentWebhook(svc.Payments, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", controllers.CartFetch(svc.Cart, logg))
				r.Delete("/", controllers.CartClear(svc.Cart, logg))
				r.Post("/items", controllers.CartAddItem(svc.Cart, logg))
				r.Put("/items/{itemId}", controllers.CartUpdateItem(svc.Cart, logg))
				r.Delete("/items/{itemId}", controllers.CartRemoveItem(svc.Cart, logg))
			})

			r.Post("/checkout/preview", controllers.CheckoutPreview(svc.Checkout, logg))

			r.Route("/orders", func(r chi.Router) {
				r.With(checkoutLimit, idempotent).Post("/", controllers.PlaceOrder(svc.Checkout, logg))
				r.Get("/", controllers.ListOrders(svc.Orders, logg))
				r.Get("/{orderId}", controllers.GetOrder(svc.Orders, logg))
				r.With(idempotent).Put("/{orderId}/cancel", controllers.CancelOrder(svc.Orders, logg))
			})

			r.With(middleware.RateLimit(couponPolicy, limiter, logg)).Post("/coupons/validate", controllers.ValidateCoupon(svc.Coupons, logg))

			r.Route("/payment", func(r chi.Router) {
				r.With(idempotent).Post("/create-order", controllers.PaymentCreateOrder(svc.Payments, logg))
				r.With(checkoutLimit, idempotent).Post("/verify-payment", controllers.PaymentVerify(svc.Payments, logg))
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.ListNotifications(svc.Notifications, logg))
				r.Put("/read-all", controllers.MarkAllNotificationsRead(svc.Notifications, logg))
				r.Put("/{notificationId}/read", controllers.MarkNotificationRead(svc.Notifications, logg))
			})

			r.Route("/wishlist", func(r chi.Router) {
				r.Get("/", controllers.WishlistList(svc.Wishlist, logg))
				r.Post("/", controllers.WishlistAdd(svc.Wishlist, logg))
				r.Delete("/", controllers.WishlistClear(svc.Wishlist, logg))
				r.Get("/check/{productId}", controllers.WishlistCheck(svc.Wishlist, logg))
				r.Delete("/{productId}", controllers.WishlistRemove(svc.Wishlist, logg))
			})

			r.Route("/reviews", func(r chi.Router) {
				r.Post("/", controllers.CreateReview(svc.Reviews, logg))
				r.Put("/{reviewId}", controllers.UpdateReview(svc.Reviews, logg))
				r.Delete("/{reviewId}", controllers.DeleteReview(svc.Reviews, logg))
				r.Post("/{reviewId}/helpful", controllers.MarkReviewHelpful(svc.Reviews, logg))
			})

			r.Route("/returns", func(r chi.Router) {
				r.With(idempotent).Post("/", controllers.CreateReturnRequest(svc.Returns, logg))
				r.Get("/my-requests", controllers.ListMyReturnRequests(svc.Returns, logg))
				r.Get("/{requestId}", controllers.GetReturnRequest(svc.Returns, logg))
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.RequireRole(enums.UserRoleAdmin, logg))

			r.Route("/products", func(r chi.Router) {
				r.Get("/", controllers.AdminListProducts(svc.Products, logg))
				r.Post("/", controllers.AdminCreateProduct(svc.Products, logg))
				r.Put("/{productId}", controllers.AdminUpdateProduct(svc.Products, logg))
				r.Delete("/{productId}", controllers.AdminDeleteProduct(svc.Products, logg))
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.AdminListOrders(svc.Orders, logg))
				r.Put("/{orderId}/status", controllers.AdminUpdateOrderStatus(svc.Orders, logg))
			})

			r.Route("/coupons", func(r chi.Router) {
				r.Get("/", controllers.AdminListCoupons(svc.Coupons, logg))
				r.Post("/", controllers.AdminCreateCoupon(svc.Coupons, logg))
				r.Get("/{couponId}", controllers.AdminGetCoupon(svc.Coupons, logg))
				r.Put("/{couponId}", controllers.AdminUpdateCoupon(svc.Coupons, logg))
				r.Patch("/{couponId}/toggle", controllers.AdminToggleCoupon(svc.Coupons, logg))
				r.Delete("/{couponId}", controllers.AdminDeleteCoupon(svc.Coupons, logg))
			})

			r.Route("/shipping-zones", func(r chi.Router) {
				r.Get("/", controllers.AdminListShippingZones(svc.Shipping, logg))
				r.Post("/", controllers.AdminCreateShippingZone(svc.Shipping, logg))
				r.Put("/{zoneId}", controllers.AdminUpdateShippingZone(svc.Shipping, logg))
				r.Delete("/{zoneId}", controllers.AdminDeleteShippingZone(svc.Shipping, logg))
			})

			r.Route("/returns", func(r chi.Router) {
				r.Get("/", controllers.AdminListReturnRequests(svc.Returns, logg))
				r.With(idempotent).Put("/{requestId}/status", controllers.AdminUpdateReturnStatus(svc.Returns, logg))
			})

			r.With(idempotent).Post("/payment/{orderId}/refund", controllers.AdminRefundPayment(svc.Payments, logg))
			r.Get("/notifications", controllers.AdminListNotifications(svc.Notifications, logg))
		})
	})

	return r
}
