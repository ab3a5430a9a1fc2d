package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/marketplace-backend/internal/data/db"
	"github.com/yungbote/marketplace-backend/internal/data/repos/catalog"
	"github.com/yungbote/marketplace-backend/internal/data/repos/orders"
	"github.com/yungbote/marketplace-backend/internal/data/repos/payouts"
	"github.com/yungbote/marketplace-backend/internal/platform/logger"
)

type VendorRepo = catalog.VendorRepo
type ProductRepo = catalog.ProductRepo
type CartItemRepo = catalog.CartItemRepo

type CheckoutSessionRepo = orders.CheckoutSessionRepo
type OrderRepo = orders.OrderRepo
type ProcessedEventRepo = orders.ProcessedEventRepo

type PayoutTransferRepo = payouts.PayoutTransferRepo

func NewVendorRepo(db *gorm.DB, baseLog *logger.Logger) VendorRepo {
	return catalog.NewVendorRepo(db, baseLog)
}

func NewProductRepo(db *gorm.DB, baseLog *logger.Logger) ProductRepo {
	return catalog.NewProductRepo(db, baseLog)
}

func NewCartItemRepo(db *gorm.DB, baseLog *logger.Logger) CartItemRepo {
	return catalog.NewCartItemRepo(db, baseLog)
}

func NewCheckoutSessionRepo(db *gorm.DB, baseLog *logger.Logger) CheckoutSessionRepo {
	return orders.NewCheckoutSessionRepo(db, baseLog)
}

func NewOrderRepo(db *gorm.DB, baseLog *logger.Logger) OrderRepo {
	return orders.NewOrderRepo(db, baseLog)
}

func NewProcessedEventRepo(db *gorm.DB, baseLog *logger.Logger) ProcessedEventRepo {
	return orders.NewProcessedEventRepo(db, baseLog)
}

func NewPayoutTransferRepo(db *gorm.DB, baseLog *logger.Logger) PayoutTransferRepo {
	return payouts.NewPayoutTransferRepo(db, baseLog)
}

// IsUniqueViolation reports whether err is a unique or primary key conflict.
func IsUniqueViolation(err error) bool {
	return db.IsUniqueViolation(err)
}

// Repos bundles every repository the services use.
type Repos struct {
	Vendors          VendorRepo
	Products         ProductRepo
	CartItems        CartItemRepo
	CheckoutSessions CheckoutSessionRepo
	Orders           OrderRepo
	ProcessedEvents  ProcessedEventRepo
	PayoutTransfers  PayoutTransferRepo
}

func NewRepos(db *gorm.DB, baseLog *logger.Logger) Repos {
	return Repos{
		Vendors:          NewVendorRepo(db, baseLog),
		Products:         NewProductRepo(db, baseLog),
		CartItems:        NewCartItemRepo(db, baseLog),
		CheckoutSessions: NewCheckoutSessionRepo(db, baseLog),
		Orders:           NewOrderRepo(db, baseLog),
		ProcessedEvents:  NewProcessedEventRepo(db, baseLog),
		PayoutTransfers:  NewPayoutTransferRepo(db, baseLog),
	}
}
