package services

import (
	"context"

	types "github.com/yungbote/marketplace-backend/internal/domain"
	"github.com/yungbote/marketplace-backend/internal/platform/ctxutil"
)

func requirePrincipal(ctx context.Context, op string) (*ctxutil.Principal, error) {
	p := ctxutil.GetPrincipal(ctx)
	if p == nil || p.UserID == "" {
		return nil, types.Fail(types.ErrForbidden, op, "authentication required")
	}
	return p, nil
}

// authorizeVendorOwner admits the vendor's owner and admins.
func authorizeVendorOwner(p *ctxutil.Principal, v *types.Vendor, op string) error {
	if p == nil {
		return types.Fail(types.ErrForbidden, op, "authentication required")
	}
	if p.Role == ctxutil.RoleAdmin {
		return nil
	}
	if v == nil || v.OwnerUserID != p.UserID {
		return types.Fail(types.ErrForbidden, op, "caller does not own this vendor")
	}
	return nil
}
