package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"storefront/internal/restclient"
	"storefront/internal/util"
	"storefront/pkg/domain"
	"storefront/pkg/pricing"
	"storefront/pkg/storage"
	"storefront/services/storefront/internal/adminclient"
)

// AdminLogin signs an admin in and loads the admin profile.
func (a *App) AdminLogin(ctx context.Context, email, password string) (domain.Identity, error) {
	if err := credentialsPresent(email, password); err != nil {
		return domain.Identity{}, err
	}
	res, err := a.backend.Login(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return domain.Identity{}, err
	}
	if err := a.admin.Login(ctx, res.Identity, res.Token); err != nil {
		return domain.Identity{}, err
	}
	if err := a.loadProfile(ctx, res.Identity); err != nil {
		util.LoggerFromContext(ctx).Warn("admin profile fetch failed", "admin_id", res.Identity.ID, "err", err)
	}
	return res.Identity, nil
}

// AdminLogout clears the admin session only.
func (a *App) AdminLogout(ctx context.Context) error {
	a.profileMu.Lock()
	a.profile = nil
	a.profileMu.Unlock()
	return a.admin.Logout(ctx)
}

func (a *App) loadProfile(ctx context.Context, id domain.Identity) error {
	_, err := a.fetchProfile(ctx, id)
	return err
}

func (a *App) fetchProfile(ctx context.Context, id domain.Identity) (domain.Identity, error) {
	profile, err := a.backend.Profile(ctx, id.ID)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("fetch admin profile: %w", err)
	}
	a.profileMu.Lock()
	a.profile = &profile
	a.profileMu.Unlock()
	return profile, nil
}

// AdminProfile returns the signed-in admin's profile, fetching it when it is
// not loaded for the current identity.
func (a *App) AdminProfile(ctx context.Context) (domain.Identity, error) {
	id, err := requireIdentity(a.admin)
	if err != nil {
		return domain.Identity{}, err
	}
	a.profileMu.Lock()
	cached := a.profile
	a.profileMu.Unlock()
	if cached != nil && cached.ID == id.ID {
		return *cached, nil
	}
	return a.fetchProfile(ctx, id)
}

// ProductUpload is the admin upload form as submitted. Price and Discount are
// decimal strings.
type ProductUpload struct {
	Name         string
	Price        string
	Discount     string
	BgColor      string
	PanelColor   string
	TextColor    string
	IsNew        bool
	IsSale       bool
	IsCollection bool

	ImageName        string
	ImageContentType string
	Image            []byte
}

func (a *App) validateUpload(u ProductUpload) (adminclient.NewProduct, error) {
	name := strings.TrimSpace(u.Name)
	if name == "" {
		return adminclient.NewProduct{}, restclient.Invalid("name", "is required")
	}
	price, err := requiredAmount("price", u.Price)
	if err != nil {
		return adminclient.NewProduct{}, err
	}
	discount, err := requiredAmount("discount", u.Discount)
	if err != nil {
		return adminclient.NewProduct{}, err
	}
	if discount > price {
		return adminclient.NewProduct{}, restclient.Invalid("discount", "must not exceed price")
	}
	if len(u.Image) == 0 {
		return adminclient.NewProduct{}, restclient.Invalid("image", "is required")
	}
	if int64(len(u.Image)) > a.maxUpload {
		return adminclient.NewProduct{}, restclient.Invalid("image", fmt.Sprintf("exceeds %d bytes", a.maxUpload))
	}
	ext := strings.ToLower(filepath.Ext(u.ImageName))
	if !a.allowExt[ext] {
		return adminclient.NewProduct{}, restclient.Invalid("image", fmt.Sprintf("file type %q not allowed", ext))
	}
	return adminclient.NewProduct{
		Name:         name,
		Price:        price,
		Discount:     discount,
		BgColor:      strings.TrimSpace(u.BgColor),
		PanelColor:   strings.TrimSpace(u.PanelColor),
		TextColor:    strings.TrimSpace(u.TextColor),
		IsNew:        u.IsNew,
		IsSale:       u.IsSale,
		IsCollection: u.IsCollection,
		Image: restclient.File{
			Field:       "image",
			Name:        filepath.Base(u.ImageName),
			ContentType: u.ImageContentType,
			Data:        u.Image,
		},
	}, nil
}

func requiredAmount(field, raw string) (domain.Money, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, restclient.Invalid(field, "is required")
	}
	v, err := domain.ParseMoney(raw)
	if err != nil {
		return 0, restclient.Invalid(field, "must be a number")
	}
	if v < 0 {
		return 0, restclient.Invalid(field, "must not be negative")
	}
	return v, nil
}

// UploadProduct validates the form and creates the product.
func (a *App) UploadProduct(ctx context.Context, u ProductUpload) (domain.Product, error) {
	if _, err := requireIdentity(a.admin); err != nil {
		return domain.Product{}, err
	}
	p, err := a.validateUpload(u)
	if err != nil {
		return domain.Product{}, err
	}
	return a.backend.CreateProduct(ctx, p)
}

func (a *App) AdminProducts(ctx context.Context) ([]PricedProduct, error) {
	if _, err := requireIdentity(a.admin); err != nil {
		return nil, err
	}
	products, err := a.backend.Products(ctx)
	if err != nil {
		return nil, err
	}
	return priceProducts(products), nil
}

// DeleteProduct removes a product and evicts its cached image.
func (a *App) DeleteProduct(ctx context.Context, id string) error {
	if _, err := requireIdentity(a.admin); err != nil {
		return err
	}
	if err := a.backend.DeleteProduct(ctx, id); err != nil {
		return err
	}
	if a.images != nil {
		if err := a.images.Delete(ctx, id); err != nil {
			util.LoggerFromContext(ctx).Warn("image cache evict failed", "product_id", id, "err", err)
		}
	}
	return nil
}

// ProductImage returns a product image for the admin console.
func (a *App) ProductImage(ctx context.Context, id string) (storage.Image, error) {
	if _, err := requireIdentity(a.admin); err != nil {
		return storage.Image{}, err
	}
	return a.cachedImage(ctx, id, a.backend.Image)
}

// AdminOrder is one ordered product of one customer.
type AdminOrder struct {
	OrderID    string             `json:"orderId"`
	CustomerID string             `json:"userId"`
	Customer   string             `json:"customer"`
	Email      string             `json:"email"`
	Line       domain.OrderLine   `json:"line"`
	FinalPrice domain.Money       `json:"finalPrice"`
	Status     domain.OrderStatus `json:"status"`
}

// AllOrders flattens every customer's orders into one list, in backend order.
func (a *App) AllOrders(ctx context.Context) ([]AdminOrder, error) {
	if _, err := requireIdentity(a.admin); err != nil {
		return nil, err
	}
	customers, err := a.backend.AllOrders(ctx)
	if err != nil {
		return nil, err
	}
	var out []AdminOrder
	for _, c := range customers {
		for i, line := range c.Orders {
			status := domain.ParseOrderStatus(string(line.Status))
			line.Status = status
			out = append(out, AdminOrder{
				OrderID:    orderID(c.ID, i),
				CustomerID: c.ID,
				Customer:   c.Name,
				Email:      c.Email,
				Line:       line,
				FinalPrice: pricing.FinalPrice(line),
				Status:     status,
			})
		}
	}
	return out, nil
}

// orderID builds a display id from the last six characters of the customer id
// and the 1-based position of the line.
func orderID(customerID string, index int) string {
	suffix := customerID
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return fmt.Sprintf("ORD-%s-%d", suffix, index+1)
}

// Users lists registered customers.
func (a *App) Users(ctx context.Context) ([]domain.Customer, error) {
	if _, err := requireIdentity(a.admin); err != nil {
		return nil, err
	}
	return a.backend.Users(ctx)
}
