package app

import (
	"context"
	"errors"
	"strings"

	"storefront/internal/restclient"
	"storefront/internal/util"
	"storefront/pkg/domain"
	"storefront/pkg/pricing"
	"storefront/pkg/storage"
	"storefront/services/storefront/internal/shopclient"
)

// Register creates a user account and signs it in.
func (a *App) Register(ctx context.Context, name, email, password string) (domain.Identity, error) {
	if err := credentialsPresent(email, password); err != nil {
		return domain.Identity{}, err
	}
	if strings.TrimSpace(name) == "" {
		return domain.Identity{}, restclient.Invalid("name", "is required")
	}
	res, err := a.shop.Register(ctx, strings.TrimSpace(name), strings.TrimSpace(email), password)
	if err != nil {
		return domain.Identity{}, err
	}
	if err := a.user.Login(ctx, res.Identity, res.Token); err != nil {
		return domain.Identity{}, err
	}
	return res.Identity, nil
}

// Login signs a user in. On failure the previous session is kept.
func (a *App) Login(ctx context.Context, email, password string) (domain.Identity, error) {
	if err := credentialsPresent(email, password); err != nil {
		return domain.Identity{}, err
	}
	res, err := a.shop.Login(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return domain.Identity{}, err
	}
	if err := a.user.Login(ctx, res.Identity, res.Token); err != nil {
		return domain.Identity{}, err
	}
	return res.Identity, nil
}

// Logout clears the user session only.
func (a *App) Logout(ctx context.Context) error {
	return a.user.Logout(ctx)
}

func credentialsPresent(email, password string) error {
	if strings.TrimSpace(email) == "" {
		return restclient.Invalid("email", "is required")
	}
	if password == "" {
		return restclient.Invalid("password", "is required")
	}
	return nil
}

// PricedProduct is a product with its price after discount.
type PricedProduct struct {
	domain.Product
	FinalPrice domain.Money `json:"finalPrice"`
}

func priceProducts(products []domain.Product) []PricedProduct {
	out := make([]PricedProduct, 0, len(products))
	for _, p := range products {
		out = append(out, PricedProduct{Product: p, FinalPrice: pricing.FinalPrice(p)})
	}
	return out
}

// Products lists a catalog section.
func (a *App) Products(ctx context.Context, section shopclient.Section) ([]PricedProduct, error) {
	if _, err := requireIdentity(a.user); err != nil {
		return nil, err
	}
	products, err := a.shop.Products(ctx, section)
	if err != nil {
		return nil, err
	}
	return priceProducts(products), nil
}

// CartItem is a cart line with its price after discount.
type CartItem struct {
	domain.CartLine
	FinalPrice domain.Money `json:"finalPrice"`
}

// CartView is the cart as shown to the user. Displayed is the backend's
// summary when it reports one, otherwise the local one.
type CartView struct {
	Items      []CartItem     `json:"items"`
	Displayed  domain.Summary `json:"summary"`
	Local      domain.Summary `json:"localSummary"`
	Reconciled bool           `json:"reconciled"`
}

// Cart loads the cart and reconciles the backend totals with the lines.
func (a *App) Cart(ctx context.Context) (CartView, error) {
	if _, err := requireIdentity(a.user); err != nil {
		return CartView{}, err
	}
	cart, err := a.shop.Cart(ctx)
	if err != nil {
		return CartView{}, err
	}
	view := CartView{Items: make([]CartItem, 0, len(cart.Lines))}
	for _, l := range cart.Lines {
		view.Items = append(view.Items, CartItem{CartLine: l, FinalPrice: pricing.FinalPrice(l)})
	}
	view.Local = pricing.Summarize(cart.Lines)
	view.Displayed = view.Local
	view.Reconciled = true
	if cart.Reported {
		view.Displayed = pricing.FromReported(cart.FinalTotal, cart.TotalDiscount)
		if err := pricing.Reconcile(view.Local, view.Displayed, a.tolerance); err != nil {
			view.Reconciled = false
			var mismatch *pricing.MismatchError
			if errors.As(err, &mismatch) {
				util.LoggerFromContext(ctx).Warn("reconciliation_mismatch",
					"field", mismatch.Field,
					"local", mismatch.Local.String(),
					"reported", mismatch.Reported.String(),
					"lines", len(cart.Lines))
			}
		}
	}
	return view, nil
}

func (a *App) AddToCart(ctx context.Context, productID string) error {
	if _, err := requireIdentity(a.user); err != nil {
		return err
	}
	return a.shop.AddToCart(ctx, productID)
}

func (a *App) ReduceCartItem(ctx context.Context, productID string) error {
	if _, err := requireIdentity(a.user); err != nil {
		return err
	}
	return a.shop.ReduceCartItem(ctx, productID)
}

func (a *App) RemoveFromCart(ctx context.Context, productID string) error {
	if _, err := requireIdentity(a.user); err != nil {
		return err
	}
	return a.shop.RemoveFromCart(ctx, productID)
}

func (a *App) Wishlist(ctx context.Context) ([]PricedProduct, error) {
	if _, err := requireIdentity(a.user); err != nil {
		return nil, err
	}
	products, err := a.shop.Wishlist(ctx)
	if err != nil {
		return nil, err
	}
	return priceProducts(products), nil
}

func (a *App) AddToWishlist(ctx context.Context, productID string) error {
	if _, err := requireIdentity(a.user); err != nil {
		return err
	}
	return a.shop.AddToWishlist(ctx, productID)
}

func (a *App) RemoveFromWishlist(ctx context.Context, productID string) error {
	if _, err := requireIdentity(a.user); err != nil {
		return err
	}
	return a.shop.RemoveFromWishlist(ctx, productID)
}

// Payment holds the checkout form. The fields are only checked for presence
// and are never sent to the backend.
type Payment struct {
	Name       string `json:"name"`
	CardNumber string `json:"cardNumber"`
	ExpiryDate string `json:"expiryDate"`
}

func (p Payment) validate() error {
	for _, f := range []struct{ name, value string }{
		{"name", p.Name},
		{"cardNumber", p.CardNumber},
		{"expiryDate", p.ExpiryDate},
	} {
		if strings.TrimSpace(f.value) == "" {
			return restclient.Invalid(f.name, "is required")
		}
	}
	return nil
}

// PlaceOrder checks the payment form and orders the current cart.
func (a *App) PlaceOrder(ctx context.Context, p Payment) error {
	if _, err := requireIdentity(a.user); err != nil {
		return err
	}
	if err := p.validate(); err != nil {
		return err
	}
	return a.shop.PlaceOrder(ctx)
}

// OrderItem is one line of the order history.
type OrderItem struct {
	domain.OrderLine
	FinalPrice domain.Money `json:"finalPrice"`
}

// Orders returns the order history. Statuses the backend does not send or
// that are not recognised show as unknown.
func (a *App) Orders(ctx context.Context) ([]OrderItem, error) {
	if _, err := requireIdentity(a.user); err != nil {
		return nil, err
	}
	lines, err := a.shop.Orders(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]OrderItem, 0, len(lines))
	for _, l := range lines {
		l.Status = domain.ParseOrderStatus(string(l.Status))
		out = append(out, OrderItem{OrderLine: l, FinalPrice: pricing.FinalPrice(l)})
	}
	return out, nil
}

// CatalogImage returns a product image for the user pages, such as the
// image of a cart line.
func (a *App) CatalogImage(ctx context.Context, id string) (storage.Image, error) {
	if _, err := requireIdentity(a.user); err != nil {
		return storage.Image{}, err
	}
	return a.cachedImage(ctx, id, a.shop.Image)
}
