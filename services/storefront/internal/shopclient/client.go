// Package shopclient calls the user-domain endpoints of the shop backend.
package shopclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"storefront/internal/restclient"
	"storefront/pkg/domain"
)

// DefaultCheckPath verifies a user token.
const DefaultCheckPath = "/auth/check"

// Section selects a catalog listing.
type Section string

const (
	SectionAll        Section = "all"
	SectionDiscounted Section = "discounted"
	SectionNew        Section = "new"
	SectionSorted     Section = "sorted"
)

var sectionPaths = map[Section]string{
	SectionAll:        "/products",
	SectionDiscounted: "/products/discounted",
	SectionNew:        "/products/new",
	SectionSorted:     "/products/sort",
}

// ParseSection maps a query value to a Section; empty means SectionAll.
func ParseSection(s string) (Section, error) {
	sec := Section(strings.ToLower(strings.TrimSpace(s)))
	if sec == "" {
		return SectionAll, nil
	}
	if _, ok := sectionPaths[sec]; !ok {
		return "", restclient.Invalid("section", fmt.Sprintf("unknown section %q", s))
	}
	return sec, nil
}

// AuthResult is a successful register or login.
type AuthResult struct {
	Identity domain.Identity
	Token    string
}

// Cart is the cart as reported by the backend.
type Cart struct {
	Lines         []domain.CartLine
	FinalTotal    domain.Money
	TotalDiscount domain.Money
	// Reported is false when the backend sent no totals.
	Reported bool
}

// Client wraps a restclient.Client whose token source is the user session.
type Client struct {
	rest      *restclient.Client
	checkPath string
}

// New constructs a user-domain client. An empty checkPath uses DefaultCheckPath.
func New(rest *restclient.Client, checkPath string) *Client {
	if strings.TrimSpace(checkPath) == "" {
		checkPath = DefaultCheckPath
	}
	return &Client{rest: rest, checkPath: checkPath}
}

type credentials struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *Client) Register(ctx context.Context, name, email, password string) (AuthResult, error) {
	return c.authenticate(ctx, "/auth/register", credentials{Name: name, Email: email, Password: password})
}

func (c *Client) Login(ctx context.Context, email, password string) (AuthResult, error) {
	return c.authenticate(ctx, "/auth/login", credentials{Email: email, Password: password})
}

func (c *Client) authenticate(ctx context.Context, path string, body credentials) (AuthResult, error) {
	env, err := c.envelope(ctx, http.MethodPost, path, body)
	if err != nil {
		return AuthResult{}, err
	}
	token := strings.TrimSpace(env.String("token"))
	if token == "" {
		return AuthResult{}, fmt.Errorf("%w: missing token", restclient.ErrMalformed)
	}
	var id domain.Identity
	if err := env.Decode(&id, "user"); err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Identity: id, Token: token}, nil
}

// Verify asks the backend who token belongs to.
func (c *Client) Verify(ctx context.Context, token string) (domain.Identity, error) {
	env, err := c.envelope(restclient.WithBearer(ctx, token), http.MethodGet, c.checkPath, nil)
	if err != nil {
		return domain.Identity{}, err
	}
	var id domain.Identity
	if err := env.Decode(&id, "user"); err != nil {
		return domain.Identity{}, err
	}
	return id, nil
}

func (c *Client) Products(ctx context.Context, section Section) ([]domain.Product, error) {
	path, ok := sectionPaths[section]
	if !ok {
		return nil, restclient.Invalid("section", fmt.Sprintf("unknown section %q", section))
	}
	var products []domain.Product
	if err := c.list(ctx, path, &products, "products"); err != nil {
		return nil, err
	}
	return products, nil
}

func (c *Client) Cart(ctx context.Context) (Cart, error) {
	var raw json.RawMessage
	if err := c.rest.DoJSON(ctx, http.MethodGet, "/cart", nil, &raw); err != nil {
		return Cart{}, err
	}
	var cart Cart
	if err := restclient.DecodeList(raw, &cart.Lines, "cart", "items"); err != nil {
		return Cart{}, err
	}
	var totals struct {
		FinalTotal    *domain.Money `json:"finalTotal"`
		TotalDiscount *domain.Money `json:"totalDiscount"`
	}
	// A bare array carries no totals.
	if err := json.Unmarshal(raw, &totals); err == nil && totals.FinalTotal != nil {
		cart.Reported = true
		cart.FinalTotal = *totals.FinalTotal
		if totals.TotalDiscount != nil {
			cart.TotalDiscount = *totals.TotalDiscount
		}
	}
	return cart, nil
}

func (c *Client) AddToCart(ctx context.Context, productID string) error {
	return c.action(ctx, http.MethodPost, "/cart/add/", productID)
}

func (c *Client) ReduceCartItem(ctx context.Context, productID string) error {
	return c.action(ctx, http.MethodPost, "/cart/reduce/", productID)
}

func (c *Client) RemoveFromCart(ctx context.Context, productID string) error {
	return c.action(ctx, http.MethodDelete, "/cart/delete/", productID)
}

func (c *Client) Wishlist(ctx context.Context) ([]domain.Product, error) {
	var products []domain.Product
	if err := c.list(ctx, "/wishlist", &products, "wishlist"); err != nil {
		return nil, err
	}
	return products, nil
}

func (c *Client) AddToWishlist(ctx context.Context, productID string) error {
	return c.action(ctx, http.MethodPost, "/wishlist/add/", productID)
}

func (c *Client) RemoveFromWishlist(ctx context.Context, productID string) error {
	return c.action(ctx, http.MethodDelete, "/wishlist/delete/", productID)
}

// PlaceOrder turns the current cart into an order. The backend exposes this
// as a GET.
func (c *Client) PlaceOrder(ctx context.Context) error {
	_, err := c.envelope(ctx, http.MethodGet, "/orders/create", nil)
	return err
}

func (c *Client) Orders(ctx context.Context) ([]domain.OrderLine, error) {
	var orders []domain.OrderLine
	if err := c.list(ctx, "/orders", &orders, "orders"); err != nil {
		return nil, err
	}
	return orders, nil
}

// Image downloads a product image.
func (c *Client) Image(ctx context.Context, productID string) (restclient.Blob, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return restclient.Blob{}, restclient.Invalid("id", "is required")
	}
	return c.rest.Download(ctx, "/products/image/"+url.PathEscape(productID))
}

func (c *Client) action(ctx context.Context, method, prefix, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return restclient.Invalid("id", "is required")
	}
	_, err := c.envelope(ctx, method, prefix+url.PathEscape(id), nil)
	return err
}

func (c *Client) list(ctx context.Context, path string, out any, key string) error {
	var raw json.RawMessage
	if err := c.rest.DoJSON(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return err
	}
	return restclient.DecodeList(raw, out, key, "data")
}

func (c *Client) envelope(ctx context.Context, method, path string, payload any) (restclient.Envelope, error) {
	var env restclient.Envelope
	if err := c.rest.DoJSON(ctx, method, path, payload, &env); err != nil {
		return nil, err
	}
	if err := env.Failure(); err != nil {
		return nil, err
	}
	return env, nil
}
