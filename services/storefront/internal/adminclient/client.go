// Package adminclient calls the admin-domain endpoints of the shop backend.
package adminclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"storefront/internal/restclient"
	"storefront/pkg/domain"
)

// DefaultCheckPath verifies an admin token.
const DefaultCheckPath = "/admin/check"

// LoginResult is a successful admin login.
type LoginResult struct {
	Identity domain.Identity
	Token    string
}

// NewProduct is the multipart form for a product upload.
type NewProduct struct {
	Name         string
	Price        domain.Money
	Discount     domain.Money
	BgColor      string
	PanelColor   string
	TextColor    string
	IsNew        bool
	IsSale       bool
	IsCollection bool
	Image        restclient.File
}

func (p NewProduct) fields() map[string]string {
	fields := map[string]string{
		"name":         p.Name,
		"price":        p.Price.String(),
		"discount":     p.Discount.String(),
		"isNew":        strconv.FormatBool(p.IsNew),
		"isSale":       strconv.FormatBool(p.IsSale),
		"isCollection": strconv.FormatBool(p.IsCollection),
	}
	for k, v := range map[string]string{"bgColor": p.BgColor, "panelColor": p.PanelColor, "textColor": p.TextColor} {
		if v != "" {
			fields[k] = v
		}
	}
	return fields
}

// Client wraps a restclient.Client whose token source is the admin session.
type Client struct {
	rest      *restclient.Client
	checkPath string
}

// New constructs an admin-domain client. An empty checkPath uses DefaultCheckPath.
func New(rest *restclient.Client, checkPath string) *Client {
	if strings.TrimSpace(checkPath) == "" {
		checkPath = DefaultCheckPath
	}
	return &Client{rest: rest, checkPath: checkPath}
}

func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	body := map[string]string{"email": email, "password": password}
	env, err := c.envelope(ctx, http.MethodPost, "/admin/login", body)
	if err != nil {
		return LoginResult{}, err
	}
	token := strings.TrimSpace(env.String("token"))
	if token == "" {
		return LoginResult{}, fmt.Errorf("%w: missing token", restclient.ErrMalformed)
	}
	var id domain.Identity
	if err := env.Decode(&id, "admin", "user"); err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Identity: id, Token: token}, nil
}

// Verify asks the backend which admin token belongs to.
func (c *Client) Verify(ctx context.Context, token string) (domain.Identity, error) {
	env, err := c.envelope(restclient.WithBearer(ctx, token), http.MethodGet, c.checkPath, nil)
	if err != nil {
		return domain.Identity{}, err
	}
	var id domain.Identity
	if err := env.Decode(&id, "admin", "user"); err != nil {
		return domain.Identity{}, err
	}
	return id, nil
}

// Profile fetches the full admin record by id.
func (c *Client) Profile(ctx context.Context, id string) (domain.Identity, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Identity{}, restclient.Invalid("id", "is required")
	}
	env, err := c.envelope(ctx, http.MethodGet, "/admin/fetch/"+url.PathEscape(id), nil)
	if err != nil {
		return domain.Identity{}, err
	}
	var admin domain.Identity
	if err := env.Decode(&admin, "admin"); err != nil {
		return domain.Identity{}, err
	}
	return admin, nil
}

// Users lists registered customers.
func (c *Client) Users(ctx context.Context) ([]domain.Customer, error) {
	var users []domain.Customer
	if err := c.list(ctx, "/admin/fetchUser", &users, "users"); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) CreateProduct(ctx context.Context, p NewProduct) (domain.Product, error) {
	img := p.Image
	if img.Field == "" {
		img.Field = "image"
	}
	var env restclient.Envelope
	if err := c.rest.DoMultipart(ctx, http.MethodPost, "/admin/product/create", p.fields(), &img, &env); err != nil {
		return domain.Product{}, err
	}
	if err := env.Failure(); err != nil {
		return domain.Product{}, err
	}
	var created domain.Product
	if err := env.Decode(&created, "product"); err != nil {
		// Some backends only acknowledge the upload.
		return domain.Product{Name: p.Name, Price: p.Price, Discount: p.Discount}, nil
	}
	return created, nil
}

func (c *Client) Products(ctx context.Context) ([]domain.Product, error) {
	var products []domain.Product
	if err := c.list(ctx, "/admin/product/fetchalladmin", &products, "products"); err != nil {
		return nil, err
	}
	return products, nil
}

func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return restclient.Invalid("id", "is required")
	}
	_, err := c.envelope(ctx, http.MethodDelete, "/admin/product/delete/"+url.PathEscape(id), nil)
	return err
}

// Image downloads the stored image of a product.
func (c *Client) Image(ctx context.Context, id string) (restclient.Blob, error) {
	if strings.TrimSpace(id) == "" {
		return restclient.Blob{}, restclient.Invalid("id", "is required")
	}
	return c.rest.Download(ctx, "/products/image/"+url.PathEscape(id))
}

// AllOrders returns every customer together with their ordered products.
func (c *Client) AllOrders(ctx context.Context) ([]domain.Customer, error) {
	var customers []domain.Customer
	if err := c.list(ctx, "/admin/orders/all", &customers, "users"); err != nil {
		return nil, err
	}
	return customers, nil
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
