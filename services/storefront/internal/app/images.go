package app

import (
	"context"

	"storefront/internal/restclient"
	"storefront/internal/util"
	"storefront/pkg/storage"
)

// cachedImage reads through the image cache. Both domains share one cache;
// cache failures are logged and fall back to the backend.
func (a *App) cachedImage(ctx context.Context, id string, fetch func(context.Context, string) (restclient.Blob, error)) (storage.Image, error) {
	logger := util.LoggerFromContext(ctx)
	if a.images != nil {
		img, ok, err := a.images.Get(ctx, id)
		switch {
		case err != nil:
			logger.Warn("image cache read failed", "product_id", id, "err", err)
		case ok:
			return img, nil
		}
	}
	blob, err := fetch(ctx, id)
	if err != nil {
		return storage.Image{}, err
	}
	img := storage.Image{Data: blob.Data, ContentType: blob.ContentType}
	if a.images != nil {
		if err := a.images.Put(ctx, id, img); err != nil {
			logger.Warn("image cache write failed", "product_id", id, "err", err)
		}
	}
	return img, nil
}
