package middleware

import (
	"context"
	"net/http"

	"github.com/now-is/chicommons-maps/internal/repository"
	"github.com/now-is/chicommons-maps/internal/snapshotloader"
)

type ctxKey string

const snapshotLoaderKey ctxKey = "snapshotLoader"

// DataLoaderMiddleware attaches a per-request snapshot loader to the context
func DataLoaderMiddleware(repo repository.SnapshotRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loader := snapshotloader.New(repo)
			ctx := context.WithValue(r.Context(), snapshotLoaderKey, loader)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SnapshotLoaderFromContext retrieves the loader from context
func SnapshotLoaderFromContext(ctx context.Context) *snapshotloader.Loader {
	if l, ok := ctx.Value(snapshotLoaderKey).(*snapshotloader.Loader); ok {
		return l
	}
	return nil
}
