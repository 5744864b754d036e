// Package service implements the browse operations between the HTTP
// handlers and the Xtream client: credential validation on connect and
// the read-through listing cache.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fricwalter/kanalista4.0/internal/models"
	"github.com/fricwalter/kanalista4.0/internal/store"
	"github.com/fricwalter/kanalista4.0/internal/xtream"
)

// ErrSeriesNotPlayable is returned when a stream URL is requested for the
// series type; series are browsed via series-info, not played directly.
var ErrSeriesNotPlayable = errors.New("Serien haben keine direkte Stream-URL")

// Lister is the slice of the Xtream client the browser needs. One Lister
// is bound to one credential.
type Lister interface {
	ValidateLogin(ctx context.Context) (*xtream.UserInfo, error)
	GetLiveCategories(ctx context.Context) ([]xtream.Category, error)
	GetVodCategories(ctx context.Context) ([]xtream.Category, error)
	GetSeriesCategories(ctx context.Context) ([]xtream.Category, error)
	GetLiveStreams(ctx context.Context, categoryID string) ([]xtream.Stream, error)
	GetVodStreams(ctx context.Context, categoryID string) ([]xtream.Stream, error)
	GetAllSeries(ctx context.Context, categoryID string) ([]xtream.Series, error)
	GetSeriesInfo(ctx context.Context, seriesID int64) (json.RawMessage, error)
	StreamURL(streamID int64, extension string) string
}

// ClientFactory builds a Lister for one credential's panel.
type ClientFactory func(dns, username, password string) Lister

// Browser executes browse requests against a credential's panel with the
// channel cache in front of the full listings.
type Browser struct {
	store     store.Store
	newClient ClientFactory
}

// NewBrowser creates a Browser backed by the given store and client factory.
func NewBrowser(s store.Store, factory ClientFactory) *Browser {
	return &Browser{store: s, newClient: factory}
}

// Listing is a browse result with cache provenance.
type Listing struct {
	Data      json.RawMessage
	FromCache bool
	CachedAt  *time.Time
}

// Connect validates the supplied panel account upstream and persists it
// as a credential for ownerID. Validation failures surface as
// *xtream.Error; anything after validation is a persistence failure.
func (b *Browser) Connect(ctx context.Context, ownerID, dns, username, password, label string) (*models.Credential, *xtream.UserInfo, error) {
	client := b.newClient(dns, username, password)
	info, err := client.ValidateLogin(ctx)
	if err != nil {
		return nil, nil, err
	}

	if label == "" {
		label = "Xtream " + time.Now().Format("02.01.2006")
	}
	created, err := b.store.CreateCredential(ctx, &models.Credential{
		UserID:   ownerID,
		DNS:      xtream.NormalizeDNS(dns),
		Username: username,
		Password: password,
		Label:    label,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("persist credential: %w", err)
	}
	return created, info, nil
}

// Categories fetches the category listing for one content type.
// Categories are small and ordered upstream; they are never cached.
func (b *Browser) Categories(ctx context.Context, cred *models.Credential, typ models.ContentType) ([]xtream.Category, error) {
	client := b.client(cred)
	switch typ {
	case models.ContentLive:
		return client.GetLiveCategories(ctx)
	case models.ContentVod:
		return client.GetVodCategories(ctx)
	case models.ContentSeries:
		return client.GetSeriesCategories(ctx)
	}
	return nil, fmt.Errorf("unknown content type %q", typ)
}

// Channels returns the stream/series listing for (credential, type).
//
// Cache policy: with no category filter and no forced refresh, a stored
// snapshot is served as-is with its timestamp. A category filter or
// refresh=true always goes upstream, and only full (unfiltered) listings
// are written back — the cache never holds partial listings. Entries
// have no TTL; staleness is the caller's call via forceRefresh.
func (b *Browser) Channels(ctx context.Context, cred *models.Credential, typ models.ContentType, categoryID string, forceRefresh bool) (*Listing, error) {
	filtered := categoryID != ""

	if !forceRefresh && !filtered {
		entry, err := b.store.GetCacheEntry(ctx, cred.ID, typ)
		if err == nil {
			cachedAt := entry.CachedAt
			return &Listing{Data: entry.Data, FromCache: true, CachedAt: &cachedAt}, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	client := b.client(cred)
	var payload any
	var err error
	switch typ {
	case models.ContentLive:
		payload, err = client.GetLiveStreams(ctx, categoryID)
	case models.ContentVod:
		payload, err = client.GetVodStreams(ctx, categoryID)
	case models.ContentSeries:
		payload, err = client.GetAllSeries(ctx, categoryID)
	default:
		return nil, fmt.Errorf("unknown content type %q", typ)
	}
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal listing: %w", err)
	}

	if !filtered {
		entry := &models.CacheEntry{
			UserID:       cred.UserID,
			CredentialID: cred.ID,
			Type:         typ,
			Data:         data,
			CachedAt:     time.Now().UTC(),
		}
		// A failed write only costs the next request an upstream call.
		if err := b.store.UpsertCacheEntry(ctx, entry); err != nil {
			log.Printf("channel cache: upsert %s/%s: %v", cred.ID, typ, err)
		}
	}

	return &Listing{Data: data, FromCache: false}, nil
}

// SeriesInfo returns the upstream episode document for one series, as-is.
func (b *Browser) SeriesInfo(ctx context.Context, cred *models.Credential, seriesID int64) (json.RawMessage, error) {
	return b.client(cred).GetSeriesInfo(ctx, seriesID)
}

// StreamURL builds the playback URL for a stream, resolving the container
// extension from the (possibly cached) listing. Unknown stream ids still
// produce a URL with the default extension — the panel decides whether it
// plays.
func (b *Browser) StreamURL(ctx context.Context, cred *models.Credential, typ models.ContentType, streamID int64) (string, error) {
	if typ == models.ContentSeries {
		return "", ErrSeriesNotPlayable
	}

	listing, err := b.Channels(ctx, cred, typ, "", false)
	if err != nil {
		return "", err
	}

	extension := xtream.DefaultExtension
	var streams []xtream.Stream
	if err := json.Unmarshal(listing.Data, &streams); err == nil {
		for _, s := range streams {
			var item xtream.Item
			if typ == models.ContentLive {
				item = xtream.NormalizeLive(s)
			} else {
				item = xtream.NormalizeVod(s)
			}
			if item.ID == streamID {
				extension = item.Extension
				break
			}
		}
	}

	return b.client(cred).StreamURL(streamID, extension), nil
}

func (b *Browser) client(cred *models.Credential) Lister {
	return b.newClient(cred.DNS, cred.Username, cred.Password)
}
