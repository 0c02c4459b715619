package transcript

import (
	"context"
	"errors"
)

// ErrAssetNotFound is returned by lookup services when the catalogue
// has no image for the requested asset. The archive records the asset
// as seen and continues without embedding it.
var ErrAssetNotFound = errors.New("asset not found")

// EmoteLookup resolves platform emote ids to image bytes.
//
//go:generate mockgen -source=lookup.go -destination=mocks/mock_lookup.go -package=mocks
type EmoteLookup interface {
	Get(ctx context.Context, id string) ([]byte, error)
}

// BadgeLookup resolves badge set/version pairs to image bytes.
type BadgeLookup interface {
	Get(ctx context.Context, setID, version string) ([]byte, error)
}

// NamedLookup resolves cheer or third-party emote names to image bytes.
type NamedLookup interface {
	Get(ctx context.Context, name string) ([]byte, error)
}

// Lookups bundles the catalogue services the archive consults when it
// embeds assets. Nil entries disable that asset class.
type Lookups struct {
	Emotes     EmoteLookup
	Badges     BadgeLookup
	Cheers     NamedLookup
	ThirdParty NamedLookup
}
