package handler

import (
	"walletid/internal/identity/models"
	dErrors "walletid/pkg/domain-errors"
)

// maxBatchResults bounds one ingestion request.
const maxBatchResults = 5000

// ManualEditRequest is the body of PUT /admin/identities/{wallet}.
type ManualEditRequest struct {
	TwitterHandle *string `json:"twitter_handle"`
	Farcaster     *string `json:"farcaster"`
	ENSName       *string `json:"ens_name"`
	Lens          *string `json:"lens"`
	GitHub        *string `json:"github"`
}

// Validate implements httputil.Validatable. Blank fields are rejected by
// the service, which owns normalization.
func (r *ManualEditRequest) Validate() error {
	if r.TwitterHandle == nil && r.Farcaster == nil && r.ENSName == nil && r.Lens == nil && r.GitHub == nil {
		return dErrors.New(dErrors.CodeBadRequest, "at least one identity field is required")
	}
	return nil
}

func (r *ManualEditRequest) ToModel() models.ManualEdit {
	return models.ManualEdit{
		TwitterHandle: r.TwitterHandle,
		Farcaster:     r.Farcaster,
		ENSName:       r.ENSName,
		Lens:          r.Lens,
		GitHub:        r.GitHub,
	}
}

// ProviderResultRequest is one provider answer in a batch.
type ProviderResultRequest struct {
	Wallet        string   `json:"wallet"`
	ENSName       *string  `json:"ens_name"`
	TwitterHandle *string  `json:"twitter_handle"`
	TwitterURL    *string  `json:"twitter_url"`
	Farcaster     *string  `json:"farcaster"`
	FarcasterURL  *string  `json:"farcaster_url"`
	FCFollowers   *int64   `json:"fc_followers"`
	FCFID         *int64   `json:"fc_fid"`
	Lens          *string  `json:"lens"`
	GitHub        *string  `json:"github"`
	Sources       []string `json:"sources"`
}

// BatchUpsertRequest is the body of POST /admin/identities/batch.
type BatchUpsertRequest struct {
	Results    []ProviderResultRequest `json:"results"`
	MaxRetries int                     `json:"max_retries"`
}

// Validate implements httputil.Validatable. Individual results are not
// checked here; the service counts unusable ones as skipped.
func (r *BatchUpsertRequest) Validate() error {
	if len(r.Results) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "results must not be empty")
	}
	if len(r.Results) > maxBatchResults {
		return dErrors.New(dErrors.CodeBadRequest, "too many results in one batch")
	}
	if r.MaxRetries < 0 || r.MaxRetries > 10 {
		return dErrors.New(dErrors.CodeBadRequest, "max_retries must be between 0 and 10")
	}
	return nil
}

func (r *BatchUpsertRequest) ToModels() []models.ProviderResult {
	out := make([]models.ProviderResult, len(r.Results))
	for i, p := range r.Results {
		out[i] = models.ProviderResult{
			Wallet:        p.Wallet,
			ENSName:       p.ENSName,
			TwitterHandle: p.TwitterHandle,
			TwitterURL:    p.TwitterURL,
			Farcaster:     p.Farcaster,
			FarcasterURL:  p.FarcasterURL,
			FCFollowers:   p.FCFollowers,
			FCFID:         p.FCFID,
			Lens:          p.Lens,
			GitHub:        p.GitHub,
			Sources:       p.Sources,
		}
	}
	return out
}
