package platform

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/url"

	"github.com/felixgeelhaar/campusconnect/internal/errors"
	"github.com/felixgeelhaar/campusconnect/internal/profile"
)

// ProfileStore implements profile.Store against the profile service.
//
//	GET   /v1/profiles/{id}  fetch (404 when absent)
//	PATCH /v1/profiles/{id}  merge a profile.Update
//	PUT   /v1/profiles/{id}  replace
type ProfileStore struct {
	client *Client
}

var _ profile.Store = (*ProfileStore)(nil)

// NewProfileStore creates a store backed by client.
func NewProfileStore(client *Client) *ProfileStore {
	return &ProfileStore{client: client}
}

func profilePath(userID string) string {
	return "/v1/profiles/" + url.PathEscape(userID)
}

// classify maps HTTP failures onto the error taxonomy: 404 is NotFound, 401
// and 403 are auth failures, other 4xx are invalid input, anything else is a
// transport failure.
func classify(op, userID string, err error) error {
	var status *StatusError
	if stderrors.As(err, &status) {
		switch {
		case status.StatusCode == http.StatusNotFound:
			return errors.NewProfileNotFoundError(userID)
		case status.StatusCode == http.StatusUnauthorized || status.StatusCode == http.StatusForbidden:
			return errors.Wrap(errors.ErrCodeIdentityTokenInvalid, op+" not authorized", err).
				WithKind(errors.KindAuth).
				WithSuggestion("Run 'campusconnect login' to refresh your session")
		case status.StatusCode >= 400 && status.StatusCode < 500:
			return errors.Wrap(errors.ErrCodeProfileInvalid, op+" rejected", err).WithKind(errors.KindInvalid)
		}
	}
	return errors.NewTransportError(errors.ErrCodeProfileTransport, op, err)
}

// Get fetches a profile.
func (s *ProfileStore) Get(ctx context.Context, userID string) (*profile.Profile, error) {
	resp, err := s.client.doRequest(ctx, http.MethodGet, profilePath(userID), nil)
	if err != nil {
		return nil, classify("fetch profile", userID, err)
	}
	var p profile.Profile
	if err := parseResponse(resp, &p); err != nil {
		return nil, classify("fetch profile", userID, err)
	}
	if p.UserID == "" {
		p.UserID = userID
	}
	return &p, nil
}

// Merge sends a partial update.
func (s *ProfileStore) Merge(ctx context.Context, userID string, u profile.Update) error {
	resp, err := s.client.doRequest(ctx, http.MethodPatch, profilePath(userID), u)
	if err != nil {
		return classify("merge profile", userID, err)
	}
	if err := parseResponse(resp, nil); err != nil {
		return classify("merge profile", userID, err)
	}
	return nil
}

// Put replaces a profile.
func (s *ProfileStore) Put(ctx context.Context, p *profile.Profile) error {
	if p == nil || p.UserID == "" {
		return errors.New(errors.ErrCodeProfileInvalid, "profile needs a user ID").WithKind(errors.KindInvalid)
	}
	resp, err := s.client.doRequest(ctx, http.MethodPut, profilePath(p.UserID), p)
	if err != nil {
		return classify("save profile", p.UserID, err)
	}
	if err := parseResponse(resp, nil); err != nil {
		return classify("save profile", p.UserID, err)
	}
	return nil
}
