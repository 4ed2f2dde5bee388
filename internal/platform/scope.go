package platform

import (
	"context"
	"fmt"
	"sync"

	"adi/internal/errs"
)

type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	UUID string `json:"uuid"`
}

// OrgSelector picks an organization by exactly one of its keys.
type OrgSelector struct {
	Name string
	UUID string
	ID   string
}

const organizationsQuery = `
query {
  currentUser {
    organizations {
      name
      id
      uuid
    }
  }
}`

// Scope is the default organization for calls that need one. It is
// resolved lazily and cached until Reset.
type Scope struct {
	c *Client

	mu  sync.Mutex
	org *Organization
}

func NewScope(c *Client) *Scope { return &Scope{c: c} }

func (s *Scope) organizations(ctx context.Context) ([]Organization, error) {
	var out struct {
		CurrentUser struct {
			Organizations []Organization `json:"organizations"`
		} `json:"currentUser"`
	}
	if err := s.c.Query(ctx, organizationsQuery, nil, &out); err != nil {
		return nil, err
	}
	return out.CurrentUser.Organizations, nil
}

// Default returns the selected organization, or the user's first one.
func (s *Scope) Default(ctx context.Context) (Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.org != nil {
		return *s.org, nil
	}
	orgs, err := s.organizations(ctx)
	if err != nil {
		return Organization{}, err
	}
	if len(orgs) == 0 {
		return Organization{}, fmt.Errorf("platform: current user belongs to no organization")
	}
	s.org = &orgs[0]
	return *s.org, nil
}

// Set selects the one organization matching sel. UUID wins over name,
// name over id.
func (s *Scope) Set(ctx context.Context, sel OrgSelector) error {
	var match func(Organization) bool
	switch {
	case sel.UUID != "":
		match = func(o Organization) bool { return o.UUID == sel.UUID }
	case sel.Name != "":
		match = func(o Organization) bool { return o.Name == sel.Name }
	case sel.ID != "":
		match = func(o Organization) bool { return o.ID == sel.ID }
	default:
		return errs.Configuration("platform", "must supply one of name, uuid, or id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	orgs, err := s.organizations(ctx)
	if err != nil {
		return err
	}
	var found []Organization
	for _, o := range orgs {
		if match(o) {
			found = append(found, o)
		}
	}
	if len(found) != 1 {
		return fmt.Errorf("platform: selector should match exactly one organization (matches: %d)", len(found))
	}
	s.org = &found[0]
	return nil
}

// Reset forgets the cached organization.
func (s *Scope) Reset() {
	s.mu.Lock()
	s.org = nil
	s.mu.Unlock()
}
