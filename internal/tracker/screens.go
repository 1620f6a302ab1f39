package tracker

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const pageSize = 100

// flexID accepts ids Jira returns either as numbers or as strings.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	*f = flexID(b)
	return nil
}

type page[T any] struct {
	StartAt    int  `json:"startAt"`
	MaxResults int  `json:"maxResults"`
	Total      int  `json:"total"`
	IsLast     bool `json:"isLast"`
	Values     []T  `json:"values"`
}

type screen struct {
	ID            flexID `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	ScreenSchemes *struct {
		Values []screenScheme `json:"values"`
	} `json:"screenSchemes"`
}

type screenScheme struct {
	ID          flexID `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type schemeMapping struct {
	IssueTypeID    flexID `json:"issueTypeId"`
	ScreenSchemeID flexID `json:"screenSchemeId"`
}

type issueType struct {
	ID   flexID `json:"id"`
	Name string `json:"name"`
}

type screenTab struct {
	ID   flexID `json:"id"`
	Name string `json:"name"`
}

// ScreenField is one field placed on a screen tab.
type ScreenField struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Tab  string `json:"tab" yaml:"tab"`
}

// ScreenConfig describes which fields an issue type's screen shows.
type ScreenConfig struct {
	ScreenID          string        `json:"screen_id" yaml:"screen_id"`
	ScreenName        string        `json:"screen_name" yaml:"screen_name"`
	ScreenDescription string        `json:"screen_description,omitempty" yaml:"screen_description,omitempty"`
	SchemeID          string        `json:"scheme_id" yaml:"scheme_id"`
	SchemeName        string        `json:"scheme_name" yaml:"scheme_name"`
	Fields            []ScreenField `json:"fields" yaml:"fields"`
}

// ScreenConfiguration returns, per issue type name, the screen used by the
// project's screens (those named "<project>: ..."). It is an inspection aid
// for deciding which custom fields the bot has to fill.
func (c *Client) ScreenConfiguration(ctx context.Context, project string) (map[string]ScreenConfig, error) {
	screens, err := paginate[screen](ctx, c, "rest/api/2/screens", url.Values{"expand": {"screenScheme"}})
	if err != nil {
		return nil, fmt.Errorf("listing screens: %w", err)
	}
	mappings, err := paginate[schemeMapping](ctx, c, "rest/api/2/issuetypescreenscheme/mapping", nil)
	if err != nil {
		return nil, fmt.Errorf("listing screen scheme mappings: %w", err)
	}
	var types []issueType
	if err := c.get(ctx, "rest/api/2/issuetype", nil, &types); err != nil {
		return nil, fmt.Errorf("listing issue types: %w", err)
	}
	typeNames := make(map[flexID]string, len(types))
	for _, t := range types {
		typeNames[t.ID] = t.Name
	}

	out := map[string]ScreenConfig{}
	prefix := project + ":"
	for _, s := range screens {
		if !strings.HasPrefix(s.Name, prefix) || s.ScreenSchemes == nil {
			continue
		}
		fields, err := c.screenFields(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		for _, scheme := range s.ScreenSchemes.Values {
			cfg := ScreenConfig{
				ScreenID:          string(s.ID),
				ScreenName:        s.Name,
				ScreenDescription: s.Description,
				SchemeID:          string(scheme.ID),
				SchemeName:        scheme.Name,
				Fields:            fields,
			}
			for _, m := range mappings {
				if m.ScreenSchemeID != scheme.ID {
					continue
				}
				name, ok := typeNames[m.IssueTypeID]
				if !ok {
					name = string(m.IssueTypeID)
				}
				out[name] = cfg
			}
		}
	}
	return out, nil
}

func (c *Client) screenFields(ctx context.Context, screenID flexID) ([]ScreenField, error) {
	var tabs []screenTab
	if err := c.get(ctx, fmt.Sprintf("rest/api/2/screens/%s/tabs", screenID), nil, &tabs); err != nil {
		return nil, fmt.Errorf("listing tabs of screen %s: %w", screenID, err)
	}
	var fields []ScreenField
	for _, tab := range tabs {
		var tabFields []ScreenField
		path := fmt.Sprintf("rest/api/2/screens/%s/tabs/%s/fields", screenID, tab.ID)
		if err := c.get(ctx, path, nil, &tabFields); err != nil {
			return nil, fmt.Errorf("listing fields of screen %s tab %s: %w", screenID, tab.ID, err)
		}
		for _, f := range tabFields {
			f.Tab = tab.Name
			fields = append(fields, f)
		}
	}
	return fields, nil
}

func paginate[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	var all []T
	start := 0
	for {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("startAt", strconv.Itoa(start))
		q.Set("maxResults", strconv.Itoa(pageSize))

		var p page[T]
		if err := c.get(ctx, path, q, &p); err != nil {
			return nil, err
		}
		all = append(all, p.Values...)
		if p.IsLast || len(p.Values) == 0 {
			return all, nil
		}
		start += len(p.Values)
	}
}
