package assets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/hwops/assetsync/internal/transport"
)

// QueryPage is one page of query results. Entries from a paged query carry
// only a subset of attributes; fetch the object by id before reading
// attribute values that matter.
type QueryPage struct {
	Entries []Object `json:"values"`
	Total   int      `json:"totalFilterCount"`
	StartAt int      `json:"startAt"`
}

// Query runs one page of a query expression.
func (c *Client) Query(ctx context.Context, query string, startAt, maxResults int) (*QueryPage, error) {
	params := url.Values{}
	params.Set("startAt", strconv.Itoa(startAt))
	params.Set("maxResults", strconv.Itoa(maxResults))
	params.Set("includeAttributes", "true")

	resp, err := c.post(ctx, "/object/aql", params, map[string]string{"qlQuery": query})
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	var page QueryPage
	if err := resp.JSON(&page); err != nil {
		return nil, err
	}
	return &page, nil
}

// QueryAll runs a query to completion, walking pages sequentially until a
// short or empty page signals the end.
func (c *Client) QueryAll(ctx context.Context, query string) ([]Object, error) {
	var all []Object
	startAt := 0

	for {
		page, err := c.Query(ctx, query, startAt, c.config.PageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Entries...)

		if len(page.Entries) < c.config.PageSize || len(page.Entries) == 0 {
			break
		}
		startAt += len(page.Entries)
	}

	c.logger.Printf("Query returned %d objects: %s", len(all), query)
	return all, nil
}

// Get fetches one object by id with its full attribute set.
func (c *Client) Get(ctx context.Context, objectID int) (*Object, error) {
	resp, err := c.get(ctx, fmt.Sprintf("/object/%d", objectID), nil)
	if err != nil {
		var apiErr *transport.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == 404 {
			return nil, fmt.Errorf("%w: object %d", ErrAssetNotFound, objectID)
		}
		return nil, fmt.Errorf("failed to get object %d: %w", objectID, err)
	}

	var obj Object
	if err := resp.JSON(&obj); err != nil {
		return nil, err
	}
	return &obj, nil
}

// GetByKey fetches one object by its human-readable key.
func (c *Client) GetByKey(ctx context.Context, objectKey string) (*Object, error) {
	page, err := c.Query(ctx, fmt.Sprintf("Key = %q", objectKey), 0, 1)
	if err != nil {
		return nil, err
	}
	if len(page.Entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, objectKey)
	}
	// Query entries are attribute-incomplete; return the full record.
	return c.Get(ctx, page.Entries[0].ID)
}

// Update writes attribute values on an object.
func (c *Client) Update(ctx context.Context, objectID int, updates []AttributeUpdate) (*Object, error) {
	body := map[string]any{"attributes": updates}

	resp, err := c.put(ctx, fmt.Sprintf("/object/%d", objectID), body)
	if err != nil {
		return nil, fmt.Errorf("failed to update object %d: %w", objectID, err)
	}

	var obj Object
	if err := resp.JSON(&obj); err != nil {
		return nil, err
	}
	return &obj, nil
}

// Create adds a new object of the given type.
func (c *Client) Create(ctx context.Context, typeID int, updates []AttributeUpdate) (*Object, error) {
	body := map[string]any{
		"objectTypeId": strconv.Itoa(typeID),
		"attributes":   updates,
	}

	resp, err := c.post(ctx, "/object/create", nil, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create object: %w", err)
	}

	var obj Object
	if err := resp.JSON(&obj); err != nil {
		return nil, err
	}
	c.logger.Printf("Created object %s", obj.ObjectKey)
	return &obj, nil
}

// Delete removes an object.
func (c *Client) Delete(ctx context.Context, objectID int) error {
	if _, err := c.delete(ctx, fmt.Sprintf("/object/%d", objectID)); err != nil {
		return fmt.Errorf("failed to delete object %d: %w", objectID, err)
	}
	return nil
}

// FindBySerialNumber locates an object by its serial number, constrained to
// typeID when non-zero. The query matches on the shared "Serial Number"
// attribute; the type filter runs client-side because serial attributes
// exist on several types.
func (c *Client) FindBySerialNumber(ctx context.Context, serial string, typeID int) (*Object, error) {
	page, err := c.Query(ctx, fmt.Sprintf(`"Serial Number" = %q`, serial), 0, c.config.PageSize)
	if err != nil {
		return nil, err
	}

	for i := range page.Entries {
		if typeID != 0 && page.Entries[i].ObjectType.ID != typeID {
			continue
		}
		return c.Get(ctx, page.Entries[i].ID)
	}
	return nil, fmt.Errorf("%w: serial %q", ErrAssetNotFound, serial)
}
