package assets

import (
	"context"
	"fmt"
	"strconv"
)

// Schemas lists every schema in the workspace. One listing populates the
// whole in-process schema map, so a run resolving several schemas by name
// still costs a single call.
func (c *Client) Schemas(ctx context.Context) ([]Schema, error) {
	cacheKey := "schemas"

	var schemas []Schema
	if c.config.Store != nil {
		hit, err := c.config.Store.Get(cacheKey, &schemas)
		if err != nil {
			return nil, err
		}
		if hit {
			c.rememberSchemas(schemas, true)
			return schemas, nil
		}
	}

	resp, err := c.get(ctx, "/objectschema/list", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list schemas: %w", err)
	}

	var result struct {
		Values []Schema `json:"values"`
	}
	if err := resp.JSON(&result); err != nil {
		return nil, err
	}
	schemas = result.Values

	if c.config.Store != nil {
		if err := c.config.Store.Put(cacheKey, schemas); err != nil {
			c.logger.Printf("WARNING: failed to cache schemas: %v", err)
		}
	}
	c.rememberSchemas(schemas, false)
	return schemas, nil
}

// SchemaByName resolves a schema by exact name.
func (c *Client) SchemaByName(ctx context.Context, name string) (*Schema, error) {
	c.mu.Lock()
	if schema, ok := c.schemas[name]; ok {
		c.hits++
		c.mu.Unlock()
		return &schema, nil
	}
	c.mu.Unlock()

	schemas, err := c.Schemas(ctx)
	if err != nil {
		return nil, err
	}
	for _, schema := range schemas {
		if schema.Name == name {
			return &schema, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrSchemaNotFound, name)
}

// ObjectTypes lists the object types of a schema.
func (c *Client) ObjectTypes(ctx context.Context, schemaID int) ([]ObjectType, error) {
	cacheKey := "objecttypes_" + strconv.Itoa(schemaID)

	var types []ObjectType
	if c.config.Store != nil {
		hit, err := c.config.Store.Get(cacheKey, &types)
		if err != nil {
			return nil, err
		}
		if hit {
			c.rememberTypes(schemaID, types, true)
			return types, nil
		}
	}

	resp, err := c.get(ctx, fmt.Sprintf("/objectschema/%d/objecttypes", schemaID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list object types for schema %d: %w", schemaID, err)
	}
	if err := resp.JSON(&types); err != nil {
		return nil, err
	}

	if c.config.Store != nil {
		if err := c.config.Store.Put(cacheKey, types); err != nil {
			c.logger.Printf("WARNING: failed to cache object types: %v", err)
		}
	}
	c.rememberTypes(schemaID, types, false)
	return types, nil
}

// ObjectTypeByName resolves an object type by exact name within a schema.
func (c *Client) ObjectTypeByName(ctx context.Context, schemaID int, name string) (*ObjectType, error) {
	key := typeKey(schemaID, name)

	c.mu.Lock()
	if t, ok := c.types[key]; ok {
		c.hits++
		c.mu.Unlock()
		return &t, nil
	}
	c.mu.Unlock()

	types, err := c.ObjectTypes(ctx, schemaID)
	if err != nil {
		return nil, err
	}
	for _, t := range types {
		if t.Name == name {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: %q in schema %d", ErrObjectTypeNotFound, name, schemaID)
}

// Attributes lists the attributes of an object type.
func (c *Client) Attributes(ctx context.Context, typeID int) ([]Attribute, error) {
	cacheKey := "attributes_" + strconv.Itoa(typeID)

	var attrs []Attribute
	if c.config.Store != nil {
		hit, err := c.config.Store.Get(cacheKey, &attrs)
		if err != nil {
			return nil, err
		}
		if hit {
			c.rememberAttributes(typeID, attrs, true)
			return attrs, nil
		}
	}

	resp, err := c.get(ctx, fmt.Sprintf("/objecttype/%d/attributes", typeID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list attributes for type %d: %w", typeID, err)
	}
	if err := resp.JSON(&attrs); err != nil {
		return nil, err
	}

	if c.config.Store != nil {
		if err := c.config.Store.Put(cacheKey, attrs); err != nil {
			c.logger.Printf("WARNING: failed to cache attributes: %v", err)
		}
	}
	c.rememberAttributes(typeID, attrs, false)
	return attrs, nil
}

// AttributeID resolves an attribute by exact name within an object type.
func (c *Client) AttributeID(ctx context.Context, typeID int, name string) (int, error) {
	c.mu.Lock()
	if byName, ok := c.attributes[typeID]; ok {
		if id, ok := byName[name]; ok {
			c.hits++
			c.mu.Unlock()
			return id, nil
		}
		// Map is populated but the name is absent: the type has no such
		// attribute, no point re-fetching.
		c.mu.Unlock()
		return 0, fmt.Errorf("%w: %q on type %d", ErrAttributeNotFound, name, typeID)
	}
	c.mu.Unlock()

	attrs, err := c.Attributes(ctx, typeID)
	if err != nil {
		return 0, err
	}
	for _, attr := range attrs {
		if attr.Name == name {
			return attr.ID, nil
		}
	}
	return 0, fmt.Errorf("%w: %q on type %d", ErrAttributeNotFound, name, typeID)
}

func (c *Client) rememberSchemas(schemas []Schema, fromCache bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, schema := range schemas {
		c.schemas[schema.Name] = schema
	}
	if fromCache {
		c.hits++
	} else {
		c.misses++
	}
}

func (c *Client) rememberTypes(schemaID int, types []ObjectType, fromCache bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range types {
		c.types[typeKey(schemaID, t.Name)] = t
	}
	if fromCache {
		c.hits++
	} else {
		c.misses++
	}
}

func (c *Client) rememberAttributes(typeID int, attrs []Attribute, fromCache bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byName := make(map[string]int, len(attrs))
	for _, attr := range attrs {
		byName[attr.Name] = attr.ID
	}
	c.attributes[typeID] = byName
	if fromCache {
		c.hits++
	} else {
		c.misses++
	}
}

func typeKey(schemaID int, name string) string {
	return strconv.Itoa(schemaID) + ":" + name
}
