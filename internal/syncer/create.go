package syncer

import (
	"context"
	"fmt"
	"strings"

	"github.com/hwops/assetsync/internal/assets"
)

// CreateAsset adds a new asset of the configured type with the given
// attribute values, keyed by attribute name. Values for date attributes
// are normalized to the canonical form before the write.
//
// Attribute names are resolved up front so a single typo fails the whole
// create instead of producing a half-populated object.
func (e *Engine) CreateAsset(ctx context.Context, attrs map[string]string, dryRun bool) (*assets.Object, error) {
	ids, err := e.resolve(ctx)
	if err != nil {
		return nil, err
	}

	updates := make([]assets.AttributeUpdate, 0, len(attrs))
	for name, value := range attrs {
		attrID, err := e.assets.AttributeID(ctx, ids.typeID, name)
		if err != nil {
			return nil, err
		}

		if isDateAttribute(name) {
			normalized, err := NormalizeDate(value, e.clock())
			if err != nil {
				return nil, fmt.Errorf("attribute %q: %w", name, err)
			}
			value = normalized
		}

		updates = append(updates, assets.BuildAttributeUpdate(attrID, value))
	}

	if dryRun {
		e.logger.Printf("[dry-run] Would create %s asset with %d attributes", e.config.ObjectType, len(updates))
		return nil, nil
	}

	obj, err := e.assets.Create(ctx, ids.typeID, updates)
	if err != nil {
		return nil, err
	}
	e.logger.Printf("Created asset %s", obj.ObjectKey)
	return obj, nil
}

// FindBySerial locates an asset of the configured type by serial number.
func (e *Engine) FindBySerial(ctx context.Context, serial string) (*assets.Object, error) {
	ids, err := e.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return e.assets.FindBySerialNumber(ctx, serial, ids.typeID)
}

func isDateAttribute(name string) bool {
	return strings.Contains(strings.ToLower(name), "date")
}
